package ledger

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/olachain/ola/src/chain"
	cm "github.com/olachain/ola/src/common"
	"github.com/olachain/ola/src/state"
	"github.com/olachain/ola/src/store"
	"github.com/olachain/ola/src/validation"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Outcome describes what adding a block did to the canonical chain.
type Outcome int

const (
	// Extended means the block was appended to the head.
	Extended Outcome = iota
	// Reorganized means the canonical chain switched to the block's fork.
	Reorganized
	// SideChain means the block was recorded but the head did not change.
	SideChain
)

// String ...
func (o Outcome) String() string {
	switch o {
	case Extended:
		return "Extended"
	case Reorganized:
		return "Reorganized"
	case SideChain:
		return "SideChain"
	default:
		return "Unknown"
	}
}

// Head summarises the tip of the canonical chain.
type Head struct {
	Hash   string
	Height uint64
	Score  uint64
}

// AddResult is returned by AddBlock and ApplyBlock.
type AddResult struct {
	Outcome Outcome
	Head    Head
	// Applied lists the blocks that joined the canonical chain, by height.
	Applied []*chain.Block
	// Reverted lists the blocks that left the canonical chain, by height.
	Reverted []*chain.Block
}

// HeadChanged reports whether the canonical head moved.
func (r *AddResult) HeadChanged() bool {
	return r.Outcome != SideChain
}

type entry struct {
	block  *chain.Block
	hash   string
	parent *entry
	score  uint64
}

func (e *entry) height() uint64 {
	return e.block.Header.Height
}

func (e *entry) head() Head {
	return Head{Hash: e.hash, Height: e.height(), Score: e.score}
}

// view is immutable once published.
type view struct {
	head      *entry
	canonical []*entry //[height] => entry
	state     *state.State
}

// Ledger is the ledger state machine.
type Ledger struct {
	genesis *chain.Genesis
	engine  *validation.Engine
	store   store.Store
	logger  *logrus.Entry

	writeLock sync.Mutex

	lock  sync.RWMutex
	arena map[string]*entry
	view  *view

	states       *lru.Cache //hash => *state.State
	genesisEntry *entry
	genesisState *state.State
}

// New creates a Ledger positioned at the genesis block. Call Bootstrap to
// restore a persisted chain.
func New(engine *validation.Engine, store store.Store, cacheSize int, logger *logrus.Entry) (*Ledger, error) {
	genesis := engine.Genesis()

	genesisState := state.New(genesis.Alloc)
	stateHash, err := genesisState.Hash()
	if err != nil {
		return nil, err
	}

	genesisBlock, err := genesis.Block(stateHash)
	if err != nil {
		return nil, err
	}

	states, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	ge := &entry{
		block: genesisBlock,
		hash:  genesisBlock.Hex(),
	}

	l := &Ledger{
		genesis:      genesis,
		engine:       engine,
		store:        store,
		logger:       logger,
		arena:        map[string]*entry{ge.hash: ge},
		states:       states,
		genesisEntry: ge,
		genesisState: genesisState,
		view: &view{
			head:      ge,
			canonical: []*entry{ge},
			state:     genesisState,
		},
	}

	return l, nil
}

// Bootstrap restores the canonical chain recorded in the store by replaying
// every block from genesis. An empty store is initialised with the genesis
// block. Any block that does not replay, or a final state that differs from
// the persisted snapshot, means the local data is corrupted.
func (l *Ledger) Bootstrap() error {
	snapshot, err := l.store.LoadState()
	if cm.IsStore(err, cm.Empty) {
		l.logger.Debug("Empty store, starting from genesis")
		if err := l.store.SetBlock(l.genesisEntry.block); err != nil {
			return err
		}
		return l.store.Persist(l.snapshot(l.currentView()))
	}
	if err != nil {
		return err
	}

	var blocks []*chain.Block
	for hash := snapshot.Head; hash != l.genesisEntry.hash; {
		block, err := l.store.GetBlock(hash)
		if err != nil {
			return errors.Wrapf(err, "loading block %s", hash)
		}
		if block.Height() == 0 {
			return fmt.Errorf("stored chain does not start from this genesis (found %s)", hash)
		}
		blocks = append(blocks, block)
		hash = block.ParentHash()
	}

	l.logger.WithFields(logrus.Fields{
		"head":   snapshot.Head,
		"height": snapshot.Height,
		"blocks": len(blocks),
	}).Debug("Replaying stored chain")

	for i := len(blocks) - 1; i >= 0; i-- {
		if _, err := l.addBlock(blocks[i], false, false); err != nil {
			return errors.Wrapf(err, "replaying block %d", blocks[i].Height())
		}
	}

	v := l.currentView()
	if v.head.hash != snapshot.Head || v.head.height() != snapshot.Height {
		return fmt.Errorf("replayed head %s (%d) differs from stored head %s (%d)",
			v.head.hash, v.head.height(), snapshot.Head, snapshot.Height)
	}

	replayed, err := v.state.Hash()
	if err != nil {
		return err
	}
	stored, err := state.FromAccounts(snapshot.Accounts).Hash()
	if err != nil {
		return err
	}
	if cm.EncodeToString(replayed) != cm.EncodeToString(stored) {
		return fmt.Errorf("replayed state differs from stored state at %s", snapshot.Head)
	}

	return nil
}

// AddBlock is the general entry point for blocks received from peers or
// produced locally. See Outcome for the possible effects. A block whose parent
// is unknown is rejected with a Linkage error, and a block already in the
// arena with ErrKnownBlock. Invalid blocks leave the ledger untouched.
func (l *Ledger) AddBlock(block *chain.Block) (*AddResult, error) {
	return l.addBlock(block, false, true)
}

// ApplyBlock appends a block that must extend the current head.
func (l *Ledger) ApplyBlock(block *chain.Block) (*AddResult, error) {
	return l.addBlock(block, true, true)
}

func (l *Ledger) addBlock(block *chain.Block, requireHead bool, persist bool) (*AddResult, error) {
	if block == nil {
		return nil, validation.NewError(validation.Structure, "nil block")
	}

	hash := block.Hex()

	l.writeLock.Lock()
	defer l.writeLock.Unlock()

	l.lock.RLock()
	_, known := l.arena[hash]
	parent := l.arena[block.ParentHash()]
	cur := l.view
	l.lock.RUnlock()

	if known {
		return nil, ErrKnownBlock
	}
	if parent == nil {
		return nil, validation.NewError(validation.Linkage, "unknown parent %s of block %d", block.ParentHash(), block.Height())
	}
	if requireHead && parent != cur.head {
		return nil, validation.NewError(validation.Linkage, "block %d does not extend head %s", block.Height(), cur.head.hash)
	}

	parentState := l.stateOf(parent, cur)

	next, err := l.engine.ExecuteBlock(block, parent.block, parentState)
	if err != nil {
		return nil, err
	}

	e := &entry{
		block:  block,
		hash:   hash,
		parent: parent,
		score:  l.score(parent, block),
	}

	// The block is stored before it becomes visible, so a snapshot never
	// names a block the store does not hold.
	if persist {
		if err := l.store.SetBlock(block); err != nil {
			l.logger.WithError(err).WithField("block", hash).Error("Persisting block")
			return nil, errors.Wrapf(err, "persisting block %s", hash)
		}
	}

	l.states.Add(hash, next)

	res := &AddResult{Head: cur.head.head()}
	newView := cur

	switch {
	case parent == cur.head:
		if e.height() != uint64(len(cur.canonical)) {
			l.fault("extending head %d with block %d", cur.head.height(), e.height())
		}
		canonical := make([]*entry, len(cur.canonical), len(cur.canonical)+1)
		copy(canonical, cur.canonical)
		newView = &view{
			head:      e,
			canonical: append(canonical, e),
			state:     next,
		}
		res.Outcome = Extended
		res.Applied = []*chain.Block{block}
	case e.score > cur.head.score:
		ancestor, path := branch(e, cur)
		canonical := make([]*entry, ancestor.height()+1, ancestor.height()+1+uint64(len(path)))
		copy(canonical, cur.canonical[:ancestor.height()+1])
		for _, p := range path {
			res.Applied = append(res.Applied, p.block)
		}
		for _, r := range cur.canonical[ancestor.height()+1:] {
			res.Reverted = append(res.Reverted, r.block)
		}
		newView = &view{
			head:      e,
			canonical: append(canonical, path...),
			state:     next,
		}
		res.Outcome = Reorganized
	default:
		res.Outcome = SideChain
	}

	l.lock.Lock()
	l.arena[hash] = e
	l.view = newView
	l.lock.Unlock()

	res.Head = newView.head.head()

	if persist && res.HeadChanged() {
		l.persistSnapshot(newView)
	}

	fields := logrus.Fields{
		"block":   hash,
		"height":  block.Height(),
		"txs":     len(block.Transactions),
		"outcome": res.Outcome.String(),
	}
	if res.Outcome == Reorganized {
		fields["reverted"] = len(res.Reverted)
		fields["applied"] = len(res.Applied)
		l.logger.WithFields(fields).Info("Switched to better fork")
	} else {
		l.logger.WithFields(fields).Debug("Added block")
	}

	return res, nil
}

// branch returns the last canonical ancestor of e and the entries from that
// ancestor (excluded) to e (included), in height order.
func branch(e *entry, v *view) (*entry, []*entry) {
	var path []*entry
	p := e
	for !(p.height() < uint64(len(v.canonical)) && v.canonical[p.height()] == p) {
		path = append(path, p)
		p = p.parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return p, path
}

func (l *Ledger) score(parent *entry, block *chain.Block) uint64 {
	if l.genesis.ForkChoice == chain.ForkChoiceWeight {
		return parent.score + l.engine.Weight(block.Header.Proposer)
	}
	return block.Header.Height
}

// stateOf returns the post-state of e, replaying from the nearest ancestor
// whose state is cached. Every block in the arena was valid when inserted, so
// a replay failure is a consensus fault.
func (l *Ledger) stateOf(e *entry, v *view) *state.State {
	if e == v.head {
		return v.state
	}

	var pending []*entry
	p := e
	var base *state.State
	for base == nil {
		if p == l.genesisEntry {
			base = l.genesisState
			break
		}
		if s, ok := l.states.Get(p.hash); ok {
			base = s.(*state.State)
			break
		}
		pending = append(pending, p)
		p = p.parent
	}

	for i := len(pending) - 1; i >= 0; i-- {
		b := pending[i]
		next, err := l.engine.ExecuteBlock(b.block, b.parent.block, base)
		if err != nil {
			l.fault("replaying accepted block %s: %v", b.hash, err)
		}
		l.states.Add(b.hash, next)
		base = next
	}

	return base
}

func (l *Ledger) fault(format string, args ...interface{}) {
	f := &ConsensusFault{Reason: fmt.Sprintf(format, args...)}
	l.logger.WithError(f).Error("Consensus fault")
	panic(f)
}

func (l *Ledger) snapshot(v *view) *store.Snapshot {
	return &store.Snapshot{
		Head:     v.head.hash,
		Height:   v.head.height(),
		Accounts: v.state.Accounts(),
	}
}

// persistSnapshot records the new head. A failed write leaves the previous
// snapshot in place, which still names stored blocks only.
func (l *Ledger) persistSnapshot(v *view) {
	if err := l.store.Persist(l.snapshot(v)); err != nil {
		l.logger.WithError(err).Error("Persisting snapshot")
	}
}

func (l *Ledger) currentView() *view {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.view
}

/*******************************************************************************
Readers
*******************************************************************************/

// Genesis returns the genesis block.
func (l *Ledger) Genesis() *chain.Block {
	return l.genesisEntry.block
}

// Engine returns the validation engine of the ledger's genesis.
func (l *Ledger) Engine() *validation.Engine {
	return l.engine
}

// CurrentHead returns the head of the canonical chain.
func (l *Ledger) CurrentHead() Head {
	return l.currentView().head.head()
}

// HeadBlock returns the block at the head of the canonical chain.
func (l *Ledger) HeadBlock() *chain.Block {
	return l.currentView().head.block
}

// HeadState returns the state at the head. It must not be modified.
func (l *Ledger) HeadState() *state.State {
	return l.currentView().state
}

// Head returns the head block and its state from the same view.
func (l *Ledger) Head() (*chain.Block, *state.State) {
	v := l.currentView()
	return v.head.block, v.state
}

// StateAt returns the account of addr at the head.
func (l *Ledger) StateAt(addr chain.Address) state.Account {
	return l.currentView().state.Get(addr)
}

// HasBlock reports whether a block is in the arena.
func (l *Ledger) HasBlock(hash string) bool {
	l.lock.RLock()
	defer l.lock.RUnlock()
	_, ok := l.arena[hash]
	return ok
}

// BlockByHash returns any known block, canonical or not.
func (l *Ledger) BlockByHash(hash string) (*chain.Block, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	e, ok := l.arena[hash]
	if !ok {
		return nil, false
	}
	return e.block, true
}

// BlockAt returns the canonical block at height.
func (l *Ledger) BlockAt(height uint64) (*chain.Block, bool) {
	v := l.currentView()
	if height >= uint64(len(v.canonical)) {
		return nil, false
	}
	return v.canonical[height].block, true
}

// CanonicalFrom returns up to limit canonical blocks starting at height.
func (l *Ledger) CanonicalFrom(height uint64, limit int) []*chain.Block {
	v := l.currentView()
	res := []*chain.Block{}
	for h := height; h < uint64(len(v.canonical)) && len(res) < limit; h++ {
		res = append(res, v.canonical[h].block)
	}
	return res
}

// IsCanonical reports whether the block with the given hash is on the
// canonical chain.
func (l *Ledger) IsCanonical(hash string) bool {
	l.lock.RLock()
	e, ok := l.arena[hash]
	v := l.view
	l.lock.RUnlock()

	return ok && e.height() < uint64(len(v.canonical)) && v.canonical[e.height()] == e
}

// Len returns the number of blocks in the arena, including side blocks.
func (l *Ledger) Len() int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return len(l.arena)
}
