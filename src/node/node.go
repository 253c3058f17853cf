package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/ledger"
	"github.com/olachain/ola/src/net"
	"github.com/olachain/ola/src/peers"
	ledgerstate "github.com/olachain/ola/src/state"
	"github.com/olachain/ola/src/txpool"
	"github.com/olachain/ola/src/validation"
	"github.com/sirupsen/logrus"
)

// Node defines a ledger node
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	validator *Validator

	ledger   *ledger.Ledger
	engine   *validation.Engine
	pool     *txpool.Pool
	registry *peers.Registry
	syncer   *SyncCoordinator

	trans net.Transport
	netCh <-chan net.RPC
	seeds []string

	// produceLock serializes block production.
	produceLock sync.Mutex

	syncCh       chan struct{}
	sigintCh     chan os.Signal
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	controlTimer *ControlTimer

	start           time.Time
	blocksProduced  uint64
	rejectedBlocks  uint64
	consensusFaults uint64
	syncRequests    uint64
	syncErrors      uint64
	lastFault       atomic.Value
}

// NewNode is a factory method that returns a Node instance. seeds are the
// addresses handshaked with at start-up.
func NewNode(conf *Config,
	validator *Validator,
	l *ledger.Ledger,
	pool *txpool.Pool,
	registry *peers.Registry,
	trans net.Transport,
	seeds []string,
) *Node {
	//Prepare sigintCh to relay SIGINT system calls
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGINT)

	logger := conf.Logger.WithFields(logrus.Fields{
		"prefix":  "node",
		"this_id": validator.Address(),
	})

	node := Node{
		validator:    validator,
		conf:         conf,
		logger:       logger,
		ledger:       l,
		engine:       l.Engine(),
		pool:         pool,
		registry:     registry,
		syncer:       NewSyncCoordinator(l, trans, registry, conf.SyncLimit, logger.WithField("prefix", "sync")),
		trans:        trans,
		netCh:        trans.Consumer(),
		seeds:        seeds,
		syncCh:       make(chan struct{}, 1),
		sigintCh:     sigintCh,
		shutdownCh:   make(chan struct{}),
		controlTimer: NewRandomControlTimer(),
	}

	node.syncer.add = node.commitBlock

	return &node
}

// Init starts accepting connections, handshakes with the seed peers, and
// starts in the CatchingUp state.
func (n *Node) Init() error {
	n.start = time.Now()

	go n.trans.Listen()

	n.connectSeeds()

	n.setState(CatchingUp)

	return nil
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")

	go n.Run()
}

// Run invokes the main loop of the node
func (n *Node) Run() {
	//The ControlTimer paces block production. Every tick is an opportunity to
	//propose a block, which is taken only when it is our turn.
	go n.controlTimer.Run(n.conf.BlockInterval)

	//Execute some background work regardless of the state of the node.
	go n.doBackgroundWork()

	go n.heartbeat()

	//Execute Node State Machine
	for {
		//Run different routines depending on node state
		state := n.getState()

		n.logger.WithField("state", state.String()).Debug("Run loop")

		switch state {
		case Running:
			n.run()
		case CatchingUp:
			n.catchUp()
		case Shutdown:
			return
		}
	}
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case rpc := <-n.netCh:
			if !n.goFunc(func() { n.processRPC(rpc) }) {
				n.processRPC(rpc)
			}
		case <-n.shutdownCh:
			return
		case <-n.sigintCh:
			n.logger.Debug("Reacting to SIGINT - Shutdown")
			go n.Shutdown()
			return
		}
	}
}

// run produces blocks until a sync is needed.
func (n *Node) run() {
	n.logger.Debug("RUNNING")

	for {
		select {
		case <-n.controlTimer.tickCh:
			n.goFunc(func() { n.produceBlock() })
			n.controlTimer.Reset(n.conf.BlockInterval)
		case <-n.syncCh:
			n.setState(CatchingUp)
			return
		case <-n.shutdownCh:
			return
		}
	}
}

// catchUp refreshes what peers report and fetches missing blocks from the
// ones that are ahead.
func (n *Node) catchUp() {
	n.logger.Debug("CATCHING-UP")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		select {
		case <-n.shutdownCh:
			cancel()
		case <-done:
		}
	}()

	n.refreshPeers()

	atomic.AddUint64(&n.syncRequests, 1)
	start := time.Now()
	err := n.syncer.CatchUp(ctx)
	close(done)
	cancel()

	head := n.ledger.CurrentHead()
	fields := logrus.Fields{
		"height":   head.Height,
		"head":     head.Hash,
		"duration": time.Since(start).Nanoseconds(),
	}
	if err != nil && err != context.Canceled {
		atomic.AddUint64(&n.syncErrors, 1)
		n.logger.WithFields(fields).WithError(err).Warn("CatchUp")
	} else {
		n.logger.WithFields(fields).Debug("CatchUp")
	}

	if n.getState() != Shutdown {
		n.setState(Running)
	}
}

// triggerSync asks the run loop to switch to CatchingUp. Requests made while
// one is pending are merged.
func (n *Node) triggerSync() {
	select {
	case n.syncCh <- struct{}{}:
	default:
	}
}

func (n *Node) heartbeat() {
	if n.conf.HeartbeatTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(n.conf.HeartbeatTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.refreshPeers()
		case <-n.shutdownCh:
			return
		}
	}
}

// refreshPeers handshakes every known peer and seed, drops the ones that are
// unreachable or silent for longer than the liveness timeout, and triggers a
// sync if one of them is ahead.
func (n *Node) refreshPeers() {
	targets := make(map[string]bool)
	for _, p := range n.registry.List() {
		targets[p.NetAddr] = true
	}
	for _, s := range n.seeds {
		targets[s] = true
	}
	delete(targets, n.trans.AdvertiseAddr())

	for addr := range targets {
		if n.getState() == Shutdown {
			return
		}
		if _, err := n.connect(addr); err != nil && net.IsPeerUnreachable(err) {
			if p, ok := n.registry.ByNetAddr(addr); ok {
				n.registry.Unregister(p.ID)
				n.logger.WithFields(logrus.Fields{
					"peer":  p.ID,
					"addr":  addr,
					"error": err,
				}).Info("Peer unreachable")
			}
		}
	}

	for _, p := range n.registry.EvictStale(time.Now(), n.conf.LivenessTimeout) {
		n.logger.WithFields(logrus.Fields{
			"peer":      p.ID,
			"addr":      p.NetAddr,
			"last_seen": p.LastSeen,
		}).Info("Evicted stale peer")
	}
}

func (n *Node) connectSeeds() {
	for _, addr := range n.seeds {
		if addr == n.trans.AdvertiseAddr() {
			continue
		}
		if _, err := n.connect(addr); err != nil {
			n.logger.WithFields(logrus.Fields{
				"addr":  addr,
				"error": err,
			}).Warn("Cannot connect to seed")
		}
	}
}

// connect performs a handshake with the node at addr and registers it.
func (n *Node) connect(addr string) (*peers.Peer, error) {
	resp, err := n.trans.Request(addr, n.handshake())
	if err != nil {
		return nil, err
	}

	hs, ok := resp.(*net.Handshake)
	if !ok {
		return nil, fmt.Errorf("unexpected answer %s to Handshake", resp.Type())
	}

	if err := n.checkHandshake(hs); err != nil {
		return nil, err
	}

	p := &peers.Peer{
		ID:       hs.PeerID,
		NetAddr:  addr,
		Moniker:  hs.Moniker,
		Version:  hs.Version,
		Height:   hs.Height,
		Head:     hs.Head,
		LastSeen: time.Now(),
	}

	if n.registry.Register(p) {
		n.logger.WithFields(logrus.Fields{
			"peer":    p.ID,
			"addr":    addr,
			"moniker": p.Moniker,
			"height":  p.Height,
		}).Info("Connected to peer")
	}

	if hs.Height > n.ledger.CurrentHead().Height {
		n.triggerSync()
	}

	return p, nil
}

func (n *Node) handshake() *net.Handshake {
	head := n.ledger.CurrentHead()
	return &net.Handshake{
		Version:    net.ProtocolVersion,
		PeerID:     string(n.validator.Address()),
		ListenAddr: n.trans.AdvertiseAddr(),
		Moniker:    n.validator.Moniker,
		Height:     head.Height,
		Head:       head.Hash,
	}
}

func (n *Node) checkHandshake(hs *net.Handshake) error {
	if !hs.Compatible() {
		return fmt.Errorf("incompatible protocol version %q", hs.Version)
	}
	if _, ok := chain.ParseAddress(hs.PeerID); !ok {
		return fmt.Errorf("invalid peer id %q", hs.PeerID)
	}
	if hs.PeerID == string(n.validator.Address()) {
		return fmt.Errorf("handshake with self")
	}
	return nil
}

// broadcast sends msg to a snapshot of the registry, skipping the peer whose
// ID is origin. Peers that cannot be reached are removed.
func (n *Node) broadcast(msg net.Message, origin string) {
	for _, p := range n.registry.List() {
		if origin != "" && p.ID == origin {
			continue
		}

		if err := n.trans.Send(p.NetAddr, msg); err != nil {
			n.logger.WithFields(logrus.Fields{
				"peer":  p.ID,
				"msg":   msg.Type().String(),
				"error": err,
			}).Debug("broadcast")

			if net.IsPeerUnreachable(err) {
				n.registry.Unregister(p.ID)
			}
		}
	}
}

// produceBlock proposes a block from the pool when it is our turn, or when
// the validator whose turn it is has been silent for two block intervals.
func (n *Node) produceBlock() {
	n.produceLock.Lock()
	defer n.produceLock.Unlock()

	if n.getState() != Running || n.pool.Len() == 0 {
		return
	}

	addr := n.validator.Address()
	if !n.engine.IsValidator(addr) {
		return
	}

	head, headState := n.ledger.Head()
	height := head.Height() + 1

	turn := n.engine.Genesis().ProposerAt(height) == addr
	stale := time.Since(time.Unix(0, head.Header.Timestamp)) > 2*n.conf.BlockInterval
	if !turn && !stale {
		return
	}

	block, _, err := n.engine.Propose(head, headState, addr, n.pool.Pending(), n.conf.MaxBlockTxs, n.conf.MaxBlockBytes)
	if err != nil {
		n.logger.WithError(err).Error("Proposing block")
		return
	}

	if len(block.Transactions) == 0 {
		// Nothing in the pool is valid against the head: drop what is stale.
		n.pool.Prune(headState)
		return
	}

	if err := block.Sign(n.validator.Signer()); err != nil {
		n.logger.WithError(err).Error("Signing block")
		return
	}

	if _, err := n.ledger.ApplyBlock(block); err != nil {
		// The head moved while we were proposing.
		n.logger.WithError(err).Debug("Discarding proposed block")
		return
	}
	n.afterAdd(block)

	atomic.AddUint64(&n.blocksProduced, 1)

	n.logger.WithFields(logrus.Fields{
		"height": block.Height(),
		"block":  block.Hex(),
		"txs":    len(block.Transactions),
		"turn":   turn,
	}).Info("Produced block")

	n.broadcast(&net.BlockAnnounce{Block: block}, "")
}

// commitBlock adds a block received from the network. A consensus fault
// raised by the ledger rejects the block and is recorded in the stats.
func (n *Node) commitBlock(block *chain.Block) (res *ledger.AddResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*ledger.ConsensusFault)
			if !ok {
				panic(r)
			}
			atomic.AddUint64(&n.consensusFaults, 1)
			n.lastFault.Store(f.Reason)
			res, err = nil, f
		}
	}()

	res, err = n.ledger.AddBlock(block)
	if err != nil {
		return nil, err
	}

	if res.HeadChanged() {
		for _, b := range res.Reverted {
			for _, tx := range b.Transactions {
				n.pool.Add(tx)
			}
		}
		for _, b := range res.Applied {
			n.pool.Remove(b.Transactions...)
		}
		n.pool.Prune(n.ledger.HeadState())
	}

	return res, nil
}

// afterAdd updates the pool after one of our blocks extended the head.
func (n *Node) afterAdd(block *chain.Block) {
	n.pool.Remove(block.Transactions...)
	n.pool.Prune(n.ledger.HeadState())
}

// addTransaction admits a transaction to the pool. The nonce may be ahead of
// the account, so transactions from the same sender can be queued.
func (n *Node) addTransaction(tx *chain.Transaction) error {
	if tx == nil {
		return validation.NewError(validation.Structure, "nil transaction")
	}

	if err := n.engine.CheckTransaction(tx); err != nil {
		return err
	}

	acc := n.ledger.StateAt(tx.Body.From)
	if tx.Body.Nonce <= acc.Nonce {
		return validation.NewError(validation.Nonce, "nonce %d already used, account at %d", tx.Body.Nonce, acc.Nonce)
	}

	cost, _ := tx.Cost()
	if acc.Balance < cost {
		return validation.NewError(validation.Balance, "balance %d below cost %d", acc.Balance, cost)
	}

	return n.pool.Add(tx)
}

// SubmitTx adds a locally submitted transaction to the pool and gossips it.
func (n *Node) SubmitTx(tx *chain.Transaction) error {
	if err := n.addTransaction(tx); err != nil {
		return err
	}

	n.logger.WithField("tx", tx.Hex()).Debug("Submitted transaction")

	n.goFunc(func() { n.broadcast(&net.TxAnnounce{Transaction: tx}, "") })

	return nil
}

// Shutdown shuts down the node
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.waitRoutines()

		n.controlTimer.Shutdown()

		signal.Stop(n.sigintCh)

		//transport should only be closed once all concurrent operations
		//are finished
		n.trans.Close()
	})
}

// Done returns a channel that is closed when the node shuts down.
func (n *Node) Done() <-chan struct{} {
	return n.shutdownCh
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	head := n.ledger.CurrentHead()

	lastFault, _ := n.lastFault.Load().(string)

	s := map[string]string{
		"height":           strconv.FormatUint(head.Height, 10),
		"head":             head.Hash,
		"score":            strconv.FormatUint(head.Score, 10),
		"blocks":           strconv.Itoa(n.ledger.Len()),
		"blocks_produced":  strconv.FormatUint(atomic.LoadUint64(&n.blocksProduced), 10),
		"rejected_blocks":  strconv.FormatUint(atomic.LoadUint64(&n.rejectedBlocks), 10),
		"consensus_faults": strconv.FormatUint(atomic.LoadUint64(&n.consensusFaults), 10),
		"last_fault":       lastFault,
		"transaction_pool": strconv.Itoa(n.pool.Len()),
		"num_peers":        strconv.Itoa(n.registry.Len()),
		"sync_rate":        strconv.FormatFloat(n.SyncRate(), 'f', 2, 64),
		"time_elapsed":     strconv.FormatFloat(time.Since(n.start).Seconds(), 'f', 2, 64),
		"id":               string(n.validator.Address()),
		"state":            n.getState().String(),
		"moniker":          n.validator.Moniker,
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"height":           stats["height"],
		"transaction_pool": stats["transaction_pool"],
		"num_peers":        stats["num_peers"],
		"sync_rate":        stats["sync_rate"],
		"rejected_blocks":  stats["rejected_blocks"],
		"state":            stats["state"],
	}).Debug("Stats")
}

// SyncRate returns the share of catch-ups that succeeded
func (n *Node) SyncRate() float64 {
	var syncErrorRate float64

	requests := atomic.LoadUint64(&n.syncRequests)
	if requests != 0 {
		syncErrorRate = float64(atomic.LoadUint64(&n.syncErrors)) / float64(requests)
	}

	return 1 - syncErrorRate
}

// ID returns the node's address
func (n *Node) ID() chain.Address {
	return n.validator.Address()
}

// GetState returns the state of the node
func (n *Node) GetState() State {
	return n.getState()
}

// GetHead returns the head block of the canonical chain
func (n *Node) GetHead() *chain.Block {
	return n.ledger.HeadBlock()
}

// GetBlock returns the canonical block at a height
func (n *Node) GetBlock(height uint64) (*chain.Block, bool) {
	return n.ledger.BlockAt(height)
}

// GetBlockByHash returns a known block, canonical or not
func (n *Node) GetBlockByHash(hash string) (*chain.Block, bool) {
	return n.ledger.BlockByHash(hash)
}

// GetAccount returns an account of the head state
func (n *Node) GetAccount(addr chain.Address) ledgerstate.Account {
	return n.ledger.StateAt(addr)
}

// GetPeers returns a snapshot of the registered peers
func (n *Node) GetPeers() []*peers.Peer {
	return n.registry.List()
}
