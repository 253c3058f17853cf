// Package validation decides whether transactions and blocks may be accepted.
// It never mutates its inputs: blocks are executed against a private copy of
// the parent state.
package validation

import (
	"bytes"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/state"
	"github.com/pkg/errors"
)

// Engine validates items against the rules fixed by a genesis document.
type Engine struct {
	genesis *chain.Genesis
}

// NewEngine ...
func NewEngine(genesis *chain.Genesis) *Engine {
	return &Engine{genesis: genesis}
}

// Genesis ...
func (e *Engine) Genesis() *chain.Genesis {
	return e.genesis
}

// IsValidator reports whether addr may propose blocks.
func (e *Engine) IsValidator(addr chain.Address) bool {
	_, ok := e.genesis.Weight(addr)
	return ok
}

// Weight returns the fork-choice weight of a proposer.
func (e *Engine) Weight(addr chain.Address) uint64 {
	w, _ := e.genesis.Weight(addr)
	return w
}

// CheckTransaction performs the checks that do not depend on state.
func (e *Engine) CheckTransaction(tx *chain.Transaction) error {
	if tx == nil {
		return NewError(Structure, "nil transaction")
	}

	body := tx.Body

	if !body.From.IsValid() {
		return NewError(Structure, "invalid sender address %q", body.From)
	}
	if !body.To.IsValid() {
		return NewError(Structure, "invalid recipient address %q", body.To)
	}
	if body.From == body.To {
		return NewError(Structure, "sender and recipient are both %s", body.From)
	}
	if body.Amount == 0 {
		return NewError(Structure, "amount must be positive")
	}
	if _, ok := tx.Cost(); !ok {
		return NewError(Structure, "amount plus fee overflows")
	}
	if body.Nonce == 0 {
		return NewError(Nonce, "nonce must start at 1")
	}

	if len(tx.Signature) == 0 {
		return NewError(Signature, "transaction is not signed")
	}
	ok, err := tx.Verify()
	if err != nil {
		return NewError(Signature, "cannot recover signer: %v", err)
	}
	if !ok {
		return NewError(Signature, "transaction %s is not signed by %s", tx.Hex(), body.From)
	}

	return nil
}

// ValidateTransaction checks a transaction against a state. The state is not
// modified.
func (e *Engine) ValidateTransaction(tx *chain.Transaction, st *state.State) error {
	if err := e.CheckTransaction(tx); err != nil {
		return err
	}
	return e.checkAgainstState(tx, st)
}

func (e *Engine) checkAgainstState(tx *chain.Transaction, st *state.State) error {
	acc := st.Get(tx.Body.From)

	if tx.Body.Nonce != acc.Nonce+1 {
		return NewError(Nonce, "nonce %d of %s, expected %d", tx.Body.Nonce, tx.Body.From, acc.Nonce+1)
	}

	cost, _ := tx.Cost()
	if acc.Balance < cost {
		return NewError(Balance, "balance %d of %s is less than %d", acc.Balance, tx.Body.From, cost)
	}

	return nil
}

// ValidateBlock checks that block correctly extends parent, whose post-state
// is parentState.
func (e *Engine) ValidateBlock(block, parent *chain.Block, parentState *state.State) error {
	_, err := e.ExecuteBlock(block, parent, parentState)
	return err
}

// ExecuteBlock validates block and returns the state that results from
// applying it to a copy of parentState.
func (e *Engine) ExecuteBlock(block, parent *chain.Block, parentState *state.State) (*state.State, error) {
	if block == nil || parent == nil {
		return nil, NewError(Structure, "nil block")
	}

	header := block.Header

	parentHash := parent.Hex()
	if header.ParentHash != parentHash {
		return nil, NewError(Linkage, "parent %s, expected %s", header.ParentHash, parentHash)
	}
	if header.Height != parent.Header.Height+1 {
		return nil, NewError(Linkage, "height %d does not follow parent height %d", header.Height, parent.Header.Height)
	}
	if header.Timestamp < parent.Header.Timestamp {
		return nil, NewError(Structure, "timestamp %d is before parent timestamp %d", header.Timestamp, parent.Header.Timestamp)
	}

	if !e.IsValidator(header.Proposer) {
		return nil, NewError(Proposer, "%s is not a validator", header.Proposer)
	}
	ok, err := block.Verify()
	if err != nil {
		return nil, NewError(Signature, "block signature: %v", err)
	}
	if !ok {
		return nil, NewError(Signature, "block is not signed by proposer %s", header.Proposer)
	}

	root, err := chain.TxRoot(block.Transactions)
	if err != nil {
		return nil, errors.Wrap(err, "computing transaction root")
	}
	if !bytes.Equal(root, header.TxRoot) {
		return nil, NewError(TxRoot, "transaction root does not match %d transactions", len(block.Transactions))
	}

	next := parentState.Copy()
	seen := make(map[string]bool, len(block.Transactions))

	for i, tx := range block.Transactions {
		if err := e.CheckTransaction(tx); err != nil {
			return nil, errors.Wrapf(err, "transaction %d", i)
		}

		hex := tx.Hex()
		if seen[hex] {
			return nil, NewError(Structure, "duplicate transaction %s", hex)
		}
		seen[hex] = true

		if err := e.checkAgainstState(tx, next); err != nil {
			return nil, errors.Wrapf(err, "transaction %d", i)
		}
		if err := next.ApplyTransaction(tx, header.Proposer); err != nil {
			return nil, errors.Wrap(NewError(Balance, "%v", err), "applying transaction")
		}
	}

	stateHash, err := next.Hash()
	if err != nil {
		return nil, errors.Wrap(err, "hashing state")
	}
	if !bytes.Equal(stateHash, header.StateHash) {
		return nil, NewError(StateMismatch, "state hash %X, header says %X", stateHash, header.StateHash)
	}

	return next, nil
}

// Propose assembles a block on top of parent from candidate transactions.
// Candidates are tried in order, repeatedly, until a pass adds nothing, so a
// sender's transactions are included in nonce order whatever their position.
// Candidates that are not valid against the evolving state are skipped. The
// returned block is not signed.
func (e *Engine) Propose(parent *chain.Block,
	parentState *state.State,
	proposer chain.Address,
	candidates []*chain.Transaction,
	maxTxs int,
	maxBytes int,
) (*chain.Block, *state.State, error) {

	next := parentState.Copy()
	included := make([]*chain.Transaction, 0)
	used := make([]bool, len(candidates))
	size := 0

	for progress := true; progress; {
		progress = false

		for i, tx := range candidates {
			if used[i] {
				continue
			}
			if maxTxs > 0 && len(included) >= maxTxs {
				break
			}

			txSize := tx.Size()
			if maxBytes > 0 && size+txSize > maxBytes {
				continue
			}

			if err := e.ValidateTransaction(tx, next); err != nil {
				continue
			}
			if err := next.ApplyTransaction(tx, proposer); err != nil {
				continue
			}

			used[i] = true
			included = append(included, tx)
			size += txSize
			progress = true
		}
	}

	stateHash, err := next.Hash()
	if err != nil {
		return nil, nil, err
	}

	block, err := chain.NewBlock(parent.Header.Height+1, parent.Hex(), proposer, included, stateHash)
	if err != nil {
		return nil, nil, err
	}

	if block.Header.Timestamp < parent.Header.Timestamp {
		block.Header.Timestamp = parent.Header.Timestamp
	}

	return block, next, nil
}
