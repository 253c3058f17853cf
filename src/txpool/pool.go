// Package txpool holds transactions waiting to be included in a block.
package txpool

import (
	"errors"
	"sort"
	"sync"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/state"
	"github.com/sirupsen/logrus"
)

// DefaultMaxSize is the default number of transactions the pool accepts.
const DefaultMaxSize = 1000

var (
	// ErrPoolFull is returned when the pool has reached its maximum size.
	ErrPoolFull = errors.New("transaction pool is full")
	// ErrKnownTransaction is returned when the transaction is already pooled.
	ErrKnownTransaction = errors.New("known transaction")
)

// Pool is a bounded set of pending transactions. Pending returns them by
// descending fee; transactions of the same fee are ordered by nonce, then by
// hash, so the order is deterministic.
type Pool struct {
	sync.RWMutex
	maxSize int
	txs     map[string]*chain.Transaction
	logger  *logrus.Entry
}

// NewPool ...
func NewPool(maxSize int, logger *logrus.Entry) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		maxSize: maxSize,
		txs:     make(map[string]*chain.Transaction),
		logger:  logger,
	}
}

// Add inserts a transaction.
func (p *Pool) Add(tx *chain.Transaction) error {
	hash := tx.Hex()

	p.Lock()
	defer p.Unlock()

	if _, ok := p.txs[hash]; ok {
		return ErrKnownTransaction
	}
	if len(p.txs) >= p.maxSize {
		return ErrPoolFull
	}

	p.txs[hash] = tx

	p.logger.WithFields(logrus.Fields{
		"tx":   hash,
		"from": tx.Body.From,
		"fee":  tx.Body.Fee,
		"size": len(p.txs),
	}).Debug("Pooled transaction")

	return nil
}

// Contains reports whether the transaction with the given hash is pooled.
func (p *Pool) Contains(hash string) bool {
	p.RLock()
	defer p.RUnlock()
	_, ok := p.txs[hash]
	return ok
}

// Len ...
func (p *Pool) Len() int {
	p.RLock()
	defer p.RUnlock()
	return len(p.txs)
}

type pooled struct {
	hash string
	tx   *chain.Transaction
}

// Pending returns all pooled transactions, highest fee first.
func (p *Pool) Pending() []*chain.Transaction {
	p.RLock()
	list := make([]pooled, 0, len(p.txs))
	for h, tx := range p.txs {
		list = append(list, pooled{h, tx})
	}
	p.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		a, b := list[i].tx.Body, list[j].tx.Body
		if a.Fee != b.Fee {
			return a.Fee > b.Fee
		}
		if a.Nonce != b.Nonce {
			return a.Nonce < b.Nonce
		}
		return list[i].hash < list[j].hash
	})

	res := make([]*chain.Transaction, len(list))
	for i, e := range list {
		res[i] = e.tx
	}
	return res
}

// Remove drops transactions, typically after they were included in a block.
func (p *Pool) Remove(txs ...*chain.Transaction) {
	p.Lock()
	defer p.Unlock()
	for _, tx := range txs {
		delete(p.txs, tx.Hex())
	}
}

// Prune drops the transactions that can never be included on top of st
// because their nonce has already been used. It returns the number of
// transactions dropped.
func (p *Pool) Prune(st *state.State) int {
	p.Lock()
	defer p.Unlock()

	count := 0
	for h, tx := range p.txs {
		if tx.Body.Nonce <= st.Get(tx.Body.From).Nonce {
			delete(p.txs, h)
			count++
		}
	}

	if count > 0 {
		p.logger.WithField("pruned", count).Debug("Pruned transaction pool")
	}

	return count
}
