// Package store persists the blocks and the head snapshot of a ledger.
package store

import (
	"bytes"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/state"
	"github.com/ugorji/go/codec"
)

// Snapshot records the canonical head and the accounts it produced.
type Snapshot struct {
	Head     string
	Height   uint64
	Accounts map[chain.Address]state.Account
}

// Marshal - json encoding of Snapshot
func (s *Snapshot) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (s *Snapshot) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(s)
}

// Store is an interface for backend stores.
type Store interface {
	// CacheSize is the maximum number of blocks kept in memory.
	CacheSize() int
	// GetBlock returns a block by hash.
	GetBlock(hash string) (*chain.Block, error)
	// SetBlock inserts a block. Blocks are immutable, so inserting a known
	// block is a no-op.
	SetBlock(block *chain.Block) error
	// LoadState returns the last persisted snapshot, or an Empty StoreErr.
	LoadState() (*Snapshot, error)
	// Persist records a new head snapshot.
	Persist(snapshot *Snapshot) error
	// Close closes the store.
	Close() error
	// StorePath returns the path of the database, if any.
	StorePath() string
}
