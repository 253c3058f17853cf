package store

import (
	"sync"

	"github.com/olachain/ola/src/chain"
	cm "github.com/olachain/ola/src/common"
)

// InmemStore implements the Store interface in memory. Nothing survives the
// process, so it is used for tests and for nodes started without --store.
type InmemStore struct {
	sync.RWMutex
	cacheSize int
	blocks    map[string]*chain.Block
	snapshot  *Snapshot
}

// NewInmemStore ...
func NewInmemStore(cacheSize int) *InmemStore {
	return &InmemStore{
		cacheSize: cacheSize,
		blocks:    make(map[string]*chain.Block),
	}
}

// CacheSize implements the Store interface.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(hash string) (*chain.Block, error) {
	s.RLock()
	defer s.RUnlock()

	block, ok := s.blocks[hash]
	if !ok {
		return nil, cm.NewStoreErr("Block", cm.KeyNotFound, hash)
	}
	return block, nil
}

// SetBlock implements the Store interface.
func (s *InmemStore) SetBlock(block *chain.Block) error {
	hash := block.Hex()

	s.Lock()
	defer s.Unlock()

	if _, ok := s.blocks[hash]; !ok {
		s.blocks[hash] = block
	}
	return nil
}

// LoadState implements the Store interface.
func (s *InmemStore) LoadState() (*Snapshot, error) {
	s.RLock()
	defer s.RUnlock()

	if s.snapshot == nil {
		return nil, cm.NewStoreErr("Snapshot", cm.Empty, "")
	}
	return s.snapshot, nil
}

// Persist implements the Store interface.
func (s *InmemStore) Persist(snapshot *Snapshot) error {
	s.Lock()
	defer s.Unlock()

	s.snapshot = snapshot
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
