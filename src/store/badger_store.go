package store

import (
	"fmt"

	"github.com/dgraph-io/badger"
	lru "github.com/hashicorp/golang-lru"
	"github.com/olachain/ola/src/chain"
	cm "github.com/olachain/ola/src/common"
	"github.com/sirupsen/logrus"
)

const (
	blockPrefix = "block"
	snapshotKey = "snapshot"
)

// BadgerStore persists blocks and snapshots in a Badger database, with an LRU
// cache of recently used blocks in front of it.
type BadgerStore struct {
	cacheSize int
	cache     *lru.Cache
	db        *badger.DB
	path      string
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(cacheSize int, path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		handle.Close()
		return nil, err
	}

	store := &BadgerStore{
		cacheSize: cacheSize,
		cache:     cache,
		db:        handle,
		path:      path,
	}
	return store, nil
}

func blockKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", blockPrefix, hash))
}

// CacheSize implements the Store interface.
func (s *BadgerStore) CacheSize() int {
	return s.cacheSize
}

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(hash string) (*chain.Block, error) {
	if res, ok := s.cache.Get(hash); ok {
		return res.(*chain.Block), nil
	}

	block, err := s.dbGetBlock(hash)
	if err != nil {
		return nil, mapError(err, "Block", hash)
	}

	s.cache.Add(hash, block)

	return block, nil
}

// SetBlock implements the Store interface.
func (s *BadgerStore) SetBlock(block *chain.Block) error {
	hash := block.Hex()

	if s.cache.Contains(hash) {
		return nil
	}

	if err := s.dbSetBlock(hash, block); err != nil {
		return err
	}

	s.cache.Add(hash, block)

	return nil
}

// LoadState implements the Store interface.
func (s *BadgerStore) LoadState() (*Snapshot, error) {
	var snapBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if err != nil {
			return err
		}
		snapBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		if isDBKeyNotFound(err) {
			return nil, cm.NewStoreErr("Snapshot", cm.Empty, snapshotKey)
		}
		return nil, err
	}

	snapshot := new(Snapshot)
	if err := snapshot.Unmarshal(snapBytes); err != nil {
		return nil, cm.NewStoreErr("Snapshot", cm.Corrupted, snapshotKey)
	}

	return snapshot, nil
}

// Persist implements the Store interface.
func (s *BadgerStore) Persist(snapshot *Snapshot) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	if err := tx.Set([]byte(snapshotKey), val); err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes the underlying Badger database.
func (s *BadgerStore) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

// StorePath returns the full path of the underlying Badger database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) dbGetBlock(hash string) (*chain.Block, error) {
	var blockBytes []byte
	key := blockKey(hash)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		blockBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	block := new(chain.Block)
	if err := block.Unmarshal(blockBytes); err != nil {
		return nil, cm.NewStoreErr("Block", cm.Corrupted, hash)
	}

	return block, nil
}

func (s *BadgerStore) dbSetBlock(hash string, block *chain.Block) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := block.Marshal()
	if err != nil {
		return err
	}

	//insert [block_hash] => [block bytes]
	if err := tx.Set(blockKey(hash), val); err != nil {
		return err
	}

	return tx.Commit()
}

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
