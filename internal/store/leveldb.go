package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore is a persistent entity store using LevelDB. Keys are
// "kind/id", so each kind occupies one key prefix.
type LevelStore struct {
	db *leveldb.DB
}

// NewLevelStore creates or opens a LevelDB database at the specified path.
func NewLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func levelKey(kind, id string) []byte {
	return []byte(kind + "/" + id)
}

func (s *LevelStore) Get(_ context.Context, kind, id string) ([]byte, error) {
	value, err := s.db.Get(levelKey(kind, id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get %s/%s: %w", kind, id, err)
	}
	return value, nil
}

func (s *LevelStore) Put(_ context.Context, kind, id string, value []byte) error {
	if err := s.db.Put(levelKey(kind, id), value, nil); err != nil {
		return fmt.Errorf("leveldb put %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *LevelStore) Count(_ context.Context, kind string) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(kind+"/")), nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("leveldb count %s: %w", kind, err)
	}
	return n, nil
}

// Reset deletes every key in one batch.
func (s *LevelStore) Reset(_ context.Context) error {
	iter := s.db.NewIterator(nil, nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb reset scan: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb reset: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// WriteBatch applies entries in one leveldb.Batch.
func (s *LevelStore) WriteBatch(_ context.Context, entries []Entry) error {
	batch := new(leveldb.Batch)
	for _, e := range entries {
		batch.Put(levelKey(e.Kind, e.ID), e.Value)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb write batch of %d: %w", len(entries), err)
	}
	return nil
}
