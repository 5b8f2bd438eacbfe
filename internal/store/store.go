package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity is stored under the key.
var ErrNotFound = errors.New("store: entity not found")

// Store is the entity store consumed by the repository. Values are opaque
// encoded entities namespaced by kind. Store itself has no transactions;
// the reducer groups the writes of one event through a Buffer.
type Store interface {
	Get(ctx context.Context, kind, id string) ([]byte, error)
	Put(ctx context.Context, kind, id string, value []byte) error
	// Count returns the number of entities of one kind.
	Count(ctx context.Context, kind string) (int, error)
	// Reset discards every entity. Used for a full resync.
	Reset(ctx context.Context) error
	Close() error
}

// Entry is one pending write.
type Entry struct {
	Kind  string
	ID    string
	Value []byte
}

// Batcher is implemented by stores that can apply several writes atomically.
type Batcher interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}
