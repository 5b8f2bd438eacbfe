package store

import (
	"context"
	"errors"
	"fmt"
)

// Buffer holds writes in memory until Flush, so the writes of one event
// land together or not at all. Reads see pending writes first.
// Not thread-safe: only the reducer goroutine uses it.
type Buffer struct {
	base    Store
	pending map[string]map[string][]byte
	order   []Entry
}

func NewBuffer(base Store) *Buffer {
	return &Buffer{base: base, pending: make(map[string]map[string][]byte)}
}

func (b *Buffer) Get(ctx context.Context, kind, id string) ([]byte, error) {
	if v, ok := b.pending[kind][id]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	return b.base.Get(ctx, kind, id)
}

func (b *Buffer) Put(_ context.Context, kind, id string, value []byte) error {
	bucket, ok := b.pending[kind]
	if !ok {
		bucket = make(map[string][]byte)
		b.pending[kind] = bucket
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	if _, seen := bucket[id]; !seen {
		b.order = append(b.order, Entry{Kind: kind, ID: id})
	}
	bucket[id] = stored
	return nil
}

// Count includes pending entities not yet in the base store.
func (b *Buffer) Count(ctx context.Context, kind string) (int, error) {
	n, err := b.base.Count(ctx, kind)
	if err != nil {
		return 0, err
	}
	for id := range b.pending[kind] {
		_, err := b.base.Get(ctx, kind, id)
		switch {
		case errors.Is(err, ErrNotFound):
			n++
		case err != nil:
			return 0, err
		}
	}
	return n, nil
}

// Pending is the number of distinct keys awaiting Flush.
func (b *Buffer) Pending() int {
	return len(b.order)
}

// Flush writes pending entries to the base store, atomically when it is a
// Batcher, and clears the buffer on success.
func (b *Buffer) Flush(ctx context.Context) error {
	if len(b.order) == 0 {
		return nil
	}
	entries := make([]Entry, len(b.order))
	for i, e := range b.order {
		entries[i] = Entry{Kind: e.Kind, ID: e.ID, Value: b.pending[e.Kind][e.ID]}
	}

	if batcher, ok := b.base.(Batcher); ok {
		if err := batcher.WriteBatch(ctx, entries); err != nil {
			return fmt.Errorf("flush %d entries: %w", len(entries), err)
		}
	} else {
		for _, e := range entries {
			if err := b.base.Put(ctx, e.Kind, e.ID, e.Value); err != nil {
				return fmt.Errorf("flush %s/%s: %w", e.Kind, e.ID, err)
			}
		}
	}
	b.Discard()
	return nil
}

// Discard drops pending writes.
func (b *Buffer) Discard() {
	b.pending = make(map[string]map[string][]byte)
	b.order = nil
}

func (b *Buffer) Reset(ctx context.Context) error {
	b.Discard()
	return b.base.Reset(ctx)
}

func (b *Buffer) Close() error {
	return b.base.Close()
}

var _ Store = (*Buffer)(nil)
