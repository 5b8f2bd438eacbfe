package store_test

import (
	"RailLedger/internal/store"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	level, err := store.NewLevelStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = level.Close() })

	return map[string]store.Store{
		"memory":  store.NewMemStore(),
		"leveldb": level,
	}
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "Rail", "0x01")
			require.ErrorIs(t, err, store.ErrNotFound)

			require.NoError(t, s.Put(ctx, "Rail", "0x01", []byte(`{"a":1}`)))
			got, err := s.Get(ctx, "Rail", "0x01")
			require.NoError(t, err)
			require.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, s.Put(ctx, "Rail", "0x01", []byte(`{"a":2}`)))
			got, err = s.Get(ctx, "Rail", "0x01")
			require.NoError(t, err)
			require.Equal(t, `{"a":2}`, string(got))
		})
	}
}

func TestStore_KindsAreNamespaced(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "Account", "0x01", []byte("a")))
			require.NoError(t, s.Put(ctx, "Operator", "0x01", []byte("o")))
			require.NoError(t, s.Put(ctx, "Operator", "0x02", []byte("o")))

			n, err := s.Count(ctx, "Account")
			require.NoError(t, err)
			require.Equal(t, 1, n)

			n, err = s.Count(ctx, "Operator")
			require.NoError(t, err)
			require.Equal(t, 2, n)

			got, err := s.Get(ctx, "Account", "0x01")
			require.NoError(t, err)
			require.Equal(t, "a", string(got))
		})
	}
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "Rail", "0x01", []byte("r")))
			require.NoError(t, s.Put(ctx, "Token", "0x02", []byte("t")))
			require.NoError(t, s.Reset(ctx))

			_, err := s.Get(ctx, "Rail", "0x01")
			require.ErrorIs(t, err, store.ErrNotFound)
			n, err := s.Count(ctx, "Token")
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestMemStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	value := []byte("abc")
	require.NoError(t, s.Put(ctx, "Rail", "1", value))
	value[0] = 'z'

	got, err := s.Get(ctx, "Rail", "1")
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))

	got[1] = 'z'
	again, err := s.Get(ctx, "Rail", "1")
	require.NoError(t, err)
	require.Equal(t, "abc", string(again))
}

func TestBuffer_WritesLandOnFlush(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			buf := store.NewBuffer(s)
			require.NoError(t, buf.Put(ctx, "Rail", "0x01", []byte("r1")))
			require.NoError(t, buf.Put(ctx, "Rail", "0x01", []byte("r2")))
			require.NoError(t, buf.Put(ctx, "Token", "0x04", []byte("t")))
			require.Equal(t, 2, buf.Pending())

			got, err := buf.Get(ctx, "Rail", "0x01")
			require.NoError(t, err)
			require.Equal(t, "r2", string(got))

			n, err := buf.Count(ctx, "Rail")
			require.NoError(t, err)
			require.Equal(t, 1, n)

			_, err = s.Get(ctx, "Rail", "0x01")
			require.ErrorIs(t, err, store.ErrNotFound)

			require.NoError(t, buf.Flush(ctx))
			require.Zero(t, buf.Pending())

			got, err = s.Get(ctx, "Rail", "0x01")
			require.NoError(t, err)
			require.Equal(t, "r2", string(got))
		})
	}
}

func TestBuffer_DiscardDropsPending(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemStore()
	require.NoError(t, base.Put(ctx, "Rail", "0x01", []byte("old")))

	buf := store.NewBuffer(base)
	require.NoError(t, buf.Put(ctx, "Rail", "0x01", []byte("new")))
	buf.Discard()

	got, err := buf.Get(ctx, "Rail", "0x01")
	require.NoError(t, err)
	require.Equal(t, "old", string(got))
	require.NoError(t, buf.Flush(ctx))

	got, err = base.Get(ctx, "Rail", "0x01")
	require.NoError(t, err)
	require.Equal(t, "old", string(got))
}

// plainStore hides MemStore's WriteBatch so Flush takes the Put path.
type plainStore struct{ store.Store }

func TestBuffer_FlushWithoutBatcher(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemStore()
	buf := store.NewBuffer(plainStore{base})
	require.NoError(t, buf.Put(ctx, "Account", "0x01", []byte("a")))
	require.NoError(t, buf.Flush(ctx))

	n, err := base.Count(ctx, "Account")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
