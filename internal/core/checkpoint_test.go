package core_test

import (
	"RailLedger/internal/core"
	"RailLedger/internal/entity"
	"RailLedger/internal/observability"
	"RailLedger/internal/persistence"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type memCheckpoints map[uint64]persistence.Checkpoint

func (m memCheckpoints) Record(_ context.Context, cp persistence.Checkpoint) (*persistence.Checkpoint, error) {
	if prev, ok := m[cp.Applied]; ok {
		return &prev, nil
	}
	m[cp.Applied] = cp
	return nil, nil
}

func TestCheckpointer_RecordsOnInterval(t *testing.T) {
	log := memCheckpoints{}
	m := observability.NewMetrics(prometheus.NewRegistry())
	c := core.NewCheckpointer(log, 2, uuid.New(), zerolog.Nop(), m)
	ctx := context.Background()

	for applied := uint64(1); applied <= 5; applied++ {
		if _, err := c.Observe(ctx, entity.Cursor{Applied: applied, Digest: "d"}); err != nil {
			t.Fatalf("Observe(%d): %v", applied, err)
		}
	}
	if len(log) != 2 {
		t.Errorf("expected checkpoints at 2 and 4, got %d", len(log))
	}
	if got := promtest.ToFloat64(m.CheckpointsRecorded); got != 2 {
		t.Errorf("expected 2 recorded, got %v", got)
	}
}

func TestCheckpointer_FlagsDivergence(t *testing.T) {
	log := memCheckpoints{}
	m := observability.NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	first := core.NewCheckpointer(log, 1, uuid.New(), zerolog.Nop(), m)
	if ok, _ := first.Observe(ctx, entity.Cursor{Applied: 1, Digest: "aa"}); !ok {
		t.Fatal("first run cannot diverge")
	}

	replay := core.NewCheckpointer(log, 1, uuid.New(), zerolog.Nop(), m)
	if ok, _ := replay.Observe(ctx, entity.Cursor{Applied: 1, Digest: "aa"}); !ok {
		t.Error("matching replay reported divergence")
	}
	if ok, _ := replay.Observe(ctx, entity.Cursor{Applied: 1, Digest: "bb"}); ok {
		t.Error("expected divergence for different digest")
	}
	if got := promtest.ToFloat64(m.ReplayDivergences); got != 1 {
		t.Errorf("expected 1 divergence, got %v", got)
	}
}

func TestCheckpointer_EngineReplayMatches(t *testing.T) {
	log := memCheckpoints{}
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		e, m := newTestEngine(t, newMemStore())
		c := core.NewCheckpointer(log, 3, uuid.New(), zerolog.Nop(), m)
		for _, evt := range lifecycle() {
			if err := e.ProcessEvent(ctx, evt); err != nil {
				t.Fatalf("run %d: %v", run, err)
			}
			ok, err := c.Observe(ctx, e.Cursor())
			if err != nil {
				t.Fatalf("run %d: Observe: %v", run, err)
			}
			if !ok {
				t.Errorf("run %d diverged at %d", run, e.Cursor().Applied)
			}
		}
	}
	if len(log) != 2 {
		t.Errorf("expected checkpoints at 3 and 6, got %d", len(log))
	}
}
