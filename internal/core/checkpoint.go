package core

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/observability"
	"RailLedger/internal/persistence"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultCheckpointInterval is how many applied events separate checkpoints.
const DefaultCheckpointInterval = 10_000

// CheckpointLog is satisfied by *persistence.CheckpointLog.
type CheckpointLog interface {
	Record(ctx context.Context, cp persistence.Checkpoint) (*persistence.Checkpoint, error)
}

// Checkpointer writes the chain digest every interval applied events and
// flags a replay that disagrees with an earlier run at the same position.
type Checkpointer struct {
	log      CheckpointLog
	interval uint64
	runID    uuid.UUID
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewCheckpointer(log CheckpointLog, interval uint64, runID uuid.UUID, logger zerolog.Logger, metrics *observability.Metrics) *Checkpointer {
	if interval == 0 {
		interval = DefaultCheckpointInterval
	}
	return &Checkpointer{log: log, interval: interval, runID: runID, logger: logger, metrics: metrics}
}

// SetRun tags later checkpoints with a new run id, e.g. after a resync.
func (c *Checkpointer) SetRun(id uuid.UUID) {
	c.runID = id
}

// Observe is called after each applied event. It reports whether the
// digest matches any earlier checkpoint at this position.
func (c *Checkpointer) Observe(ctx context.Context, cur entity.Cursor) (bool, error) {
	if cur.Applied == 0 || cur.Applied%c.interval != 0 {
		return true, nil
	}

	prev, err := c.log.Record(ctx, persistence.Checkpoint{
		Applied: cur.Applied,
		Block:   cur.Block,
		Digest:  cur.Digest,
		RunID:   c.runID,
	})
	if err != nil {
		return true, fmt.Errorf("record checkpoint: %w", err)
	}
	if prev == nil {
		if c.metrics != nil {
			c.metrics.CheckpointsRecorded.Inc()
		}
		c.logger.Info().Uint64("applied", cur.Applied).Uint64("block", cur.Block).Str("digest", cur.Digest).Msg("checkpoint recorded")
		return true, nil
	}
	if prev.Digest == cur.Digest {
		return true, nil
	}

	if c.metrics != nil {
		c.metrics.ReplayDivergences.Inc()
	}
	c.logger.Error().
		Uint64("applied", cur.Applied).
		Str("digest", cur.Digest).
		Str("previous_digest", prev.Digest).
		Str("previous_run", prev.RunID.String()).
		Msg("replay diverged from earlier run")
	return false, nil
}
