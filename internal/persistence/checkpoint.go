package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is the chain digest after a given number of applied events.
type Checkpoint struct {
	Applied   uint64
	Block     uint64
	Digest    string
	RunID     uuid.UUID
	CreatedAt time.Time
}

// CheckpointLog keeps one digest per applied count across runs. It lives
// outside rail_entities, so a resync does not clear it and the replay can
// be compared with the run before it.
type CheckpointLog struct {
	db *sql.DB
}

func NewCheckpointLog(db *sql.DB) *CheckpointLog {
	return &CheckpointLog{db: db}
}

// Record stores cp unless a checkpoint at the same applied count already
// exists, in which case the existing one is returned.
func (c *CheckpointLog) Record(ctx context.Context, cp Checkpoint) (*Checkpoint, error) {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO rail_checkpoints (applied, block, digest, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (applied) DO NOTHING
	`, int64(cp.Applied), int64(cp.Block), cp.Digest, cp.RunID, cp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert checkpoint %d: %w", cp.Applied, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert checkpoint %d: %w", cp.Applied, err)
	}
	if n == 1 {
		return nil, nil
	}
	return c.Load(ctx, cp.Applied)
}

// Load returns the checkpoint at applied, or nil if there is none.
func (c *CheckpointLog) Load(ctx context.Context, applied uint64) (*Checkpoint, error) {
	return c.scan(c.db.QueryRowContext(ctx, `
		SELECT applied, block, digest, run_id, created_at
		FROM rail_checkpoints WHERE applied = $1
	`, int64(applied)))
}

// Latest returns the checkpoint with the highest applied count.
func (c *CheckpointLog) Latest(ctx context.Context) (*Checkpoint, error) {
	return c.scan(c.db.QueryRowContext(ctx, `
		SELECT applied, block, digest, run_id, created_at
		FROM rail_checkpoints ORDER BY applied DESC LIMIT 1
	`))
}

func (c *CheckpointLog) scan(row *sql.Row) (*Checkpoint, error) {
	var (
		cp             Checkpoint
		applied, block int64
	)
	if err := row.Scan(&applied, &block, &cp.Digest, &cp.RunID, &cp.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	cp.Applied, cp.Block = uint64(applied), uint64(block)
	return &cp, nil
}
