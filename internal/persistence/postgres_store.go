package persistence

import (
	"RailLedger/internal/store"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore keeps entities as JSONB rows in rail_entities, one row per
// (kind, id). The schema comes from migrations/000001_rail_entities.up.sql.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens and pings a connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, kind, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM rail_entities WHERE kind = $1 AND id = $2`,
		kind, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", kind, id, err)
	}
	return data, nil
}

func (s *PostgresStore) Put(ctx context.Context, kind, id string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rail_entities (kind, id, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, kind, id, value)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", kind, id, err)
	}
	return nil
}

// WriteBatch upserts entries with one multi-row INSERT inside a transaction.
func (s *PostgresStore) WriteBatch(ctx context.Context, entries []store.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*3)
	for i, e := range entries {
		base := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, NOW())", base+1, base+2, base+3))
		args = append(args, e.Kind, e.ID, e.Value)
	}
	query := `INSERT INTO rail_entities (kind, id, data, updated_at) VALUES ` +
		strings.Join(values, ", ") + `
		ON CONFLICT (kind, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert batch of %d: %w", len(entries), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, kind string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rail_entities WHERE kind = $1`, kind,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE rail_entities`); err != nil {
		return fmt.Errorf("truncate rail_entities: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var (
	_ store.Store   = (*PostgresStore)(nil)
	_ store.Batcher = (*PostgresStore)(nil)
)
