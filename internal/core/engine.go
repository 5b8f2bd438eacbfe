package core

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/event"
	"RailLedger/internal/observability"
	"RailLedger/internal/repository"
	"RailLedger/internal/state"
	"RailLedger/internal/store"
	"RailLedger/internal/tokenmeta"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultLRUCapacity bounds the in-memory idempotency tier.
const DefaultLRUCapacity = 100_000

// Engine is the single-threaded rail accounting reducer. It applies one
// decoded event at a time, in arrival order. All writes of an event go
// through a store.Buffer and are flushed together with the cursor and the
// event's processed marker.
type Engine struct {
	buf      *store.Buffer
	repo     *repository.Repository
	handlers *state.Handlers

	idempotency *IdempotencyChecker
	sequence    *SequenceValidator
	hasher      *StateHasher
	cursor      entity.Cursor
	evictions   int64

	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Options tune an Engine. The zero value is usable.
type Options struct {
	LRUCapacity int
}

// NewEngine builds a reducer over s and restores its position from the
// persisted cursor. metrics may be nil.
func NewEngine(
	ctx context.Context,
	s store.Store,
	meta *tokenmeta.Resolver,
	logger zerolog.Logger,
	metrics *observability.Metrics,
	opts Options,
) (*Engine, error) {
	if opts.LRUCapacity <= 0 {
		opts.LRUCapacity = DefaultLRUCapacity
	}

	buf := store.NewBuffer(s)
	repo := repository.New(buf, meta)

	var observer state.Observer
	if metrics != nil {
		observer = metrics
	}

	e := &Engine{
		buf:         buf,
		repo:        repo,
		handlers:    state.NewHandlers(repo, logger, observer),
		idempotency: NewIdempotencyChecker(opts.LRUCapacity, repo),
		sequence:    NewSequenceValidator(),
		hasher:      NewStateHasher(),
		logger:      logger,
		metrics:     metrics,
	}
	if err := e.recover(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) recover(ctx context.Context) error {
	c, ok, err := e.repo.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if !ok {
		e.logger.Info().Msg("no cursor found, starting from genesis")
		return nil
	}

	tip, err := ParseHash(c.Digest)
	if err != nil {
		return fmt.Errorf("restore cursor: %w", err)
	}
	e.hasher.SetPrevHash(tip)
	e.sequence.SetLastBlock(c.Block)
	e.cursor = *c

	e.logger.Info().
		Uint64("block", c.Block).
		Uint64("applied", c.Applied).
		Str("digest", c.Digest).
		Msg("restored reducer cursor")
	if e.metrics != nil {
		e.metrics.CursorBlock.Set(float64(c.Block))
		e.metrics.AppliedEvents.Set(float64(c.Applied))
	}
	return nil
}

// ProcessEvent is the main processing pipeline. A nil return means the
// event is either applied and durable, or a duplicate that was skipped.
func (e *Engine) ProcessEvent(ctx context.Context, evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()
	meta := evt.EventMeta()

	// Step 1: Idempotency check (two-tier)
	isDuplicate, tier, err := e.idempotency.IsDuplicate(ctx, eventType, idempotencyKey)
	if err != nil {
		e.reject(eventType, "error")
		return fmt.Errorf("idempotency check: %w", err)
	}

	// Step 2: Block order
	if err := e.sequence.Validate(meta.Block.Number, isDuplicate); err != nil {
		e.reject(eventType, "out_of_order")
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	if isDuplicate {
		e.reject(eventType, "duplicate")
		if e.metrics != nil {
			e.metrics.IdempotencyDuplicates.WithLabelValues(eventType, tier).Inc()
		}
		e.logger.Debug().Str("event_type", eventType).Str("key", idempotencyKey).Str("tier", tier).Msg("duplicate event skipped")
		return nil
	}

	// Step 3: Dispatch into the buffer
	if err := e.apply(ctx, evt); err != nil {
		e.buf.Discard()
		e.reject(eventType, "error")
		return err
	}

	// Step 4: Chain the event and stage the cursor and processed marker
	digest, err := eventDigest(evt)
	if err != nil {
		e.buf.Discard()
		e.reject(eventType, "error")
		return err
	}
	prevTip := e.hasher.GetPrevHash()
	next := entity.Cursor{
		Block:   meta.Block.Number,
		Applied: e.cursor.Applied + 1,
	}
	hash := e.hasher.ComputeHash(next.Applied, digest)
	next.Digest = hex.EncodeToString(hash[:])

	if err := e.repo.SaveCursor(ctx, &next); err != nil {
		e.rollback(prevTip)
		return fmt.Errorf("stage cursor: %w", err)
	}
	if err := e.repo.MarkProcessed(ctx, idempotencyKey, meta.Block.Number); err != nil {
		e.rollback(prevTip)
		return fmt.Errorf("stage processed marker: %w", err)
	}

	// Step 5: Flush everything in one write
	if err := e.buf.Flush(ctx); err != nil {
		e.rollback(prevTip)
		e.reject(eventType, "error")
		return fmt.Errorf("flush %s %s: %w", eventType, idempotencyKey, err)
	}

	e.cursor = next
	e.sequence.Advance(meta.Block.Number)
	e.idempotency.MarkProcessed(eventType, idempotencyKey)

	if e.metrics != nil {
		e.metrics.EventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.EventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		e.metrics.CursorBlock.Set(float64(next.Block))
		e.metrics.AppliedEvents.Set(float64(next.Applied))
		lru := e.idempotency.LRU()
		e.metrics.DedupLRUSize.Set(float64(lru.Size()))
		if n := lru.Evictions(); n > e.evictions {
			e.metrics.DedupLRUEvictions.Add(float64(n - e.evictions))
			e.evictions = n
		}
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, evt event.Event) error {
	metric, err := e.repo.LoadPaymentsMetric(ctx)
	if err != nil {
		return fmt.Errorf("load payments metric: %w", err)
	}
	agg := state.NewMetricsAggregator(metric)

	if err := e.dispatchEvent(ctx, evt, agg); err != nil {
		return fmt.Errorf("dispatch %s: %w", evt.EventType(), err)
	}

	if agg.Dirty() {
		if err := e.repo.SavePaymentsMetric(ctx, agg.Metric()); err != nil {
			return fmt.Errorf("save payments metric: %w", err)
		}
	}
	return nil
}

func (e *Engine) dispatchEvent(ctx context.Context, evt event.Event, agg *state.MetricsAggregator) error {
	h := e.handlers
	switch ev := evt.(type) {
	case *event.RailCreated:
		return h.Rails.HandleRailCreated(ctx, ev, agg)
	case *event.RailRateModified:
		return h.Rails.HandleRailRateModified(ctx, ev, agg)
	case *event.RailLockupModified:
		return h.Rails.HandleRailLockupModified(ctx, ev, agg)
	case *event.RailTerminated:
		return h.Rails.HandleRailTerminated(ctx, ev, agg)
	case *event.RailFinalized:
		return h.Rails.HandleRailFinalized(ctx, ev, agg)
	case *event.RailSettled:
		return h.Settlements.HandleRailSettled(ctx, ev, agg)
	case *event.RailOneTimePaymentProcessed:
		return h.Settlements.HandleRailOneTimePayment(ctx, ev, agg)
	case *event.AccountLockupSettled:
		return h.Lockups.HandleAccountLockupSettled(ctx, ev, agg)
	case *event.OperatorApprovalUpdated:
		return h.Lockups.HandleOperatorApprovalUpdated(ctx, ev, agg)
	case *event.DepositRecorded:
		return h.Lockups.HandleDepositRecorded(ctx, ev, agg)
	case *event.WithdrawRecorded:
		return h.Lockups.HandleWithdrawRecorded(ctx, ev, agg)
	case *event.BurnForFeesCall:
		return h.Lockups.HandleBurnForFees(ctx, ev, agg)
	default:
		return fmt.Errorf("unknown event type: %T", evt)
	}
}

func (e *Engine) rollback(tip [32]byte) {
	e.buf.Discard()
	e.hasher.SetPrevHash(tip)
}

func (e *Engine) reject(eventType, reason string) {
	if e.metrics != nil {
		e.metrics.EventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

// eventDigest hashes the event's canonical JSON so the chain reflects the
// payload, not just the key.
func eventDigest(evt event.Event) ([]byte, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s for digest: %w", evt.EventType(), err)
	}
	sum := sha256.Sum256(append([]byte(evt.EventType().String()+"|"), raw...))
	return sum[:], nil
}

// Resync wipes the store and every in-memory tier so the stream can be
// replayed from the beginning. It returns the run id used in the logs.
func (e *Engine) Resync(ctx context.Context) (uuid.UUID, error) {
	runID := uuid.New()
	e.logger.Warn().Str("run_id", runID.String()).Uint64("from_block", e.cursor.Block).Msg("resync: resetting store")

	if err := e.buf.Reset(ctx); err != nil {
		return runID, fmt.Errorf("reset store: %w", err)
	}
	e.idempotency.Reset()
	e.evictions = 0
	e.sequence.SetLastBlock(0)
	e.hasher.Reset()
	e.cursor = entity.Cursor{}

	if e.metrics != nil {
		e.metrics.Resyncs.Inc()
		e.metrics.CursorBlock.Set(0)
		e.metrics.AppliedEvents.Set(0)
		e.metrics.DedupLRUSize.Set(0)
	}
	e.logger.Info().Str("run_id", runID.String()).Msg("resync: store reset, replaying from genesis")
	return runID, nil
}

// Cursor returns the position of the last applied event.
func (e *Engine) Cursor() entity.Cursor {
	return e.cursor
}

// StateHash returns the current chain tip.
func (e *Engine) StateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// Repository exposes the reducer's view of the store, including pending
// writes. Only safe from the reducer goroutine.
func (e *Engine) Repository() *repository.Repository {
	return e.repo
}
