package repository

import (
	"RailLedger/internal/entity"
	bmath "RailLedger/internal/math"
	"RailLedger/internal/store"
	"RailLedger/internal/tokenmeta"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Origin tags how a Resolved entity was obtained.
type Origin uint8

const (
	Existing Origin = iota
	Created
)

func (o Origin) String() string {
	if o == Created {
		return "created"
	}
	return "existing"
}

// Resolved is the result of a get-or-create lookup.
type Resolved[T any] struct {
	Entity *T
	Origin Origin
}

// IsNew reports whether this call created the entity.
func (r Resolved[T]) IsNew() bool {
	return r.Origin == Created
}

// Repository maps entities onto a Store. Entities are JSON encoded.
// Creation persists immediately, so a created entity exists even if the
// caller returns before saving it again.
type Repository struct {
	store store.Store
	meta  *tokenmeta.Resolver
}

func New(s store.Store, meta *tokenmeta.Resolver) *Repository {
	return &Repository{store: s, meta: meta}
}

// Store exposes the underlying store, for resync and counting.
func (r *Repository) Store() store.Store {
	return r.store
}

func load[T any](ctx context.Context, s store.Store, kind, id string) (*T, bool, error) {
	raw, err := s.Get(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, false, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return v, true, nil
}

func save(ctx context.Context, s store.Store, kind, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	if err := s.Put(ctx, kind, id, raw); err != nil {
		return fmt.Errorf("save %s %s: %w", kind, id, err)
	}
	return nil
}

func getOrCreate[T any](ctx context.Context, s store.Store, kind, id string, create func() *T) (Resolved[T], error) {
	existing, ok, err := load[T](ctx, s, kind, id)
	if err != nil {
		return Resolved[T]{}, err
	}
	if ok {
		return Resolved[T]{Entity: existing, Origin: Existing}, nil
	}
	v := create()
	if err := save(ctx, s, kind, id, v); err != nil {
		return Resolved[T]{}, err
	}
	return Resolved[T]{Entity: v, Origin: Created}, nil
}

// --- Account ---

func (r *Repository) LoadAccount(ctx context.Context, addr common.Address) (*entity.Account, bool, error) {
	return load[entity.Account](ctx, r.store, entity.KindAccount, entity.AccountID(addr))
}

func (r *Repository) GetOrCreateAccount(ctx context.Context, addr common.Address) (Resolved[entity.Account], error) {
	return getOrCreate(ctx, r.store, entity.KindAccount, entity.AccountID(addr), func() *entity.Account {
		return entity.NewAccount(addr)
	})
}

func (r *Repository) SaveAccount(ctx context.Context, a *entity.Account) error {
	return save(ctx, r.store, entity.KindAccount, entity.AccountID(a.Address), a)
}

// --- Token ---

func (r *Repository) LoadToken(ctx context.Context, addr common.Address) (*entity.Token, bool, error) {
	return load[entity.Token](ctx, r.store, entity.KindToken, entity.TokenID(addr))
}

// GetOrCreateToken resolves metadata only when the token is first seen.
func (r *Repository) GetOrCreateToken(ctx context.Context, addr common.Address) (Resolved[entity.Token], error) {
	return getOrCreate(ctx, r.store, entity.KindToken, entity.TokenID(addr), func() *entity.Token {
		md := r.meta.Resolve(ctx, addr)
		return entity.NewToken(addr, md.Name, md.Symbol, md.Decimals)
	})
}

func (r *Repository) SaveToken(ctx context.Context, t *entity.Token) error {
	return save(ctx, r.store, entity.KindToken, entity.TokenID(t.Address), t)
}

// --- UserToken ---

func (r *Repository) LoadUserToken(ctx context.Context, account, token common.Address) (*entity.UserToken, bool, error) {
	return load[entity.UserToken](ctx, r.store, entity.KindUserToken, entity.UserTokenID(account, token))
}

func (r *Repository) GetOrCreateUserToken(ctx context.Context, account, token common.Address) (Resolved[entity.UserToken], error) {
	return getOrCreate(ctx, r.store, entity.KindUserToken, entity.UserTokenID(account, token), func() *entity.UserToken {
		return entity.NewUserToken(account, token)
	})
}

func (r *Repository) SaveUserToken(ctx context.Context, u *entity.UserToken) error {
	return save(ctx, r.store, entity.KindUserToken, u.ID(), u)
}

// --- Operator ---

func (r *Repository) GetOrCreateOperator(ctx context.Context, addr common.Address) (Resolved[entity.Operator], error) {
	return getOrCreate(ctx, r.store, entity.KindOperator, entity.OperatorID(addr), func() *entity.Operator {
		return entity.NewOperator(addr)
	})
}

func (r *Repository) SaveOperator(ctx context.Context, o *entity.Operator) error {
	return save(ctx, r.store, entity.KindOperator, entity.OperatorID(o.Address), o)
}

// --- OperatorToken ---

func (r *Repository) GetOrCreateOperatorToken(ctx context.Context, operator, token common.Address) (Resolved[entity.OperatorToken], error) {
	return getOrCreate(ctx, r.store, entity.KindOperatorToken, entity.OperatorTokenID(operator, token), func() *entity.OperatorToken {
		return entity.NewOperatorToken(operator, token)
	})
}

func (r *Repository) SaveOperatorToken(ctx context.Context, o *entity.OperatorToken) error {
	return save(ctx, r.store, entity.KindOperatorToken, entity.OperatorTokenID(o.Operator, o.Token), o)
}

// --- OperatorApproval ---

func (r *Repository) LoadOperatorApproval(ctx context.Context, client, operator, token common.Address) (*entity.OperatorApproval, bool, error) {
	return load[entity.OperatorApproval](ctx, r.store, entity.KindOperatorApproval, entity.OperatorApprovalID(client, operator, token))
}

func (r *Repository) GetOrCreateOperatorApproval(ctx context.Context, client, operator, token common.Address) (Resolved[entity.OperatorApproval], error) {
	return getOrCreate(ctx, r.store, entity.KindOperatorApproval, entity.OperatorApprovalID(client, operator, token), func() *entity.OperatorApproval {
		return entity.NewOperatorApproval(client, operator, token)
	})
}

func (r *Repository) SaveOperatorApproval(ctx context.Context, a *entity.OperatorApproval) error {
	return save(ctx, r.store, entity.KindOperatorApproval, a.ID(), a)
}

// --- Rail ---

func (r *Repository) LoadRail(ctx context.Context, railID *big.Int) (*entity.Rail, bool, error) {
	return load[entity.Rail](ctx, r.store, entity.KindRail, entity.RailID(railID))
}

func (r *Repository) SaveRail(ctx context.Context, rail *entity.Rail) error {
	return save(ctx, r.store, entity.KindRail, rail.ID(), rail)
}

// --- RateChangeQueue ---

func (r *Repository) LoadRateChange(ctx context.Context, id string) (*entity.RateChangeQueueEntry, bool, error) {
	return load[entity.RateChangeQueueEntry](ctx, r.store, entity.KindRateChangeQueue, id)
}

// LastRateChange returns the most recently queued interval of rail.
func (r *Repository) LastRateChange(ctx context.Context, rail *entity.Rail) (*entity.RateChangeQueueEntry, bool, error) {
	if len(rail.RateChangeQueue) == 0 {
		return nil, false, nil
	}
	return r.LoadRateChange(ctx, rail.RateChangeQueue[len(rail.RateChangeQueue)-1])
}

// UpsertRateChange writes the interval keyed by (rail, startEpoch). An
// existing entry is overwritten in place; a new one is appended to the
// rail's queue. The caller saves the rail.
func (r *Repository) UpsertRateChange(ctx context.Context, rail *entity.Rail, startEpoch, untilEpoch, rate *big.Int) (Resolved[entity.RateChangeQueueEntry], error) {
	id := entity.RateChangeQueueID(rail.RailID, startEpoch)
	entry, ok, err := r.LoadRateChange(ctx, id)
	if err != nil {
		return Resolved[entity.RateChangeQueueEntry]{}, err
	}

	origin := Existing
	if !ok {
		origin = Created
		entry = &entity.RateChangeQueueEntry{}
		rail.RateChangeQueue = append(rail.RateChangeQueue, id)
	}
	entry.Rail = rail.ID()
	entry.StartEpoch = bmath.Clone(startEpoch)
	entry.UntilEpoch = bmath.Clone(untilEpoch)
	entry.Rate = bmath.Clone(rate)

	if err := save(ctx, r.store, entity.KindRateChangeQueue, id, entry); err != nil {
		return Resolved[entity.RateChangeQueueEntry]{}, err
	}
	return Resolved[entity.RateChangeQueueEntry]{Entity: entry, Origin: origin}, nil
}

// --- Audit rows ---

func (r *Repository) SaveSettlement(ctx context.Context, id string, s *entity.Settlement) error {
	return save(ctx, r.store, entity.KindSettlement, id, s)
}

func (r *Repository) SaveOneTimePayment(ctx context.Context, id string, p *entity.OneTimePayment) error {
	return save(ctx, r.store, entity.KindOneTimePayment, id, p)
}

func (r *Repository) SaveLockupModification(ctx context.Context, id string, m *entity.LockupModification) error {
	return save(ctx, r.store, entity.KindLockupModification, id, m)
}

func (r *Repository) SaveFeeAuctionPurchase(ctx context.Context, id string, p *entity.FeeAuctionPurchase) error {
	return save(ctx, r.store, entity.KindFeeAuctionPurchase, id, p)
}

// --- PaymentsMetric ---

// LoadPaymentsMetric returns the singleton, or a zeroed one that has not
// been saved yet.
func (r *Repository) LoadPaymentsMetric(ctx context.Context) (*entity.PaymentsMetric, error) {
	m, ok, err := load[entity.PaymentsMetric](ctx, r.store, entity.KindPaymentsMetric, entity.PaymentsMetricID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return entity.NewPaymentsMetric(), nil
	}
	return m, nil
}

func (r *Repository) SavePaymentsMetric(ctx context.Context, m *entity.PaymentsMetric) error {
	return save(ctx, r.store, entity.KindPaymentsMetric, entity.PaymentsMetricID, m)
}

// --- Reducer bookkeeping ---

func (r *Repository) LoadCursor(ctx context.Context) (*entity.Cursor, bool, error) {
	return load[entity.Cursor](ctx, r.store, entity.KindCursor, entity.CursorID)
}

func (r *Repository) SaveCursor(ctx context.Context, c *entity.Cursor) error {
	return save(ctx, r.store, entity.KindCursor, entity.CursorID, c)
}

func (r *Repository) IsProcessed(ctx context.Context, key string) (bool, error) {
	_, ok, err := load[entity.ProcessedEvent](ctx, r.store, entity.KindProcessedEvent, key)
	return ok, err
}

func (r *Repository) MarkProcessed(ctx context.Context, key string, block uint64) error {
	return save(ctx, r.store, entity.KindProcessedEvent, key, &entity.ProcessedEvent{Key: key, Block: block})
}
