package state

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/repository"
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Warning reasons reported to the Observer.
const (
	ReasonRailMissing       = "rail_missing"
	ReasonRailExists        = "rail_exists"
	ReasonUserTokenMissing  = "user_token_missing"
	ReasonApprovalMissing   = "approval_missing"
	ReasonTokenMissing      = "token_missing"
	ReasonIllegalTransition = "illegal_transition"
)

// Observer is notified of recoverable handler warnings. Nil is allowed.
type Observer interface {
	Warning(handler, reason string)
}

// Handlers groups the three reducer components over one repository.
type Handlers struct {
	Rails       *RailLedger
	Lockups     *LockupTracker
	Settlements *SettlementProcessor
}

func NewHandlers(repo *repository.Repository, logger zerolog.Logger, observer Observer) *Handlers {
	b := base{repo: repo, logger: logger, observer: observer}
	return &Handlers{
		Rails:       &RailLedger{base: b},
		Lockups:     &LockupTracker{base: b},
		Settlements: &SettlementProcessor{base: b},
	}
}

type base struct {
	repo     *repository.Repository
	logger   zerolog.Logger
	observer Observer
}

// warn logs a recoverable condition. The caller decides whether to stop.
func (b base) warn(handler, reason, key string) {
	b.logger.Warn().
		Str("handler", handler).
		Str("reason", reason).
		Str("key", key).
		Msg("skipping handler work")
	if b.observer != nil {
		b.observer.Warning(handler, reason)
	}
}

// wallets caches UserTokens touched by one handler so that two roles held
// by the same address (payer and payee, say) share one record.
type wallets struct {
	repo  *repository.Repository
	byID  map[string]*entity.UserToken
	order []string
}

func newWallets(repo *repository.Repository) *wallets {
	return &wallets{repo: repo, byID: make(map[string]*entity.UserToken)}
}

func (w *wallets) remember(u *entity.UserToken) *entity.UserToken {
	id := u.ID()
	if _, ok := w.byID[id]; !ok {
		w.order = append(w.order, id)
	}
	w.byID[id] = u
	return u
}

// load returns an existing wallet without creating one.
func (w *wallets) load(ctx context.Context, account, token common.Address) (*entity.UserToken, bool, error) {
	if u, ok := w.byID[entity.UserTokenID(account, token)]; ok {
		return u, true, nil
	}
	u, ok, err := w.repo.LoadUserToken(ctx, account, token)
	if err != nil || !ok {
		return nil, false, err
	}
	return w.remember(u), true, nil
}

func (w *wallets) getOrCreate(ctx context.Context, account, token common.Address) (*entity.UserToken, error) {
	if u, ok := w.byID[entity.UserTokenID(account, token)]; ok {
		return u, nil
	}
	res, err := w.repo.GetOrCreateUserToken(ctx, account, token)
	if err != nil {
		return nil, err
	}
	return w.remember(res.Entity), nil
}

func (w *wallets) saveAll(ctx context.Context) error {
	for _, id := range w.order {
		if err := w.repo.SaveUserToken(ctx, w.byID[id]); err != nil {
			return err
		}
	}
	return nil
}
