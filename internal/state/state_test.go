package state_test

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/event"
	"RailLedger/internal/repository"
	"RailLedger/internal/state"
	"RailLedger/internal/testutil"
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	payer    = testutil.Addr(1)
	payee    = testutil.Addr(2)
	operator = testutil.Addr(3)
	token    = testutil.Addr(4)
	feeTo    = testutil.Addr(5)
)

type recordingObserver struct {
	warnings []string
}

func (o *recordingObserver) Warning(handler, reason string) {
	o.warnings = append(o.warnings, handler+":"+reason)
}

type fixture struct {
	ctx      context.Context
	repo     *repository.Repository
	h        *state.Handlers
	agg      *state.MetricsAggregator
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := testutil.NewMemRepository(testutil.TestTokenReader())
	obs := &recordingObserver{}
	return &fixture{
		ctx:      context.Background(),
		repo:     repo,
		h:        state.NewHandlers(repo, zerolog.Nop(), obs),
		agg:      state.NewMetricsAggregator(entity.NewPaymentsMetric()),
		observer: obs,
	}
}

func (f *fixture) createRail(t *testing.T, id int64, block uint64) {
	t.Helper()
	err := f.h.Rails.HandleRailCreated(f.ctx, &event.RailCreated{
		Meta:                testutil.Meta(block, 0),
		RailID:              big.NewInt(id),
		Payer:               payer,
		Payee:               payee,
		Operator:            operator,
		Token:               token,
		Validator:           testutil.Addr(9),
		CommissionRateBps:   big.NewInt(100),
		ServiceFeeRecipient: feeTo,
	}, f.agg)
	if err != nil {
		t.Fatalf("create rail %d: %v", id, err)
	}
}

func (f *fixture) approve(t *testing.T, block uint64, rate, lockup int64) {
	t.Helper()
	err := f.h.Lockups.HandleOperatorApprovalUpdated(f.ctx, &event.OperatorApprovalUpdated{
		Meta:            testutil.Meta(block, 0),
		Token:           token,
		Client:          payer,
		Operator:        operator,
		Approved:        true,
		RateAllowance:   big.NewInt(rate),
		LockupAllowance: big.NewInt(lockup),
		MaxLockupPeriod: big.NewInt(2880),
	}, f.agg)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (f *fixture) deposit(t *testing.T, block uint64, to common.Address, amount int64) {
	t.Helper()
	err := f.h.Lockups.HandleDepositRecorded(f.ctx, &event.DepositRecorded{
		Meta:   testutil.Meta(block, 0),
		Token:  token,
		To:     to,
		Amount: big.NewInt(amount),
	}, f.agg)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (f *fixture) rateModified(t *testing.T, block uint64, logIndex uint, oldRate, newRate int64) {
	t.Helper()
	err := f.h.Rails.HandleRailRateModified(f.ctx, &event.RailRateModified{
		Meta:    testutil.Meta(block, logIndex),
		RailID:  big.NewInt(1),
		OldRate: big.NewInt(oldRate),
		NewRate: big.NewInt(newRate),
	}, f.agg)
	if err != nil {
		t.Fatalf("rate modified: %v", err)
	}
}

func (f *fixture) rail(t *testing.T, id int64) *entity.Rail {
	t.Helper()
	r, ok, err := f.repo.LoadRail(f.ctx, big.NewInt(id))
	if err != nil || !ok {
		t.Fatalf("load rail %d: ok=%v err=%v", id, ok, err)
	}
	return r
}

func (f *fixture) approval(t *testing.T) *entity.OperatorApproval {
	t.Helper()
	a, ok, err := f.repo.LoadOperatorApproval(f.ctx, payer, operator, token)
	if err != nil || !ok {
		t.Fatalf("load approval: ok=%v err=%v", ok, err)
	}
	return a
}

func (f *fixture) operatorToken(t *testing.T) *entity.OperatorToken {
	t.Helper()
	res, err := f.repo.GetOrCreateOperatorToken(f.ctx, operator, token)
	if err != nil {
		t.Fatalf("load operator token: %v", err)
	}
	return res.Entity
}

func (f *fixture) wallet(t *testing.T, account common.Address) *entity.UserToken {
	t.Helper()
	u, ok, err := f.repo.LoadUserToken(f.ctx, account, token)
	if err != nil || !ok {
		t.Fatalf("load wallet %s: ok=%v err=%v", account.Hex(), ok, err)
	}
	return u
}

func (f *fixture) count(t *testing.T, kind string) int {
	t.Helper()
	n, err := f.repo.Store().Count(f.ctx, kind)
	if err != nil {
		t.Fatalf("count %s: %v", kind, err)
	}
	return n
}

func wantInt(t *testing.T, name string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Errorf("%s: got %v, want %d", name, got, want)
	}
}

func decodeJSON(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
