package state_test

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/event"
	"RailLedger/internal/testutil"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRailCreated_Scenario(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)

	rail := f.rail(t, 1)
	if rail.State != entity.RailStateZeroRate {
		t.Errorf("state: got %s, want ZERORATE", rail.State)
	}
	wantInt(t, "settledUpto", rail.SettledUpto, 100)
	wantInt(t, "createdAt", rail.CreatedAt, int64(testutil.Meta(100, 0).Block.Timestamp))

	for _, addr := range []struct {
		name string
		a    *entity.Account
	}{
		{"payer", mustAccount(t, f, payer)},
		{"payee", mustAccount(t, f, payee)},
	} {
		wantInt(t, addr.name+" totalRails", addr.a.TotalRails, 1)
	}

	op, err := f.repo.GetOrCreateOperator(f.ctx, operator)
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, "operator totalRails", op.Entity.TotalRails, 1)

	tok, ok, err := f.repo.LoadToken(f.ctx, token)
	if err != nil || !ok {
		t.Fatalf("token missing: %v", err)
	}
	if tok.Name != "Test Token" {
		t.Errorf("token name: got %q, want %q", tok.Name, "Test Token")
	}

	m := f.agg.Metric()
	wantInt(t, "totalRails", m.TotalRails, 1)
	wantInt(t, "totalZeroRateRails", m.TotalZeroRateRails, 1)
	wantInt(t, "totalAccounts", m.TotalAccounts, 2)
	wantInt(t, "uniquePayers", m.UniquePayers, 1)
	wantInt(t, "uniquePayees", m.UniquePayees, 1)
	wantInt(t, "totalOperators", m.TotalOperators, 1)
	wantInt(t, "totalTokens", m.TotalTokens, 1)

	if got := f.count(t, entity.KindRail); got != 1 {
		t.Errorf("rail rows: got %d, want 1", got)
	}
}

func TestRailCreated_DuplicateIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)
	f.createRail(t, 1, 101)

	wantInt(t, "totalRails", f.agg.Metric().TotalRails, 1)
	wantInt(t, "payer totalRails", mustAccount(t, f, payer).TotalRails, 1)
	if len(f.observer.warnings) != 1 || f.observer.warnings[0] != "RailCreated:rail_exists" {
		t.Errorf("warnings: got %v", f.observer.warnings)
	}
}

func TestRailCreated_PayerIsPayee(t *testing.T) {
	f := newFixture(t)
	err := f.h.Rails.HandleRailCreated(f.ctx, &event.RailCreated{
		Meta:     testutil.Meta(100, 0),
		RailID:   big.NewInt(1),
		Payer:    payer,
		Payee:    payer,
		Operator: operator,
		Token:    token,
	}, f.agg)
	if err != nil {
		t.Fatal(err)
	}

	wantInt(t, "account totalRails", mustAccount(t, f, payer).TotalRails, 1)
	m := f.agg.Metric()
	wantInt(t, "totalAccounts", m.TotalAccounts, 1)
	wantInt(t, "uniquePayers", m.UniquePayers, 1)
	wantInt(t, "uniquePayees", m.UniquePayees, 1)
}

func TestRailCreated_ReturningPayerIsNotUnique(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)
	f.createRail(t, 2, 101)

	m := f.agg.Metric()
	wantInt(t, "totalRails", m.TotalRails, 2)
	wantInt(t, "totalAccounts", m.TotalAccounts, 2)
	wantInt(t, "uniquePayers", m.UniquePayers, 1)
	wantInt(t, "payer totalRails", mustAccount(t, f, payer).TotalRails, 2)
}

func TestRailRateModified_SameBlockDoesNotDuplicateInterval(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)

	f.rateModified(t, 150, 0, 0, 5)
	wantInt(t, "settledUpto after first rate", f.rail(t, 1).SettledUpto, 150)

	f.rateModified(t, 200, 0, 5, 10)
	f.rateModified(t, 200, 1, 10, 20)

	rail := f.rail(t, 1)
	if len(rail.RateChangeQueue) != 1 {
		t.Fatalf("queue length: got %d, want 1", len(rail.RateChangeQueue))
	}
	wantInt(t, "totalRateChanges", rail.TotalRateChanges, 1)
	wantInt(t, "paymentRate", rail.PaymentRate, 20)

	entry, ok, err := f.repo.LastRateChange(f.ctx, rail)
	if err != nil || !ok {
		t.Fatalf("last rate change: ok=%v err=%v", ok, err)
	}
	wantInt(t, "start", entry.StartEpoch, 150)
	wantInt(t, "until", entry.UntilEpoch, 200)
	wantInt(t, "rate", entry.Rate, 5)

	if got := f.count(t, entity.KindRateChangeQueue); got != 1 {
		t.Errorf("queue rows: got %d, want 1", got)
	}
}

func TestRailRateModified_ActivatesZeroRateRail(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)
	f.rateModified(t, 110, 0, 0, 5)

	if got := f.rail(t, 1).State; got != entity.RailStateActive {
		t.Errorf("state: got %s, want ACTIVE", got)
	}
	m := f.agg.Metric()
	wantInt(t, "zeroRate", m.TotalZeroRateRails, 0)
	wantInt(t, "active", m.TotalActiveRails, 1)
}

// Walks one rail through its whole life and checks the lockup it holds on
// the approval is fully released at finalization.
func TestRailLifecycle_LockupPropagation(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)
	f.deposit(t, 101, payer, 10_000)
	f.approve(t, 102, 100, 10_000)

	err := f.h.Lockups.HandleAccountLockupSettled(f.ctx, &event.AccountLockupSettled{
		Meta:                testutil.Meta(110, 0),
		Token:               token,
		Owner:               payer,
		LockupCurrent:       big.NewInt(0),
		LockupRate:          big.NewInt(0),
		LockupLastSettledAt: big.NewInt(110),
	}, f.agg)
	if err != nil {
		t.Fatal(err)
	}

	err = f.h.Rails.HandleRailLockupModified(f.ctx, &event.RailLockupModified{
		Meta:            testutil.Meta(110, 1),
		RailID:          big.NewInt(1),
		OldLockupPeriod: big.NewInt(0),
		NewLockupPeriod: big.NewInt(10),
		OldLockupFixed:  big.NewInt(0),
		NewLockupFixed:  big.NewInt(100),
	}, f.agg)
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, "approval lockupUsage after lockup", f.approval(t).LockupUsage, 100)
	if got := f.count(t, entity.KindLockupModification); got != 1 {
		t.Errorf("lockup modification rows: got %d, want 1", got)
	}

	f.rateModified(t, 110, 2, 0, 5)
	a := f.approval(t)
	wantInt(t, "approval rateUsage", a.RateUsage, 5)
	wantInt(t, "approval lockupUsage after rate", a.LockupUsage, 150)
	wantInt(t, "operator lockupUsage after rate", f.operatorToken(t).LockupUsage, 150)
	wantInt(t, "payer lockupRate", f.wallet(t, payer).LockupRate, 5)

	err = f.h.Rails.HandleRailTerminated(f.ctx, &event.RailTerminated{
		Meta:     testutil.Meta(130, 0),
		RailID:   big.NewInt(1),
		EndEpoch: big.NewInt(140),
	}, f.agg)
	if err != nil {
		t.Fatal(err)
	}
	rail := f.rail(t, 1)
	if rail.State != entity.RailStateTerminated {
		t.Errorf("state: got %s, want TERMINATED", rail.State)
	}
	wantInt(t, "endEpoch", rail.EndEpoch, 140)
	wantInt(t, "payer lockupRate after termination", f.wallet(t, payer).LockupRate, 0)

	err = f.h.Rails.HandleRailFinalized(f.ctx, &event.RailFinalized{
		Meta:   testutil.Meta(150, 0),
		RailID: big.NewInt(1),
	}, f.agg)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.rail(t, 1).State; got != entity.RailStateFinalized {
		t.Errorf("state: got %s, want FINALIZED", got)
	}
	wantInt(t, "approval lockupUsage after finalize", f.approval(t).LockupUsage, 0)
	wantInt(t, "operator lockupUsage after finalize", f.operatorToken(t).LockupUsage, 0)

	m := f.agg.Metric()
	wantInt(t, "finalized", m.TotalFinalizedRails, 1)
	wantInt(t, "terminated", m.TotalTerminatedRails, 0)
	wantInt(t, "active", m.TotalActiveRails, 0)
}

func TestRailRateModified_TerminatedUsesRemainingEpochs(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)
	f.approve(t, 101, 100, 10_000)
	f.rateModified(t, 110, 0, 0, 5)

	err := f.h.Rails.HandleRailTerminated(f.ctx, &event.RailTerminated{
		Meta:     testutil.Meta(130, 0),
		RailID:   big.NewInt(1),
		EndEpoch: big.NewInt(140),
	}, f.agg)
	if err != nil {
		t.Fatal(err)
	}

	// 5 epochs remain; the lockup moves from 5*5 to 2*5 and rate usage stays.
	a := f.approval(t)
	wantInt(t, "rateUsage before", a.RateUsage, 5)
	a.LockupUsage = big.NewInt(100)
	if err := f.repo.SaveOperatorApproval(f.ctx, a); err != nil {
		t.Fatal(err)
	}
	f.rateModified(t, 135, 0, 5, 2)

	after := f.approval(t)
	wantInt(t, "rateUsage after", after.RateUsage, 5)
	wantInt(t, "lockupUsage after", after.LockupUsage, 85)
	if got := f.rail(t, 1).State; got != entity.RailStateTerminated {
		t.Errorf("state: got %s, want TERMINATED", got)
	}
}

func TestRailState_IsMonotonic(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)

	terminate := func(block uint64) {
		t.Helper()
		err := f.h.Rails.HandleRailTerminated(f.ctx, &event.RailTerminated{
			Meta:     testutil.Meta(block, 0),
			RailID:   big.NewInt(1),
			EndEpoch: big.NewInt(int64(block) + 10),
		}, f.agg)
		if err != nil {
			t.Fatal(err)
		}
	}

	terminate(110)
	f.rateModified(t, 115, 0, 0, 5)
	if got := f.rail(t, 1).State; got != entity.RailStateTerminated {
		t.Fatalf("rate change reactivated rail: got %s", got)
	}

	if err := f.h.Rails.HandleRailFinalized(f.ctx, &event.RailFinalized{Meta: testutil.Meta(130, 0), RailID: big.NewInt(1)}, f.agg); err != nil {
		t.Fatal(err)
	}
	terminate(140)

	rail := f.rail(t, 1)
	if rail.State != entity.RailStateFinalized {
		t.Errorf("state: got %s, want FINALIZED", rail.State)
	}
	wantInt(t, "endEpoch unchanged", rail.EndEpoch, 120)

	var illegal int
	for _, w := range f.observer.warnings {
		if w == "RailRateModified:illegal_transition" || w == "RailTerminated:illegal_transition" {
			illegal++
		}
	}
	if illegal != 2 {
		t.Errorf("illegal transition warnings: got %d, want 2 (%v)", illegal, f.observer.warnings)
	}
	wantInt(t, "finalized bucket", f.agg.Metric().TotalFinalizedRails, 1)
}

func TestRailFinalized_RequiresTermination(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)

	if err := f.h.Rails.HandleRailFinalized(f.ctx, &event.RailFinalized{Meta: testutil.Meta(110, 0), RailID: big.NewInt(1)}, f.agg); err != nil {
		t.Fatal(err)
	}
	if got := f.rail(t, 1).State; got != entity.RailStateZeroRate {
		t.Errorf("state: got %s, want ZERORATE", got)
	}
}

func TestRailLockupModified_TerminatedKeepsPeriod(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)
	f.deposit(t, 101, payer, 1000)
	f.approve(t, 102, 100, 1000)

	err := f.h.Rails.HandleRailTerminated(f.ctx, &event.RailTerminated{Meta: testutil.Meta(110, 0), RailID: big.NewInt(1), EndEpoch: big.NewInt(120)}, f.agg)
	if err != nil {
		t.Fatal(err)
	}
	err = f.h.Rails.HandleRailLockupModified(f.ctx, &event.RailLockupModified{
		Meta:            testutil.Meta(111, 0),
		RailID:          big.NewInt(1),
		OldLockupPeriod: big.NewInt(0),
		NewLockupPeriod: big.NewInt(50),
		OldLockupFixed:  big.NewInt(0),
		NewLockupFixed:  big.NewInt(30),
	}, f.agg)
	if err != nil {
		t.Fatal(err)
	}

	rail := f.rail(t, 1)
	wantInt(t, "lockupFixed", rail.LockupFixed, 30)
	wantInt(t, "lockupPeriod", rail.LockupPeriod, 0)
	wantInt(t, "approval lockupUsage", f.approval(t).LockupUsage, 30)
}

func TestUsage_NeverNegative(t *testing.T) {
	f := newFixture(t)
	f.createRail(t, 1, 100)
	f.deposit(t, 101, payer, 1000)
	f.approve(t, 102, 100, 1000)

	// Decrease lockup that was never recorded as increased.
	err := f.h.Rails.HandleRailLockupModified(f.ctx, &event.RailLockupModified{
		Meta:            testutil.Meta(110, 0),
		RailID:          big.NewInt(1),
		OldLockupPeriod: big.NewInt(0),
		NewLockupPeriod: big.NewInt(0),
		OldLockupFixed:  big.NewInt(500),
		NewLockupFixed:  big.NewInt(0),
	}, f.agg)
	if err != nil {
		t.Fatal(err)
	}
	f.rateModified(t, 120, 0, 7, 0)

	a, ot := f.approval(t), f.operatorToken(t)
	for name, v := range map[string]*big.Int{
		"approval lockupUsage": a.LockupUsage,
		"approval rateUsage":   a.RateUsage,
		"operator lockupUsage": ot.LockupUsage,
		"operator rateUsage":   ot.RateUsage,
	} {
		if v.Sign() < 0 {
			t.Errorf("%s: got %v, want >= 0", name, v)
		}
	}
}

func TestRailHandlers_UnknownRailWarns(t *testing.T) {
	f := newFixture(t)
	id := big.NewInt(42)

	calls := []error{
		f.h.Rails.HandleRailRateModified(f.ctx, &event.RailRateModified{Meta: testutil.Meta(1, 0), RailID: id, OldRate: big.NewInt(0), NewRate: big.NewInt(1)}, f.agg),
		f.h.Rails.HandleRailLockupModified(f.ctx, &event.RailLockupModified{Meta: testutil.Meta(1, 1), RailID: id}, f.agg),
		f.h.Rails.HandleRailTerminated(f.ctx, &event.RailTerminated{Meta: testutil.Meta(1, 2), RailID: id, EndEpoch: big.NewInt(5)}, f.agg),
		f.h.Rails.HandleRailFinalized(f.ctx, &event.RailFinalized{Meta: testutil.Meta(1, 3), RailID: id}, f.agg),
	}
	for i, err := range calls {
		if err != nil {
			t.Errorf("call %d: got %v, want nil", i, err)
		}
	}
	if len(f.observer.warnings) != len(calls) {
		t.Errorf("warnings: got %v, want %d", f.observer.warnings, len(calls))
	}
	if f.agg.Dirty() {
		t.Error("metric changed for unknown rail")
	}
}

func mustAccount(t *testing.T, f *fixture, addr common.Address) *entity.Account {
	t.Helper()
	a, ok, err := f.repo.LoadAccount(f.ctx, addr)
	if err != nil || !ok {
		t.Fatalf("account %s: ok=%v err=%v", addr.Hex(), ok, err)
	}
	return a
}
