package state_test

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/event"
	"RailLedger/internal/state"
	"RailLedger/internal/testutil"
	"math/big"
	"testing"
)

func TestRailStateChanged_EqualStateIsNoop(t *testing.T) {
	for _, s := range []entity.RailState{
		entity.RailStateZeroRate,
		entity.RailStateActive,
		entity.RailStateTerminated,
		entity.RailStateFinalized,
	} {
		agg := state.NewMetricsAggregator(entity.NewPaymentsMetric())
		agg.RailStateChanged(s, s)
		if agg.Dirty() {
			t.Errorf("%s -> %s marked the metric dirty", s, s)
		}
		m := agg.Metric()
		for _, v := range []*big.Int{m.TotalZeroRateRails, m.TotalActiveRails, m.TotalTerminatedRails, m.TotalFinalizedRails} {
			if v.Sign() != 0 {
				t.Errorf("%s -> %s changed a bucket: got %v", s, s, v)
			}
		}
	}
}

func TestAddFilBurned_ZeroIsNoop(t *testing.T) {
	agg := state.NewMetricsAggregator(nil)
	agg.AddFilBurned(big.NewInt(0))
	agg.AddFilBurned(nil)
	if agg.Dirty() {
		t.Error("zero burn marked the metric dirty")
	}
}

func TestStateBuckets_PartitionTotalRails(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 4; id++ {
		f.createRail(t, id, uint64(100+id))
	}

	// rail 1 active, rail 2 terminated, rail 3 finalized, rail 4 zero-rate
	f.rateModified(t, 110, 0, 0, 5)
	for _, id := range []int64{2, 3} {
		err := f.h.Rails.HandleRailTerminated(f.ctx, &event.RailTerminated{Meta: testutil.Meta(120, uint(id)), RailID: big.NewInt(id), EndEpoch: big.NewInt(130)}, f.agg)
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := f.h.Rails.HandleRailFinalized(f.ctx, &event.RailFinalized{Meta: testutil.Meta(140, 0), RailID: big.NewInt(3)}, f.agg); err != nil {
		t.Fatal(err)
	}

	m := f.agg.Metric()
	wantInt(t, "zeroRate", m.TotalZeroRateRails, 1)
	wantInt(t, "active", m.TotalActiveRails, 1)
	wantInt(t, "terminated", m.TotalTerminatedRails, 1)
	wantInt(t, "finalized", m.TotalFinalizedRails, 1)

	sum := new(big.Int).Add(m.TotalZeroRateRails, m.TotalActiveRails)
	sum.Add(sum, m.TotalTerminatedRails)
	sum.Add(sum, m.TotalFinalizedRails)
	if sum.Cmp(m.TotalRails) != 0 {
		t.Errorf("bucket sum: got %v, want %v", sum, m.TotalRails)
	}
}
