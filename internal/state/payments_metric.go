package state

import (
	"RailLedger/internal/entity"
	bmath "RailLedger/internal/math"
	"math/big"
)

// MetricsAggregator wraps the global PaymentsMetric for the duration of one
// event. Handlers record countable transitions on it; the reducer saves it
// once at the end if anything changed.
type MetricsAggregator struct {
	m     *entity.PaymentsMetric
	dirty bool
}

func NewMetricsAggregator(m *entity.PaymentsMetric) *MetricsAggregator {
	if m == nil {
		m = entity.NewPaymentsMetric()
	}
	return &MetricsAggregator{m: m}
}

// Metric returns the wrapped singleton.
func (a *MetricsAggregator) Metric() *entity.PaymentsMetric {
	return a.m
}

// Dirty reports whether any counter changed.
func (a *MetricsAggregator) Dirty() bool {
	return a.dirty
}

func (a *MetricsAggregator) inc(field **big.Int) {
	*field = bmath.Inc(*field)
	a.dirty = true
}

func (a *MetricsAggregator) dec(field **big.Int) {
	*field = bmath.Dec(*field)
	a.dirty = true
}

// IncrementTotalRails counts a new rail, which always starts in ZERORATE.
func (a *MetricsAggregator) IncrementTotalRails() {
	a.inc(&a.m.TotalRails)
	a.inc(&a.m.TotalZeroRateRails)
}

func (a *MetricsAggregator) IncrementTotalOperators() {
	a.inc(&a.m.TotalOperators)
}

func (a *MetricsAggregator) IncrementTotalTokens() {
	a.inc(&a.m.TotalTokens)
}

func (a *MetricsAggregator) IncrementTotalAccounts() {
	a.inc(&a.m.TotalAccounts)
}

func (a *MetricsAggregator) IncrementUniquePayers() {
	a.inc(&a.m.UniquePayers)
}

func (a *MetricsAggregator) IncrementUniquePayees() {
	a.inc(&a.m.UniquePayees)
}

func (a *MetricsAggregator) IncrementTotalSettlements() {
	a.inc(&a.m.TotalRailSettlements)
}

func (a *MetricsAggregator) IncrementTotalOneTimePayments() {
	a.inc(&a.m.TotalOneTimePayments)
}

func (a *MetricsAggregator) IncrementTotalFeeAuctionPurchases() {
	a.inc(&a.m.TotalFeeAuctionPurchases)
}

// AddFilBurned adds amount to the burn total. Zero is a no-op.
func (a *MetricsAggregator) AddFilBurned(amount *big.Int) {
	if bmath.IsZero(amount) {
		return
	}
	a.m.TotalFilBurned = bmath.Add(a.m.TotalFilBurned, amount)
	a.dirty = true
}

// RailStateChanged moves one rail from the prev bucket to the next bucket.
// Equal states leave the metric untouched.
func (a *MetricsAggregator) RailStateChanged(prev, next entity.RailState) {
	if prev == next {
		return
	}
	from, to := a.bucket(prev), a.bucket(next)
	if from == nil || to == nil {
		return
	}
	a.dec(from)
	a.inc(to)
}

func (a *MetricsAggregator) bucket(s entity.RailState) **big.Int {
	switch s {
	case entity.RailStateZeroRate:
		return &a.m.TotalZeroRateRails
	case entity.RailStateActive:
		return &a.m.TotalActiveRails
	case entity.RailStateTerminated:
		return &a.m.TotalTerminatedRails
	case entity.RailStateFinalized:
		return &a.m.TotalFinalizedRails
	default:
		return nil
	}
}
