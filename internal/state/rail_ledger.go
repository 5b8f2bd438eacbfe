package state

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/event"
	bmath "RailLedger/internal/math"
	"context"
	"fmt"
	"math/big"
)

// RailLedger owns the Rail lifecycle and the per-rail rate change queue.
type RailLedger struct {
	base
}

// HandleRailCreated creates the rail in ZERORATE along with any token,
// account and operator it references for the first time.
func (l *RailLedger) HandleRailCreated(ctx context.Context, e *event.RailCreated, agg *MetricsAggregator) error {
	const handler = "RailCreated"

	if _, exists, err := l.repo.LoadRail(ctx, e.RailID); err != nil {
		return err
	} else if exists {
		l.warn(handler, ReasonRailExists, entity.RailID(e.RailID))
		return nil
	}

	token, err := l.repo.GetOrCreateToken(ctx, e.Token)
	if err != nil {
		return err
	}

	payer, err := l.repo.GetOrCreateAccount(ctx, e.Payer)
	if err != nil {
		return err
	}
	isNewPayer := bmath.IsZero(payer.Entity.TotalRails)

	payee := payer
	if e.Payee != e.Payer {
		if payee, err = l.repo.GetOrCreateAccount(ctx, e.Payee); err != nil {
			return err
		}
	}
	isNewPayee := bmath.IsZero(payee.Entity.TotalRails)

	operator, err := l.repo.GetOrCreateOperator(ctx, e.Operator)
	if err != nil {
		return err
	}

	payer.Entity.TotalRails = bmath.Inc(payer.Entity.TotalRails)
	if payee.Entity != payer.Entity {
		payee.Entity.TotalRails = bmath.Inc(payee.Entity.TotalRails)
	}
	operator.Entity.TotalRails = bmath.Inc(operator.Entity.TotalRails)

	rail := entity.NewRail(entity.RailParams{
		RailID:              e.RailID,
		Payer:               e.Payer,
		Payee:               e.Payee,
		Operator:            e.Operator,
		Token:               e.Token,
		Validator:           e.Validator,
		ServiceFeeRecipient: e.ServiceFeeRecipient,
		CommissionRateBps:   e.CommissionRateBps,
	}, bmath.FromUint64(e.Block.Number), bmath.FromUint64(e.Block.Timestamp))

	if err := l.repo.SaveRail(ctx, rail); err != nil {
		return err
	}
	if err := l.repo.SaveAccount(ctx, payer.Entity); err != nil {
		return err
	}
	if payee.Entity != payer.Entity {
		if err := l.repo.SaveAccount(ctx, payee.Entity); err != nil {
			return err
		}
	}
	if err := l.repo.SaveOperator(ctx, operator.Entity); err != nil {
		return err
	}

	agg.IncrementTotalRails()
	if payer.IsNew() {
		agg.IncrementTotalAccounts()
	}
	if payee.Entity != payer.Entity && payee.IsNew() {
		agg.IncrementTotalAccounts()
	}
	if isNewPayer {
		agg.IncrementUniquePayers()
	}
	if isNewPayee {
		agg.IncrementUniquePayees()
	}
	if operator.IsNew() {
		agg.IncrementTotalOperators()
	}
	if token.IsNew() {
		agg.IncrementTotalTokens()
	}
	return nil
}

// HandleRailRateModified updates the payment rate, queues the interval that
// accrued at the old rate and propagates rate and lockup usage.
func (l *RailLedger) HandleRailRateModified(ctx context.Context, e *event.RailRateModified, agg *MetricsAggregator) error {
	const handler = "RailRateModified"

	rail, ok, err := l.repo.LoadRail(ctx, e.RailID)
	if err != nil {
		return err
	}
	if !ok {
		l.warn(handler, ReasonRailMissing, entity.RailID(e.RailID))
		return nil
	}

	oldRate, newRate := bmath.OrZero(e.OldRate), bmath.OrZero(e.NewRate)
	block := bmath.FromUint64(e.Block.Number)

	if bmath.IsZero(oldRate) && bmath.IsPositive(newRate) && rail.State != entity.RailStateActive {
		if rail.State.CanTransitionTo(entity.RailStateActive) {
			prev := rail.State
			rail.State = entity.RailStateActive
			agg.RailStateChanged(prev, entity.RailStateActive)
		} else {
			l.warn(handler, ReasonIllegalTransition, fmt.Sprintf("%s %s->%s", rail.ID(), rail.State, entity.RailStateActive))
		}
	}

	if !bmath.Equal(oldRate, newRate) && !bmath.Equal(rail.SettledUpto, block) {
		if err := l.queueRateChange(ctx, rail, oldRate, block); err != nil {
			return err
		}
	}

	rail.PaymentRate = bmath.Clone(newRate)
	if err := l.repo.SaveRail(ctx, rail); err != nil {
		return err
	}

	approval, hasApproval, err := l.repo.LoadOperatorApproval(ctx, rail.Payer, rail.Operator, rail.Token)
	if err != nil {
		return err
	}
	opToken, err := l.repo.GetOrCreateOperatorToken(ctx, rail.Operator, rail.Token)
	if err != nil {
		return err
	}
	payerToken, hasPayer, err := l.repo.LoadUserToken(ctx, rail.Payer, rail.Token)
	if err != nil {
		return err
	}

	if !hasApproval {
		l.warn(handler, ReasonApprovalMissing, rail.ApprovalID())
		return nil
	}

	terminated := rail.State.IsTerminated()
	if !terminated {
		approval.ApplyRateDelta(oldRate, newRate)
		opToken.Entity.ApplyRateDelta(oldRate, newRate)

		if hasPayer {
			payerToken.LockupRate = bmath.Add(bmath.Sub(payerToken.LockupRate, oldRate), newRate)
			if err := l.repo.SaveUserToken(ctx, payerToken); err != nil {
				return err
			}
		}
	}

	if !bmath.Equal(oldRate, newRate) {
		period := bmath.Zero()
		if terminated {
			period = bmath.ClampZero(bmath.Sub(rail.EndEpoch, block))
		} else if hasPayer {
			elapsed := bmath.Sub(block, payerToken.LockupLastSettledUntilEpoch)
			period = bmath.Sub(rail.LockupPeriod, elapsed)
		}
		if bmath.IsPositive(period) {
			oldLockup, newLockup := bmath.Mul(oldRate, period), bmath.Mul(newRate, period)
			approval.ApplyLockupDelta(oldLockup, newLockup)
			opToken.Entity.ApplyLockupDelta(oldLockup, newLockup)
		}
	}

	if err := l.repo.SaveOperatorApproval(ctx, approval); err != nil {
		return err
	}
	return l.repo.SaveOperatorToken(ctx, opToken.Entity)
}

// queueRateChange records the interval that accrued at oldRate up to block.
// A rail that never had a non-zero rate just moves settledUpto forward.
func (l *RailLedger) queueRateChange(ctx context.Context, rail *entity.Rail, oldRate, block *big.Int) error {
	if bmath.IsZero(oldRate) && len(rail.RateChangeQueue) == 0 {
		rail.SettledUpto = bmath.Clone(block)
		return nil
	}

	last, hasLast, err := l.repo.LastRateChange(ctx, rail)
	if err != nil {
		return err
	}
	if hasLast && bmath.Equal(last.UntilEpoch, block) {
		return nil
	}

	start := rail.SettledUpto
	if hasLast {
		start = last.UntilEpoch
	}
	res, err := l.repo.UpsertRateChange(ctx, rail, start, block, oldRate)
	if err != nil {
		return err
	}
	if res.IsNew() {
		rail.TotalRateChanges = bmath.Inc(rail.TotalRateChanges)
	}
	return nil
}

// HandleRailLockupModified records the modification and moves lockup usage
// from the old lockup to the new one.
func (l *RailLedger) HandleRailLockupModified(ctx context.Context, e *event.RailLockupModified, _ *MetricsAggregator) error {
	const handler = "RailLockupModified"

	rail, ok, err := l.repo.LoadRail(ctx, e.RailID)
	if err != nil {
		return err
	}
	if !ok {
		l.warn(handler, ReasonRailMissing, entity.RailID(e.RailID))
		return nil
	}

	mod := &entity.LockupModification{
		Rail:            rail.ID(),
		OldLockupPeriod: bmath.Clone(e.OldLockupPeriod),
		NewLockupPeriod: bmath.Clone(e.NewLockupPeriod),
		OldLockupFixed:  bmath.Clone(e.OldLockupFixed),
		NewLockupFixed:  bmath.Clone(e.NewLockupFixed),
		BlockNumber:     e.Block.Number,
		BlockTimestamp:  e.Block.Timestamp,
		TransactionHash: e.Tx.Hash,
	}
	if err := l.repo.SaveLockupModification(ctx, entity.EventID(e.Tx.Hash, e.Tx.LogIndex), mod); err != nil {
		return err
	}

	terminated := rail.State.IsTerminated()
	_, hasPayer, err := l.repo.LoadUserToken(ctx, rail.Payer, rail.Token)
	if err != nil {
		return err
	}
	approval, hasApproval, err := l.repo.LoadOperatorApproval(ctx, rail.Payer, rail.Operator, rail.Token)
	if err != nil {
		return err
	}
	opToken, err := l.repo.GetOrCreateOperatorToken(ctx, rail.Operator, rail.Token)
	if err != nil {
		return err
	}

	rail.LockupFixed = bmath.Clone(e.NewLockupFixed)
	if !terminated {
		rail.LockupPeriod = bmath.Clone(e.NewLockupPeriod)
	}
	if err := l.repo.SaveRail(ctx, rail); err != nil {
		return err
	}

	if !hasPayer {
		l.logger.Debug().Str("handler", handler).Str("rail", rail.ID()).Msg("payer has no wallet, nothing to propagate")
		return nil
	}

	oldLockup, newLockup := bmath.Clone(e.OldLockupFixed), bmath.Clone(e.NewLockupFixed)
	if !terminated {
		oldLockup = bmath.Add(e.OldLockupFixed, bmath.Mul(rail.PaymentRate, e.OldLockupPeriod))
		newLockup = bmath.Add(e.NewLockupFixed, bmath.Mul(rail.PaymentRate, e.NewLockupPeriod))
	}

	if hasApproval {
		approval.ApplyLockupDelta(oldLockup, newLockup)
		if err := l.repo.SaveOperatorApproval(ctx, approval); err != nil {
			return err
		}
	} else {
		l.warn(handler, ReasonApprovalMissing, rail.ApprovalID())
	}

	opToken.Entity.ApplyLockupDelta(oldLockup, newLockup)
	return l.repo.SaveOperatorToken(ctx, opToken.Entity)
}

// HandleRailTerminated moves the rail to TERMINATED and removes its rate
// from the payer's lockup rate.
func (l *RailLedger) HandleRailTerminated(ctx context.Context, e *event.RailTerminated, agg *MetricsAggregator) error {
	const handler = "RailTerminated"

	rail, ok, err := l.repo.LoadRail(ctx, e.RailID)
	if err != nil {
		return err
	}
	if !ok {
		l.warn(handler, ReasonRailMissing, entity.RailID(e.RailID))
		return nil
	}

	prev := rail.State
	if !prev.CanTransitionTo(entity.RailStateTerminated) {
		l.warn(handler, ReasonIllegalTransition, fmt.Sprintf("%s %s->%s", rail.ID(), prev, entity.RailStateTerminated))
		return nil
	}
	rail.State = entity.RailStateTerminated
	rail.EndEpoch = bmath.Clone(e.EndEpoch)

	payerToken, hasPayer, err := l.repo.LoadUserToken(ctx, rail.Payer, rail.Token)
	if err != nil {
		return err
	}
	if hasPayer {
		payerToken.LockupRate = bmath.Sub(payerToken.LockupRate, rail.PaymentRate)
		if err := l.repo.SaveUserToken(ctx, payerToken); err != nil {
			return err
		}
	}

	if err := l.repo.SaveRail(ctx, rail); err != nil {
		return err
	}
	agg.RailStateChanged(prev, entity.RailStateTerminated)
	return nil
}

// HandleRailFinalized releases the rail's remaining lockup and moves it to
// FINALIZED.
func (l *RailLedger) HandleRailFinalized(ctx context.Context, e *event.RailFinalized, agg *MetricsAggregator) error {
	const handler = "RailFinalized"

	rail, ok, err := l.repo.LoadRail(ctx, e.RailID)
	if err != nil {
		return err
	}
	if !ok {
		l.warn(handler, ReasonRailMissing, entity.RailID(e.RailID))
		return nil
	}

	prev := rail.State
	if !prev.CanTransitionTo(entity.RailStateFinalized) {
		l.warn(handler, ReasonIllegalTransition, fmt.Sprintf("%s %s->%s", rail.ID(), prev, entity.RailStateFinalized))
		return nil
	}

	approval, hasApproval, err := l.repo.LoadOperatorApproval(ctx, rail.Payer, rail.Operator, rail.Token)
	if err != nil {
		return err
	}
	opToken, err := l.repo.GetOrCreateOperatorToken(ctx, rail.Operator, rail.Token)
	if err != nil {
		return err
	}

	remaining := rail.FullLockup()
	if hasApproval {
		approval.ApplyLockupDelta(remaining, bmath.Zero())
		if err := l.repo.SaveOperatorApproval(ctx, approval); err != nil {
			return err
		}
	} else {
		l.warn(handler, ReasonApprovalMissing, rail.ApprovalID())
	}
	opToken.Entity.ApplyLockupDelta(remaining, bmath.Zero())
	if err := l.repo.SaveOperatorToken(ctx, opToken.Entity); err != nil {
		return err
	}

	rail.State = entity.RailStateFinalized
	if err := l.repo.SaveRail(ctx, rail); err != nil {
		return err
	}
	agg.RailStateChanged(prev, entity.RailStateFinalized)
	return nil
}
