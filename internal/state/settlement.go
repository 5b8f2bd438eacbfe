package state

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/event"
	bmath "RailLedger/internal/math"
	"context"
	"math/big"
)

// SettlementProcessor applies settlements and one-time payments.
type SettlementProcessor struct {
	base
}

// payment is the split of one gross amount moved from payer to payee.
type payment struct {
	gross      *big.Int
	net        *big.Int
	commission *big.Int
	fee        *big.Int
}

// HandleRailSettled accrues a settlement on the rail and moves the funds.
func (p *SettlementProcessor) HandleRailSettled(ctx context.Context, e *event.RailSettled, agg *MetricsAggregator) error {
	rail, ok, err := p.repo.LoadRail(ctx, e.RailID)
	if err != nil {
		return err
	}
	if !ok {
		p.warn("RailSettled", ReasonRailMissing, entity.RailID(e.RailID))
		return nil
	}

	pay := payment{
		gross:      bmath.OrZero(e.TotalSettledAmount),
		net:        bmath.OrZero(e.TotalNetPayeeAmount),
		commission: bmath.OrZero(e.OperatorCommission),
		fee:        bmath.OrZero(e.NetworkFee),
	}

	rail.TotalSettledAmount = bmath.Add(rail.TotalSettledAmount, pay.gross)
	rail.TotalNetPayeeAmount = bmath.Add(rail.TotalNetPayeeAmount, pay.net)
	rail.TotalCommission = bmath.Add(rail.TotalCommission, pay.commission)
	rail.TotalFees = bmath.Add(rail.TotalFees, pay.fee)
	rail.TotalSettlements = bmath.Inc(rail.TotalSettlements)
	rail.SettledUpto = bmath.Clone(e.SettledUpTo)
	if err := p.repo.SaveRail(ctx, rail); err != nil {
		return err
	}

	row := &entity.Settlement{
		Rail:                rail.ID(),
		TotalSettledAmount:  bmath.Clone(pay.gross),
		TotalNetPayeeAmount: bmath.Clone(pay.net),
		OperatorCommission:  bmath.Clone(pay.commission),
		Fee:                 bmath.Clone(pay.fee),
		SettledUpto:         bmath.Clone(e.SettledUpTo),
		BlockNumber:         e.Block.Number,
		BlockTimestamp:      e.Block.Timestamp,
		TransactionHash:     e.Tx.Hash,
	}
	if err := p.repo.SaveSettlement(ctx, entity.EventID(e.Tx.Hash, e.Tx.LogIndex), row); err != nil {
		return err
	}

	opToken, err := p.repo.GetOrCreateOperatorToken(ctx, rail.Operator, rail.Token)
	if err != nil {
		return err
	}
	opToken.Entity.SettledAmount = bmath.Add(opToken.Entity.SettledAmount, pay.gross)
	opToken.Entity.Volume = bmath.Add(opToken.Entity.Volume, pay.gross)
	opToken.Entity.CommissionEarned = bmath.Add(opToken.Entity.CommissionEarned, pay.commission)
	if err := p.repo.SaveOperatorToken(ctx, opToken.Entity); err != nil {
		return err
	}

	burned, err := p.transfer(ctx, rail, pay)
	if err != nil {
		return err
	}

	agg.IncrementTotalSettlements()
	agg.AddFilBurned(burned)
	return nil
}

// HandleRailOneTimePayment moves a one-time payment taken from the rail's
// fixed lockup and releases the matching allowance.
func (p *SettlementProcessor) HandleRailOneTimePayment(ctx context.Context, e *event.RailOneTimePaymentProcessed, agg *MetricsAggregator) error {
	const handler = "RailOneTimePaymentProcessed"

	rail, ok, err := p.repo.LoadRail(ctx, e.RailID)
	if err != nil {
		return err
	}
	if !ok {
		p.warn(handler, ReasonRailMissing, entity.RailID(e.RailID))
		return nil
	}

	pay := payment{
		net:        bmath.OrZero(e.NetPayeeAmount),
		commission: bmath.OrZero(e.OperatorCommission),
		fee:        bmath.OrZero(e.NetworkFee),
	}
	pay.gross = bmath.Add(bmath.Add(pay.commission, pay.net), pay.fee)

	row := &entity.OneTimePayment{
		Rail:               rail.ID(),
		NetPayeeAmount:     bmath.Clone(pay.net),
		OperatorCommission: bmath.Clone(pay.commission),
		Fee:                bmath.Clone(pay.fee),
		GrossAmount:        bmath.Clone(pay.gross),
		BlockNumber:        e.Block.Number,
		BlockTimestamp:     e.Block.Timestamp,
		TransactionHash:    e.Tx.Hash,
	}
	if err := p.repo.SaveOneTimePayment(ctx, entity.EventID(e.Tx.Hash, e.Tx.LogIndex), row); err != nil {
		return err
	}

	// The contract has already checked the fixed lockup covers the payment.
	rail.LockupFixed = bmath.Sub(rail.LockupFixed, pay.gross)
	rail.TotalSettledAmount = bmath.Add(rail.TotalSettledAmount, pay.gross)
	rail.TotalNetPayeeAmount = bmath.Add(rail.TotalNetPayeeAmount, pay.net)
	rail.TotalCommission = bmath.Add(rail.TotalCommission, pay.commission)
	rail.TotalFees = bmath.Add(rail.TotalFees, pay.fee)
	rail.TotalOneTimePayments = bmath.Inc(rail.TotalOneTimePayments)
	if err := p.repo.SaveRail(ctx, rail); err != nil {
		return err
	}

	burned, err := p.transfer(ctx, rail, pay)
	if err != nil {
		return err
	}
	agg.IncrementTotalOneTimePayments()
	agg.AddFilBurned(burned)

	approval, hasApproval, err := p.repo.LoadOperatorApproval(ctx, rail.Payer, rail.Operator, rail.Token)
	if err != nil {
		return err
	}
	opToken, err := p.repo.GetOrCreateOperatorToken(ctx, rail.Operator, rail.Token)
	if err != nil {
		return err
	}
	if !hasApproval {
		p.warn(handler, ReasonApprovalMissing, rail.ApprovalID())
		return nil
	}

	approval.LockupAllowance = bmath.SaturatingSub(approval.LockupAllowance, pay.gross)
	approval.ApplyLockupDelta(pay.gross, bmath.Zero())

	ot := opToken.Entity
	ot.LockupAllowance = bmath.SaturatingSub(ot.LockupAllowance, pay.gross)
	ot.ApplyLockupDelta(pay.gross, bmath.Zero())
	ot.CommissionEarned = bmath.Add(ot.CommissionEarned, pay.commission)
	ot.Volume = bmath.Add(ot.Volume, pay.gross)
	ot.SettledAmount = bmath.Add(ot.SettledAmount, pay.gross)

	if err := p.repo.SaveOperatorApproval(ctx, approval); err != nil {
		return err
	}
	return p.repo.SaveOperatorToken(ctx, ot)
}

// transfer debits the payer, credits the payee and the service fee
// recipient, and books the network fee on the token. It returns the amount
// burned, which is the fee for the native token and zero otherwise.
func (p *SettlementProcessor) transfer(ctx context.Context, rail *entity.Rail, pay payment) (*big.Int, error) {
	w := newWallets(p.repo)

	payer, hasPayer, err := w.load(ctx, rail.Payer, rail.Token)
	if err != nil {
		return nil, err
	}
	payee, err := w.getOrCreate(ctx, rail.Payee, rail.Token)
	if err != nil {
		return nil, err
	}
	recipient, err := w.getOrCreate(ctx, rail.ServiceFeeRecipient, rail.Token)
	if err != nil {
		return nil, err
	}

	burned := bmath.Zero()
	tok, hasToken, err := p.repo.LoadToken(ctx, rail.Token)
	if err != nil {
		return nil, err
	}
	if entity.IsNativeToken(rail.Token) {
		burned = bmath.Clone(pay.fee)
	} else if hasToken {
		tok.AccumulatedFees = bmath.Add(tok.AccumulatedFees, pay.fee)
	}
	if hasToken {
		tok.UserFunds = bmath.Sub(tok.UserFunds, pay.fee)
		tok.TotalSettledAmount = bmath.Add(tok.TotalSettledAmount, pay.gross)
		tok.TotalFees = bmath.Add(tok.TotalFees, pay.fee)
		tok.Volume = bmath.Add(tok.Volume, pay.gross)
		tok.OperatorCommission = bmath.Add(tok.OperatorCommission, pay.commission)
		if err := p.repo.SaveToken(ctx, tok); err != nil {
			return nil, err
		}
	}

	if hasPayer {
		payer.Funds = bmath.Sub(payer.Funds, pay.gross)
		payer.Payout = bmath.Add(payer.Payout, pay.gross)
	}
	payee.Funds = bmath.Add(payee.Funds, pay.net)
	payee.FundsCollected = bmath.Add(payee.FundsCollected, pay.net)
	recipient.Funds = bmath.Add(recipient.Funds, pay.commission)

	if err := w.saveAll(ctx); err != nil {
		return nil, err
	}
	return burned, nil
}
