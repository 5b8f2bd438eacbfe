package state

import (
	"RailLedger/internal/entity"
	"RailLedger/internal/event"
	bmath "RailLedger/internal/math"
	"context"
)

// LockupTracker maintains wallets, operator approvals and token fee pools.
type LockupTracker struct {
	base
}

// HandleAccountLockupSettled overwrites the owner's lockup snapshot.
func (t *LockupTracker) HandleAccountLockupSettled(ctx context.Context, e *event.AccountLockupSettled, _ *MetricsAggregator) error {
	ut, ok, err := t.repo.LoadUserToken(ctx, e.Owner, e.Token)
	if err != nil {
		return err
	}
	if !ok {
		t.logger.Debug().
			Str("handler", "AccountLockupSettled").
			Str("user_token", entity.UserTokenID(e.Owner, e.Token)).
			Msg("no wallet for owner")
		return nil
	}

	ut.LockupCurrent = bmath.Clone(e.LockupCurrent)
	ut.LockupRate = bmath.Clone(e.LockupRate)
	ut.LockupLastSettledUntilEpoch = bmath.Clone(e.LockupLastSettledAt)
	ut.LockupLastSettledUntilTimestamp = bmath.EpochTimestamp(e.LockupLastSettledAt, e.Block.Number, e.Block.Timestamp)
	return t.repo.SaveUserToken(ctx, ut)
}

// HandleOperatorApprovalUpdated records the client's allowances and mirrors
// them onto the operator's per-token aggregate.
func (t *LockupTracker) HandleOperatorApprovalUpdated(ctx context.Context, e *event.OperatorApprovalUpdated, agg *MetricsAggregator) error {
	client, hasClient, err := t.repo.LoadAccount(ctx, e.Client)
	if err != nil {
		return err
	}
	operator, err := t.repo.GetOrCreateOperator(ctx, e.Operator)
	if err != nil {
		return err
	}
	opToken, err := t.repo.GetOrCreateOperatorToken(ctx, e.Operator, e.Token)
	if err != nil {
		return err
	}
	approval, err := t.repo.GetOrCreateOperatorApproval(ctx, e.Client, e.Operator, e.Token)
	if err != nil {
		return err
	}

	if approval.IsNew() {
		operator.Entity.TotalApprovals = bmath.Inc(operator.Entity.TotalApprovals)
		if hasClient {
			client.TotalApprovals = bmath.Inc(client.TotalApprovals)
			if err := t.repo.SaveAccount(ctx, client); err != nil {
				return err
			}
		}
	}
	if opToken.IsNew() {
		operator.Entity.TotalTokens = bmath.Inc(operator.Entity.TotalTokens)
	}

	opToken.Entity.RateAllowance = bmath.Clone(e.RateAllowance)
	opToken.Entity.LockupAllowance = bmath.Clone(e.LockupAllowance)

	a := approval.Entity
	a.RateAllowance = bmath.Clone(e.RateAllowance)
	a.LockupAllowance = bmath.Clone(e.LockupAllowance)
	a.IsApproved = e.Approved
	a.MaxLockupPeriod = bmath.Clone(e.MaxLockupPeriod)

	if err := t.repo.SaveOperatorApproval(ctx, a); err != nil {
		return err
	}
	if err := t.repo.SaveOperatorToken(ctx, opToken.Entity); err != nil {
		return err
	}
	if err := t.repo.SaveOperator(ctx, operator.Entity); err != nil {
		return err
	}

	if operator.IsNew() {
		agg.IncrementTotalOperators()
	}
	return nil
}

// HandleDepositRecorded credits the recipient's wallet.
func (t *LockupTracker) HandleDepositRecorded(ctx context.Context, e *event.DepositRecorded, agg *MetricsAggregator) error {
	token, err := t.repo.GetOrCreateToken(ctx, e.Token)
	if err != nil {
		return err
	}
	account, err := t.repo.GetOrCreateAccount(ctx, e.To)
	if err != nil {
		return err
	}
	ut, err := t.repo.GetOrCreateUserToken(ctx, e.To, e.Token)
	if err != nil {
		return err
	}

	tok := token.Entity
	tok.UserFunds = bmath.Add(tok.UserFunds, e.Amount)
	tok.TotalDeposits = bmath.Add(tok.TotalDeposits, e.Amount)
	tok.Volume = bmath.Add(tok.Volume, e.Amount)

	if ut.IsNew() {
		tok.TotalUsers = bmath.Inc(tok.TotalUsers)
		account.Entity.TotalTokens = bmath.Inc(account.Entity.TotalTokens)
		if err := t.repo.SaveAccount(ctx, account.Entity); err != nil {
			return err
		}
	}
	ut.Entity.Funds = bmath.Add(ut.Entity.Funds, e.Amount)

	if err := t.repo.SaveToken(ctx, tok); err != nil {
		return err
	}
	if err := t.repo.SaveUserToken(ctx, ut.Entity); err != nil {
		return err
	}

	if account.IsNew() {
		agg.IncrementTotalAccounts()
	}
	if token.IsNew() {
		agg.IncrementTotalTokens()
	}
	return nil
}

// HandleWithdrawRecorded debits the sender's wallet.
func (t *LockupTracker) HandleWithdrawRecorded(ctx context.Context, e *event.WithdrawRecorded, _ *MetricsAggregator) error {
	ut, ok, err := t.repo.LoadUserToken(ctx, e.From, e.Token)
	if err != nil {
		return err
	}
	if !ok {
		t.warn("WithdrawRecorded", ReasonUserTokenMissing, entity.UserTokenID(e.From, e.Token))
		return nil
	}

	ut.Funds = bmath.Sub(ut.Funds, e.Amount)
	if err := t.repo.SaveUserToken(ctx, ut); err != nil {
		return err
	}

	tok, ok, err := t.repo.LoadToken(ctx, e.Token)
	if err != nil || !ok {
		return err
	}
	tok.UserFunds = bmath.Sub(tok.UserFunds, e.Amount)
	tok.TotalWithdrawals = bmath.Add(tok.TotalWithdrawals, e.Amount)
	tok.Volume = bmath.Add(tok.Volume, e.Amount)
	return t.repo.SaveToken(ctx, tok)
}

// HandleBurnForFees records a fee auction purchase: the buyer takes
// requested from the token's fee pool and burns the native value sent.
func (t *LockupTracker) HandleBurnForFees(ctx context.Context, e *event.BurnForFeesCall, agg *MetricsAggregator) error {
	tok, ok, err := t.repo.LoadToken(ctx, e.Inputs.Token)
	if err != nil {
		return err
	}
	if !ok {
		t.warn("BurnForFees", ReasonTokenMissing, entity.TokenID(e.Inputs.Token))
		return nil
	}

	purchase := &entity.FeeAuctionPurchase{
		Token:           e.Inputs.Token,
		Recipient:       e.Inputs.Recipient,
		AmountPurchased: bmath.Clone(e.Inputs.Requested),
		FilBurned:       bmath.Clone(e.Value),
		BlockNumber:     e.Block.Number,
		BlockTimestamp:  e.Block.Timestamp,
		TransactionHash: e.Tx.Hash,
	}
	if err := t.repo.SaveFeeAuctionPurchase(ctx, entity.EventID(e.Tx.Hash, e.Tx.Index), purchase); err != nil {
		return err
	}

	tok.AccumulatedFees = bmath.Sub(tok.AccumulatedFees, e.Inputs.Requested)
	tok.TotalFilBurnedForFees = bmath.Add(tok.TotalFilBurnedForFees, e.Value)
	if err := t.repo.SaveToken(ctx, tok); err != nil {
		return err
	}

	agg.IncrementTotalFeeAuctionPurchases()
	agg.AddFilBurned(e.Value)
	return nil
}
