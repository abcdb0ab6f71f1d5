package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"LoanLedger/internal/credit"
	"LoanLedger/internal/event"
	"LoanLedger/internal/ledger"
)

// liquidatable reports whether the position can be forcibly closed at the
// given instant. A position qualifies when any of these holds:
//
//   - the loan is past the 365-day maturity
//   - the collateral ratio has fallen below the pool threshold
//   - loan age is in (180, 270] days with under 25% of lifetime principal repaid
//   - loan age is in (270, 365] days with under 50% of lifetime principal repaid
//
// The repayment-discipline checks compare AmountRepaid against
// InitialBorrowAmount, both lifetime counters spanning prior loan cycles.
func (e *Engine) liquidatable(rec *ledger.BorrowerRecord, now time.Time) bool {
	if !rec.HasActiveLoan() {
		return false
	}

	age := now.Sub(rec.BorrowTimestamp)
	if age > credit.MaturityDays*credit.Day {
		return true
	}

	ratio := rec.CollateralDeposited * credit.BasisPointDivisor / rec.AmountBorrowed
	if ratio < e.cfg.CollateralRatioBps {
		return true
	}

	switch {
	case age > 2*credit.QuarterDays*credit.Day && age <= 3*credit.QuarterDays*credit.Day:
		return rec.AmountRepaid*4 < rec.InitialBorrowAmount
	case age > 3*credit.QuarterDays*credit.Day && age <= credit.MaturityDays*credit.Day:
		return rec.AmountRepaid*2 < rec.InitialBorrowAmount
	}
	return false
}

// IsLiquidatable reports liquidation eligibility without mutating state.
func (e *Engine) IsLiquidatable(ctx context.Context, account uuid.UUID) (bool, error) {
	var eligible bool
	err := e.read(ctx, func(now time.Time) {
		if rec, ok := e.store.BorrowerIfExists(account); ok {
			eligible = e.liquidatable(rec, now)
		}
	})
	return eligible, err
}

// Liquidate closes an eligible position in full: the caller repays the
// entire outstanding principal and receives the entire collateral. There is
// no partial liquidation, and any account may call this.
func (e *Engine) Liquidate(ctx context.Context, liquidator, account uuid.UUID) error {
	return e.do(ctx, func(opCtx context.Context, now time.Time) (*event.Notification, error) {
		rec, ok := e.store.BorrowerIfExists(account)
		if !ok || !rec.HasActiveLoan() {
			return nil, fmt.Errorf("liquidation: %w", ledger.ErrNoActiveLoan)
		}
		if !e.liquidatable(rec, now) {
			return nil, fmt.Errorf("liquidation of healthy position: %w", ledger.ErrNotLiquidatable)
		}

		debt := rec.AmountBorrowed
		seized := rec.CollateralDeposited

		prev := rec.Clone()
		prevPool := *e.store.Pool()

		rec.AmountBorrowed = 0
		rec.CollateralDeposited = 0
		rec.BorrowTimestamp = time.Time{}
		rec.LastIteration = now
		// AmountRepaid and InitialBorrowAmount persist across cycles.

		// The repaid debt returns to lendable liquidity.
		e.store.Pool().TotalSupplied += debt

		rollback := func() {
			e.store.PutBorrower(prev)
			*e.store.Pool() = prevPool
		}

		if err := e.base.Pull(opCtx, liquidator, debt); err != nil {
			rollback()
			return nil, fmt.Errorf("liquidation debt transfer: %w: %v", ledger.ErrTransferFailed, err)
		}
		if err := e.collateral.Push(opCtx, liquidator, seized); err != nil {
			if pushErr := e.base.Push(opCtx, liquidator, debt); pushErr != nil {
				e.log.Error().Err(pushErr).
					Str("liquidator", liquidator.String()).
					Int64("amount", debt).
					Msg("compensating push failed after collateral transfer failure")
			}
			rollback()
			return nil, fmt.Errorf("liquidation collateral transfer: %w: %v", ledger.ErrTransferFailed, err)
		}

		return &event.Notification{
			Op:           event.OpLiquidate,
			Account:      account,
			Counterparty: liquidator,
			Amount:       debt,
			Collateral:   seized,
			LoanClosed:   true,
			Timestamp:    now,
		}, nil
	})
}
