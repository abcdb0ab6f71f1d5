package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"LoanLedger/internal/event"
	"LoanLedger/internal/ledger"
)

// DepositCollateral locks collateral asset for the caller. Note that every
// collateral deposit stamps BorrowTimestamp, so topping up collateral on an
// open loan resets its age clock and with it the interest bracket and
// maturity countdown.
func (e *Engine) DepositCollateral(ctx context.Context, account uuid.UUID, amount int64) error {
	return e.do(ctx, func(opCtx context.Context, now time.Time) (*event.Notification, error) {
		if amount <= 0 {
			return nil, fmt.Errorf("collateral deposit of %d: %w", amount, ledger.ErrInvalidAmount)
		}

		rec := e.store.Borrower(account)
		prev := rec.Clone()

		rec.CollateralDeposited += amount
		rec.BorrowTimestamp = now
		rec.LastIteration = now

		if err := e.collateral.Pull(opCtx, account, amount); err != nil {
			e.store.PutBorrower(prev)
			return nil, fmt.Errorf("collateral deposit: %w: %v", ledger.ErrTransferFailed, err)
		}

		return &event.Notification{
			Op:         event.OpCollateralDeposit,
			Account:    account,
			Amount:     amount,
			Collateral: rec.CollateralDeposited,
			Timestamp:  now,
		}, nil
	})
}
