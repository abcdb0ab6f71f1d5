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

// Borrow draws base asset against deposited collateral. The new total
// principal must stay within collateral * ratio / 10000, and the pool must
// hold enough un-lent liquidity.
func (e *Engine) Borrow(ctx context.Context, account uuid.UUID, amount int64) error {
	return e.do(ctx, func(opCtx context.Context, now time.Time) (*event.Notification, error) {
		if amount <= 0 {
			return nil, fmt.Errorf("borrow of %d: %w", amount, ledger.ErrInvalidAmount)
		}

		rec, ok := e.store.BorrowerIfExists(account)
		if !ok || rec.CollateralDeposited == 0 {
			return nil, fmt.Errorf("borrow without collateral: %w", ledger.ErrCollateralLimitExceeded)
		}

		maxBorrowable := credit.MaxBorrowable(rec.CollateralDeposited, e.cfg.CollateralRatioBps)
		if rec.AmountBorrowed+amount > maxBorrowable {
			return nil, fmt.Errorf("borrow of %d would exceed limit %d: %w",
				amount, maxBorrowable, ledger.ErrCollateralLimitExceeded)
		}
		if amount > e.store.Pool().TotalSupplied {
			return nil, fmt.Errorf("borrow of %d exceeds pool liquidity %d: %w",
				amount, e.store.Pool().TotalSupplied, ledger.ErrInsufficientLiquidity)
		}

		prev := rec.Clone()
		prevPool := *e.store.Pool()

		rec.AmountBorrowed += amount
		rec.InitialBorrowAmount += amount
		rec.BorrowTimestamp = now
		rec.LastIteration = now
		e.store.Pool().TotalSupplied -= amount

		if err := e.base.Push(opCtx, account, amount); err != nil {
			e.store.PutBorrower(prev)
			*e.store.Pool() = prevPool
			return nil, fmt.Errorf("borrow: %w: %v", ledger.ErrTransferFailed, err)
		}

		return &event.Notification{
			Op:         event.OpBorrow,
			Account:    account,
			Amount:     amount,
			Collateral: rec.CollateralDeposited,
			Timestamp:  now,
		}, nil
	})
}

// Repay pays down principal. Interest is charged on the full outstanding
// principal at the current quarter's rate and is pulled alongside the
// principal. The protocol fee is taken out of the interest, and only when
// the repayment closes the loan; partial repayments never pay a fee.
func (e *Engine) Repay(ctx context.Context, account uuid.UUID, principal int64) error {
	return e.do(ctx, func(opCtx context.Context, now time.Time) (*event.Notification, error) {
		if principal <= 0 {
			return nil, fmt.Errorf("repayment of %d: %w", principal, ledger.ErrInvalidAmount)
		}

		rec, ok := e.store.BorrowerIfExists(account)
		if !ok || !rec.HasActiveLoan() {
			return nil, fmt.Errorf("repayment: %w", ledger.ErrNoActiveLoan)
		}
		if principal > rec.AmountBorrowed {
			return nil, fmt.Errorf("repayment of %d exceeds outstanding %d: %w",
				principal, rec.AmountBorrowed, ledger.ErrOverRepayment)
		}

		age := now.Sub(rec.BorrowTimestamp)
		interest := e.cfg.Schedule.Interest(rec.AmountBorrowed, age)
		closing := principal == rec.AmountBorrowed

		var fee int64
		if closing {
			fee = e.cfg.Schedule.ClosureFee(interest, age)
		}

		prev := rec.Clone()
		prevPool := *e.store.Pool()

		rec.AmountBorrowed -= principal
		rec.AmountRepaid += principal
		rec.LastIteration = now
		if closing {
			rec.BorrowTimestamp = time.Time{}
		}

		// Principal and interest return to lendable liquidity; the closure
		// fee leaves the pool for the fee recipient.
		pool := e.store.Pool()
		pool.TotalSupplied += principal + interest - fee
		pool.InterestCollected += interest
		pool.FeesPaid += fee

		rollback := func() {
			e.store.PutBorrower(prev)
			*e.store.Pool() = prevPool
		}

		if err := e.base.Pull(opCtx, account, principal+interest); err != nil {
			rollback()
			return nil, fmt.Errorf("repayment: %w: %v", ledger.ErrTransferFailed, err)
		}
		if fee > 0 {
			if err := e.base.Push(opCtx, e.cfg.FeeRecipient, fee); err != nil {
				// Compensate the pull before unwinding state. A failed
				// compensation leaves the funds in the pool and is logged
				// for manual reconciliation.
				if pushErr := e.base.Push(opCtx, account, principal+interest); pushErr != nil {
					e.log.Error().Err(pushErr).
						Str("account", account.String()).
						Int64("amount", principal+interest).
						Msg("compensating push failed after fee transfer failure")
				}
				rollback()
				return nil, fmt.Errorf("repayment fee transfer: %w: %v", ledger.ErrTransferFailed, err)
			}
		}

		notif := &event.Notification{
			Op:         event.OpRepay,
			Account:    account,
			Amount:     principal,
			Interest:   interest,
			Fee:        fee,
			LoanClosed: closing,
			Timestamp:  now,
		}
		if closing {
			notif.Counterparty = e.cfg.FeeRecipient
		}
		return notif, nil
	})
}
