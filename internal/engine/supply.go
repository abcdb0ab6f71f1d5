package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"LoanLedger/internal/event"
	"LoanLedger/internal/ledger"
)

// Deposit supplies base asset into the pool. The lender record and pool
// total are updated before the pull; a failed pull rolls both back.
func (e *Engine) Deposit(ctx context.Context, account uuid.UUID, amount int64) error {
	return e.do(ctx, func(opCtx context.Context, now time.Time) (*event.Notification, error) {
		if amount <= 0 {
			return nil, fmt.Errorf("deposit of %d: %w", amount, ledger.ErrInvalidAmount)
		}

		rec := e.store.Lender(account)
		prev := rec.Clone()
		prevPool := *e.store.Pool()

		rec.AmountSupplied += amount
		rec.DepositTimestamp = now
		e.store.Pool().TotalSupplied += amount

		if err := e.base.Pull(opCtx, account, amount); err != nil {
			e.store.PutLender(prev)
			*e.store.Pool() = prevPool
			return nil, fmt.Errorf("deposit: %w: %v", ledger.ErrTransferFailed, err)
		}

		return &event.Notification{
			Op:        event.OpDeposit,
			Account:   account,
			Amount:    amount,
			Timestamp: now,
		}, nil
	})
}

// Withdraw returns supplied base asset to the lender, bounded by both the
// lender's own balance and the pool's un-lent liquidity.
func (e *Engine) Withdraw(ctx context.Context, account uuid.UUID, amount int64) error {
	return e.do(ctx, func(opCtx context.Context, now time.Time) (*event.Notification, error) {
		if amount <= 0 {
			return nil, fmt.Errorf("withdrawal of %d: %w", amount, ledger.ErrInvalidAmount)
		}

		rec, ok := e.store.LenderIfExists(account)
		if !ok || rec.AmountSupplied < amount {
			return nil, fmt.Errorf("withdrawal of %d: %w", amount, ledger.ErrInsufficientBalance)
		}
		if e.store.Pool().TotalSupplied < amount {
			return nil, fmt.Errorf("withdrawal of %d exceeds pool liquidity %d: %w",
				amount, e.store.Pool().TotalSupplied, ledger.ErrInsufficientLiquidity)
		}

		prev := rec.Clone()
		prevPool := *e.store.Pool()

		rec.AmountSupplied -= amount
		e.store.Pool().TotalSupplied -= amount

		if err := e.base.Push(opCtx, account, amount); err != nil {
			e.store.PutLender(prev)
			*e.store.Pool() = prevPool
			return nil, fmt.Errorf("withdrawal: %w: %v", ledger.ErrTransferFailed, err)
		}

		return &event.Notification{
			Op:        event.OpWithdraw,
			Account:   account,
			Amount:    amount,
			Timestamp: now,
		}, nil
	})
}

// LenderBalance reports the lender's current supplied amount. Unknown
// accounts report zero.
func (e *Engine) LenderBalance(ctx context.Context, account uuid.UUID) (int64, error) {
	var balance int64
	err := e.read(ctx, func(time.Time) {
		if rec, ok := e.store.LenderIfExists(account); ok {
			balance = rec.AmountSupplied
		}
	})
	return balance, err
}
