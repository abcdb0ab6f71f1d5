package ledger

import (
	"time"

	"github.com/google/uuid"
)

// LenderRecord tracks one account's supply-side position. Created on first
// deposit, mutated by deposit/withdraw, never deleted (AmountSupplied can
// reach zero).
type LenderRecord struct {
	Account          uuid.UUID
	AmountSupplied   int64
	DepositTimestamp time.Time
}

// BorrowerRecord tracks one account's borrow-side position.
//
// InitialBorrowAmount and AmountRepaid are lifetime counters: they are never
// reset, not on full repayment and not on liquidation. The repayment-ratio
// baseline therefore persists across independent borrow cycles.
type BorrowerRecord struct {
	Account uuid.UUID

	// AmountBorrowed is the current outstanding principal. Zero means no
	// active loan.
	AmountBorrowed int64

	// InitialBorrowAmount accumulates every principal draw, monotonically
	// non-decreasing. Baseline for the liquidation repayment-ratio checks.
	InitialBorrowAmount int64

	CollateralDeposited int64

	// BorrowTimestamp marks the start of the current active loan; the zero
	// time means no active loan. DepositCollateral also stamps it, and the
	// stamp is overwritten by the next borrow.
	BorrowTimestamp time.Time

	// LastIteration is updated on every credit-affecting event.
	LastIteration time.Time

	// AmountRepaid accumulates principal repaid against InitialBorrowAmount.
	AmountRepaid int64
}

// HasActiveLoan reports whether the borrower currently owes principal.
func (b *BorrowerRecord) HasActiveLoan() bool {
	return b.AmountBorrowed > 0
}

// Clone returns a copy for staging and rollback.
func (b *BorrowerRecord) Clone() *BorrowerRecord {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// Clone returns a copy for staging and rollback.
func (l *LenderRecord) Clone() *LenderRecord {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// PoolState is the pool-wide accounting state. TotalSupplied is the lendable
// liquidity available for new borrows: incremented on deposit and repay,
// decremented on withdraw, borrow, and the closure fee payout.
//
// InterestCollected and FeesPaid are lifetime counters kept for the
// conservation check:
//
//	TotalSupplied == Σ lender balances − outstanding principal + InterestCollected − FeesPaid
type PoolState struct {
	TotalSupplied     int64
	InterestCollected int64
	FeesPaid          int64
}
