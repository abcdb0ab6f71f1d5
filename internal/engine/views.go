package engine

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"LoanLedger/internal/credit"
	"LoanLedger/internal/ledger"
)

// InfiniteCollateralRatio is the sentinel returned by CollateralRatio when
// the account has no outstanding principal.
const InfiniteCollateralRatio = int64(math.MaxInt64)

// TotalDebt returns outstanding principal plus interest at the current
// quarter's rate, or zero when there is no active loan.
func (e *Engine) TotalDebt(ctx context.Context, account uuid.UUID) (int64, error) {
	var debt int64
	err := e.read(ctx, func(now time.Time) {
		rec, ok := e.store.BorrowerIfExists(account)
		if !ok || !rec.HasActiveLoan() {
			return
		}
		age := now.Sub(rec.BorrowTimestamp)
		debt = rec.AmountBorrowed + e.cfg.Schedule.Interest(rec.AmountBorrowed, age)
	})
	return debt, err
}

// CollateralRatio returns collateral * 10000 / principal in basis points,
// or InfiniteCollateralRatio when nothing is borrowed.
func (e *Engine) CollateralRatio(ctx context.Context, account uuid.UUID) (int64, error) {
	ratio := InfiniteCollateralRatio
	err := e.read(ctx, func(time.Time) {
		rec, ok := e.store.BorrowerIfExists(account)
		if !ok || !rec.HasActiveLoan() {
			return
		}
		ratio = rec.CollateralDeposited * credit.BasisPointDivisor / rec.AmountBorrowed
	})
	return ratio, err
}

// BorrowerRecord returns a copy of the account's borrower record. Unknown
// accounts return a zero record.
func (e *Engine) BorrowerRecord(ctx context.Context, account uuid.UUID) (ledger.BorrowerRecord, error) {
	var out ledger.BorrowerRecord
	out.Account = account
	err := e.read(ctx, func(time.Time) {
		if rec, ok := e.store.BorrowerIfExists(account); ok {
			out = *rec.Clone()
		}
	})
	return out, err
}

// PoolState returns a copy of the pool-wide totals.
func (e *Engine) PoolState(ctx context.Context) (ledger.PoolState, error) {
	var out ledger.PoolState
	err := e.read(ctx, func(time.Time) {
		out = *e.store.Pool()
	})
	return out, err
}

// SnapshotState is the full serializable engine state, captured through the
// command loop so it is consistent with a sequence boundary.
type SnapshotState struct {
	Sequence  int64                    `json:"sequence"`
	Lenders   []*ledger.LenderRecord   `json:"lenders"`
	Borrowers []*ledger.BorrowerRecord `json:"borrowers"`
	Pool      ledger.PoolState         `json:"pool"`
}

// Snapshot captures the current state for persistence.
func (e *Engine) Snapshot(ctx context.Context) (SnapshotState, error) {
	var snap SnapshotState
	err := e.read(ctx, func(time.Time) {
		snap.Sequence = e.sequence
		snap.Lenders, snap.Borrowers, snap.Pool = e.store.Snapshot()
	})
	return snap, err
}

// Restore loads a snapshot into the engine. It must be called before Run
// starts; the loop is the only writer afterwards.
func (e *Engine) Restore(snap SnapshotState) {
	e.sequence = snap.Sequence
	e.store.Restore(snap.Lenders, snap.Borrowers, snap.Pool)
}
