package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// Store holds all lender and borrower records plus the pool state.
// Pure data: no operation semantics live here.
//
// Not thread-safe; only accessed from the single-writer engine loop.
type Store struct {
	lenders   map[uuid.UUID]*LenderRecord
	borrowers map[uuid.UUID]*BorrowerRecord
	pool      PoolState
}

func NewStore() *Store {
	return &Store{
		lenders:   make(map[uuid.UUID]*LenderRecord),
		borrowers: make(map[uuid.UUID]*BorrowerRecord),
	}
}

// Lender returns the record for an account, creating it on first use.
func (s *Store) Lender(account uuid.UUID) *LenderRecord {
	rec, ok := s.lenders[account]
	if !ok {
		rec = &LenderRecord{Account: account}
		s.lenders[account] = rec
	}
	return rec
}

// LenderIfExists returns the record without creating one.
func (s *Store) LenderIfExists(account uuid.UUID) (*LenderRecord, bool) {
	rec, ok := s.lenders[account]
	return rec, ok
}

// Borrower returns the record for an account, creating it on first use.
func (s *Store) Borrower(account uuid.UUID) *BorrowerRecord {
	rec, ok := s.borrowers[account]
	if !ok {
		rec = &BorrowerRecord{Account: account}
		s.borrowers[account] = rec
	}
	return rec
}

// BorrowerIfExists returns the record without creating one.
func (s *Store) BorrowerIfExists(account uuid.UUID) (*BorrowerRecord, bool) {
	rec, ok := s.borrowers[account]
	return rec, ok
}

// PutLender replaces a lender record (used for commit and rollback).
func (s *Store) PutLender(rec *LenderRecord) {
	s.lenders[rec.Account] = rec
}

// PutBorrower replaces a borrower record (used for commit and rollback).
func (s *Store) PutBorrower(rec *BorrowerRecord) {
	s.borrowers[rec.Account] = rec
}

// Pool returns the mutable pool state.
func (s *Store) Pool() *PoolState {
	return &s.pool
}

// SumSupplied returns the sum of AmountSupplied across all lender records.
func (s *Store) SumSupplied() int64 {
	var total int64
	for _, rec := range s.lenders {
		total += rec.AmountSupplied
	}
	return total
}

// ValidateConservation checks the pool conservation identity:
// TotalSupplied == Σ lender balances − outstanding principal + InterestCollected − FeesPaid.
func (s *Store) ValidateConservation() error {
	want := s.SumSupplied() - s.OutstandingPrincipal() + s.pool.InterestCollected - s.pool.FeesPaid
	if s.pool.TotalSupplied != want {
		return fmt.Errorf("conservation violated: pool=%d lenders=%d outstanding=%d interest=%d fees=%d",
			s.pool.TotalSupplied, s.SumSupplied(), s.OutstandingPrincipal(),
			s.pool.InterestCollected, s.pool.FeesPaid)
	}
	return nil
}

// OutstandingPrincipal sums AmountBorrowed across all borrower records.
func (s *Store) OutstandingPrincipal() int64 {
	var total int64
	for _, rec := range s.borrowers {
		total += rec.AmountBorrowed
	}
	return total
}

// ActiveLoans counts borrowers with outstanding principal.
func (s *Store) ActiveLoans() int {
	n := 0
	for _, rec := range s.borrowers {
		if rec.HasActiveLoan() {
			n++
		}
	}
	return n
}

// Snapshot returns deep copies of all records plus the pool state.
func (s *Store) Snapshot() ([]*LenderRecord, []*BorrowerRecord, PoolState) {
	lenders := make([]*LenderRecord, 0, len(s.lenders))
	for _, rec := range s.lenders {
		lenders = append(lenders, rec.Clone())
	}
	borrowers := make([]*BorrowerRecord, 0, len(s.borrowers))
	for _, rec := range s.borrowers {
		borrowers = append(borrowers, rec.Clone())
	}
	return lenders, borrowers, s.pool
}

// Restore replaces all state with the given records (snapshot recovery).
func (s *Store) Restore(lenders []*LenderRecord, borrowers []*BorrowerRecord, pool PoolState) {
	s.lenders = make(map[uuid.UUID]*LenderRecord, len(lenders))
	for _, rec := range lenders {
		s.lenders[rec.Account] = rec.Clone()
	}
	s.borrowers = make(map[uuid.UUID]*BorrowerRecord, len(borrowers))
	for _, rec := range borrowers {
		s.borrowers[rec.Account] = rec.Clone()
	}
	s.pool = pool
}
