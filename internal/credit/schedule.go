package credit

import "time"

// BasisPointDivisor converts basis points to a fraction: 10000 bp = 100%.
const BasisPointDivisor = 10_000

// Day is the fixed day length used for loan-age bucketing.
const Day = 24 * time.Hour

// Quarter bracket boundaries in days of loan age.
const (
	QuarterDays  = 90
	MaturityDays = 365
)

// RateBracket is one 90-day bucket of the interest/fee schedule.
type RateBracket struct {
	// MaxAgeDays is the exclusive upper bound of the bracket in days.
	MaxAgeDays int64
	// InterestBps is the simple interest rate applied over the current
	// outstanding principal, in basis points.
	InterestBps int64
	// FeeBps is the protocol fee rate applied over the interest on full
	// closure, in basis points.
	FeeBps int64
}

// Schedule holds the fixed quarterly interest/fee brackets. Loans older than
// the last bracket stay in it for rate purposes; maturity-based liquidation is
// handled separately.
type Schedule struct {
	brackets []RateBracket
}

// DefaultSchedule returns the standard four-quarter schedule:
// Q1 450/100 bp, Q2 800/150, Q3 1050/200, Q4 1300/250.
func DefaultSchedule() Schedule {
	return Schedule{brackets: []RateBracket{
		{MaxAgeDays: 90, InterestBps: 450, FeeBps: 100},
		{MaxAgeDays: 180, InterestBps: 800, FeeBps: 150},
		{MaxAgeDays: 270, InterestBps: 1050, FeeBps: 200},
		{MaxAgeDays: 365, InterestBps: 1300, FeeBps: 250},
	}}
}

// BracketFor returns the bracket covering a loan of the given age.
func (s Schedule) BracketFor(age time.Duration) RateBracket {
	days := int64(age / Day)
	for _, b := range s.brackets {
		if days < b.MaxAgeDays {
			return b
		}
	}
	// Past the final bracket the loan keeps the final bracket's rates.
	return s.brackets[len(s.brackets)-1]
}

// Interest computes the simple, non-compounding interest owed on the current
// outstanding principal for a loan of the given age. Integer division
// truncates toward zero.
func (s Schedule) Interest(principal int64, age time.Duration) int64 {
	if principal <= 0 {
		return 0
	}
	return principal * s.BracketFor(age).InterestBps / BasisPointDivisor
}

// ClosureFee computes the protocol fee charged on the interest when a loan is
// fully repaid. Partial repayments never pay the fee.
func (s Schedule) ClosureFee(interest int64, age time.Duration) int64 {
	if interest <= 0 {
		return 0
	}
	return interest * s.BracketFor(age).FeeBps / BasisPointDivisor
}

// MaxBorrowable returns the collateral-backed borrow capacity for the given
// collateral and pool collateral ratio.
func MaxBorrowable(collateral, collateralRatioBps int64) int64 {
	return collateral * collateralRatioBps / BasisPointDivisor
}
