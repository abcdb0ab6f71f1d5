package credit_test

import (
	"testing"
	"time"

	"LoanLedger/internal/credit"
)

func days(n int64) time.Duration {
	return time.Duration(n) * credit.Day
}

func TestBracketBoundaries(t *testing.T) {
	s := credit.DefaultSchedule()

	cases := []struct {
		name        string
		age         time.Duration
		interestBps int64
		feeBps      int64
	}{
		{"day 0", 0, 450, 100},
		{"day 89", days(89), 450, 100},
		{"day 89 end", days(90) - time.Second, 450, 100},
		{"day 90", days(90), 800, 150},
		{"day 179", days(179), 800, 150},
		{"day 180", days(180), 1050, 200},
		{"day 269", days(269), 1050, 200},
		{"day 270", days(270), 1300, 250},
		{"day 364", days(364), 1300, 250},
		{"day 365", days(365), 1300, 250},
		{"day 400 stays in last bracket", days(400), 1300, 250},
		{"two years", days(730), 1300, 250},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := s.BracketFor(tc.age)
			if b.InterestBps != tc.interestBps {
				t.Errorf("interest: got %d bp, want %d bp", b.InterestBps, tc.interestBps)
			}
			if b.FeeBps != tc.feeBps {
				t.Errorf("fee: got %d bp, want %d bp", b.FeeBps, tc.feeBps)
			}
		})
	}
}

func TestInterestTruncates(t *testing.T) {
	s := credit.DefaultSchedule()

	// 800 at 8% (Q2) = 64 exactly
	if got := s.Interest(800, days(95)); got != 64 {
		t.Errorf("interest on 800 at day 95: got %d, want 64", got)
	}

	// 99 at 4.5% (Q1) = 4.455, truncated to 4
	if got := s.Interest(99, days(10)); got != 4 {
		t.Errorf("interest on 99 at day 10: got %d, want 4", got)
	}

	// Zero principal accrues nothing
	if got := s.Interest(0, days(95)); got != 0 {
		t.Errorf("interest on 0: got %d, want 0", got)
	}
}

func TestClosureFeeTruncates(t *testing.T) {
	s := credit.DefaultSchedule()

	// 64 interest at 1.5% (Q2) = 0.96, truncated to 0
	if got := s.ClosureFee(64, days(95)); got != 0 {
		t.Errorf("fee on 64 at day 95: got %d, want 0", got)
	}

	// 8000 interest at 1.5% (Q2) = 120
	if got := s.ClosureFee(8000, days(95)); got != 120 {
		t.Errorf("fee on 8000 at day 95: got %d, want 120", got)
	}

	// Q4 rate: 8000 at 2.5% = 200
	if got := s.ClosureFee(8000, days(300)); got != 200 {
		t.Errorf("fee on 8000 at day 300: got %d, want 200", got)
	}
}

func TestMaxBorrowable(t *testing.T) {
	if got := credit.MaxBorrowable(1000, 8000); got != 800 {
		t.Errorf("1000 collateral at 8000 bp: got %d, want 800", got)
	}
	// 999 * 8000 / 10000 = 799.2, truncated
	if got := credit.MaxBorrowable(999, 8000); got != 799 {
		t.Errorf("999 collateral at 8000 bp: got %d, want 799", got)
	}
	if got := credit.MaxBorrowable(0, 8000); got != 0 {
		t.Errorf("zero collateral: got %d, want 0", got)
	}
}
