package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"LoanLedger/internal/credit"
	"LoanLedger/internal/engine"
	"LoanLedger/internal/event"
	"LoanLedger/internal/ledger"
	"LoanLedger/internal/transfer"
)

// testClock is advanced explicitly between operations. Command submission
// synchronizes through a channel, so the loop always observes the latest
// value.
type testClock struct {
	now time.Time
}

type env struct {
	eng          *engine.Engine
	base         *transfer.Bank
	collateral   *transfer.Bank
	clock        *testClock
	notifs       chan *event.Notification
	feeRecipient uuid.UUID
}

func newEnv(t *testing.T, ratioBps int64) *env {
	t.Helper()
	return newEnvWithMovers(t, ratioBps, nil, nil)
}

// newEnvWithMovers lets a test wrap or replace the asset movers. A nil
// mover falls back to the in-process bank.
func newEnvWithMovers(t *testing.T, ratioBps int64, base, collateral transfer.Mover) *env {
	t.Helper()

	e := &env{
		base:         transfer.NewBank(),
		collateral:   transfer.NewBank(),
		clock:        &testClock{now: time.Unix(1_700_000_000, 0).UTC()},
		notifs:       make(chan *event.Notification, 128),
		feeRecipient: uuid.New(),
	}
	if base == nil {
		base = e.base
	}
	if collateral == nil {
		collateral = e.collateral
	}

	eng, err := engine.New(
		engine.Config{
			Owner:              uuid.New(),
			CollateralRatioBps: ratioBps,
			FeeRecipient:       e.feeRecipient,
			Schedule:           credit.DefaultSchedule(),
		},
		base, collateral,
		nil, e.notifs,
		engine.WithClock(func() time.Time { return e.clock.now }),
	)
	if err != nil {
		t.Fatalf("engine init: %v", err)
	}
	e.eng = eng

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(cancel)

	return e
}

func (e *env) advance(d time.Duration) {
	e.clock.now = e.clock.now.Add(d)
}

// fundBase mints base asset and approves the pool to pull it.
func (e *env) fundBase(t *testing.T, account uuid.UUID, amount int64) {
	t.Helper()
	if err := e.base.Mint(account, amount); err != nil {
		t.Fatalf("mint base: %v", err)
	}
	if err := e.base.Approve(account, amount); err != nil {
		t.Fatalf("approve base: %v", err)
	}
}

func (e *env) fundCollateral(t *testing.T, account uuid.UUID, amount int64) {
	t.Helper()
	if err := e.collateral.Mint(account, amount); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	if err := e.collateral.Approve(account, amount); err != nil {
		t.Fatalf("approve collateral: %v", err)
	}
}

// supply funds a fresh lender and deposits into the pool.
func (e *env) supply(t *testing.T, amount int64) uuid.UUID {
	t.Helper()
	lender := uuid.New()
	e.fundBase(t, lender, amount)
	if err := e.eng.Deposit(context.Background(), lender, amount); err != nil {
		t.Fatalf("supply %d: %v", amount, err)
	}
	return lender
}

// openLoan funds a borrower with collateral and draws principal.
func (e *env) openLoan(t *testing.T, collateral, principal int64) uuid.UUID {
	t.Helper()
	borrower := uuid.New()
	e.fundCollateral(t, borrower, collateral)
	ctx := context.Background()
	if err := e.eng.DepositCollateral(ctx, borrower, collateral); err != nil {
		t.Fatalf("deposit collateral %d: %v", collateral, err)
	}
	if err := e.eng.Borrow(ctx, borrower, principal); err != nil {
		t.Fatalf("borrow %d: %v", principal, err)
	}
	return borrower
}

func (e *env) lastNotif(t *testing.T) *event.Notification {
	t.Helper()
	var last *event.Notification
	for {
		select {
		case n := <-e.notifs:
			last = n
		default:
			if last == nil {
				t.Fatal("no notification emitted")
			}
			return last
		}
	}
}

func (e *env) drainNotifs() {
	for {
		select {
		case <-e.notifs:
		default:
			return
		}
	}
}

// --- supply ---

func TestDepositWithdrawRoundTrip(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	lender := uuid.New()
	e.fundBase(t, lender, 1000)

	if err := e.eng.Deposit(ctx, lender, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	balance, err := e.eng.LenderBalance(ctx, lender)
	if err != nil || balance != 1000 {
		t.Fatalf("lender balance: got %d (err=%v), want 1000", balance, err)
	}
	pool, _ := e.eng.PoolState(ctx)
	if pool.TotalSupplied != 1000 {
		t.Errorf("pool after deposit: got %d, want 1000", pool.TotalSupplied)
	}
	if got := e.base.BalanceOf(lender); got != 0 {
		t.Errorf("lender bank balance after deposit: got %d, want 0", got)
	}

	if err := e.eng.Withdraw(ctx, lender, 1000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	balance, _ = e.eng.LenderBalance(ctx, lender)
	if balance != 0 {
		t.Errorf("lender balance after withdraw: got %d, want 0", balance)
	}
	pool, _ = e.eng.PoolState(ctx)
	if pool.TotalSupplied != 0 {
		t.Errorf("pool after withdraw: got %d, want 0", pool.TotalSupplied)
	}
	if got := e.base.BalanceOf(lender); got != 1000 {
		t.Errorf("lender bank balance after withdraw: got %d, want 1000", got)
	}
}

func TestSupplyInvariantAcrossLenders(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	a := e.supply(t, 300)
	b := e.supply(t, 700)
	if err := e.eng.Withdraw(ctx, a, 100); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	balA, _ := e.eng.LenderBalance(ctx, a)
	balB, _ := e.eng.LenderBalance(ctx, b)
	pool, _ := e.eng.PoolState(ctx)
	if balA+balB != pool.TotalSupplied {
		t.Errorf("sum of lender balances %d != pool %d", balA+balB, pool.TotalSupplied)
	}
}

func TestZeroAmountsRejected(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()
	account := uuid.New()

	ops := []struct {
		name string
		call func() error
	}{
		{"deposit", func() error { return e.eng.Deposit(ctx, account, 0) }},
		{"withdraw", func() error { return e.eng.Withdraw(ctx, account, 0) }},
		{"depositCollateral", func() error { return e.eng.DepositCollateral(ctx, account, 0) }},
		{"borrow", func() error { return e.eng.Borrow(ctx, account, 0) }},
		{"repay", func() error { return e.eng.Repay(ctx, account, 0) }},
	}

	for _, op := range ops {
		if err := op.call(); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("%s(0): got %v, want ErrInvalidAmount", op.name, err)
		}
	}

	pool, _ := e.eng.PoolState(ctx)
	if pool.TotalSupplied != 0 {
		t.Errorf("zero-amount ops changed pool: %d", pool.TotalSupplied)
	}
}

func TestWithdrawBounds(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	lender := e.supply(t, 1000)

	if err := e.eng.Withdraw(ctx, lender, 1500); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("withdraw beyond balance: got %v, want ErrInsufficientBalance", err)
	}
	if err := e.eng.Withdraw(ctx, uuid.New(), 1); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("withdraw from unknown account: got %v, want ErrInsufficientBalance", err)
	}

	// Pool lends out 800; the lender still has a 1000 claim but only 200
	// of liquidity remains.
	e.openLoan(t, 2000, 800)
	if err := e.eng.Withdraw(ctx, lender, 500); !errors.Is(err, ledger.ErrInsufficientLiquidity) {
		t.Errorf("withdraw beyond liquidity: got %v, want ErrInsufficientLiquidity", err)
	}
	if err := e.eng.Withdraw(ctx, lender, 200); err != nil {
		t.Errorf("withdraw within liquidity: %v", err)
	}
}

// --- borrow ---

func TestBorrowLimit(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)

	borrower := uuid.New()
	e.fundCollateral(t, borrower, 1000)
	if err := e.eng.DepositCollateral(ctx, borrower, 1000); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}

	// 1000 * 8000 / 10000 = 800
	if err := e.eng.Borrow(ctx, borrower, 800); err != nil {
		t.Fatalf("borrow at limit: %v", err)
	}
	if err := e.eng.Borrow(ctx, borrower, 1); !errors.Is(err, ledger.ErrCollateralLimitExceeded) {
		t.Errorf("borrow past limit: got %v, want ErrCollateralLimitExceeded", err)
	}

	if got := e.base.BalanceOf(borrower); got != 800 {
		t.Errorf("borrower bank balance: got %d, want 800", got)
	}
	rec, _ := e.eng.BorrowerRecord(ctx, borrower)
	if rec.AmountBorrowed != 800 || rec.InitialBorrowAmount != 800 {
		t.Errorf("record: borrowed=%d initial=%d, want 800/800", rec.AmountBorrowed, rec.InitialBorrowAmount)
	}
}

func TestBorrowWithoutCollateral(t *testing.T) {
	e := newEnv(t, 8000)
	e.supply(t, 1000)

	if err := e.eng.Borrow(context.Background(), uuid.New(), 100); !errors.Is(err, ledger.ErrCollateralLimitExceeded) {
		t.Errorf("borrow with no collateral: got %v, want ErrCollateralLimitExceeded", err)
	}
}

func TestBorrowInsufficientLiquidity(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)

	borrower := uuid.New()
	e.fundCollateral(t, borrower, 10_000)
	if err := e.eng.DepositCollateral(ctx, borrower, 10_000); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}

	if err := e.eng.Borrow(ctx, borrower, 2000); !errors.Is(err, ledger.ErrInsufficientLiquidity) {
		t.Errorf("borrow beyond pool: got %v, want ErrInsufficientLiquidity", err)
	}
}

// --- repay ---

func TestRepayFullClosureSecondQuarter(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)
	borrower := e.openLoan(t, 1000, 800)
	e.drainNotifs()

	// Day 95: Q2 rates, 8% interest, 1.5% closure fee.
	e.advance(95 * 24 * time.Hour)

	// Repaying 800 pulls 800 + 64 interest.
	e.fundBase(t, borrower, 64)
	e.base.Approve(borrower, 864)
	if err := e.eng.Repay(ctx, borrower, 800); err != nil {
		t.Fatalf("repay: %v", err)
	}

	if got := e.base.BalanceOf(borrower); got != 0 {
		t.Errorf("borrower balance after repay: got %d, want 0", got)
	}

	// Fee is 64 * 150 / 10000 = 0 after truncation.
	if got := e.base.BalanceOf(e.feeRecipient); got != 0 {
		t.Errorf("fee recipient balance: got %d, want 0", got)
	}

	pool, _ := e.eng.PoolState(ctx)
	if pool.TotalSupplied != 1064 {
		t.Errorf("pool after closure: got %d, want 1064", pool.TotalSupplied)
	}
	if pool.InterestCollected != 64 {
		t.Errorf("interest collected: got %d, want 64", pool.InterestCollected)
	}

	rec, _ := e.eng.BorrowerRecord(ctx, borrower)
	if rec.AmountBorrowed != 0 {
		t.Errorf("outstanding after closure: got %d, want 0", rec.AmountBorrowed)
	}
	if !rec.BorrowTimestamp.IsZero() {
		t.Error("borrow timestamp not reset on closure")
	}
	if rec.AmountRepaid != 800 || rec.InitialBorrowAmount != 800 {
		t.Errorf("lifetime counters: repaid=%d initial=%d, want 800/800", rec.AmountRepaid, rec.InitialBorrowAmount)
	}

	n := e.lastNotif(t)
	if n.Op != event.OpRepay || n.Amount != 800 || n.Interest != 64 || n.Fee != 0 || !n.LoanClosed {
		t.Errorf("notification: %+v", n)
	}
}

func TestRepayPartialChargesNoFee(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)
	borrower := e.openLoan(t, 1000, 800)

	e.advance(95 * 24 * time.Hour)

	// Interest is on the full outstanding principal (64), even for a
	// partial repayment of 400.
	e.fundBase(t, borrower, 64)
	e.base.Approve(borrower, 464)
	if err := e.eng.Repay(ctx, borrower, 400); err != nil {
		t.Fatalf("partial repay: %v", err)
	}

	if got := e.base.BalanceOf(e.feeRecipient); got != 0 {
		t.Errorf("partial repayment paid a fee: %d", got)
	}
	pool, _ := e.eng.PoolState(ctx)
	if pool.FeesPaid != 0 {
		t.Errorf("pool fees after partial repay: got %d, want 0", pool.FeesPaid)
	}

	rec, _ := e.eng.BorrowerRecord(ctx, borrower)
	if rec.AmountBorrowed != 400 || rec.AmountRepaid != 400 {
		t.Errorf("record: outstanding=%d repaid=%d, want 400/400", rec.AmountBorrowed, rec.AmountRepaid)
	}
	if rec.BorrowTimestamp.IsZero() {
		t.Error("partial repayment reset the borrow timestamp")
	}
}

func TestClosureFeePaidToRecipient(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 100_000)
	borrower := e.openLoan(t, 200_000, 100_000)

	e.advance(95 * 24 * time.Hour)

	// Q2: interest 8000, closure fee 8000 * 150 / 10000 = 120.
	e.fundBase(t, borrower, 8000)
	e.base.Approve(borrower, 108_000)
	if err := e.eng.Repay(ctx, borrower, 100_000); err != nil {
		t.Fatalf("repay: %v", err)
	}

	if got := e.base.BalanceOf(e.feeRecipient); got != 120 {
		t.Errorf("fee recipient balance: got %d, want 120", got)
	}

	pool, _ := e.eng.PoolState(ctx)
	if pool.TotalSupplied != 107_880 {
		t.Errorf("pool: got %d, want 107880", pool.TotalSupplied)
	}
	if pool.FeesPaid != 120 {
		t.Errorf("fees paid: got %d, want 120", pool.FeesPaid)
	}
}

func TestRepayMisuse(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)

	if err := e.eng.Repay(ctx, uuid.New(), 100); !errors.Is(err, ledger.ErrNoActiveLoan) {
		t.Errorf("repay without loan: got %v, want ErrNoActiveLoan", err)
	}

	borrower := e.openLoan(t, 1000, 500)
	if err := e.eng.Repay(ctx, borrower, 501); !errors.Is(err, ledger.ErrOverRepayment) {
		t.Errorf("over-repayment: got %v, want ErrOverRepayment", err)
	}
}

// --- collateral quirks ---

func TestCollateralDepositStampsBorrowTimestamp(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	borrower := uuid.New()
	e.fundCollateral(t, borrower, 500)
	if err := e.eng.DepositCollateral(ctx, borrower, 500); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}

	// No loan exists, yet the timestamp is stamped. The next borrow
	// overwrites it.
	rec, _ := e.eng.BorrowerRecord(ctx, borrower)
	if !rec.BorrowTimestamp.Equal(e.clock.now) {
		t.Errorf("borrow timestamp: got %v, want %v", rec.BorrowTimestamp, e.clock.now)
	}
	if rec.HasActiveLoan() {
		t.Error("collateral deposit opened a loan")
	}
}

func TestLifetimeCountersPersistAcrossCycles(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 10_000)
	borrower := e.openLoan(t, 1000, 800)

	// Close the first cycle same-day (Q1: interest 800 * 450 / 10000 = 36).
	e.fundBase(t, borrower, 36)
	e.base.Approve(borrower, 836)
	if err := e.eng.Repay(ctx, borrower, 800); err != nil {
		t.Fatalf("repay: %v", err)
	}

	// Collateral is still locked; a second cycle opens against it.
	if err := e.eng.Borrow(ctx, borrower, 100); err != nil {
		t.Fatalf("second borrow: %v", err)
	}

	rec, _ := e.eng.BorrowerRecord(ctx, borrower)
	if rec.InitialBorrowAmount != 900 {
		t.Errorf("initial borrow amount: got %d, want 900 (accumulates across cycles)", rec.InitialBorrowAmount)
	}
	if rec.AmountRepaid != 800 {
		t.Errorf("amount repaid: got %d, want 800 (persists across cycles)", rec.AmountRepaid)
	}
}

// --- liquidation ---

func TestLiquidateByMaturity(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)
	borrower := e.openLoan(t, 1000, 800)
	e.drainNotifs()

	e.advance(370 * 24 * time.Hour)

	eligible, err := e.eng.IsLiquidatable(ctx, borrower)
	if err != nil || !eligible {
		t.Fatalf("past maturity should be liquidatable (eligible=%v err=%v)", eligible, err)
	}

	liquidator := uuid.New()
	e.fundBase(t, liquidator, 800)
	if err := e.eng.Liquidate(ctx, liquidator, borrower); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	if got := e.collateral.BalanceOf(liquidator); got != 1000 {
		t.Errorf("seized collateral: got %d, want 1000", got)
	}
	if got := e.base.BalanceOf(liquidator); got != 0 {
		t.Errorf("liquidator base balance: got %d, want 0 (paid the debt)", got)
	}

	rec, _ := e.eng.BorrowerRecord(ctx, borrower)
	if rec.AmountBorrowed != 0 || rec.CollateralDeposited != 0 || !rec.BorrowTimestamp.IsZero() {
		t.Errorf("position not zeroed: %+v", rec)
	}
	if rec.InitialBorrowAmount != 800 || rec.AmountRepaid != 0 {
		t.Errorf("lifetime counters reset by liquidation: %+v", rec)
	}

	pool, _ := e.eng.PoolState(ctx)
	if pool.TotalSupplied != 1000 {
		t.Errorf("pool after liquidation: got %d, want 1000", pool.TotalSupplied)
	}

	n := e.lastNotif(t)
	if n.Op != event.OpLiquidate || n.Amount != 800 || n.Collateral != 1000 || n.Counterparty != liquidator {
		t.Errorf("notification: %+v", n)
	}
}

func TestLiquidateRepaymentDiscipline(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 10_000)
	borrower := e.openLoan(t, 1000, 800)

	// Day 200: collateral ratio is healthy (12500 bp), but under 25% of
	// lifetime principal has been repaid.
	e.advance(200 * 24 * time.Hour)

	eligible, _ := e.eng.IsLiquidatable(ctx, borrower)
	if !eligible {
		t.Fatal("under-repaid loan in (180,270] should be liquidatable")
	}

	// Repay 200 (exactly 25%): interest in Q3 is 800 * 1050 / 10000 = 84.
	e.fundBase(t, borrower, 84)
	e.base.Approve(borrower, 284)
	if err := e.eng.Repay(ctx, borrower, 200); err != nil {
		t.Fatalf("repay: %v", err)
	}

	eligible, _ = e.eng.IsLiquidatable(ctx, borrower)
	if eligible {
		t.Error("loan with 25% repaid in (180,270] should not be liquidatable")
	}

	// Day 300: the (270,365] window requires 50% repaid; 25% is not enough.
	e.advance(100 * 24 * time.Hour)
	eligible, _ = e.eng.IsLiquidatable(ctx, borrower)
	if !eligible {
		t.Error("under-repaid loan in (270,365] should be liquidatable")
	}
}

func TestLiquidateHealthyPositionFails(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)
	borrower := e.openLoan(t, 1000, 800)

	e.advance(10 * 24 * time.Hour)

	if err := e.eng.Liquidate(ctx, uuid.New(), borrower); !errors.Is(err, ledger.ErrNotLiquidatable) {
		t.Errorf("liquidating healthy position: got %v, want ErrNotLiquidatable", err)
	}
	if err := e.eng.Liquidate(ctx, uuid.New(), uuid.New()); !errors.Is(err, ledger.ErrNoActiveLoan) {
		t.Errorf("liquidating unknown account: got %v, want ErrNoActiveLoan", err)
	}
}

// --- atomicity ---

func TestTransferFailureRollsBack(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	// Deposit without bank approval: the pull fails after state was
	// staged, and everything unwinds.
	account := uuid.New()
	e.base.Mint(account, 1000)

	err := e.eng.Deposit(ctx, account, 1000)
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("deposit without approval: got %v, want ErrTransferFailed", err)
	}

	balance, _ := e.eng.LenderBalance(ctx, account)
	if balance != 0 {
		t.Errorf("lender balance after failed deposit: got %d, want 0", balance)
	}
	pool, _ := e.eng.PoolState(ctx)
	if pool.TotalSupplied != 0 {
		t.Errorf("pool after failed deposit: got %d, want 0", pool.TotalSupplied)
	}
}

func TestRepayTransferFailureRollsBack(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)
	borrower := e.openLoan(t, 1000, 800)

	// Approval covers the principal but not the interest.
	e.base.Approve(borrower, 800)
	e.advance(95 * 24 * time.Hour)

	err := e.eng.Repay(ctx, borrower, 800)
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("repay with short approval: got %v, want ErrTransferFailed", err)
	}

	rec, _ := e.eng.BorrowerRecord(ctx, borrower)
	if rec.AmountBorrowed != 800 || rec.AmountRepaid != 0 {
		t.Errorf("record changed by failed repay: %+v", rec)
	}
	pool, _ := e.eng.PoolState(ctx)
	if pool.TotalSupplied != 200 || pool.InterestCollected != 0 {
		t.Errorf("pool changed by failed repay: %+v", pool)
	}
}

// reentrantMover calls back into the engine mid-transfer, as a hostile
// asset ledger would.
type reentrantMover struct {
	eng     *engine.Engine
	inner   transfer.Mover
	nested  error
	entered bool
}

func (m *reentrantMover) Pull(ctx context.Context, from uuid.UUID, amount int64) error {
	if !m.entered {
		m.entered = true
		m.nested = m.eng.Deposit(ctx, from, 1)
	}
	return m.inner.Pull(ctx, from, amount)
}

func (m *reentrantMover) Push(ctx context.Context, to uuid.UUID, amount int64) error {
	return m.inner.Push(ctx, to, amount)
}

func TestReentrantMoverRejected(t *testing.T) {
	mover := &reentrantMover{}
	e := newEnvWithMovers(t, 8000, mover, nil)
	mover.eng = e.eng
	mover.inner = e.base

	account := uuid.New()
	e.fundBase(t, account, 1000)

	if err := e.eng.Deposit(context.Background(), account, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if !errors.Is(mover.nested, ledger.ErrReentrantCall) {
		t.Errorf("nested call: got %v, want ErrReentrantCall", mover.nested)
	}

	// The outer deposit applied exactly once.
	balance, _ := e.eng.LenderBalance(context.Background(), account)
	if balance != 1000 {
		t.Errorf("lender balance: got %d, want 1000", balance)
	}
}

// --- read surface ---

func TestCollateralRatioSentinel(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	ratio, err := e.eng.CollateralRatio(ctx, uuid.New())
	if err != nil || ratio != engine.InfiniteCollateralRatio {
		t.Errorf("ratio without loan: got %d (err=%v), want sentinel", ratio, err)
	}

	e.supply(t, 1000)
	borrower := e.openLoan(t, 1000, 800)

	ratio, _ = e.eng.CollateralRatio(ctx, borrower)
	if ratio != 12_500 {
		t.Errorf("ratio: got %d, want 12500", ratio)
	}
}

func TestTotalDebt(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	debt, err := e.eng.TotalDebt(ctx, uuid.New())
	if err != nil || debt != 0 {
		t.Errorf("debt without loan: got %d (err=%v), want 0", debt, err)
	}

	e.supply(t, 1000)
	borrower := e.openLoan(t, 1000, 800)

	// Q1: 800 + 800 * 450 / 10000 = 836
	debt, _ = e.eng.TotalDebt(ctx, borrower)
	if debt != 836 {
		t.Errorf("debt in Q1: got %d, want 836", debt)
	}

	e.advance(95 * 24 * time.Hour)
	debt, _ = e.eng.TotalDebt(ctx, borrower)
	if debt != 864 {
		t.Errorf("debt in Q2: got %d, want 864", debt)
	}
}

// --- snapshot ---

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	e := newEnv(t, 8000)
	ctx := context.Background()

	e.supply(t, 1000)
	borrower := e.openLoan(t, 1000, 800)

	snap, err := e.eng.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Sequence == 0 {
		t.Error("snapshot sequence is zero after operations")
	}

	// A fresh engine restored from the snapshot serves the same state.
	// Restore runs before the loop starts.
	restored, err := engine.New(
		engine.Config{
			Owner:              uuid.New(),
			CollateralRatioBps: 8000,
			FeeRecipient:       uuid.New(),
			Schedule:           credit.DefaultSchedule(),
		},
		transfer.NewBank(), transfer.NewBank(), nil, nil,
	)
	if err != nil {
		t.Fatalf("engine init: %v", err)
	}
	restored.Restore(snap)
	runCtx, cancel := context.WithCancel(context.Background())
	go restored.Run(runCtx)
	t.Cleanup(cancel)

	rec, _ := restored.BorrowerRecord(ctx, borrower)
	if rec.AmountBorrowed != 800 || rec.CollateralDeposited != 1000 {
		t.Errorf("restored record: %+v", rec)
	}
	pool, _ := restored.PoolState(ctx)
	if pool.TotalSupplied != 200 {
		t.Errorf("restored pool: got %d, want 200", pool.TotalSupplied)
	}
	seq, _ := restored.Sequence(ctx)
	if seq != snap.Sequence {
		t.Errorf("restored sequence: got %d, want %d", seq, snap.Sequence)
	}
}

func TestConfigValidation(t *testing.T) {
	for _, ratio := range []int64{0, 4999, 9501} {
		_, err := engine.New(
			engine.Config{
				CollateralRatioBps: ratio,
				FeeRecipient:       uuid.New(),
				Schedule:           credit.DefaultSchedule(),
			},
			transfer.NewBank(), transfer.NewBank(), nil, nil,
		)
		if err == nil {
			t.Errorf("ratio %d accepted, want rejection", ratio)
		}
	}

	_, err := engine.New(
		engine.Config{
			CollateralRatioBps: 5000,
			FeeRecipient:       uuid.New(),
			Schedule:           credit.DefaultSchedule(),
		},
		transfer.NewBank(), transfer.NewBank(), nil, nil,
	)
	if err != nil {
		t.Errorf("ratio 5000 rejected: %v", err)
	}
}
