package ledger

import "errors"

// Sentinel errors for every way a ledger operation can fail. All are local,
// synchronous, and non-retryable; the caller decides whether to retry with
// corrected parameters. Handlers wrap these with %w so callers can match
// with errors.Is.
var (
	// ErrInvalidAmount signals a zero or otherwise malformed amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance signals a withdrawal exceeding the recorded balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientLiquidity signals a borrow exceeding pool liquidity.
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")

	// ErrCollateralLimitExceeded signals a borrow exceeding collateral-backed capacity.
	ErrCollateralLimitExceeded = errors.New("collateral limit exceeded")

	// ErrNoActiveLoan signals repay or liquidate against a borrower with no outstanding principal.
	ErrNoActiveLoan = errors.New("no active loan")

	// ErrOverRepayment signals a repayment exceeding the outstanding principal.
	ErrOverRepayment = errors.New("repayment exceeds outstanding principal")

	// ErrNotLiquidatable signals a liquidation attempt against a healthy position.
	ErrNotLiquidatable = errors.New("position not liquidatable")

	// ErrTransferFailed signals that the external asset movement failed.
	// State mutations are fully unwound before this is returned.
	ErrTransferFailed = errors.New("asset transfer failed")

	// ErrReentrantCall signals that the transfer collaborator tried to call
	// back into the ledger while an operation was in flight.
	ErrReentrantCall = errors.New("reentrant ledger call")
)
