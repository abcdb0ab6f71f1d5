package event

import (
	"time"

	"github.com/google/uuid"
)

// Op discriminates the mutating ledger operations.
type Op int32

const (
	OpUnknown Op = iota
	OpDeposit
	OpWithdraw
	OpCollateralDeposit
	OpBorrow
	OpRepay
	OpLiquidate
)

func (op Op) String() string {
	switch op {
	case OpDeposit:
		return "Deposit"
	case OpWithdraw:
		return "Withdraw"
	case OpCollateralDeposit:
		return "CollateralDeposit"
	case OpBorrow:
		return "Borrow"
	case OpRepay:
		return "Repay"
	case OpLiquidate:
		return "Liquidate"
	default:
		return "Unknown"
	}
}

// MarshalText serializes the op by name so notifications carry a readable
// op field in JSON.
func (op Op) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

func (op *Op) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Deposit":
		*op = OpDeposit
	case "Withdraw":
		*op = OpWithdraw
	case "CollateralDeposit":
		*op = OpCollateralDeposit
	case "Borrow":
		*op = OpBorrow
	case "Repay":
		*op = OpRepay
	case "Liquidate":
		*op = OpLiquidate
	default:
		*op = OpUnknown
	}
	return nil
}

// Notification is the structured record emitted after every successful
// mutating operation. It exists for observability and audit, never for
// control flow.
type Notification struct {
	// Sequence is the global monotonic sequence assigned by the engine.
	Sequence int64 `json:"sequence"`

	Op Op `json:"op"`

	// Account is the primary account acted on: the lender for supply
	// operations, the borrower for credit operations.
	Account uuid.UUID `json:"account"`

	// Counterparty is set for liquidations (the liquidator) and for full
	// repayments (the fee recipient); zero otherwise.
	Counterparty uuid.UUID `json:"counterparty,omitempty"`

	// Amount is the principal amount moved: deposit/withdraw amount,
	// principal drawn, principal repaid, or debt repaid by the liquidator.
	Amount int64 `json:"amount"`

	// Interest is the interest charged on a repayment; zero otherwise.
	Interest int64 `json:"interest,omitempty"`

	// Fee is the protocol fee paid to the fee recipient on loan closure.
	Fee int64 `json:"fee,omitempty"`

	// Collateral is the borrower's collateral balance after the operation,
	// or the amount seized on liquidation.
	Collateral int64 `json:"collateral,omitempty"`

	// LoanClosed marks a repayment that zeroed the outstanding principal.
	LoanClosed bool `json:"loan_closed,omitempty"`

	// Timestamp is the operation time, read once from the engine clock.
	Timestamp time.Time `json:"timestamp"`
}
