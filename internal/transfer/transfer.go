// Package transfer defines the value-transfer collaborator used by the ledger
// engine to move assets between accounts and the pool. The engine never
// touches balances directly: it asks a Mover to pull funds in or push funds
// out, and unwinds its own state if the Mover fails.
package transfer

import (
	"context"

	"github.com/google/uuid"
)

// Mover moves one asset between external accounts and the pool's holdings.
// Pull requires prior authorization by the source account; a failed pull or
// push must return a distinguishable error, never a silent no-op.
type Mover interface {
	// Pull moves amount from the account into the pool's holdings.
	Pull(ctx context.Context, from uuid.UUID, amount int64) error

	// Push moves amount from the pool's holdings to the account.
	Push(ctx context.Context, to uuid.UUID, amount int64) error
}
