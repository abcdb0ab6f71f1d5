package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotAuthorized signals a pull without sufficient prior approval.
	ErrNotAuthorized = errors.New("pull not authorized")

	// ErrInsufficientFunds signals a pull exceeding the source balance or a
	// push exceeding the pool's holdings.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Bank is an in-memory Mover for one asset. Accounts hold balances and grant
// pull allowances to the pool; the pool's own holdings are tracked as the
// reserve. Used by the demo deployment and tests; a production deployment
// substitutes an adapter over the real settlement rail.
//
// Thread-safe: minted and approved from API goroutines while the engine loop
// pulls and pushes.
type Bank struct {
	mu         sync.Mutex
	balances   map[uuid.UUID]int64
	allowances map[uuid.UUID]int64
	reserve    int64
}

func NewBank() *Bank {
	return &Bank{
		balances:   make(map[uuid.UUID]int64),
		allowances: make(map[uuid.UUID]int64),
	}
}

// Mint credits freshly created units to an account.
func (b *Bank) Mint(account uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("mint amount must be positive, got %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
	return nil
}

// Approve grants the pool permission to pull up to amount from the account.
// Replaces any previous allowance.
func (b *Bank) Approve(account uuid.UUID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("allowance must be non-negative, got %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[account] = amount
	return nil
}

// BalanceOf returns the account's balance.
func (b *Bank) BalanceOf(account uuid.UUID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}

// AllowanceOf returns the account's remaining pull allowance.
func (b *Bank) AllowanceOf(account uuid.UUID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowances[account]
}

// Reserve returns the pool's holdings.
func (b *Bank) Reserve() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reserve
}

// Pull moves amount from the account into the pool's holdings, consuming
// allowance.
func (b *Bank) Pull(ctx context.Context, from uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("pull amount must be positive, got %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allowances[from] < amount {
		return fmt.Errorf("pull %d from %s: %w (allowance=%d)", amount, from, ErrNotAuthorized, b.allowances[from])
	}
	if b.balances[from] < amount {
		return fmt.Errorf("pull %d from %s: %w (balance=%d)", amount, from, ErrInsufficientFunds, b.balances[from])
	}

	b.allowances[from] -= amount
	b.balances[from] -= amount
	b.reserve += amount
	return nil
}

// Push moves amount from the pool's holdings to the account.
func (b *Bank) Push(ctx context.Context, to uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("push amount must be positive, got %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reserve < amount {
		return fmt.Errorf("push %d to %s: %w (reserve=%d)", amount, to, ErrInsufficientFunds, b.reserve)
	}

	b.reserve -= amount
	b.balances[to] += amount
	return nil
}
