package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/grantmike/EIPs/pkg/ledger"
	"github.com/grantmike/EIPs/pkg/types"
)

// Ensure MemoryLedger implements ledger.Ledger
var _ ledger.Ledger = (*MemoryLedger)(nil)

// MemoryLedger is an in-memory balance ledger. Balances are deep-copied on
// the way in and out so callers cannot mutate internal state through a
// shared *big.Int.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// NewMemoryLedger creates an empty ledger; every account starts at zero.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[common.Address]*big.Int),
	}
}

// Transfer debits amount from one account and credits it to another as a
// single step under the ledger lock.
func (l *MemoryLedger) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer amount must be non-negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance := l.balances[from]
	if fromBalance == nil {
		fromBalance = new(big.Int)
	}

	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("balance %s below transfer amount %s: %w", fromBalance, amount, types.ErrInsufficientFunds)
	}

	// Self-transfers still require a sufficient balance but move nothing.
	if from == to {
		return nil
	}

	toBalance := l.balances[to]
	if toBalance == nil {
		toBalance = new(big.Int)
	}

	l.balances[from] = new(big.Int).Sub(fromBalance, amount)
	l.balances[to] = new(big.Int).Add(toBalance, amount)

	return nil
}

// BalanceOf returns a copy of the account balance.
func (l *MemoryLedger) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[account]
	if balance == nil {
		return new(big.Int), nil
	}

	return new(big.Int).Set(balance), nil
}

// SetBalance overwrites an account balance. Used for genesis funding and
// tests; not part of the Ledger interface.
func (l *MemoryLedger) SetBalance(account common.Address, balance *big.Int) error {
	if balance == nil || balance.Sign() < 0 {
		return fmt.Errorf("balance must be non-negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[account] = new(big.Int).Set(balance)
	return nil
}

// TotalSupply sums all balances. Conservation checks in tests rely on it.
func (l *MemoryLedger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := new(big.Int)
	for _, balance := range l.balances {
		total.Add(total, balance)
	}

	return total
}
