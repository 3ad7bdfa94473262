// Package ledger is the fungible-token balance capability the engine
// settles against. The engine only needs Transfer; the in-memory
// implementation here is what the devnet binary and the tests run on,
// with a token-ledger backend slotting in behind the same interface.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger moves value between accounts. Implementations must be thread-safe
// and must reject a debit exceeding the available balance with
// types.ErrInsufficientFunds, leaving both balances untouched.
type Ledger interface {
	// Transfer debits amount from one account and credits it to another.
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error

	// BalanceOf returns the current balance of an account. Accounts with
	// no history have balance zero.
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}
