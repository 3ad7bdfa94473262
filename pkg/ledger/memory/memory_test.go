package memory

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantmike/EIPs/pkg/types"
)

var (
	accountA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	accountB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestMemoryLedger_Transfer(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.SetBalance(accountA, big.NewInt(100)))

	require.NoError(t, l.Transfer(ctx, accountA, accountB, big.NewInt(30)))

	balanceA, err := l.BalanceOf(ctx, accountA)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(70), balanceA)

	balanceB, err := l.BalanceOf(ctx, accountB)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(30), balanceB)

	assert.Equal(t, big.NewInt(100), l.TotalSupply())
}

func TestMemoryLedger_InsufficientFunds(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.SetBalance(accountA, big.NewInt(10)))

	err := l.Transfer(ctx, accountA, accountB, big.NewInt(11))
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	// Neither balance moved.
	balanceA, _ := l.BalanceOf(ctx, accountA)
	assert.Equal(t, big.NewInt(10), balanceA)
	balanceB, _ := l.BalanceOf(ctx, accountB)
	assert.Equal(t, int64(0), balanceB.Int64())
}

func TestMemoryLedger_ZeroAmount(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	// Zero from an empty account is a valid no-op transfer.
	require.NoError(t, l.Transfer(ctx, accountA, accountB, big.NewInt(0)))

	assert.Error(t, l.Transfer(ctx, accountA, accountB, big.NewInt(-1)))
	assert.Error(t, l.Transfer(ctx, accountA, accountB, nil))
}

func TestMemoryLedger_SelfTransfer(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.SetBalance(accountA, big.NewInt(50)))

	require.NoError(t, l.Transfer(ctx, accountA, accountA, big.NewInt(20)))
	balance, _ := l.BalanceOf(ctx, accountA)
	assert.Equal(t, big.NewInt(50), balance)

	err := l.Transfer(ctx, accountA, accountA, big.NewInt(51))
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
}

func TestMemoryLedger_BalanceCopies(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.SetBalance(accountA, big.NewInt(100)))

	balance, err := l.BalanceOf(ctx, accountA)
	require.NoError(t, err)
	balance.SetInt64(0) // must not affect the ledger

	fresh, err := l.BalanceOf(ctx, accountA)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), fresh)
}
