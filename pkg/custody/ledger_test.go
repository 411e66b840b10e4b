package custody

import (
	"context"
	"testing"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token = common.HexToAddress("0x1000000000000000000000000000000000000001")
	weth  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func TestLedger_Transfer(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(weth)
	l.Fund(token, uint256.NewInt(100))

	require.NoError(t, l.Transfer(ctx, token, alice, uint256.NewInt(30)))
	assert.Equal(t, uint64(30), l.Balance(token, alice).Uint64())
	assert.Equal(t, uint64(70), l.Escrow(token).Uint64())

	err := l.Transfer(ctx, token, alice, uint256.NewInt(71))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(70), l.Escrow(token).Uint64())
}

func TestLedger_UnwrapAndSend(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(weth)
	l.Fund(weth, uint256.NewInt(10))

	require.NoError(t, l.UnwrapAndSend(ctx, alice, uint256.NewInt(4)))
	assert.Equal(t, uint64(4), l.NativeBalance(alice).Uint64())
	assert.True(t, l.Balance(weth, alice).IsZero())
	assert.Equal(t, uint64(6), l.Escrow(weth).Uint64())
	assert.Equal(t, weth, l.WrappedNative())

	noNative := NewLedger(common.Address{})
	assert.ErrorIs(t, noNative.UnwrapAndSend(ctx, alice, uint256.NewInt(1)), core.ErrInvalidArgument)
}

func TestLedger_HookRunsUnlocked(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(weth)
	l.Fund(token, uint256.NewInt(10))

	var seen *uint256.Int
	l.OnTransfer(func(ctx context.Context, asset, to common.Address, amount *uint256.Int) {
		// Re-entering the ledger must not deadlock
		seen = l.Balance(asset, to)
	})

	require.NoError(t, l.Transfer(ctx, token, alice, uint256.NewInt(3)))
	require.NotNil(t, seen)
	assert.Equal(t, uint64(3), seen.Uint64())
}

func TestLedger_ReturnsCopies(t *testing.T) {
	l := NewLedger(weth)
	l.Fund(token, uint256.NewInt(5))

	escrow := l.Escrow(token)
	escrow.SetUint64(0)

	assert.Equal(t, uint64(5), l.Escrow(token).Uint64())
}
