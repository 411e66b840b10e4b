package memory

import (
	"testing"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func queued(s *OrderStore, side core.Side, price uint64) []core.OrderID {
	ids := make([]core.OrderID, 0)
	for id := s.Head(side, price); id != core.NoOrder; id = s.Next(side, price, id) {
		ids = append(ids, id)
	}
	return ids
}

func place(s *OrderStore, side core.Side, owner common.Address, price, amount uint64) core.OrderID {
	id := s.CreateOrder(side, owner, price, uint256.NewInt(amount))
	s.Append(side, price, id)
	return id
}

func TestOrderStore_CreateAndAppend(t *testing.T) {
	s := NewOrderStore()

	id := s.CreateOrder(core.Bid, alice, 100, uint256.NewInt(50))
	assert.Equal(t, core.OrderID(1), id)
	assert.True(t, s.IsEmpty(core.Bid, 100))

	order := s.Order(core.Bid, id)
	require.NotNil(t, order)
	assert.False(t, order.Queued)
	assert.Equal(t, alice, order.Owner)
	assert.Equal(t, uint64(50), order.Deposit.Uint64())

	s.Append(core.Bid, 100, id)
	assert.False(t, s.IsEmpty(core.Bid, 100))
	assert.Equal(t, id, s.Head(core.Bid, 100))
	assert.True(t, s.Order(core.Bid, id).Queued)

	// Ids are per side
	assert.Equal(t, core.OrderID(1), s.CreateOrder(core.Ask, bob, 100, uint256.NewInt(1)))
	assert.Equal(t, core.OrderID(2), s.CreateOrder(core.Bid, bob, 100, uint256.NewInt(1)))
}

func TestOrderStore_OrderReturnsCopy(t *testing.T) {
	s := NewOrderStore()
	id := place(s, core.Ask, alice, 10, 100)

	order := s.Order(core.Ask, id)
	order.Deposit.SetUint64(1)

	assert.Equal(t, uint64(100), s.Order(core.Ask, id).Deposit.Uint64())
	assert.Nil(t, s.Order(core.Ask, 99))
}

func TestOrderStore_FIFO(t *testing.T) {
	s := NewOrderStore()
	a := place(s, core.Ask, alice, 10, 1)
	b := place(s, core.Ask, bob, 10, 1)
	c := place(s, core.Ask, alice, 10, 1)
	other := place(s, core.Ask, bob, 11, 1)

	assert.Equal(t, []core.OrderID{a, b, c}, queued(s, core.Ask, 10))
	assert.Equal(t, []core.OrderID{other}, queued(s, core.Ask, 11))

	_, emptied := s.Delete(core.Ask, b)
	assert.Equal(t, core.NoPrice, emptied)
	assert.Equal(t, []core.OrderID{a, c}, queued(s, core.Ask, 10))

	d := place(s, core.Ask, bob, 10, 1)
	assert.Equal(t, []core.OrderID{a, c, d}, queued(s, core.Ask, 10))
}

func TestOrderStore_Delete(t *testing.T) {
	s := NewOrderStore()
	id := place(s, core.Bid, alice, 10, 77)

	refund, emptied := s.Delete(core.Bid, id)
	assert.Equal(t, uint64(77), refund.Uint64())
	assert.Equal(t, uint64(10), emptied)
	assert.True(t, s.IsEmpty(core.Bid, 10))
	assert.Nil(t, s.Order(core.Bid, id))

	refund, emptied = s.Delete(core.Bid, id)
	assert.True(t, refund.IsZero())
	assert.Equal(t, core.NoPrice, emptied)
}

func TestOrderStore_Decrease(t *testing.T) {
	tests := []struct {
		name          string
		deposit       uint64
		converted     uint64
		dust          uint64
		forceClear    bool
		expectErr     error
		expectOut     uint64
		expectRemain  uint64
		expectRemoved bool
	}{
		{name: "partial", deposit: 100, converted: 30, dust: 1, expectOut: 30, expectRemain: 70},
		{name: "exact", deposit: 100, converted: 100, dust: 1, expectOut: 100, expectRemoved: true},
		{name: "remainder below dust", deposit: 100, converted: 96, dust: 5, expectOut: 100, expectRemoved: true},
		{name: "remainder equal to dust", deposit: 100, converted: 95, dust: 5, expectOut: 95, expectRemain: 5},
		{name: "overshoot within dust", deposit: 100, converted: 103, dust: 5, expectOut: 100, expectRemoved: true},
		{name: "force clear", deposit: 100, converted: 10, dust: 1, forceClear: true, expectOut: 100, expectRemoved: true},
		{name: "zero dust partial", deposit: 100, converted: 99, dust: 0, expectOut: 99, expectRemain: 1},
		{name: "exceeds deposit", deposit: 100, converted: 106, dust: 5, expectErr: core.ErrFillExceedsDeposit, expectRemain: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewOrderStore()
			id := place(s, core.Ask, alice, 10, tt.deposit)

			out, emptied, err := s.Decrease(core.Ask, id, uint256.NewInt(tt.converted), uint256.NewInt(tt.dust), tt.forceClear)
			if tt.expectErr != nil {
				require.ErrorIs(t, err, tt.expectErr)
				assert.Equal(t, tt.expectRemain, s.Order(core.Ask, id).Deposit.Uint64())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectOut, out.Uint64())

			if tt.expectRemoved {
				assert.Nil(t, s.Order(core.Ask, id))
				assert.Equal(t, uint64(10), emptied)
				assert.True(t, s.IsEmpty(core.Ask, 10))
				return
			}
			assert.Equal(t, core.NoPrice, emptied)
			assert.Equal(t, tt.expectRemain, s.Order(core.Ask, id).Deposit.Uint64())
		})
	}
}

func TestOrderStore_DecreaseNonexistent(t *testing.T) {
	s := NewOrderStore()
	_, _, err := s.Decrease(core.Bid, 5, uint256.NewInt(1), uint256.NewInt(0), false)
	assert.ErrorIs(t, err, core.ErrNonexistentOrder)
}

func TestOrderStore_PopHeadIfFillable(t *testing.T) {
	quote := func(o *core.Order) *uint256.Int {
		return new(uint256.Int).Mul(o.Deposit, uint256.NewInt(2))
	}

	s := NewOrderStore()
	first := place(s, core.Bid, alice, 10, 50)
	second := place(s, core.Bid, bob, 10, 20)

	id, required, filled, emptied := s.PopHeadIfFillable(core.Bid, 10, uint256.NewInt(99), quote)
	assert.Equal(t, first, id)
	assert.Equal(t, uint64(100), required.Uint64())
	assert.False(t, filled)
	assert.Equal(t, core.NoPrice, emptied)
	assert.Equal(t, []core.OrderID{first, second}, queued(s, core.Bid, 10))

	id, _, filled, emptied = s.PopHeadIfFillable(core.Bid, 10, uint256.NewInt(100), quote)
	assert.Equal(t, first, id)
	assert.True(t, filled)
	assert.Equal(t, core.NoPrice, emptied)
	assert.Equal(t, []core.OrderID{second}, queued(s, core.Bid, 10))

	// The popped record waits for settlement
	popped := s.Order(core.Bid, first)
	require.NotNil(t, popped)
	assert.False(t, popped.Queued)

	out, emptied, err := s.Decrease(core.Bid, first, uint256.NewInt(0), uint256.NewInt(0), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), out.Uint64())
	assert.Equal(t, core.NoPrice, emptied)
	assert.Nil(t, s.Order(core.Bid, first))

	id, _, filled, emptied = s.PopHeadIfFillable(core.Bid, 10, uint256.NewInt(40), quote)
	assert.Equal(t, second, id)
	assert.True(t, filled)
	assert.Equal(t, uint64(10), emptied)

	id, required, filled, _ = s.PopHeadIfFillable(core.Bid, 10, uint256.NewInt(40), quote)
	assert.Equal(t, core.NoOrder, id)
	assert.True(t, required.IsZero())
	assert.False(t, filled)
}

func TestOrderStore_String(t *testing.T) {
	s := NewOrderStore()
	place(s, core.Bid, alice, 10, 1)
	place(s, core.Bid, alice, 10, 1)

	assert.Equal(t, "ASK:\nBID:\n10 -> orders: 2\n", s.String())
}
