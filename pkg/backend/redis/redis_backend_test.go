package redis

import (
	"context"
	"fmt"
	"testing"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/erain9/pairbook/pkg/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// setupTestRedis returns a client and a key prefix private to the test. Keys
// under the prefix are removed when the test ends.
func setupTestRedis(t testing.TB) (*redis.Client, string) {
	client := testutil.RedisClient(t)
	prefix := fmt.Sprintf("test:%s", t.Name())

	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+":*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return client, prefix
}

func walk(pi *PriceIndex, side core.Side) []uint64 {
	prices := make([]uint64, 0)
	for p := pi.Head(side); p != core.NoPrice; p = pi.Next(side, p) {
		prices = append(prices, p)
	}
	return prices
}

func queued(s *OrderStore, side core.Side, price uint64) []core.OrderID {
	ids := make([]core.OrderID, 0)
	for id := s.Head(side, price); id != core.NoOrder; id = s.Next(side, price, id) {
		ids = append(ids, id)
	}
	return ids
}

func TestKeyspace(t *testing.T) {
	k := keyspace{prefix: "pair:1"}

	assert.Equal(t, "pair:1:bid:prices", k.prices(core.Bid))
	assert.Equal(t, "pair:1:ask:chain", k.chain(core.Ask))
	assert.Equal(t, "pair:1:bid:level:42", k.level(core.Bid, 42))
	assert.Equal(t, "pair:1:ask:order:7", k.order(core.Ask, 7))
	assert.Equal(t, "pair:1:ask:queue:42", k.queue(core.Ask, 42))
	assert.Equal(t, "pair:1:last_traded_price", k.lastTradedPrice())
	assert.Equal(t, "00000000000000000042", priceMember(42))
}

func TestPriceIndex_InsertDelete(t *testing.T) {
	client, prefix := setupTestRedis(t)
	pi := NewPriceIndex(client, prefix, zaptest.NewLogger(t))

	for _, p := range []uint64{200, 100, 300, 250} {
		pi.Insert(core.Bid, p)
		pi.Insert(core.Ask, p)
	}
	pi.Insert(core.Bid, 100)

	assert.Equal(t, []uint64{300, 250, 200, 100}, walk(pi, core.Bid))
	assert.Equal(t, []uint64{100, 200, 250, 300}, walk(pi, core.Ask))
	assert.True(t, pi.Contains(core.Bid, 250))

	pi.Delete(core.Bid, 250)
	pi.Delete(core.Bid, 300)
	pi.Delete(core.Ask, 100)
	pi.Delete(core.Ask, 999)

	assert.Equal(t, []uint64{200, 100}, walk(pi, core.Bid))
	assert.Equal(t, []uint64{200, 250, 300}, walk(pi, core.Ask))
	assert.False(t, pi.Contains(core.Bid, 250))
}

func TestPriceIndex_ClearHeadAndLastTrade(t *testing.T) {
	client, prefix := setupTestRedis(t)
	pi := NewPriceIndex(client, prefix, zaptest.NewLogger(t))

	for _, p := range []uint64{10, 20, 30} {
		pi.Insert(core.Ask, p)
	}
	head := pi.ClearHead(core.Ask, func(price uint64) bool { return price < 30 })
	assert.Equal(t, uint64(30), head)
	assert.Equal(t, []uint64{30}, walk(pi, core.Ask))

	assert.Equal(t, core.NoPrice, pi.LastTradedPrice())
	pi.SetLastTradedPrice(15)
	assert.Equal(t, uint64(15), pi.LastTradedPrice())
}

func TestOrderStore_Lifecycle(t *testing.T) {
	client, prefix := setupTestRedis(t)
	s := NewOrderStore(client, prefix, zaptest.NewLogger(t))

	a := s.CreateOrder(core.Ask, owner, 10, uint256.NewInt(100))
	b := s.CreateOrder(core.Ask, owner, 10, uint256.NewInt(50))
	require.Equal(t, core.OrderID(1), a)
	require.Equal(t, core.OrderID(2), b)
	assert.True(t, s.IsEmpty(core.Ask, 10))

	s.Append(core.Ask, 10, a)
	s.Append(core.Ask, 10, b)
	assert.Equal(t, []core.OrderID{a, b}, queued(s, core.Ask, 10))

	order := s.Order(core.Ask, a)
	require.NotNil(t, order)
	assert.Equal(t, owner, order.Owner)
	assert.True(t, order.Queued)
	assert.Equal(t, "100", order.Deposit.Dec())

	out, emptied, err := s.Decrease(core.Ask, a, uint256.NewInt(40), uint256.NewInt(1), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), out.Uint64())
	assert.Equal(t, core.NoPrice, emptied)
	assert.Equal(t, uint64(60), s.Order(core.Ask, a).Deposit.Uint64())

	_, _, err = s.Decrease(core.Ask, a, uint256.NewInt(62), uint256.NewInt(1), false)
	assert.ErrorIs(t, err, core.ErrFillExceedsDeposit)

	out, emptied, err = s.Decrease(core.Ask, a, uint256.NewInt(60), uint256.NewInt(1), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), out.Uint64())
	assert.Equal(t, core.NoPrice, emptied)
	assert.Nil(t, s.Order(core.Ask, a))
	assert.Equal(t, []core.OrderID{b}, queued(s, core.Ask, 10))

	refund, emptied := s.Delete(core.Ask, b)
	assert.Equal(t, uint64(50), refund.Uint64())
	assert.Equal(t, uint64(10), emptied)
	assert.True(t, s.IsEmpty(core.Ask, 10))
}

func TestOrderStore_PopHeadIfFillable(t *testing.T) {
	client, prefix := setupTestRedis(t)
	s := NewOrderStore(client, prefix, zaptest.NewLogger(t))
	quote := func(o *core.Order) *uint256.Int { return o.Deposit }

	id := s.CreateOrder(core.Bid, owner, 5, uint256.NewInt(30))
	s.Append(core.Bid, 5, id)

	popped, required, filled, emptied := s.PopHeadIfFillable(core.Bid, 5, uint256.NewInt(29), quote)
	assert.Equal(t, id, popped)
	assert.Equal(t, uint64(30), required.Uint64())
	assert.False(t, filled)
	assert.Equal(t, core.NoPrice, emptied)

	popped, _, filled, emptied = s.PopHeadIfFillable(core.Bid, 5, uint256.NewInt(30), quote)
	assert.Equal(t, id, popped)
	assert.True(t, filled)
	assert.Equal(t, uint64(5), emptied)
	assert.True(t, s.IsEmpty(core.Bid, 5))

	order := s.Order(core.Bid, id)
	require.NotNil(t, order)
	assert.False(t, order.Queued)

	out, emptied, err := s.Decrease(core.Bid, id, new(uint256.Int), new(uint256.Int), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), out.Uint64())
	assert.Equal(t, core.NoPrice, emptied)
	assert.Nil(t, s.Order(core.Bid, id))
}
