package snapshot

import (
	"testing"

	"github.com/erain9/pairbook/pkg/backend/memory"
	"github.com/erain9/pairbook/pkg/core"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000A11CE")

func populated() (*memory.PriceIndex, *memory.OrderStore) {
	index := memory.NewPriceIndex()
	store := memory.NewOrderStore()

	for _, price := range []uint64{300, 100, 200} {
		index.Insert(core.Bid, price)
		id := store.CreateOrder(core.Bid, owner, price, uint256.NewInt(price*10))
		store.Append(core.Bid, price, id)
	}
	index.Insert(core.Ask, 400)
	id := store.CreateOrder(core.Ask, owner, 400, uint256.NewInt(7))
	store.Append(core.Ask, 400, id)
	index.SetLastTradedPrice(250)
	return index, store
}

func TestSaveLoad(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Load(1)
	require.NoError(t, err)
	assert.False(t, ok)

	index, store := populated()
	require.NoError(t, s.SaveBook(1, index, store))

	restoredIndex := memory.NewPriceIndex()
	restoredStore := memory.NewOrderStore()
	ok, err = s.RestoreBook(1, restoredIndex, restoredStore)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, index.String(), restoredIndex.String())
	assert.Equal(t, uint64(250), restoredIndex.LastTradedPrice())
	assert.Equal(t, store.Len(core.Bid), restoredStore.Len(core.Bid))

	order := restoredStore.Order(core.Bid, 2)
	require.NotNil(t, order)
	assert.Equal(t, uint64(100), order.Price)
	assert.Equal(t, uint64(1000), order.Deposit.Uint64())
	assert.Equal(t, owner, order.Owner)
	assert.True(t, order.Queued)

	// Id allocation continues after the restored counter
	next := restoredStore.CreateOrder(core.Bid, owner, 100, uint256.NewInt(1))
	assert.Equal(t, core.OrderID(4), next)
}

func TestSnapshotsArePerPair(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	index, store := populated()
	require.NoError(t, s.SaveBook(1, index, store))
	require.NoError(t, s.Save(2, memory.Snapshot(memory.NewPriceIndex(), memory.NewOrderStore())))

	state, ok, err := s.Load(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, state.Bids.Nodes)

	require.NoError(t, s.Delete(1))
	_, ok, err = s.Load(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	index, store := populated()
	require.NoError(t, s.SaveBook(9, index, store))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	state, ok, err := s.Load(9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(300), state.Bids.Head)
	assert.Equal(t, uint64(400), state.Asks.Head)
}
