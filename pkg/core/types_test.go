package core

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseToken  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	quoteToken = common.HexToAddress("0x2000000000000000000000000000000000000002")
	authority  = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func TestSide(t *testing.T) {
	assert.Equal(t, "BID", Bid.String())
	assert.Equal(t, "ASK", Ask.String())
	assert.Equal(t, "UNKNOWN", Side(7).String())

	assert.True(t, Bid.IsBid())
	assert.False(t, Ask.IsBid())
	assert.Equal(t, Ask, Bid.Opposite())
	assert.Equal(t, Bid, Ask.Opposite())
	assert.Equal(t, Bid, SideOf(true))
	assert.Equal(t, Ask, SideOf(false))
}

func TestParseSide(t *testing.T) {
	for _, s := range []string{"bid", "BID", "bids", "buy"} {
		side, err := ParseSide(s)
		require.NoError(t, err)
		assert.Equal(t, Bid, side)
	}
	for _, s := range []string{"ask", "ASK", "asks", "sell"} {
		side, err := ParseSide(s)
		require.NoError(t, err)
		assert.Equal(t, Ask, side)
	}

	_, err := ParseSide("middle")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewPair(t *testing.T) {
	tests := []struct {
		name      string
		base      uint8
		quote     uint8
		expectErr error
		scale     uint64
		baseMore  bool
	}{
		{name: "base has more decimals", base: 18, quote: 8, scale: 10_000_000_000, baseMore: true},
		{name: "quote has more decimals", base: 6, quote: 18, scale: 1_000_000_000_000},
		{name: "equal decimals", base: 8, quote: 8, scale: 1},
		{name: "zero decimals", base: 0, quote: 0, scale: 1},
		{name: "base too precise", base: 19, quote: 8, expectErr: ErrInvalidDecimals},
		{name: "quote too precise", base: 8, quote: 19, expectErr: ErrInvalidDecimals},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := NewPair(1, Asset{baseToken, tt.base}, Asset{quoteToken, tt.quote}, authority)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				assert.Nil(t, pair)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scale, pair.DecimalScale.Uint64())
			assert.Equal(t, tt.baseMore, pair.BaseHasMoreDecimals)
			assert.Equal(t, authority, pair.Authority)
		})
	}
}

func TestPairAssets(t *testing.T) {
	pair, err := NewPair(1, Asset{baseToken, 18}, Asset{quoteToken, 6}, authority)
	require.NoError(t, err)

	assert.Equal(t, quoteToken, pair.DepositAsset(Bid))
	assert.Equal(t, baseToken, pair.CounterAsset(Bid))
	assert.Equal(t, baseToken, pair.DepositAsset(Ask))
	assert.Equal(t, quoteToken, pair.CounterAsset(Ask))
}

func TestPairMarshalJSON(t *testing.T) {
	pair, err := NewPair(9, Asset{baseToken, 18}, Asset{quoteToken, 8}, authority)
	require.NoError(t, err)

	data, err := json.Marshal(pair)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(9), decoded["id"])
	assert.Equal(t, baseToken.Hex(), decoded["base"])
	assert.Equal(t, float64(18), decoded["baseDecimals"])
	assert.Equal(t, float64(8), decoded["quoteDecimals"])
	assert.Equal(t, "10000000000", decoded["decimalScale"])
	assert.Equal(t, true, decoded["baseHasMoreDecimals"])
}

func TestCallerAndAuthorityPolicy(t *testing.T) {
	pair, err := NewPair(1, Asset{baseToken, 8}, Asset{quoteToken, 8}, authority)
	require.NoError(t, err)

	policy := AuthorityPolicy{}
	assert.NoError(t, policy.Authorize(pair, NewCaller(authority)))
	assert.ErrorIs(t, policy.Authorize(pair, NewCaller(baseToken)), ErrInvalidAccess)
	assert.ErrorIs(t, policy.Authorize(nil, NewCaller(authority)), ErrNotInitialized)

	allowAll := AccessPolicyFunc(func(*Pair, Caller) error { return nil })
	assert.NoError(t, allowAll.Authorize(pair, NewCaller(baseToken)))
	assert.Equal(t, baseToken, NewCaller(baseToken).Address())
}
