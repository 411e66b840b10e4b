package api

import (
	"math/big"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// formatPrice renders a fixed-point price, e.g. 200000000000 -> "2000"
func formatPrice(price uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(price), -core.PricePrecisionDigits).String()
}

// formatAmount renders raw asset units with the asset's decimals
func formatAmount(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}

// depositDecimals is the precision of the asset an order on side deposits
func depositDecimals(pair *core.Pair, side core.Side) uint8 {
	if side == core.Bid {
		return pair.QuoteDecimals
	}
	return pair.BaseDecimals
}
