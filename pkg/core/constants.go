package core

import (
	"errors"

	"github.com/holiman/uint256"
)

// Errors
var (
	ErrInvalidDecimals    = errors.New("invalid decimals")
	ErrInvalidAccess      = errors.New("invalid access")
	ErrPriceIsZero        = errors.New("price is zero")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNonexistentOrder   = errors.New("nonexistent order")
	ErrFillExceedsDeposit = errors.New("fill exceeds remaining deposit")
	ErrNoMarketPrice      = errors.New("no market price")
	ErrTransferFailed     = errors.New("transfer failed")
)

// PricePrecisionDigits is the number of fractional digits carried by a price
const PricePrecisionDigits = 8

// PricePrecision is 10^PricePrecisionDigits
var PricePrecision = uint256.NewInt(100_000_000)
