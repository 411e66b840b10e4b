package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	errorTests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrInvalidDecimals", ErrInvalidDecimals, "invalid decimals"},
		{"ErrInvalidAccess", ErrInvalidAccess, "invalid access"},
		{"ErrPriceIsZero", ErrPriceIsZero, "price is zero"},
		{"ErrAlreadyInitialized", ErrAlreadyInitialized, "already initialized"},
		{"ErrNotInitialized", ErrNotInitialized, "not initialized"},
		{"ErrInvalidAmount", ErrInvalidAmount, "invalid amount"},
		{"ErrNonexistentOrder", ErrNonexistentOrder, "nonexistent order"},
		{"ErrFillExceedsDeposit", ErrFillExceedsDeposit, "fill exceeds remaining deposit"},
		{"ErrNoMarketPrice", ErrNoMarketPrice, "no market price"},
		{"ErrTransferFailed", ErrTransferFailed, "transfer failed"},
	}

	for _, tt := range errorTests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.msg)

			wrapped := fmt.Errorf("context: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.err))
		})
	}
}

func TestPricePrecision(t *testing.T) {
	assert.Equal(t, uint64(100_000_000), PricePrecision.Uint64())
	assert.Equal(t, 8, PricePrecisionDigits)
}
