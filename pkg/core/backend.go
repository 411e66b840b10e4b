package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PriceLevelIndex keeps, per side, a sorted doubly-linked chain of active
// prices: bids descending, asks ascending.
type PriceLevelIndex interface {
	// Insert links price at its sorted position. The price must not already
	// be active on side.
	Insert(side Side, price uint64)
	// Delete unlinks price. The level must hold no live orders.
	Delete(side Side, price uint64)
	Contains(side Side, price uint64) bool

	// Head returns the best price of side or NoPrice.
	Head(side Side) uint64
	// Next returns the next-worse active price after price or NoPrice.
	Next(side Side, price uint64) uint64
	// ClearHead deletes head levels for which isEmpty reports true and
	// returns the resulting head.
	ClearHead(side Side, isEmpty func(price uint64) bool) uint64

	SetLastTradedPrice(price uint64)
	LastTradedPrice() uint64
}

// Quoter returns the counter-asset amount needed to fully consume o
type Quoter func(o *Order) *uint256.Int

// OrderQueueStore holds order records and the per-price FIFO queues they
// are linked into.
type OrderQueueStore interface {
	// CreateOrder stores a new, unlinked record and returns its id.
	CreateOrder(side Side, owner common.Address, price uint64, amount *uint256.Int) OrderID
	// Append links id at the tail of the queue at price.
	Append(side Side, price uint64, id OrderID)

	IsEmpty(side Side, price uint64) bool
	Head(side Side, price uint64) OrderID
	Next(side Side, price uint64, id OrderID) OrderID
	// Order returns a copy of the record or nil.
	Order(side Side, id OrderID) *Order

	// Decrease takes converted out of the order's deposit. When forceClear is
	// set or the remainder is below dust the order is removed and the whole
	// remaining deposit is returned. The second result is the order's price
	// if its queue became empty, otherwise NoPrice.
	Decrease(side Side, id OrderID, converted, dust *uint256.Int, forceClear bool) (*uint256.Int, uint64, error)
	// Delete removes the order unconditionally and returns its remaining
	// deposit and, if the queue became empty, its price.
	Delete(side Side, id OrderID) (*uint256.Int, uint64)
	// PopHeadIfFillable unlinks the head of the queue at price when
	// available covers quote(head). The record stays in the table until it
	// is settled.
	PopHeadIfFillable(side Side, price uint64, available *uint256.Int, quote Quoter) (OrderID, *uint256.Int, bool, uint64)
}

// Custody moves asset balances on settlement
type Custody interface {
	Transfer(ctx context.Context, asset, to common.Address, amount *uint256.Int) error
	// UnwrapAndSend unwraps the wrapped-native asset and sends the native
	// coin to to.
	UnwrapAndSend(ctx context.Context, to common.Address, amount *uint256.Int) error
	WrappedNative() common.Address
}
