package core

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OrderID identifies an order within one side of a book. Ids are allocated
// from a per-side counter starting at 1 and are never reused.
type OrderID uint64

// NoOrder is the "none" sentinel for order links and lookups
const NoOrder OrderID = 0

// NoPrice is the "none" sentinel for price links and lookups. A zero price is
// never a valid order price.
const NoPrice uint64 = 0

// Order is a resting order record. Prev and Next are links to neighbouring
// orders at the same price; Queued is false once the order has been popped
// from its level but not yet settled.
type Order struct {
	ID      OrderID
	Side    Side
	Owner   common.Address
	Price   uint64
	Deposit *uint256.Int
	Prev    OrderID
	Next    OrderID
	Queued  bool
}

// Clone returns a deep copy of the record
func (o *Order) Clone() *Order {
	c := *o
	if o.Deposit != nil {
		c.Deposit = new(uint256.Int).Set(o.Deposit)
	}
	return &c
}

type orderJSON struct {
	ID      OrderID `json:"id"`
	Side    Side    `json:"side"`
	Owner   string  `json:"owner"`
	Price   uint64  `json:"price"`
	Deposit string  `json:"deposit"`
	Prev    OrderID `json:"prev"`
	Next    OrderID `json:"next"`
	Queued  bool    `json:"queued"`
}

// MarshalJSON implements custom JSON marshaling for Order
func (o *Order) MarshalJSON() ([]byte, error) {
	deposit := "0"
	if o.Deposit != nil {
		deposit = o.Deposit.Dec()
	}
	return json.Marshal(orderJSON{
		ID:      o.ID,
		Side:    o.Side,
		Owner:   o.Owner.Hex(),
		Price:   o.Price,
		Deposit: deposit,
		Prev:    o.Prev,
		Next:    o.Next,
		Queued:  o.Queued,
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Order
func (o *Order) UnmarshalJSON(data []byte) error {
	var oj orderJSON
	if err := json.Unmarshal(data, &oj); err != nil {
		return err
	}

	deposit, err := uint256.FromDecimal(oj.Deposit)
	if err != nil {
		return err
	}

	o.ID = oj.ID
	o.Side = oj.Side
	o.Owner = common.HexToAddress(oj.Owner)
	o.Price = oj.Price
	o.Deposit = deposit
	o.Prev = oj.Prev
	o.Next = oj.Next
	o.Queued = oj.Queued
	return nil
}

// String implements Stringer interface
func (o *Order) String() string {
	j, _ := o.MarshalJSON()
	return string(j)
}
