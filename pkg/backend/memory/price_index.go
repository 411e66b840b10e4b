package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/erain9/pairbook/pkg/core"
)

// PriceNode is one active price level. Links are prices, core.NoPrice marks
// the end of the chain.
type PriceNode struct {
	Prev uint64 `json:"prev"`
	Next uint64 `json:"next"`
}

// PriceChain is the sorted chain of one side's active prices
type PriceChain struct {
	Head  uint64               `json:"head"`
	Tail  uint64               `json:"tail"`
	Nodes map[uint64]PriceNode `json:"nodes"`
}

func newPriceChain() *PriceChain {
	return &PriceChain{Nodes: make(map[uint64]PriceNode)}
}

func (c *PriceChain) clone() *PriceChain {
	out := &PriceChain{Head: c.Head, Tail: c.Tail, Nodes: make(map[uint64]PriceNode, len(c.Nodes))}
	for price, node := range c.Nodes {
		out.Nodes[price] = node
	}
	return out
}

// PriceIndex implements core.PriceLevelIndex in memory
type PriceIndex struct {
	sync.RWMutex
	sides           [2]*PriceChain
	lastTradedPrice uint64
}

// NewPriceIndex creates an empty PriceIndex
func NewPriceIndex() *PriceIndex {
	return &PriceIndex{
		sides: [2]*PriceChain{newPriceChain(), newPriceChain()},
	}
}

// better reports whether a ranks ahead of b on side
func better(side core.Side, a, b uint64) bool {
	if side == core.Bid {
		return a > b
	}
	return a < b
}

// Insert links price at its sorted position
func (pi *PriceIndex) Insert(side core.Side, price uint64) {
	if price == core.NoPrice {
		return
	}

	pi.Lock()
	defer pi.Unlock()

	chain := pi.sides[side]
	if _, ok := chain.Nodes[price]; ok {
		return
	}

	if chain.Head == core.NoPrice {
		chain.Nodes[price] = PriceNode{}
		chain.Head = price
		chain.Tail = price
		return
	}

	switch {
	case better(side, price, chain.Head):
		// Insert at head
		chain.Nodes[price] = PriceNode{Next: chain.Head}
		chain.setPrev(chain.Head, price)
		chain.Head = price
	case !better(side, price, chain.Tail):
		// Insert at tail
		chain.Nodes[price] = PriceNode{Prev: chain.Tail}
		chain.setNext(chain.Tail, price)
		chain.Tail = price
	default:
		// Insert in middle
		current := chain.Head
		for current != core.NoPrice && better(side, current, price) {
			current = chain.Nodes[current].Next
		}
		prev := chain.Nodes[current].Prev
		chain.Nodes[price] = PriceNode{Prev: prev, Next: current}
		chain.setNext(prev, price)
		chain.setPrev(current, price)
	}
}

// Delete unlinks price. Deleting an inactive price does nothing.
func (pi *PriceIndex) Delete(side core.Side, price uint64) {
	pi.Lock()
	defer pi.Unlock()

	chain := pi.sides[side]
	node, ok := chain.Nodes[price]
	if !ok {
		return
	}
	delete(chain.Nodes, price)

	if node.Prev != core.NoPrice {
		chain.setNext(node.Prev, node.Next)
	} else {
		chain.Head = node.Next
	}

	if node.Next != core.NoPrice {
		chain.setPrev(node.Next, node.Prev)
	} else {
		chain.Tail = node.Prev
	}
}

// Contains reports whether price is active on side
func (pi *PriceIndex) Contains(side core.Side, price uint64) bool {
	pi.RLock()
	defer pi.RUnlock()
	_, ok := pi.sides[side].Nodes[price]
	return ok
}

// Head returns the best price of side
func (pi *PriceIndex) Head(side core.Side) uint64 {
	pi.RLock()
	defer pi.RUnlock()
	return pi.sides[side].Head
}

// Next returns the next-worse price after price
func (pi *PriceIndex) Next(side core.Side, price uint64) uint64 {
	pi.RLock()
	defer pi.RUnlock()
	node, ok := pi.sides[side].Nodes[price]
	if !ok {
		return core.NoPrice
	}
	return node.Next
}

// ClearHead deletes head levels reported empty and returns the new head.
// The lock is released while isEmpty runs.
func (pi *PriceIndex) ClearHead(side core.Side, isEmpty func(price uint64) bool) uint64 {
	for {
		head := pi.Head(side)
		if head == core.NoPrice || !isEmpty(head) {
			return head
		}
		pi.Delete(side, head)
	}
}

// SetLastTradedPrice records the last traded price
func (pi *PriceIndex) SetLastTradedPrice(price uint64) {
	pi.Lock()
	defer pi.Unlock()
	pi.lastTradedPrice = price
}

// LastTradedPrice returns the last traded price
func (pi *PriceIndex) LastTradedPrice() uint64 {
	pi.RLock()
	defer pi.RUnlock()
	return pi.lastTradedPrice
}

// Len returns the number of active prices on side
func (pi *PriceIndex) Len(side core.Side) int {
	pi.RLock()
	defer pi.RUnlock()
	return len(pi.sides[side].Nodes)
}

// String implements fmt.Stringer interface
func (pi *PriceIndex) String() string {
	pi.RLock()
	defer pi.RUnlock()

	sb := strings.Builder{}
	for _, side := range []core.Side{core.Ask, core.Bid} {
		sb.WriteString(side.String())
		sb.WriteString(":")
		chain := pi.sides[side]
		for price := chain.Head; price != core.NoPrice; price = chain.Nodes[price].Next {
			sb.WriteString(fmt.Sprintf(" %d", price))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (c *PriceChain) setPrev(price, prev uint64) {
	if node, ok := c.Nodes[price]; ok {
		node.Prev = prev
		c.Nodes[price] = node
	}
}

func (c *PriceChain) setNext(price, next uint64) {
	if node, ok := c.Nodes[price]; ok {
		node.Next = next
		c.Nodes[price] = node
	}
}

var _ core.PriceLevelIndex = (*PriceIndex)(nil)
