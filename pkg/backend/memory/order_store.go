package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Queue holds the ends of one price level's FIFO. Interior links live on
// the orders themselves.
type Queue struct {
	Head core.OrderID `json:"head"`
	Tail core.OrderID `json:"tail"`
}

// SideTable is one side's order table and its queues
type SideTable struct {
	LastID core.OrderID                 `json:"lastId"`
	Orders map[core.OrderID]*core.Order `json:"orders"`
	Queues map[uint64]Queue             `json:"queues"`
}

func newSideTable() *SideTable {
	return &SideTable{
		Orders: make(map[core.OrderID]*core.Order),
		Queues: make(map[uint64]Queue),
	}
}

func (t *SideTable) clone() *SideTable {
	out := &SideTable{
		LastID: t.LastID,
		Orders: make(map[core.OrderID]*core.Order, len(t.Orders)),
		Queues: make(map[uint64]Queue, len(t.Queues)),
	}
	for id, order := range t.Orders {
		out.Orders[id] = order.Clone()
	}
	for price, q := range t.Queues {
		out.Queues[price] = q
	}
	return out
}

// OrderStore implements core.OrderQueueStore in memory
type OrderStore struct {
	sync.RWMutex
	sides [2]*SideTable
}

// NewOrderStore creates an empty OrderStore
func NewOrderStore() *OrderStore {
	return &OrderStore{
		sides: [2]*SideTable{newSideTable(), newSideTable()},
	}
}

// CreateOrder stores a new unlinked order and returns its id
func (s *OrderStore) CreateOrder(side core.Side, owner common.Address, price uint64, amount *uint256.Int) core.OrderID {
	s.Lock()
	defer s.Unlock()

	table := s.sides[side]
	table.LastID++
	id := table.LastID
	table.Orders[id] = &core.Order{
		ID:      id,
		Side:    side,
		Owner:   owner,
		Price:   price,
		Deposit: new(uint256.Int).Set(amount),
	}
	return id
}

// Append links id at the tail of the queue at price
func (s *OrderStore) Append(side core.Side, price uint64, id core.OrderID) {
	s.Lock()
	defer s.Unlock()

	table := s.sides[side]
	order, ok := table.Orders[id]
	if !ok || order.Queued {
		return
	}

	q := table.Queues[price]
	order.Prev = q.Tail
	order.Next = core.NoOrder
	order.Queued = true
	if q.Tail != core.NoOrder {
		table.Orders[q.Tail].Next = id
	} else {
		q.Head = id
	}
	q.Tail = id
	table.Queues[price] = q
}

// IsEmpty reports whether the queue at price has no head
func (s *OrderStore) IsEmpty(side core.Side, price uint64) bool {
	s.RLock()
	defer s.RUnlock()
	return s.sides[side].Queues[price].Head == core.NoOrder
}

// Head returns the oldest queued order at price
func (s *OrderStore) Head(side core.Side, price uint64) core.OrderID {
	s.RLock()
	defer s.RUnlock()
	return s.sides[side].Queues[price].Head
}

// Next returns the order queued after id
func (s *OrderStore) Next(side core.Side, price uint64, id core.OrderID) core.OrderID {
	s.RLock()
	defer s.RUnlock()
	order, ok := s.sides[side].Orders[id]
	if !ok || !order.Queued || order.Price != price {
		return core.NoOrder
	}
	return order.Next
}

// Order returns a copy of the order or nil
func (s *OrderStore) Order(side core.Side, id core.OrderID) *core.Order {
	s.RLock()
	defer s.RUnlock()
	order, ok := s.sides[side].Orders[id]
	if !ok {
		return nil
	}
	return order.Clone()
}

// Decrease takes converted out of the order's deposit
func (s *OrderStore) Decrease(side core.Side, id core.OrderID, converted, dust *uint256.Int, forceClear bool) (*uint256.Int, uint64, error) {
	s.Lock()
	defer s.Unlock()

	table := s.sides[side]
	order, ok := table.Orders[id]
	if !ok {
		return nil, core.NoPrice, fmt.Errorf("%w: %s order %d", core.ErrNonexistentOrder, side, id)
	}

	if converted == nil {
		converted = new(uint256.Int)
	}
	if dust == nil {
		dust = new(uint256.Int)
	}

	limit, overflow := new(uint256.Int).AddOverflow(order.Deposit, dust)
	if !overflow && converted.Gt(limit) {
		return nil, core.NoPrice, fmt.Errorf("%w: %s exceeds %s plus dust %s",
			core.ErrFillExceedsDeposit, converted.Dec(), order.Deposit.Dec(), dust.Dec())
	}

	remainder := new(uint256.Int)
	if converted.Lt(order.Deposit) {
		remainder.Sub(order.Deposit, converted)
	}

	if forceClear || remainder.IsZero() || remainder.Lt(dust) {
		withDust := new(uint256.Int).Set(order.Deposit)
		return withDust, table.remove(order), nil
	}

	order.Deposit = remainder
	return new(uint256.Int).Set(converted), core.NoPrice, nil
}

// Delete removes the order and returns its remaining deposit
func (s *OrderStore) Delete(side core.Side, id core.OrderID) (*uint256.Int, uint64) {
	s.Lock()
	defer s.Unlock()

	table := s.sides[side]
	order, ok := table.Orders[id]
	if !ok {
		return new(uint256.Int), core.NoPrice
	}
	refund := new(uint256.Int).Set(order.Deposit)
	return refund, table.remove(order)
}

// PopHeadIfFillable unlinks the head at price when available covers it
func (s *OrderStore) PopHeadIfFillable(side core.Side, price uint64, available *uint256.Int, quote core.Quoter) (core.OrderID, *uint256.Int, bool, uint64) {
	s.Lock()
	defer s.Unlock()

	table := s.sides[side]
	id := table.Queues[price].Head
	order, ok := table.Orders[id]
	if id == core.NoOrder || !ok {
		return core.NoOrder, new(uint256.Int), false, core.NoPrice
	}

	required := quote(order.Clone())
	if available.Lt(required) {
		return id, required, false, core.NoPrice
	}

	emptied := core.NoPrice
	if table.unlink(order) {
		emptied = price
	}
	return id, required, true, emptied
}

// Len returns the number of stored orders on side, queued or not
func (s *OrderStore) Len(side core.Side) int {
	s.RLock()
	defer s.RUnlock()
	return len(s.sides[side].Orders)
}

// String implements fmt.Stringer interface
func (s *OrderStore) String() string {
	s.RLock()
	defer s.RUnlock()

	sb := strings.Builder{}
	for _, side := range []core.Side{core.Ask, core.Bid} {
		table := s.sides[side]
		sb.WriteString(side.String())
		sb.WriteString(":")
		for price, q := range table.Queues {
			count := 0
			for id := q.Head; id != core.NoOrder; id = table.Orders[id].Next {
				count++
			}
			sb.WriteString(fmt.Sprintf("\n%d -> orders: %d", price, count))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// remove drops the order, unlinking it first when queued. It returns the
// order's price if the queue became empty.
func (t *SideTable) remove(order *core.Order) uint64 {
	emptied := core.NoPrice
	if order.Queued && t.unlink(order) {
		emptied = order.Price
	}
	delete(t.Orders, order.ID)
	return emptied
}

// unlink takes a queued order off its queue and reports whether the queue is
// now empty.
func (t *SideTable) unlink(order *core.Order) bool {
	q := t.Queues[order.Price]

	if order.Prev != core.NoOrder {
		t.Orders[order.Prev].Next = order.Next
	} else {
		q.Head = order.Next
	}
	if order.Next != core.NoOrder {
		t.Orders[order.Next].Prev = order.Prev
	} else {
		q.Tail = order.Prev
	}

	order.Prev = core.NoOrder
	order.Next = core.NoOrder
	order.Queued = false

	if q.Head == core.NoOrder {
		delete(t.Queues, order.Price)
		return true
	}
	t.Queues[order.Price] = q
	return false
}

var _ core.OrderQueueStore = (*OrderStore)(nil)
