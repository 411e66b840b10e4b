package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OrderStore implements core.OrderQueueStore on Redis. Orders are hashes
// carrying their queue links; each price's queue is a hash with head and
// tail.
type OrderStore struct {
	sync.RWMutex
	client *redis.Client
	ctx    context.Context
	keys   keyspace
	logger *zap.Logger
}

// NewOrderStore creates an OrderStore storing its keys under prefix
func NewOrderStore(client *redis.Client, prefix string, logger *zap.Logger) *OrderStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderStore{
		client: client,
		ctx:    context.Background(),
		keys:   keyspace{prefix: prefix},
		logger: logger,
	}
}

// queueEnds is the head and tail of one price's queue
type queueEnds struct {
	head core.OrderID
	tail core.OrderID
}

// CreateOrder stores a new unlinked order and returns its id
func (s *OrderStore) CreateOrder(side core.Side, owner common.Address, price uint64, amount *uint256.Int) core.OrderID {
	s.Lock()
	defer s.Unlock()

	seq, err := s.client.Incr(s.ctx, s.keys.seq(side)).Result()
	if err != nil {
		s.logger.Error("failed to allocate order id",
			zap.String("side", side.String()),
			zap.Error(err))
		return core.NoOrder
	}
	id := core.OrderID(seq)

	err = s.client.HSet(s.ctx, s.keys.order(side, id),
		"owner", owner.Hex(),
		"price", price,
		"deposit", amount.Dec(),
		"prev", 0,
		"next", 0,
		"queued", 0,
	).Err()
	if err != nil {
		s.logger.Error("failed to store order",
			zap.String("side", side.String()),
			zap.Uint64("orderID", uint64(id)),
			zap.Error(err))
		return core.NoOrder
	}
	return id
}

// Append links id at the tail of the queue at price
func (s *OrderStore) Append(side core.Side, price uint64, id core.OrderID) {
	s.Lock()
	defer s.Unlock()

	order := s.read(side, id)
	if order == nil || order.Queued {
		return
	}
	q := s.queue(side, price)

	_, err := s.client.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(s.ctx, s.keys.order(side, id), "prev", uint64(q.tail), "next", 0, "queued", 1)
		if q.tail != core.NoOrder {
			pipe.HSet(s.ctx, s.keys.order(side, q.tail), "next", uint64(id))
		} else {
			q.head = id
		}
		q.tail = id
		pipe.HSet(s.ctx, s.keys.queue(side, price), "head", uint64(q.head), "tail", uint64(q.tail))
		return nil
	})
	if err != nil {
		s.logger.Error("failed to append order",
			zap.String("side", side.String()),
			zap.Uint64("orderID", uint64(id)),
			zap.Error(err))
	}
}

// IsEmpty reports whether the queue at price has no head
func (s *OrderStore) IsEmpty(side core.Side, price uint64) bool {
	return s.Head(side, price) == core.NoOrder
}

// Head returns the oldest queued order at price
func (s *OrderStore) Head(side core.Side, price uint64) core.OrderID {
	s.RLock()
	defer s.RUnlock()
	return s.queue(side, price).head
}

// Next returns the order queued after id
func (s *OrderStore) Next(side core.Side, price uint64, id core.OrderID) core.OrderID {
	s.RLock()
	defer s.RUnlock()

	order := s.read(side, id)
	if order == nil || !order.Queued || order.Price != price {
		return core.NoOrder
	}
	return order.Next
}

// Order returns the order or nil
func (s *OrderStore) Order(side core.Side, id core.OrderID) *core.Order {
	s.RLock()
	defer s.RUnlock()
	return s.read(side, id)
}

// Decrease takes converted out of the order's deposit
func (s *OrderStore) Decrease(side core.Side, id core.OrderID, converted, dust *uint256.Int, forceClear bool) (*uint256.Int, uint64, error) {
	s.Lock()
	defer s.Unlock()

	order := s.read(side, id)
	if order == nil {
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
		emptied, err := s.remove(order)
		if err != nil {
			return nil, core.NoPrice, err
		}
		return order.Deposit, emptied, nil
	}

	if err := s.client.HSet(s.ctx, s.keys.order(side, id), "deposit", remainder.Dec()).Err(); err != nil {
		return nil, core.NoPrice, fmt.Errorf("redis: store remainder: %w", err)
	}
	return new(uint256.Int).Set(converted), core.NoPrice, nil
}

// Delete removes the order and returns its remaining deposit
func (s *OrderStore) Delete(side core.Side, id core.OrderID) (*uint256.Int, uint64) {
	s.Lock()
	defer s.Unlock()

	order := s.read(side, id)
	if order == nil {
		return new(uint256.Int), core.NoPrice
	}
	emptied, err := s.remove(order)
	if err != nil {
		s.logger.Error("failed to delete order",
			zap.String("side", side.String()),
			zap.Uint64("orderID", uint64(id)),
			zap.Error(err))
		return new(uint256.Int), core.NoPrice
	}
	return order.Deposit, emptied
}

// PopHeadIfFillable unlinks the head at price when available covers it
func (s *OrderStore) PopHeadIfFillable(side core.Side, price uint64, available *uint256.Int, quote core.Quoter) (core.OrderID, *uint256.Int, bool, uint64) {
	s.Lock()
	defer s.Unlock()

	q := s.queue(side, price)
	order := s.read(side, q.head)
	if q.head == core.NoOrder || order == nil {
		return core.NoOrder, new(uint256.Int), false, core.NoPrice
	}

	required := quote(order.Clone())
	if available.Lt(required) {
		return order.ID, required, false, core.NoPrice
	}

	emptied := core.NoPrice
	_, err := s.client.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
		if s.unlink(pipe, order, q) {
			emptied = price
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to pop order",
			zap.String("side", side.String()),
			zap.Uint64("orderID", uint64(order.ID)),
			zap.Error(err))
		return order.ID, required, false, core.NoPrice
	}
	return order.ID, required, true, emptied
}

// read loads an order or returns nil
func (s *OrderStore) read(side core.Side, id core.OrderID) *core.Order {
	if id == core.NoOrder {
		return nil
	}

	fields, err := s.client.HGetAll(s.ctx, s.keys.order(side, id)).Result()
	if err != nil {
		s.logger.Error("failed to get order",
			zap.String("side", side.String()),
			zap.Uint64("orderID", uint64(id)),
			zap.Error(err))
		return nil
	}
	if len(fields) == 0 {
		return nil
	}

	deposit, err := uint256.FromDecimal(fields["deposit"])
	if err != nil {
		s.logger.Error("failed to parse order deposit",
			zap.Uint64("orderID", uint64(id)),
			zap.Error(err))
		return nil
	}

	return &core.Order{
		ID:      id,
		Side:    side,
		Owner:   common.HexToAddress(fields["owner"]),
		Price:   parseUint(fields["price"]),
		Deposit: deposit,
		Prev:    core.OrderID(parseUint(fields["prev"])),
		Next:    core.OrderID(parseUint(fields["next"])),
		Queued:  fields["queued"] == "1",
	}
}

func (s *OrderStore) queue(side core.Side, price uint64) queueEnds {
	values, err := s.client.HMGet(s.ctx, s.keys.queue(side, price), "head", "tail").Result()
	if err != nil {
		s.logger.Error("failed to get queue",
			zap.String("side", side.String()),
			zap.Uint64("price", price),
			zap.Error(err))
		return queueEnds{}
	}
	return queueEnds{
		head: core.OrderID(hashUint(values[0])),
		tail: core.OrderID(hashUint(values[1])),
	}
}

// remove drops the order, unlinking it first when queued
func (s *OrderStore) remove(order *core.Order) (uint64, error) {
	var q queueEnds
	if order.Queued {
		q = s.queue(order.Side, order.Price)
	}

	emptied := core.NoPrice
	_, err := s.client.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
		if order.Queued && s.unlink(pipe, order, q) {
			emptied = order.Price
		}
		pipe.Del(s.ctx, s.keys.order(order.Side, order.ID))
		return nil
	})
	if err != nil {
		return core.NoPrice, fmt.Errorf("redis: remove order %d: %w", order.ID, err)
	}
	return emptied, nil
}

// unlink queues the commands taking order off its queue and reports whether
// the queue ends up empty.
func (s *OrderStore) unlink(pipe redis.Pipeliner, order *core.Order, q queueEnds) bool {
	side := order.Side

	if order.Prev != core.NoOrder {
		pipe.HSet(s.ctx, s.keys.order(side, order.Prev), "next", uint64(order.Next))
	} else {
		q.head = order.Next
	}
	if order.Next != core.NoOrder {
		pipe.HSet(s.ctx, s.keys.order(side, order.Next), "prev", uint64(order.Prev))
	} else {
		q.tail = order.Prev
	}
	pipe.HSet(s.ctx, s.keys.order(side, order.ID), "prev", 0, "next", 0, "queued", 0)

	if q.head == core.NoOrder {
		pipe.Del(s.ctx, s.keys.queue(side, order.Price))
		return true
	}
	pipe.HSet(s.ctx, s.keys.queue(side, order.Price), "head", uint64(q.head), "tail", uint64(q.tail))
	return false
}

var _ core.OrderQueueStore = (*OrderStore)(nil)
