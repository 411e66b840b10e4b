package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

var defaultOptions = &RedisOptions{
	Addr:     "localhost:6379",
	Password: "",
	DB:       0,
}

// SetDefaultRedisOptions sets the default options for Redis connections
func SetDefaultRedisOptions(options *RedisOptions) {
	defaultOptions = options
}

// GetRedisClient creates a new Redis client using the default options
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     defaultOptions.Addr,
		Password: defaultOptions.Password,
		DB:       defaultOptions.DB,
	})
}

// keyspace names every key a pair's book uses under one prefix
type keyspace struct {
	prefix string
}

func sideName(side core.Side) string {
	return strings.ToLower(side.String())
}

// priceMember encodes price so that lexicographic order matches numeric order
func priceMember(price uint64) string {
	return fmt.Sprintf("%020d", price)
}

// prices is the sorted set of active prices used to find neighbours
func (k keyspace) prices(side core.Side) string {
	return fmt.Sprintf("%s:%s:prices", k.prefix, sideName(side))
}

// chain holds the head and tail of a side's price chain
func (k keyspace) chain(side core.Side) string {
	return fmt.Sprintf("%s:%s:chain", k.prefix, sideName(side))
}

// level holds the prev and next links of one price
func (k keyspace) level(side core.Side, price uint64) string {
	return fmt.Sprintf("%s:%s:level:%d", k.prefix, sideName(side), price)
}

func (k keyspace) lastTradedPrice() string {
	return fmt.Sprintf("%s:last_traded_price", k.prefix)
}

func (k keyspace) seq(side core.Side) string {
	return fmt.Sprintf("%s:%s:seq", k.prefix, sideName(side))
}

func (k keyspace) order(side core.Side, id core.OrderID) string {
	return fmt.Sprintf("%s:%s:order:%d", k.prefix, sideName(side), id)
}

// queue holds the head and tail of the FIFO at one price
func (k keyspace) queue(side core.Side, price uint64) string {
	return fmt.Sprintf("%s:%s:queue:%d", k.prefix, sideName(side), price)
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

// PriceIndex implements core.PriceLevelIndex on Redis. Each price is a hash
// holding its prev and next links; a lexicographic sorted set of zero-padded
// prices is kept alongside to locate neighbours on insert.
type PriceIndex struct {
	sync.RWMutex
	client *redis.Client
	ctx    context.Context
	keys   keyspace
	logger *zap.Logger
}

// NewPriceIndex creates a PriceIndex storing its keys under prefix
func NewPriceIndex(client *redis.Client, prefix string, logger *zap.Logger) *PriceIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceIndex{
		client: client,
		ctx:    context.Background(),
		keys:   keyspace{prefix: prefix},
		logger: logger,
	}
}

// WithContext returns a shallow copy of the index using ctx for Redis calls
func (pi *PriceIndex) WithContext(ctx context.Context) *PriceIndex {
	return &PriceIndex{
		client: pi.client,
		ctx:    ctx,
		keys:   pi.keys,
		logger: pi.logger,
	}
}

// Insert links price at its sorted position
func (pi *PriceIndex) Insert(side core.Side, price uint64) {
	if price == core.NoPrice {
		return
	}

	pi.Lock()
	defer pi.Unlock()

	if pi.contains(side, price) {
		return
	}

	member := priceMember(price)
	lower := pi.neighbour(side, "-", "("+member, true)
	higher := pi.neighbour(side, "("+member, "+", false)

	// Bids run from high to low, asks from low to high
	prev, next := lower, higher
	if side == core.Bid {
		prev, next = higher, lower
	}

	_, err := pi.client.TxPipelined(pi.ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(pi.ctx, pi.keys.prices(side), redis.Z{Score: 0, Member: member})
		pipe.HSet(pi.ctx, pi.keys.level(side, price), "prev", prev, "next", next)
		if prev != core.NoPrice {
			pipe.HSet(pi.ctx, pi.keys.level(side, prev), "next", price)
		} else {
			pipe.HSet(pi.ctx, pi.keys.chain(side), "head", price)
		}
		if next != core.NoPrice {
			pipe.HSet(pi.ctx, pi.keys.level(side, next), "prev", price)
		} else {
			pipe.HSet(pi.ctx, pi.keys.chain(side), "tail", price)
		}
		return nil
	})
	if err != nil {
		pi.logger.Error("failed to insert price level",
			zap.String("side", side.String()),
			zap.Uint64("price", price),
			zap.Error(err))
	}
}

// Delete unlinks price. Deleting an inactive price does nothing.
func (pi *PriceIndex) Delete(side core.Side, price uint64) {
	pi.Lock()
	defer pi.Unlock()

	prev, next, ok := pi.links(side, price)
	if !ok {
		return
	}

	_, err := pi.client.TxPipelined(pi.ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(pi.ctx, pi.keys.prices(side), priceMember(price))
		pipe.Del(pi.ctx, pi.keys.level(side, price))
		if prev != core.NoPrice {
			pipe.HSet(pi.ctx, pi.keys.level(side, prev), "next", next)
		} else {
			pipe.HSet(pi.ctx, pi.keys.chain(side), "head", next)
		}
		if next != core.NoPrice {
			pipe.HSet(pi.ctx, pi.keys.level(side, next), "prev", prev)
		} else {
			pipe.HSet(pi.ctx, pi.keys.chain(side), "tail", prev)
		}
		return nil
	})
	if err != nil {
		pi.logger.Error("failed to delete price level",
			zap.String("side", side.String()),
			zap.Uint64("price", price),
			zap.Error(err))
	}
}

// Contains reports whether price is active on side
func (pi *PriceIndex) Contains(side core.Side, price uint64) bool {
	pi.RLock()
	defer pi.RUnlock()
	return pi.contains(side, price)
}

// Head returns the best price of side
func (pi *PriceIndex) Head(side core.Side) uint64 {
	pi.RLock()
	defer pi.RUnlock()

	head, err := pi.client.HGet(pi.ctx, pi.keys.chain(side), "head").Result()
	if err != nil {
		if err != redis.Nil {
			pi.logger.Error("failed to get head",
				zap.String("side", side.String()),
				zap.Error(err))
		}
		return core.NoPrice
	}
	return parseUint(head)
}

// Next returns the next-worse price after price
func (pi *PriceIndex) Next(side core.Side, price uint64) uint64 {
	pi.RLock()
	defer pi.RUnlock()

	_, next, _ := pi.links(side, price)
	return next
}

// ClearHead deletes head levels reported empty and returns the new head
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
	if err := pi.client.Set(pi.ctx, pi.keys.lastTradedPrice(), price, 0).Err(); err != nil {
		pi.logger.Error("failed to set last traded price",
			zap.Uint64("price", price),
			zap.Error(err))
	}
}

// LastTradedPrice returns the last traded price
func (pi *PriceIndex) LastTradedPrice() uint64 {
	price, err := pi.client.Get(pi.ctx, pi.keys.lastTradedPrice()).Uint64()
	if err != nil {
		if err != redis.Nil {
			pi.logger.Error("failed to get last traded price", zap.Error(err))
		}
		return core.NoPrice
	}
	return price
}

// String implements fmt.Stringer interface
func (pi *PriceIndex) String() string {
	sb := strings.Builder{}
	for _, side := range []core.Side{core.Ask, core.Bid} {
		sb.WriteString(side.String())
		sb.WriteString(":")
		for price := pi.Head(side); price != core.NoPrice; price = pi.Next(side, price) {
			sb.WriteString(fmt.Sprintf(" %d", price))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (pi *PriceIndex) contains(side core.Side, price uint64) bool {
	n, err := pi.client.Exists(pi.ctx, pi.keys.level(side, price)).Result()
	if err != nil {
		pi.logger.Error("failed to check price level",
			zap.String("side", side.String()),
			zap.Uint64("price", price),
			zap.Error(err))
		return false
	}
	return n > 0
}

func (pi *PriceIndex) links(side core.Side, price uint64) (uint64, uint64, bool) {
	values, err := pi.client.HMGet(pi.ctx, pi.keys.level(side, price), "prev", "next").Result()
	if err != nil {
		pi.logger.Error("failed to read price level",
			zap.String("side", side.String()),
			zap.Uint64("price", price),
			zap.Error(err))
		return core.NoPrice, core.NoPrice, false
	}
	if values[0] == nil && values[1] == nil {
		return core.NoPrice, core.NoPrice, false
	}
	return hashUint(values[0]), hashUint(values[1]), true
}

// neighbour returns the closest active price in the lexicographic range
// [lo, hi], taking the highest when reverse is set.
func (pi *PriceIndex) neighbour(side core.Side, lo, hi string, reverse bool) uint64 {
	by := &redis.ZRangeBy{Min: lo, Max: hi, Count: 1}

	var members []string
	var err error
	if reverse {
		members, err = pi.client.ZRevRangeByLex(pi.ctx, pi.keys.prices(side), by).Result()
	} else {
		members, err = pi.client.ZRangeByLex(pi.ctx, pi.keys.prices(side), by).Result()
	}
	if err != nil {
		pi.logger.Error("failed to find neighbouring price",
			zap.String("side", side.String()),
			zap.Error(err))
		return core.NoPrice
	}
	if len(members) == 0 {
		return core.NoPrice
	}
	return parseUint(members[0])
}

// hashUint converts an HMGET reply value
func hashUint(v interface{}) uint64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	return parseUint(s)
}

var _ core.PriceLevelIndex = (*PriceIndex)(nil)
