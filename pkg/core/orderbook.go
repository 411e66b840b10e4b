package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/erain9/pairbook/pkg/logging"
	"github.com/erain9/pairbook/pkg/messaging"
	"github.com/erain9/pairbook/pkg/otel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OrderBook coordinates one pair's price index and order queues on behalf of
// a single crossing authority. Mutating calls are expected to be serialized
// by the caller; every custody transfer and settlement message is issued
// only after the book has reached its final state for that call, so a
// transfer that re-enters the book observes consistent state.
type OrderBook struct {
	index   PriceLevelIndex
	orders  OrderQueueStore
	custody Custody
	policy  AccessPolicy
	sender  messaging.MessageSender
	pair    atomic.Pointer[Pair]
}

// Option configures an OrderBook
type Option func(*OrderBook)

// WithAccessPolicy replaces the default AuthorityPolicy
func WithAccessPolicy(policy AccessPolicy) Option {
	return func(ob *OrderBook) {
		ob.policy = policy
	}
}

// WithMessageSender publishes settlement messages through sender
func WithMessageSender(sender messaging.MessageSender) Option {
	return func(ob *OrderBook) {
		ob.sender = sender
	}
}

// NewOrderBook creates an uninitialized OrderBook over the given backends
func NewOrderBook(index PriceLevelIndex, orders OrderQueueStore, custody Custody, opts ...Option) *OrderBook {
	ob := &OrderBook{
		index:   index,
		orders:  orders,
		custody: custody,
		policy:  AuthorityPolicy{},
	}
	for _, opt := range opts {
		opt(ob)
	}
	return ob
}

// Initialize sets the pair configuration. It succeeds once.
func (ob *OrderBook) Initialize(ctx context.Context, id uint64, base, quote Asset, authority common.Address) error {
	if ob.pair.Load() != nil {
		return ErrAlreadyInitialized
	}

	pair, err := NewPair(id, base, quote, authority)
	if err != nil {
		return err
	}
	if !ob.pair.CompareAndSwap(nil, pair) {
		return ErrAlreadyInitialized
	}

	logger := logging.FromContext(ctx)
	logger.Info().
		Uint64("pair_id", id).
		Str("base", base.Address.Hex()).
		Str("quote", quote.Address.Hex()).
		Str("authority", authority.Hex()).
		Msg("Pair initialized")
	return nil
}

// Pair returns the pair configuration, or nil before Initialize
func (ob *OrderBook) Pair() *Pair {
	return ob.pair.Load()
}

// PlaceBid rests a bid depositing amount of the quote asset
func (ob *OrderBook) PlaceBid(ctx context.Context, caller Caller, owner common.Address, price uint64, amount *uint256.Int) (OrderID, error) {
	return ob.place(ctx, caller, Bid, owner, price, amount)
}

// PlaceAsk rests an ask depositing amount of the base asset
func (ob *OrderBook) PlaceAsk(ctx context.Context, caller Caller, owner common.Address, price uint64, amount *uint256.Int) (OrderID, error) {
	return ob.place(ctx, caller, Ask, owner, price, amount)
}

func (ob *OrderBook) place(ctx context.Context, caller Caller, side Side, owner common.Address, price uint64, amount *uint256.Int) (OrderID, error) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanPlaceOrder,
		attribute.String(otel.AttributeOrderSide, side.String()),
		attribute.Int64(otel.AttributeOrderPrice, int64(price)),
		attribute.String(otel.AttributeOrderOwner, owner.Hex()),
	)
	defer span.End()

	pair, err := ob.authorize(caller)
	if err != nil {
		return NoOrder, fail(span, err)
	}
	if price == NoPrice {
		return NoOrder, fail(span, ErrPriceIsZero)
	}
	if amount == nil || amount.IsZero() {
		return NoOrder, fail(span, ErrInvalidAmount)
	}

	ob.index.ClearHead(side, ob.isEmpty(side))

	id := ob.orders.CreateOrder(side, owner, price, amount)
	if !ob.index.Contains(side, price) {
		ob.index.Insert(side, price)
	}
	ob.orders.Append(side, price, id)

	otel.AddAttributes(span,
		attribute.Int64(otel.AttributeOrderID, int64(id)),
		attribute.String(otel.AttributeOrderAmount, amount.Dec()),
	)
	span.SetStatus(codes.Ok, "order placed")
	otel.GetOrderBookMetrics().RecordEvent(ctx, otel.EventPlaced, side.String())

	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("side", side.String()).
		Uint64("order_id", uint64(id)).
		Uint64("price", price).
		Str("amount", amount.Dec()).
		Msg("Order placed")

	ob.publish(ctx, &messaging.SettlementMessage{
		Kind:    messaging.KindPlace,
		PairID:  pair.ID,
		Side:    side.String(),
		OrderID: uint64(id),
		Price:   price,
		Owner:   owner.Hex(),
		Asset:   pair.DepositAsset(side).Hex(),
		Amount:  amount.Dec(),
	})
	return id, nil
}

// Cancel removes an order and refunds its remaining deposit to owner, who
// must be the order's recorded owner.
func (ob *OrderBook) Cancel(ctx context.Context, caller Caller, side Side, id OrderID, owner common.Address) error {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanCancelOrder,
		attribute.String(otel.AttributeOrderSide, side.String()),
		attribute.Int64(otel.AttributeOrderID, int64(id)),
	)
	defer span.End()

	pair, err := ob.authorize(caller)
	if err != nil {
		return fail(span, err)
	}

	order := ob.orders.Order(side, id)
	if order == nil {
		return fail(span, fmt.Errorf("%w: %s order %d", ErrNonexistentOrder, side, id))
	}
	if order.Owner != owner {
		return fail(span, fmt.Errorf("%w: %s does not own order %d", ErrInvalidAccess, owner.Hex(), id))
	}

	refund, emptied := ob.orders.Delete(side, id)
	if emptied != NoPrice {
		ob.index.Delete(side, emptied)
	}

	otel.GetOrderBookMetrics().RecordEvent(ctx, otel.EventCancelled, side.String())
	asset := pair.DepositAsset(side)
	err = ob.transfer(ctx, asset, owner, refund)

	msg := &messaging.SettlementMessage{
		Kind:    messaging.KindCancel,
		PairID:  pair.ID,
		Side:    side.String(),
		OrderID: uint64(id),
		Price:   order.Price,
		Owner:   owner.Hex(),
		Asset:   asset.Hex(),
		Amount:  refund.Dec(),
		Closed:  true,
	}
	ob.publish(ctx, msg)

	if err != nil {
		return fail(span, err)
	}
	span.SetStatus(codes.Ok, "order cancelled")
	return nil
}

// Execute fills order id with amount of the counter asset. The owner
// receives amount; filler receives the deposited-asset equivalent, including
// any dust left behind when the order closes. With forceClear set the order
// is closed regardless of its remainder. Execute returns the order's owner.
func (ob *OrderBook) Execute(ctx context.Context, caller Caller, side Side, id OrderID, filler common.Address, amount *uint256.Int, forceClear bool) (common.Address, error) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanExecuteOrder,
		attribute.String(otel.AttributeOrderSide, side.String()),
		attribute.Int64(otel.AttributeOrderID, int64(id)),
		attribute.Bool(otel.AttributeForceClear, forceClear),
	)
	defer span.End()

	pair, err := ob.authorize(caller)
	if err != nil {
		return common.Address{}, fail(span, err)
	}
	if amount == nil {
		return common.Address{}, fail(span, ErrInvalidAmount)
	}

	order := ob.orders.Order(side, id)
	if order == nil {
		return common.Address{}, fail(span, fmt.Errorf("%w: %s order %d", ErrNonexistentOrder, side, id))
	}

	converted := pair.ToDeposit(side, order.Price, amount)
	dust := pair.Dust(side, order.Price)

	withDust, emptied, err := ob.orders.Decrease(side, id, converted, dust, forceClear)
	if err != nil {
		return common.Address{}, fail(span, err)
	}
	if emptied != NoPrice {
		ob.index.Delete(side, emptied)
	}
	closed := ob.orders.Order(side, id) == nil

	otel.AddAttributes(span,
		attribute.String(otel.AttributeOrderAmount, amount.Dec()),
		attribute.String(otel.AttributeWithDust, withDust.Dec()),
		attribute.Bool(otel.AttributeFilled, closed),
	)
	otel.GetOrderBookMetrics().RecordEvent(ctx, otel.EventFilled, side.String())

	counterAsset := pair.CounterAsset(side)
	depositAsset := pair.DepositAsset(side)
	err = errors.Join(
		ob.transfer(ctx, counterAsset, order.Owner, amount),
		ob.transfer(ctx, depositAsset, filler, withDust),
	)

	ob.publish(ctx, &messaging.SettlementMessage{
		Kind:         messaging.KindFill,
		PairID:       pair.ID,
		Side:         side.String(),
		OrderID:      uint64(id),
		Price:        order.Price,
		Owner:        order.Owner.Hex(),
		Counterparty: filler.Hex(),
		Asset:        counterAsset.Hex(),
		Amount:       amount.Dec(),
		FillerAsset:  depositAsset.Hex(),
		FillerAmount: withDust.Dec(),
		Closed:       closed,
	})

	if err != nil {
		return order.Owner, fail(span, err)
	}
	span.SetStatus(codes.Ok, "order executed")
	return order.Owner, nil
}

// TryPop reports the counter-asset amount that fully consumes the oldest
// order at price. When remaining covers it the order is taken off its queue,
// pending settlement through Execute with forceClear, and filled is true.
func (ob *OrderBook) TryPop(ctx context.Context, caller Caller, side Side, price uint64, remaining *uint256.Int) (OrderID, *uint256.Int, bool, error) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanTryPop,
		attribute.String(otel.AttributeOrderSide, side.String()),
		attribute.Int64(otel.AttributeOrderPrice, int64(price)),
	)
	defer span.End()

	pair, err := ob.authorize(caller)
	if err != nil {
		return NoOrder, nil, false, fail(span, err)
	}
	if price == NoPrice {
		return NoOrder, nil, false, fail(span, ErrPriceIsZero)
	}
	if remaining == nil {
		remaining = new(uint256.Int)
	}

	ob.index.ClearHead(side, ob.isEmpty(side))

	quote := func(o *Order) *uint256.Int {
		return pair.Required(side, o.Price, o.Deposit)
	}
	id, required, filled, emptied := ob.orders.PopHeadIfFillable(side, price, remaining, quote)
	if emptied != NoPrice {
		ob.index.Delete(side, emptied)
	}
	if required == nil {
		required = new(uint256.Int)
	}

	otel.AddAttributes(span,
		attribute.Int64(otel.AttributeOrderID, int64(id)),
		attribute.String(otel.AttributeRequired, required.Dec()),
		attribute.Bool(otel.AttributeFilled, filled),
	)
	if filled {
		otel.GetOrderBookMetrics().RecordEvent(ctx, otel.EventPopped, side.String())
	}
	span.SetStatus(codes.Ok, "head inspected")
	return id, required, filled, nil
}

// SetLastTradedPrice records the price of a confirmed trade
func (ob *OrderBook) SetLastTradedPrice(ctx context.Context, caller Caller, price uint64) error {
	_, span := otel.StartOrderSpan(ctx, otel.SpanSetLastTradedPrice,
		attribute.Int64(otel.AttributeOrderPrice, int64(price)),
	)
	defer span.End()

	if _, err := ob.authorize(caller); err != nil {
		return fail(span, err)
	}
	if price == NoPrice {
		return fail(span, ErrPriceIsZero)
	}
	ob.index.SetLastTradedPrice(price)
	span.SetStatus(codes.Ok, "last traded price set")
	return nil
}

// BestPrice returns the best price of side holding at least one queued
// order, or NoPrice.
func (ob *OrderBook) BestPrice(side Side) uint64 {
	return ob.skipEmpty(side, ob.index.Head(side))
}

// NextPrice returns the next-worse price after price holding at least one
// queued order, or NoPrice.
func (ob *OrderBook) NextPrice(side Side, price uint64) uint64 {
	return ob.skipEmpty(side, ob.index.Next(side, price))
}

// Prices yields up to n active prices of side, best first. n <= 0 yields all.
func (ob *OrderBook) Prices(side Side, n int) iter.Seq[uint64] {
	return PricesFrom(liveChain{ob}, side, n)
}

// PricesRange yields the active prices of side between start and end
// inclusive, best first.
func (ob *OrderBook) PricesRange(side Side, start, end uint64) iter.Seq[uint64] {
	return PricesRange(liveChain{ob}, side, start, end)
}

// Orders yields up to n queued orders at price, oldest first. n <= 0 yields
// all.
func (ob *OrderBook) Orders(side Side, price uint64, n int) iter.Seq[*Order] {
	return func(yield func(*Order) bool) {
		count := 0
		for id := ob.orders.Head(side, price); id != NoOrder; id = ob.orders.Next(side, price, id) {
			if n > 0 && count >= n {
				return
			}
			order := ob.orders.Order(side, id)
			if order == nil {
				return
			}
			if !yield(order) {
				return
			}
			count++
		}
	}
}

// Order looks up a single order
func (ob *OrderBook) Order(side Side, id OrderID) (*Order, error) {
	order := ob.orders.Order(side, id)
	if order == nil {
		return nil, fmt.Errorf("%w: %s order %d", ErrNonexistentOrder, side, id)
	}
	return order, nil
}

// Depth summarizes up to n price levels of side, best first
func (ob *OrderBook) Depth(side Side, n int) []Level {
	levels := make([]Level, 0)
	for price := range ob.Prices(side, n) {
		level := Level{Price: price, Deposit: new(uint256.Int)}
		for order := range ob.Orders(side, price, 0) {
			level.Orders++
			level.Deposit.Add(level.Deposit, order.Deposit)
		}
		levels = append(levels, level)
	}
	return levels
}

// RequiredAmount returns the counter-asset amount that fully consumes order id
func (ob *OrderBook) RequiredAmount(side Side, id OrderID) (*uint256.Int, error) {
	pair := ob.pair.Load()
	if pair == nil {
		return nil, ErrNotInitialized
	}
	order, err := ob.Order(side, id)
	if err != nil {
		return nil, err
	}
	return pair.Required(side, order.Price, order.Deposit), nil
}

// Convert converts amount at an explicit price
func (ob *OrderBook) Convert(price uint64, amount *uint256.Int, towardQuote bool) (*uint256.Int, error) {
	pair := ob.pair.Load()
	if pair == nil {
		return nil, ErrNotInitialized
	}
	if price == NoPrice {
		return nil, ErrPriceIsZero
	}
	return pair.Convert(price, amount, towardQuote), nil
}

// AssetValue converts amount at the current market price
func (ob *OrderBook) AssetValue(amount *uint256.Int, towardQuote bool) (*uint256.Int, error) {
	price, err := ob.MarketPrice()
	if err != nil {
		return nil, err
	}
	return ob.Convert(price, amount, towardQuote)
}

// ConvertAtLastTrade converts amount at the last traded price
func (ob *OrderBook) ConvertAtLastTrade(amount *uint256.Int, towardQuote bool) (*uint256.Int, error) {
	price := ob.index.LastTradedPrice()
	if price == NoPrice {
		return nil, ErrNoMarketPrice
	}
	return ob.Convert(price, amount, towardQuote)
}

// LastTradedPrice returns the last traded price or NoPrice
func (ob *OrderBook) LastTradedPrice() uint64 {
	return ob.index.LastTradedPrice()
}

// MarketPrice returns the last traded price when set, otherwise the bid/ask
// midpoint, otherwise whichever side has a price.
func (ob *OrderBook) MarketPrice() (uint64, error) {
	if last := ob.index.LastTradedPrice(); last != NoPrice {
		return last, nil
	}

	bid, ask := ob.BestPrice(Bid), ob.BestPrice(Ask)
	switch {
	case bid != NoPrice && ask != NoPrice:
		return bid/2 + ask/2 + (bid%2+ask%2)/2, nil
	case bid != NoPrice:
		return bid, nil
	case ask != NoPrice:
		return ask, nil
	}
	return NoPrice, ErrNoMarketPrice
}

// String implements fmt.Stringer interface
func (ob *OrderBook) String() string {
	builder := strings.Builder{}

	for _, side := range []Side{Ask, Bid} {
		builder.WriteString(side.String())
		builder.WriteString(":")
		for _, level := range ob.Depth(side, 0) {
			builder.WriteString(fmt.Sprintf("\n\t%d -> %s (%d orders)", level.Price, level.Deposit.Dec(), level.Orders))
		}
		builder.WriteString("\n")
	}

	return builder.String()
}

// private methods

func (ob *OrderBook) authorize(caller Caller) (*Pair, error) {
	pair := ob.pair.Load()
	if pair == nil {
		return nil, ErrNotInitialized
	}
	if err := ob.policy.Authorize(pair, caller); err != nil {
		return nil, err
	}
	return pair, nil
}

func (ob *OrderBook) isEmpty(side Side) func(price uint64) bool {
	return func(price uint64) bool {
		return ob.orders.IsEmpty(side, price)
	}
}

func (ob *OrderBook) skipEmpty(side Side, price uint64) uint64 {
	for price != NoPrice && ob.orders.IsEmpty(side, price) {
		price = ob.index.Next(side, price)
	}
	return price
}

// transfer sends amount of asset to to, unwrapping the wrapped-native asset
func (ob *OrderBook) transfer(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}

	var err error
	if wrapped := ob.custody.WrappedNative(); wrapped != (common.Address{}) && asset == wrapped {
		err = ob.custody.UnwrapAndSend(ctx, to, amount)
	} else {
		err = ob.custody.Transfer(ctx, asset, to, amount)
	}
	if err == nil {
		return nil
	}

	otel.GetOrderBookMetrics().RecordTransferFailure(ctx, asset.Hex())
	logger := logging.FromContext(ctx)
	logger.Error().
		Err(err).
		Str("asset", asset.Hex()).
		Str("to", to.Hex()).
		Str("amount", amount.Dec()).
		Msg("Custody transfer failed")
	return fmt.Errorf("%w: %s of %s to %s: %w", ErrTransferFailed, amount.Dec(), asset.Hex(), to.Hex(), err)
}

// publish sends a settlement message. Delivery failures are logged and do
// not fail the book operation.
func (ob *OrderBook) publish(ctx context.Context, msg *messaging.SettlementMessage) {
	if ob.sender == nil {
		return
	}

	ctx, span := otel.StartOrderSpan(ctx, otel.SpanSendSettlement,
		attribute.Int64(otel.AttributeOrderID, int64(msg.OrderID)),
		attribute.String(otel.AttributeOrderSide, msg.Side),
	)
	defer span.End()

	if err := ob.sender.SendSettlement(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send settlement message")
		logger := logging.FromContext(ctx)
		logger.Warn().
			Err(err).
			Str("kind", msg.Kind).
			Uint64("order_id", msg.OrderID).
			Msg("Failed to send settlement message")
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// liveChain walks the index skipping levels whose queue is empty
type liveChain struct {
	ob *OrderBook
}

func (c liveChain) Head(side Side) uint64 {
	return c.ob.BestPrice(side)
}

func (c liveChain) Next(side Side, price uint64) uint64 {
	return c.ob.NextPrice(side, price)
}
