package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Span names
	SpanPlaceOrder         = "place_order"
	SpanCancelOrder        = "cancel_order"
	SpanExecuteOrder       = "execute_order"
	SpanTryPop             = "try_pop"
	SpanSetLastTradedPrice = "set_last_traded_price"
	SpanSendSettlement     = "send_settlement"
	SpanMarketRequest      = "market_request"

	// Attribute keys
	AttributePairID      = "pair.id"
	AttributeOrderID     = "order.id"
	AttributeOrderSide   = "order.side"
	AttributeOrderPrice  = "order.price"
	AttributeOrderAmount = "order.amount"
	AttributeOrderOwner  = "order.owner"
	AttributeRequired    = "order.required"
	AttributeWithDust    = "order.with_dust"
	AttributeFilled      = "order.filled"
	AttributeForceClear  = "order.force_clear"
	AttributeRoute       = "http.route"
)

// StartOrderSpan starts a new span for a book operation
func StartOrderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetOrderBookTracer()
	if name == SpanMarketRequest {
		tracer = GetMarketAPITracer()
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
