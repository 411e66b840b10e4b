package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Book events counted by OrderBookMetrics
const (
	EventPlaced    = "placed"
	EventCancelled = "cancelled"
	EventFilled    = "filled"
	EventPopped    = "popped"
)

var (
	orderBookMetrics     *OrderBookMetrics
	orderBookMetricsOnce sync.Once
)

// OrderBookMetrics holds metrics for book operations
type OrderBookMetrics struct {
	// Order events by kind and side
	ordersTotal metric.Int64Counter
	// Custody transfers that failed after the book was updated
	transferFailures metric.Int64Counter
}

// GetOrderBookMetrics returns the OrderBookMetrics singleton
func GetOrderBookMetrics() *OrderBookMetrics {
	orderBookMetricsOnce.Do(func() {
		meter := GetMeterProvider().Meter(instrumentationName)

		ordersTotal, err := meter.Int64Counter(
			"orderbook.orders.total",
			metric.WithDescription("Total number of order events by kind"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			orderBookMetrics = &OrderBookMetrics{}
			return
		}

		transferFailures, err := meter.Int64Counter(
			"orderbook.transfer_failures.total",
			metric.WithDescription("Total number of failed custody transfers"),
			metric.WithUnit("{transfer}"),
		)
		if err != nil {
			orderBookMetrics = &OrderBookMetrics{ordersTotal: ordersTotal}
			return
		}

		orderBookMetrics = &OrderBookMetrics{
			ordersTotal:      ordersTotal,
			transferFailures: transferFailures,
		}
	})

	return orderBookMetrics
}

// RecordEvent increments the order event counter
func (m *OrderBookMetrics) RecordEvent(ctx context.Context, event, side string) {
	if m == nil || m.ordersTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("order.event", event),
		attribute.String(AttributeOrderSide, side),
	}
	m.ordersTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransferFailure increments the failed transfer counter
func (m *OrderBookMetrics) RecordTransferFailure(ctx context.Context, asset string) {
	if m == nil || m.transferFailures == nil {
		return
	}
	m.transferFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("asset", asset)))
}
