package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartOrderSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, InitForTesting(tp.Tracer("test")))
	defer ResetForTesting()

	_, span := StartOrderSpan(context.Background(), SpanPlaceOrder,
		attribute.String(AttributeOrderSide, "BID"))
	AddAttributes(span, attribute.Int64(AttributeOrderID, 3))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanPlaceOrder, ended[0].Name())

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "BID", attrs[AttributeOrderSide].AsString())
	assert.Equal(t, int64(3), attrs[AttributeOrderID].AsInt64())
}

func TestAddAttributesNilSpan(t *testing.T) {
	assert.NotPanics(t, func() { AddAttributes(nil, attribute.Bool(AttributeFilled, true)) })
}

func TestHTTPServerMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewHTTPServerMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m.AddInFlightRequests(ctx, 1)
	m.RecordRequest(ctx, "/api/v1/pair", 200, time.Millisecond)
	m.RecordRequest(ctx, "/api/v1/orders/{side}/{id}", 404, time.Millisecond)
	m.AddInFlightRequests(ctx, -1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if data, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, point := range data.DataPoints {
					sums[metric.Name] += point.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["http.server.requests.total"])
	assert.Equal(t, int64(1), sums["http.server.errors.total"])
	assert.Equal(t, int64(0), sums["http.server.requests.in_flight"])
}

func TestNilMetricsAreNoops(t *testing.T) {
	var hm *HTTPServerMetrics
	var om *OrderBookMetrics
	assert.NotPanics(t, func() {
		hm.RecordRequest(context.Background(), "/", 200, time.Second)
		hm.AddInFlightRequests(context.Background(), 1)
		om.RecordEvent(context.Background(), EventPlaced, "BID")
		om.RecordTransferFailure(context.Background(), "0x0")
	})
}
