package otel

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const (
	instrumentationName = "github.com/erain9/pairbook/pkg/otel"
)

var (
	httpMetrics     *HTTPServerMetrics
	httpMetricsOnce sync.Once
)

// HTTPServerMetrics holds the metrics instruments for the market-data API
type HTTPServerMetrics struct {
	// Latency metrics
	serverLatency metric.Float64Histogram

	// Traffic metrics
	requestsTotal    metric.Int64Counter
	requestsInFlight metric.Int64UpDownCounter

	// Error metrics
	errorTotal metric.Int64Counter
}

// NewHTTPServerMetrics creates a new HTTPServerMetrics instance
func NewHTTPServerMetrics(meter metric.Meter) (*HTTPServerMetrics, error) {
	serverLatency, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("Response latency (seconds) of the market-data API"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests started"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsInFlight, err := meter.Int64UpDownCounter(
		"http.server.requests.in_flight",
		metric.WithDescription("Number of HTTP requests currently in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorTotal, err := meter.Int64Counter(
		"http.server.errors.total",
		metric.WithDescription("Total number of HTTP responses with status >= 400"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPServerMetrics{
		serverLatency:    serverLatency,
		requestsTotal:    requestsTotal,
		requestsInFlight: requestsInFlight,
		errorTotal:       errorTotal,
	}, nil
}

// GetHTTPServerMetrics returns a singleton instance of HTTPServerMetrics
// built on the configured meter provider.
func GetHTTPServerMetrics() (*HTTPServerMetrics, error) {
	var err error
	httpMetricsOnce.Do(func() {
		httpMetrics, err = NewHTTPServerMetrics(GetMeterProvider().Meter(instrumentationName))
	})
	if err != nil {
		return nil, err
	}
	return httpMetrics, nil
}

// RecordRequest records one completed request
func (m *HTTPServerMetrics) RecordRequest(ctx context.Context, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttributeRoute, route),
		semconv.HTTPStatusCodeKey.Int(status),
	)
	m.requestsTotal.Add(ctx, 1, attrs)
	m.serverLatency.Record(ctx, duration.Seconds(), attrs)
	if status >= 400 {
		m.errorTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttributeRoute, route),
			attribute.String("http.status_class", strconv.Itoa(status/100)+"xx"),
		))
	}
}

// AddInFlightRequests adds to the in-flight requests counter
func (m *HTTPServerMetrics) AddInFlightRequests(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.requestsInFlight.Add(ctx, delta)
}
