package otel

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ServiceOrderBook = "pairbook"
	ServiceMarketAPI = "pairbook-api"
)

var (
	orderBookTracer      trace.Tracer
	marketAPITracer      trace.Tracer
	orderBookProvider    *sdktrace.TracerProvider
	meterProvider        *sdkmetric.MeterProvider
	orderBookResource    *sdkresource.Resource
	marketAPIResource    *sdkresource.Resource
	marketTracerProvider *sdktrace.TracerProvider
)

// Config holds the OpenTelemetry configuration
type Config struct {
	ServiceName      string
	ServiceVersion   string
	Endpoint         string
	ConnectTimeout   time.Duration
	CollectorEnabled bool
}

// Init initializes OpenTelemetry with the given configuration
func Init(cfg Config) (func(), error) {
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "0.1.0"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	var cleanup []func()

	bookService, apiService := ServiceOrderBook, ServiceMarketAPI
	if cfg.ServiceName != "" {
		bookService, apiService = cfg.ServiceName, cfg.ServiceName+"-api"
	}
	orderBookResource = initResource(bookService, cfg.ServiceVersion)
	marketAPIResource = initResource(apiService, cfg.ServiceVersion)

	if cfg.CollectorEnabled {
		tp, err := initTracerProvider(cfg, orderBookResource)
		if err != nil {
			log.Printf("Warning: Failed to initialize order book tracer provider: %v", err)
		} else {
			orderBookProvider = tp
			cleanup = append(cleanup, shutdownFunc(cfg, "order book tracer provider", tp.Shutdown))
		}

		apiTP, err := initTracerProvider(cfg, marketAPIResource)
		if err != nil {
			log.Printf("Warning: Failed to initialize market API tracer provider: %v", err)
		} else {
			marketTracerProvider = apiTP
			cleanup = append(cleanup, shutdownFunc(cfg, "market API tracer provider", apiTP.Shutdown))
		}

		mp, err := initMeterProvider(cfg, orderBookResource)
		if err != nil {
			log.Printf("Warning: Failed to initialize meter provider: %v. Continuing without metrics.", err)
		} else {
			meterProvider = mp
			cleanup = append(cleanup, shutdownFunc(cfg, "meter provider", mp.Shutdown))
		}
	}

	if orderBookProvider != nil {
		orderBookTracer = orderBookProvider.Tracer(ServiceOrderBook)
	}
	if marketTracerProvider != nil {
		marketAPITracer = marketTracerProvider.Tracer(ServiceMarketAPI)
	}

	return func() {
		for _, fn := range cleanup {
			fn()
		}
	}, nil
}

func shutdownFunc(cfg Config, what string, shutdown func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Printf("Error shutting down %s: %v", what, err)
		}
	}
}

func initResource(serviceName, serviceVersion string) *sdkresource.Resource {
	extraResources, err := sdkresource.New(
		context.Background(),
		sdkresource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		sdkresource.WithOS(),
		sdkresource.WithProcess(),
		sdkresource.WithHost(),
	)
	if err != nil {
		log.Printf("Failed to create resource: %v", err)
		return sdkresource.Default()
	}

	resource, err := sdkresource.Merge(
		sdkresource.Default(),
		extraResources,
	)
	if err != nil {
		log.Printf("Failed to merge resources: %v", err)
		return sdkresource.Default()
	}

	return resource
}

func dialCollector(cfg Config) (*grpc.ClientConn, error) {
	return grpc.NewClient(cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

func initTracerProvider(cfg Config, resource *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	conn, err := dialCollector(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithGRPCConn(conn),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(1),
		)),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)

	return tp, nil
}

func initMeterProvider(cfg Config, resource *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	ctx := context.Background()

	conn, err := dialCollector(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithGRPCConn(conn),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(5*time.Second))),
		sdkmetric.WithResource(resource),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}

// GetOrderBookTracer returns the tracer for book operations
func GetOrderBookTracer() trace.Tracer {
	if orderBookTracer == nil {
		return otel.Tracer(ServiceOrderBook)
	}
	return orderBookTracer
}

// GetMarketAPITracer returns the tracer for the market-data API
func GetMarketAPITracer() trace.Tracer {
	if marketAPITracer == nil {
		return otel.Tracer(ServiceMarketAPI)
	}
	return marketAPITracer
}

// GetMeterProvider returns the configured meter provider, or the global one
func GetMeterProvider() metric.MeterProvider {
	if meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return meterProvider
}

// ResetForTesting resets the global variables for testing
func ResetForTesting() {
	orderBookTracer = nil
	marketAPITracer = nil
	orderBookProvider = nil
	marketTracerProvider = nil
}

// InitForTesting initializes the tracers for testing
func InitForTesting(tracer trace.Tracer) error {
	orderBookTracer = tracer
	marketAPITracer = tracer
	return nil
}
