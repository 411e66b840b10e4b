package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/pairbook/config"
	"github.com/erain9/pairbook/pkg/api"
	"github.com/erain9/pairbook/pkg/backend/memory"
	redisbackend "github.com/erain9/pairbook/pkg/backend/redis"
	"github.com/erain9/pairbook/pkg/core"
	"github.com/erain9/pairbook/pkg/custody"
	"github.com/erain9/pairbook/pkg/db/queue"
	"github.com/erain9/pairbook/pkg/logging"
	"github.com/erain9/pairbook/pkg/messaging"
	"github.com/erain9/pairbook/pkg/messaging/kafka"
	"github.com/erain9/pairbook/pkg/otel"
	"github.com/erain9/pairbook/pkg/snapshot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:  cfg.Server.LogLevel,
		Pretty: cfg.Server.LogFormat == "pretty",
		Output: os.Stdout,
	})
	logger := log.Logger
	ctx := logger.WithContext(context.Background())

	// Initialize OpenTelemetry
	cleanup, err := otel.Init(otel.Config{
		ServiceName:      "pairbook",
		ServiceVersion:   "1.0.0",
		Endpoint:         cfg.Otel.Endpoint,
		CollectorEnabled: cfg.Otel.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer cleanup()
	if cfg.Otel.Enabled {
		if err := otel.StartRuntimeMetrics(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start runtime metrics")
		}
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up order book")
	}
	defer app.Close(ctx)

	// The consumer is for developer purpose which helps pretty print the
	// settlements on the topic.
	if cfg.Messaging.Type == config.MessagingKafka {
		consumer := kafka.SetupConsumer(ctx, cfg.Messaging.BrokerAddr, cfg.Messaging.Topic, logger)
		defer consumer.Close()
	}

	opts := []api.Option{api.WithAllowedOrigins(cfg.Server.AllowedOrigins...)}
	if metrics, err := otel.GetHTTPServerMetrics(); err != nil {
		logger.Warn().Err(err).Msg("HTTP metrics disabled")
	} else {
		opts = append(opts, api.WithMetrics(metrics))
	}
	httpServer := api.NewServer(app.book, opts...).NewHTTPServer(cfg.Server.HTTPAddr)

	go func() {
		logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("Server shutdown complete")
}

// app owns the order book and everything it was built on
type app struct {
	cfg       *config.Config
	book      *core.OrderBook
	ledger    *custody.Ledger
	sender    messaging.MessageSender
	snapshots *snapshot.Store
	memIndex  *memory.PriceIndex
	memStore  *memory.OrderStore
	closers   []func() error
}

// newApp builds the backends, custody and messaging named by cfg and
// initializes the pair. A memory book is restored from its snapshot when one
// exists.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := zerolog.Ctx(ctx)
	a := &app{cfg: cfg}

	var index core.PriceLevelIndex
	var orders core.OrderQueueStore
	switch cfg.Backend.Type {
	case config.BackendRedis:
		redisbackend.SetDefaultRedisOptions(&redisbackend.RedisOptions{
			Addr:     cfg.Backend.Redis.Addr,
			Password: cfg.Backend.Redis.Password,
			DB:       cfg.Backend.Redis.DB,
		})
		client := redisbackend.GetRedisClient()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Backend.Redis.Addr, err)
		}
		a.closers = append(a.closers, client.Close)

		zapLogger, err := zap.NewProduction()
		if err != nil {
			zapLogger = zap.NewNop()
		}
		a.closers = append(a.closers, func() error {
			_ = zapLogger.Sync()
			return nil
		})
		prefix := fmt.Sprintf("%s:%d", cfg.Backend.Redis.Prefix, cfg.Pair.ID)
		index = redisbackend.NewPriceIndex(client, prefix, zapLogger)
		orders = redisbackend.NewOrderStore(client, prefix, zapLogger)
	default:
		a.memIndex = memory.NewPriceIndex()
		a.memStore = memory.NewOrderStore()
		index, orders = a.memIndex, a.memStore
	}

	a.ledger = custody.NewLedger(optionalAddress(cfg.Pair.WrappedNative))

	var opts []core.Option
	sender, err := newSender(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if sender != nil {
		a.sender = sender
		opts = append(opts, core.WithMessageSender(sender))
	}

	a.book = core.NewOrderBook(index, orders, a.ledger, opts...)

	base := core.Asset{Address: common.HexToAddress(cfg.Pair.Base), Decimals: cfg.Pair.BaseDecimals}
	quote := core.Asset{Address: common.HexToAddress(cfg.Pair.Quote), Decimals: cfg.Pair.QuoteDecimals}
	if err := a.book.Initialize(ctx, cfg.Pair.ID, base, quote, common.HexToAddress(cfg.Pair.Authority)); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize pair: %w", err)
	}

	if cfg.Snapshot.Enabled && a.memIndex != nil {
		store, err := snapshot.Open(cfg.Snapshot.Dir)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.snapshots = store

		state, found, err := store.Load(cfg.Pair.ID)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		if found {
			memory.Restore(state, a.memIndex, a.memStore)
			a.fundEscrow(state)
			logger.Info().Uint64("pair_id", cfg.Pair.ID).Msg("Restored book from snapshot")
		}
	}

	return a, nil
}

// newSender returns the settlement sender for cfg, or nil when messaging is
// off
func newSender(cfg *config.Config) (messaging.MessageSender, error) {
	switch cfg.Messaging.Type {
	case config.MessagingKafka:
		sender, err := kafka.NewKafkaMessageSender(cfg.Messaging.BrokerAddr, cfg.Messaging.Topic)
		if err != nil {
			return nil, err
		}
		return sender, nil
	case config.MessagingSarama:
		queue.SetBrokerList(cfg.Messaging.BrokerAddr)
		queue.SetTopic(cfg.Messaging.Topic)
		pool, err := queue.NewQueueSenderPool(cfg.Messaging.PoolSize)
		if err != nil {
			return nil, err
		}
		return pool, nil
	default:
		return nil, nil
	}
}

// fundEscrow credits the ledger with the deposits of restored orders, queued
// or popped, so that they can be settled or refunded.
func (a *app) fundEscrow(state *memory.State) {
	pair := a.book.Pair()
	for side, table := range map[core.Side]*memory.SideTable{core.Bid: state.BidOrders, core.Ask: state.AskOrders} {
		if table == nil {
			continue
		}
		total := new(uint256.Int)
		for _, order := range table.Orders {
			total.Add(total, order.Deposit)
		}
		if !total.IsZero() {
			a.ledger.Fund(pair.DepositAsset(side), total)
		}
	}
}

// Close snapshots a memory book when enabled and releases every resource
func (a *app) Close(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	if a.snapshots != nil {
		if err := a.snapshots.SaveBook(a.cfg.Pair.ID, a.memIndex, a.memStore); err != nil {
			logger.Error().Err(err).Msg("Failed to save snapshot")
		} else {
			logger.Info().Uint64("pair_id", a.cfg.Pair.ID).Msg("Saved book snapshot")
		}
		if err := a.snapshots.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close snapshot store")
		}
		a.snapshots = nil
	}
	if a.sender != nil {
		if err := a.sender.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close message sender")
		}
		a.sender = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Error().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}

func optionalAddress(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
