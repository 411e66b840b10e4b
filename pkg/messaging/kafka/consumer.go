package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/erain9/pairbook/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageReader is the part of kafka.Reader the consumer uses
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// SettlementConsumer reads settlement messages with a kafka-go reader
type SettlementConsumer struct {
	reader messageReader
	logger zerolog.Logger
}

// NewSettlementConsumer creates a consumer in groupID reading topic
func NewSettlementConsumer(brokerAddr, topic, groupID string, logger zerolog.Logger) *SettlementConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &SettlementConsumer{reader: reader, logger: logger}
}

// Run calls handler for every message until ctx is done. Messages that do
// not decode are logged and skipped.
func (c *SettlementConsumer) Run(ctx context.Context, handler func(*messaging.SettlementMessage) error) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to read settlement message: %w", err)
		}

		msg, err := decodeSettlement(m)
		if err != nil {
			c.logger.Warn().Err(err).Int64("offset", m.Offset).Msg("Skipping undecodable settlement message")
			continue
		}
		if err := handler(msg); err != nil {
			return err
		}
	}
}

// Close closes the reader
func (c *SettlementConsumer) Close() error {
	return c.reader.Close()
}

// SetupConsumer starts a consumer that logs every settlement message
func SetupConsumer(ctx context.Context, brokerAddr, topic string, logger zerolog.Logger) *SettlementConsumer {
	consumer := NewSettlementConsumer(brokerAddr, topic, "pairbook-settlement-log", logger)

	go func() {
		logger.Info().Str("topic", topic).Msg("Starting Kafka consumer")
		err := consumer.Run(ctx, func(msg *messaging.SettlementMessage) error {
			logger.Info().
				Str("kind", msg.Kind).
				Uint64("pair_id", msg.PairID).
				Str("side", msg.Side).
				Uint64("order_id", msg.OrderID).
				Uint64("price", msg.Price).
				Str("owner", msg.Owner).
				Str("amount", msg.Amount).
				Bool("closed", msg.Closed).
				Msg("Received settlement message")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return consumer
}
