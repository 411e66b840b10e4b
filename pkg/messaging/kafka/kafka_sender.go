package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erain9/pairbook/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

// writeTimeout bounds a single publish when the caller's context has no
// deadline
const writeTimeout = 5 * time.Second

// messageWriter is the part of kafka.Writer the sender uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessageSender implements MessageSender using Kafka
type KafkaMessageSender struct {
	writer messageWriter
	topic  string
}

// NewKafkaMessageSender creates a new Kafka message sender
func NewKafkaMessageSender(brokerAddr, topic string) (*KafkaMessageSender, error) {
	if brokerAddr == "" || topic == "" {
		return nil, fmt.Errorf("kafka sender needs a broker and a topic")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaMessageSender{
		writer: writer,
		topic:  topic,
	}, nil
}

// encodeSettlement builds the Kafka record for msg. Records are keyed by
// side and owner so one owner's events stay ordered within a partition.
func encodeSettlement(msg *messaging.SettlementMessage) (kafka.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal settlement message: %w", err)
	}

	return kafka.Message{
		Key:   msg.Key(),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
		Time: time.Now(),
	}, nil
}

// decodeSettlement parses a record written by encodeSettlement
func decodeSettlement(m kafka.Message) (*messaging.SettlementMessage, error) {
	var msg messaging.SettlementMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settlement message: %w", err)
	}
	return &msg, nil
}

// SendSettlement sends a settlement message to Kafka
func (k *KafkaMessageSender) SendSettlement(ctx context.Context, settlement *messaging.SettlementMessage) error {
	msg, err := encodeSettlement(settlement)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, writeTimeout)
		defer cancel()
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka writer
func (k *KafkaMessageSender) Close() error {
	return k.writer.Close()
}

var _ messaging.MessageSender = (*KafkaMessageSender)(nil)
