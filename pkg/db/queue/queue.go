package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/erain9/pairbook/pkg/messaging"
)

var (
	brokerList = []string{"localhost:9092"}
	topic      = "pairbook-settlements"
	maxRetry   = 5
	settingsMu sync.RWMutex
)

// Overridable in tests
var (
	newSyncProducer = sarama.NewSyncProducer
	newConsumer     = sarama.NewConsumer
)

// SetBrokerList sets the brokers used by new senders and consumers
func SetBrokerList(brokers ...string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	brokerList = brokers
}

// SetTopic sets the settlement topic
func SetTopic(t string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	topic = t
}

func settings() ([]string, string) {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return brokerList, topic
}

// QueueMessageSender implements messaging.MessageSender on a sarama
// SyncProducer.
type QueueMessageSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewQueueMessageSender connects a synchronous producer to the configured
// brokers
func NewQueueMessageSender() (*QueueMessageSender, error) {
	brokers, t := settings()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = maxRetry
	config.Producer.Return.Successes = true

	producer, err := newSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &QueueMessageSender{producer: producer, topic: t}, nil
}

// SendSettlement publishes msg as JSON keyed by side and owner
func (q *QueueMessageSender) SendSettlement(ctx context.Context, msg *messaging.SettlementMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement message: %w", err)
	}

	pm := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.ByteEncoder(msg.Key()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(msg.Kind)},
		},
	}

	if _, _, err := q.producer.SendMessage(pm); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close closes the producer
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}

// QueueMessageConsumer reads settlement messages from partition 0 of the
// settlement topic.
type QueueMessageConsumer struct {
	consumer sarama.Consumer
	topic    string
	done     chan struct{}
	once     sync.Once
}

// NewQueueMessageConsumer connects a consumer to the configured brokers
func NewQueueMessageConsumer() (*QueueMessageConsumer, error) {
	brokers, t := settings()

	consumer, err := newConsumer(brokers, sarama.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return &QueueMessageConsumer{
		consumer: consumer,
		topic:    t,
		done:     make(chan struct{}),
	}, nil
}

// ConsumeSettlements calls handler for each message until Close is called
// or the partition's channels are closed. Undecodable messages are skipped.
func (c *QueueMessageConsumer) ConsumeSettlements(handler func(*messaging.SettlementMessage) error) error {
	pc, err := c.consumer.ConsumePartition(c.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer pc.Close()

	for {
		select {
		case <-c.done:
			return nil
		case msg, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			var settlement messaging.SettlementMessage
			if err := json.Unmarshal(msg.Value, &settlement); err != nil {
				continue
			}
			if err := handler(&settlement); err != nil {
				return err
			}
		case cerr, ok := <-pc.Errors():
			if !ok {
				return nil
			}
			if cerr != nil && !errors.Is(cerr.Err, sarama.ErrClosedClient) {
				return fmt.Errorf("consumer error: %w", cerr.Err)
			}
		}
	}
}

// Close stops ConsumeSettlements and closes the consumer
func (c *QueueMessageConsumer) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.consumer.Close()
}

var _ messaging.MessageSender = (*QueueMessageSender)(nil)
