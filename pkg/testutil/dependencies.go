package testutil

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Default addresses used when the environment does not override them
const (
	DefaultRedisAddr = "localhost:6379"
	DefaultKafkaAddr = "localhost:9092"
)

// RedisAddr returns PAIRBOOK_TEST_REDIS or the default address
func RedisAddr() string {
	if addr := os.Getenv("PAIRBOOK_TEST_REDIS"); addr != "" {
		return addr
	}
	return DefaultRedisAddr
}

// KafkaAddr returns PAIRBOOK_TEST_KAFKA or the default address
func KafkaAddr() string {
	if addr := os.Getenv("PAIRBOOK_TEST_KAFKA"); addr != "" {
		return addr
	}
	return DefaultKafkaAddr
}

// SkipIfRedisUnavailable skips the test if Redis is unavailable on the specified address
func SkipIfRedisUnavailable(t testing.TB, redisAddr string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer client.Close()

	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skipf("Skipping test: Redis not available at %s - %v", redisAddr, err)
	}
}

// RedisClient returns a client for a reachable Redis, skipping the test
// otherwise. The client is closed when the test ends.
func RedisClient(t testing.TB) *redis.Client {
	t.Helper()

	addr := RedisAddr()
	SkipIfRedisUnavailable(t, addr)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// SkipIfKafkaUnavailable skips the test if Kafka is unavailable on the specified address
func SkipIfKafkaUnavailable(t testing.TB, kafkaAddr string) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", kafkaAddr, 2*time.Second)
	if err != nil {
		t.Skipf("Skipping test: Kafka not available at %s - %v", kafkaAddr, err)
		return
	}
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	kconn, err := kafka.DialContext(ctx, "tcp", kafkaAddr)
	if err != nil {
		t.Skipf("Skipping test: Kafka at %s is not responding correctly - %v", kafkaAddr, err)
		return
	}
	defer kconn.Close()

	if _, err := kconn.Brokers(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Skipf("Skipping test: Kafka at %s is not responding correctly - %v", kafkaAddr, err)
	}
}

// SkipIfDependenciesUnavailable skips the test if either Redis or Kafka is unavailable
func SkipIfDependenciesUnavailable(t testing.TB, redisAddr, kafkaAddr string) {
	t.Helper()
	SkipIfRedisUnavailable(t, redisAddr)
	SkipIfKafkaUnavailable(t, kafkaAddr)
}
