package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairYAML = `
pair:
  id: 7
  base: "0xB000000000000000000000000000000000000001"
  base_decimals: 18
  quote: "0xC000000000000000000000000000000000000002"
  quote_decimals: 8
  authority: "0xA000000000000000000000000000000000000003"
server:
  http_addr: ":9090"
messaging:
  type: kafka
  topic: fills
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "config.yaml", pairYAML)

	config, err := Load([]string{"-config", path, "-env_file", noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, uint64(7), config.Pair.ID)
	assert.Equal(t, uint8(8), config.Pair.QuoteDecimals)
	assert.Equal(t, ":9090", config.Server.HTTPAddr)
	assert.Equal(t, MessagingKafka, config.Messaging.Type)
	assert.Equal(t, "fills", config.Messaging.Topic)
	// Untouched sections keep their defaults
	assert.Equal(t, BackendMemory, config.Backend.Type)
	assert.Equal(t, "localhost:9092", config.Messaging.BrokerAddr)
}

func TestEnvAndFlagPrecedence(t *testing.T) {
	path := writeFile(t, "config.yaml", pairYAML)
	t.Setenv("PAIRBOOK_SERVER_HTTP_ADDR", ":7070")
	t.Setenv("PAIRBOOK_SERVER_LOG_LEVEL", "debug")
	t.Setenv("PAIRBOOK_BACKEND_REDIS_DB", "3")
	t.Setenv("PAIRBOOK_SNAPSHOT_ENABLED", "true")

	config, err := Load([]string{"-config", path, "-env_file", noEnvFile(t), "-http_addr", ":6060"})
	require.NoError(t, err)

	assert.Equal(t, ":6060", config.Server.HTTPAddr)
	assert.Equal(t, "debug", config.Server.LogLevel)
	assert.Equal(t, 3, config.Backend.Redis.DB)
	assert.True(t, config.Snapshot.Enabled)
}

func TestDotEnvFile(t *testing.T) {
	envPath := writeFile(t, ".env", "PAIRBOOK_PAIR_WRAPPED_NATIVE=0xD000000000000000000000000000000000000004\n")
	path := writeFile(t, "config.yaml", pairYAML)
	t.Cleanup(func() { os.Unsetenv("PAIRBOOK_PAIR_WRAPPED_NATIVE") })

	config, err := Load([]string{"-config", path, "-env_file", envPath})
	require.NoError(t, err)
	assert.Equal(t, "0xD000000000000000000000000000000000000004", config.Pair.WrappedNative)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Pair.Base = "0xB000000000000000000000000000000000000001"
		c.Pair.Quote = "0xC000000000000000000000000000000000000002"
		c.Pair.Authority = "0xA000000000000000000000000000000000000003"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base", func(c *Config) { c.Pair.Base = "" }},
		{"bad wrapped native", func(c *Config) { c.Pair.WrappedNative = "weth" }},
		{"unknown backend", func(c *Config) { c.Backend.Type = "sqlite" }},
		{"redis snapshots", func(c *Config) { c.Backend.Type = BackendRedis; c.Snapshot.Enabled = true }},
		{"unknown messaging", func(c *Config) { c.Messaging.Type = "nats" }},
		{"messaging without topic", func(c *Config) { c.Messaging.Type = MessagingSarama; c.Messaging.Topic = "" }},
		{"empty addr", func(c *Config) { c.Server.HTTPAddr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "pair: [")
	_, err := Load([]string{"-config", path, "-env_file", noEnvFile(t)})
	assert.Error(t, err)

	_, err = Load([]string{"-config", filepath.Join(t.TempDir(), "nope.yaml"), "-env_file", noEnvFile(t)})
	assert.Error(t, err)
}
