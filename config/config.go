package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Backend and messaging choices
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	MessagingNone   = "none"
	MessagingKafka  = "kafka"
	MessagingSarama = "sarama"
)

// EnvPrefix prefixes every environment override, e.g. PAIRBOOK_SERVER_HTTP_ADDR
const EnvPrefix = "PAIRBOOK"

// Config represents the application configuration
type Config struct {
	Server struct {
		HTTPAddr       string   `yaml:"http_addr"`
		LogLevel       string   `yaml:"log_level"`
		LogFormat      string   `yaml:"log_format"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Pair struct {
		ID            uint64 `yaml:"id"`
		Base          string `yaml:"base"`
		BaseDecimals  uint8  `yaml:"base_decimals"`
		Quote         string `yaml:"quote"`
		QuoteDecimals uint8  `yaml:"quote_decimals"`
		Authority     string `yaml:"authority"`
		WrappedNative string `yaml:"wrapped_native"`
	} `yaml:"pair"`

	Backend struct {
		Type  string `yaml:"type"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"backend"`

	Snapshot struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"snapshot"`

	Messaging struct {
		Type       string `yaml:"type"`
		BrokerAddr string `yaml:"broker_addr"`
		Topic      string `yaml:"topic"`
		PoolSize   int    `yaml:"pool_size"`
	} `yaml:"messaging"`

	Otel struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"otel"`
}

// Default returns the built-in configuration
func Default() *Config {
	config := &Config{}
	config.Server.HTTPAddr = ":8080"
	config.Server.LogLevel = "info"
	config.Server.LogFormat = "pretty"
	config.Server.AllowedOrigins = []string{"*"}
	config.Pair.ID = 1
	config.Pair.BaseDecimals = 18
	config.Pair.QuoteDecimals = 6
	config.Backend.Type = BackendMemory
	config.Backend.Redis.Addr = "localhost:6379"
	config.Backend.Redis.Prefix = "pairbook"
	config.Snapshot.Dir = "data/snapshots"
	config.Messaging.Type = MessagingNone
	config.Messaging.BrokerAddr = "localhost:9092"
	config.Messaging.Topic = "pairbook-settlements"
	config.Messaging.PoolSize = 8
	config.Otel.Endpoint = "localhost:4317"
	return config
}

// LoadConfig loads the configuration from the process arguments
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds the configuration from, in increasing precedence: defaults, a
// YAML file, PAIRBOOK_* environment variables (optionally read from a .env
// file) and command-line flags.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("pairbook", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to config file (YAML)")
	envFile := fs.String("env_file", ".env", "Path to an optional .env file")
	httpAddr := fs.String("http_addr", "", "The HTTP listen address")
	logLevel := fs.String("log_level", "", "Log level: debug, info, warn, error")
	logFormat := fs.String("log_format", "", "Log format: json, pretty")
	backend := fs.String("backend", "", "Book backend: memory, redis")
	messaging := fs.String("messaging", "", "Settlement messaging: none, kafka, sarama")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	config := Default()

	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Info().Str("path", *configFile).Msg("Loaded configuration file")
	}

	applyEnv(config)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http_addr":
			config.Server.HTTPAddr = *httpAddr
		case "log_level":
			config.Server.LogLevel = *logLevel
		case "log_format":
			config.Server.LogFormat = *logFormat
		case "backend":
			config.Backend.Type = *backend
		case "messaging":
			config.Messaging.Type = *messaging
		}
	})

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// applyEnv overrides fields whose PAIRBOOK_* variable is set
func applyEnv(config *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	integer := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	decimals := func(key string, dst *uint8) {
		if v.IsSet(key) {
			*dst = uint8(v.GetUint(key))
		}
	}

	str("server.http_addr", &config.Server.HTTPAddr)
	str("server.log_level", &config.Server.LogLevel)
	str("server.log_format", &config.Server.LogFormat)
	if v.IsSet("server.allowed_origins") {
		config.Server.AllowedOrigins = strings.Split(v.GetString("server.allowed_origins"), ",")
	}

	if v.IsSet("pair.id") {
		config.Pair.ID = v.GetUint64("pair.id")
	}
	str("pair.base", &config.Pair.Base)
	decimals("pair.base_decimals", &config.Pair.BaseDecimals)
	str("pair.quote", &config.Pair.Quote)
	decimals("pair.quote_decimals", &config.Pair.QuoteDecimals)
	str("pair.authority", &config.Pair.Authority)
	str("pair.wrapped_native", &config.Pair.WrappedNative)

	str("backend.type", &config.Backend.Type)
	str("backend.redis.addr", &config.Backend.Redis.Addr)
	str("backend.redis.password", &config.Backend.Redis.Password)
	integer("backend.redis.db", &config.Backend.Redis.DB)
	str("backend.redis.prefix", &config.Backend.Redis.Prefix)

	boolean("snapshot.enabled", &config.Snapshot.Enabled)
	str("snapshot.dir", &config.Snapshot.Dir)

	str("messaging.type", &config.Messaging.Type)
	str("messaging.broker_addr", &config.Messaging.BrokerAddr)
	str("messaging.topic", &config.Messaging.Topic)
	integer("messaging.pool_size", &config.Messaging.PoolSize)

	boolean("otel.enabled", &config.Otel.Enabled)
	str("otel.endpoint", &config.Otel.Endpoint)
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr must not be empty")
	}
	for name, addr := range map[string]string{
		"pair.base":      c.Pair.Base,
		"pair.quote":     c.Pair.Quote,
		"pair.authority": c.Pair.Authority,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s must be a hex address, got %q", name, addr)
		}
	}
	if c.Pair.WrappedNative != "" && !common.IsHexAddress(c.Pair.WrappedNative) {
		return fmt.Errorf("pair.wrapped_native must be a hex address, got %q", c.Pair.WrappedNative)
	}

	switch c.Backend.Type {
	case BackendMemory:
	case BackendRedis:
		if c.Backend.Redis.Addr == "" {
			return fmt.Errorf("backend.redis.addr must not be empty")
		}
		if c.Snapshot.Enabled {
			return fmt.Errorf("snapshots are only supported by the memory backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend.Type)
	}

	if c.Snapshot.Enabled && c.Snapshot.Dir == "" {
		return fmt.Errorf("snapshot.dir must not be empty")
	}

	switch c.Messaging.Type {
	case MessagingNone:
	case MessagingKafka, MessagingSarama:
		if c.Messaging.BrokerAddr == "" || c.Messaging.Topic == "" {
			return fmt.Errorf("messaging needs a broker address and a topic")
		}
	default:
		return fmt.Errorf("unknown messaging %q", c.Messaging.Type)
	}
	return nil
}
