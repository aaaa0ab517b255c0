package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the feed handler service
type Config struct {
	// Service name
	ServiceName string `yaml:"service_name"`

	// gRPC health server port
	GRPCPort int `yaml:"grpc_port"`

	// HTTP server port
	HTTPPort int `yaml:"http_port"`

	// Log level: debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// Upstream feed
	APIKey   string   `yaml:"api_key"`
	Endpoint string   `yaml:"endpoint"`
	Symbols  []string `yaml:"symbols"`
	Exchange string   `yaml:"exchange"`

	// Emit heartbeat and final metric reports
	EnableLogging bool `yaml:"enable_logging"`

	HistoryCapacity   int           `yaml:"history_capacity"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SettleDelay       time.Duration `yaml:"settle_delay"`

	// Kafka tick publishing
	EnableKafka  bool     `yaml:"enable_kafka"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// Defaults returns the configuration used when neither a file nor env overrides a value
func Defaults(serviceName string) *Config {
	return &Config{
		ServiceName:       serviceName,
		GRPCPort:          50051,
		HTTPPort:          8080,
		LogLevel:          "info",
		Endpoint:          "wss://ws.finnhub.io",
		Exchange:          "finnhub",
		EnableLogging:     true,
		HistoryCapacity:   10000,
		HeartbeatInterval: 30 * time.Second,
		SettleDelay:       2 * time.Second,
		EnableKafka:       false,
		KafkaBrokers:      []string{"127.0.0.1:9092"},
		KafkaTopic:        "market.ticks",
	}
}

// LoadConfig loads configuration from an optional YAML file (CONFIG_FILE) and
// environment variables. Environment values win over file values.
func LoadConfig(serviceName string) (*Config, error) {
	cfg := Defaults(serviceName)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.GRPCPort = getEnvAsInt("PORT_GRPC", cfg.GRPCPort)
	cfg.HTTPPort = getEnvAsInt("PORT_HTTP", cfg.HTTPPort)
	cfg.LogLevel = getEnvAsString("LOG_LEVEL", cfg.LogLevel)
	cfg.APIKey = getEnvAsString("FINNHUB_API_KEY", cfg.APIKey)
	cfg.Endpoint = getEnvAsString("FEED_ENDPOINT", cfg.Endpoint)
	cfg.Symbols = getEnvAsList("FEED_SYMBOLS", cfg.Symbols)
	cfg.Exchange = getEnvAsString("FEED_EXCHANGE", cfg.Exchange)
	cfg.EnableLogging = getEnvAsBool("ENABLE_LOGGING", cfg.EnableLogging)
	cfg.HistoryCapacity = getEnvAsInt("HISTORY_CAPACITY", cfg.HistoryCapacity)
	cfg.HeartbeatInterval = getEnvAsDuration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.SettleDelay = getEnvAsDuration("SETTLE_DELAY", cfg.SettleDelay)
	cfg.EnableKafka = getEnvAsBool("ENABLE_KAFKA", cfg.EnableKafka)
	cfg.KafkaBrokers = getEnvAsList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnvAsString("KAFKA_TOPIC", cfg.KafkaTopic)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config from YAML: %w", err)
	}
	return nil
}

// Validate checks the values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.GRPCPort <= 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPCPort)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("feed endpoint cannot be empty")
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return fmt.Errorf("invalid feed endpoint: %w", err)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity must be greater than 0")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be greater than 0")
	}
	if c.SettleDelay <= 0 {
		return fmt.Errorf("settle delay must be greater than 0")
	}
	if c.EnableKafka {
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka enabled but no brokers configured")
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("kafka enabled but no topic configured")
		}
	}
	return nil
}

// FeedURL returns the upstream websocket URL with the API token attached
func (c *Config) FeedURL() string {
	return strings.TrimRight(c.Endpoint, "/") + "/?token=" + url.QueryEscape(c.APIKey)
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return SplitList(value)
}

// SplitList splits a comma-separated list and trims each entry
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
