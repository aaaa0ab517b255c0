package msg

import (
	"os"
	"strings"
)

// Config holds Kafka configuration
type Config struct {
	Brokers  []string
	ClientID string
	Topic    string
}

// TopicMarketTicks is the default topic for published ticks
const TopicMarketTicks = "market.ticks"

// LoadConfig loads Kafka configuration from environment variables
func LoadConfig(clientID string) *Config {
	brokersStr := getEnvAsString("KAFKA_BROKERS", "127.0.0.1:9092")
	brokers := make([]string, 0)
	for _, b := range strings.Split(brokersStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return &Config{
		Brokers:  brokers,
		ClientID: getEnvAsString("KAFKA_CLIENT_ID", clientID),
		Topic:    getEnvAsString("KAFKA_TOPIC", TopicMarketTicks),
	}
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
