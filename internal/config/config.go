package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds configuration shared by the gateway binaries
type Config struct {
	// Service name
	ServiceName string

	// gRPC server port
	GRPCPort int

	// HTTP server port (health, websocket bridge)
	HTTPPort int

	// Log level: debug, info, warn, error
	LogLevel string

	// Directory for the SQLite store and raft state
	DataDir string

	// Kafka brokers (comma-separated); empty disables Kafka
	KafkaBrokers string

	// YAML file describing the configured exchanges
	ExchangesFile string

	// Gateway gRPC address dialed by clients
	GatewayAddr string

	// Per-subscriber event queue length before the subscriber is detached
	SubscriberBuffer int

	// Number of recent trades kept per feed for late-joiner snapshots
	RecentTrades int

	// Replicate client order id claims through raft instead of the local store
	RaftEnabled bool

	// Allowed CORS origins for the HTTP surface (comma-separated)
	CORSOrigins string
}

// LoadConfig loads configuration from an optional .env file and environment
// variables with defaults. Variables already set in the environment win.
func LoadConfig(serviceName string) *Config {
	envFile := getEnvAsString("GATEWAY_ENV_FILE", ".env")
	_ = godotenv.Load(envFile)

	cfg := &Config{
		ServiceName:      serviceName,
		GRPCPort:         getEnvAsInt("PORT_GRPC", 50051),
		HTTPPort:         getEnvAsInt("PORT_HTTP", 8080),
		LogLevel:         getEnvAsString("LOG_LEVEL", "info"),
		DataDir:          getEnvAsString("DATA_DIR", "./.data"),
		KafkaBrokers:     getEnvAsString("KAFKA_BROKERS", ""),
		ExchangesFile:    getEnvAsString("GATEWAY_EXCHANGES", "exchanges.yaml"),
		GatewayAddr:      getEnvAsString("GATEWAY_ADDR", "127.0.0.1:50051"),
		SubscriberBuffer: getEnvAsInt("SUBSCRIBER_BUFFER", 256),
		RecentTrades:     getEnvAsInt("RECENT_TRADES", 50),
		RaftEnabled:      getEnvAsBool("RAFT_ENABLED", false),
		CORSOrigins:      getEnvAsString("CORS_ORIGINS", "*"),
	}

	return cfg
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Brokers returns the Kafka broker list, nil when Kafka is disabled
func (c *Config) Brokers() []string {
	return SplitList(c.KafkaBrokers)
}

// Origins returns the allowed CORS origins
func (c *Config) Origins() []string {
	return SplitList(c.CORSOrigins)
}

// SplitList splits a comma-separated value and drops empty entries
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
