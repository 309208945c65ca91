package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Blockchain BlockchainConfig
	Queue      QueueConfig
	Monitor    MonitorConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// IsProduction reports whether the service runs with production settings
func (c ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// BlockchainConfig holds the Sepolia RPC settings
type BlockchainConfig struct {
	RPCURL                   string
	RPCTimeout               time.Duration
	RPCRetryAttempts         int
	ConfirmationTimeout      time.Duration
	ConfirmationPollInterval time.Duration
	DroppedAfterPolls        int
}

// QueueConfig holds the confirmation queue settings
type QueueConfig struct {
	Name     string
	Attempts int
	Backoff  time.Duration
	Workers  int
	LeaseTTL time.Duration
}

// MonitorConfig holds the block monitor settings
type MonitorConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "3000"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		Blockchain: BlockchainConfig{
			RPCURL:                   getEnv("SEPOLIA_RPC_URL", "https://rpc.sepolia.org"),
			RPCTimeout:               getEnvAsDuration("RPC_TIMEOUT", 15*time.Second),
			RPCRetryAttempts:         getEnvAsInt("RPC_RETRY_ATTEMPTS", 3),
			ConfirmationTimeout:      getEnvAsDuration("CONFIRMATION_TIMEOUT", 10*time.Minute),
			ConfirmationPollInterval: getEnvAsDuration("CONFIRMATION_POLL_INTERVAL", 4*time.Second),
			DroppedAfterPolls:        getEnvAsInt("DROPPED_AFTER_POLLS", 15),
		},
		Queue: QueueConfig{
			Name:     getEnv("QUEUE_NAME", "transactions"),
			Attempts: getEnvAsInt("QUEUE_ATTEMPTS", 3),
			Backoff:  getEnvAsDuration("QUEUE_BACKOFF", 2*time.Second),
			Workers:  getEnvAsInt("QUEUE_WORKERS", 1),
			LeaseTTL: getEnvAsDuration("QUEUE_LEASE_TTL", 30*time.Second),
		},
		Monitor: MonitorConfig{
			Enabled:   getEnvAsBool("MONITOR_ENABLED", true),
			Interval:  getEnvAsDuration("MONITOR_INTERVAL", 5*time.Second),
			BatchSize: getEnvAsInt("MONITOR_BATCH_SIZE", 10),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
