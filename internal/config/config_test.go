package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SERVER_PORT", "SERVER_ENV", "REDIS_URL", "SEPOLIA_RPC_URL", "RPC_TIMEOUT",
		"QUEUE_ATTEMPTS", "QUEUE_BACKOFF", "QUEUE_WORKERS", "MONITOR_ENABLED", "MONITOR_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.False(t, cfg.Server.IsProduction())
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, "https://rpc.sepolia.org", cfg.Blockchain.RPCURL)
	assert.Equal(t, 15*time.Second, cfg.Blockchain.RPCTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Blockchain.ConfirmationTimeout)
	assert.Equal(t, "transactions", cfg.Queue.Name)
	assert.Equal(t, 3, cfg.Queue.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.Backoff)
	assert.Equal(t, 1, cfg.Queue.Workers)
	assert.Equal(t, 30*time.Second, cfg.Queue.LeaseTTL)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 10, cfg.Monitor.BatchSize)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("SEPOLIA_RPC_URL", "http://localhost:8545")
	t.Setenv("CONFIRMATION_TIMEOUT", "30s")
	t.Setenv("QUEUE_WORKERS", "0")
	t.Setenv("MONITOR_ENABLED", "false")
	t.Setenv("MONITOR_BATCH_SIZE", "25")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, "http://localhost:8545", cfg.Blockchain.RPCURL)
	assert.Equal(t, 30*time.Second, cfg.Blockchain.ConfirmationTimeout)
	assert.Equal(t, 0, cfg.Queue.Workers)
	assert.False(t, cfg.Monitor.Enabled)
	assert.Equal(t, 25, cfg.Monitor.BatchSize)
}

func TestLoad_ConfigFallbacks(t *testing.T) {
	t.Setenv("QUEUE_ATTEMPTS", "not-number")
	t.Setenv("MONITOR_INTERVAL", "bad-duration")
	t.Setenv("MONITOR_ENABLED", "maybe")

	cfg := Load()
	assert.Equal(t, 3, cfg.Queue.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.True(t, cfg.Monitor.Enabled)
}
