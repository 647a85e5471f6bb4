package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/portto/solana-go-sdk/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Wallet.Address = testWallet
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 45*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 5000.0, cfg.Monitor.FirstThreshold)
	assert.Equal(t, 10000.0, cfg.Monitor.SecondThreshold)
	assert.Equal(t, 0.000001, cfg.Monitor.MinTokenAmount)
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.ListenAddr)
	assert.Equal(t, StoreMemory, cfg.Storage.MilestoneStore)
	assert.Equal(t, rpc.MainnetRPCEndpoint, cfg.RPCEndpoint())
	assert.Equal(t, cfg.Monitor.Interval, cfg.CycleTimeout())
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
wallet:
  address: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
solana:
  network: devnet
monitor:
  interval: 30s
  second_threshold: 20000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, testWallet, cfg.Wallet.Address)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 20000.0, cfg.Monitor.SecondThreshold)
	// 未写的字段保持默认值
	assert.Equal(t, 5000.0, cfg.Monitor.FirstThreshold)
	assert.Equal(t, rpc.DevnetRPCEndpoint, cfg.RPCEndpoint())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "wallet:\n  address: someone-else\n")

	t.Setenv("WALLET_ADDRESS", testWallet)
	t.Setenv("SOLANA_RPC_URL", "http://127.0.0.1:8899")
	t.Setenv("DISCORD_WEBHOOK_URL", "http://hooks.local/abc")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, testWallet, cfg.Wallet.Address)
	assert.Equal(t, "http://127.0.0.1:8899", cfg.RPCEndpoint())
	assert.Equal(t, "http://hooks.local/abc", cfg.Discord.WebhookURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "monitor: [not, a, map"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty wallet", func(c *Config) { c.Wallet.Address = "" }},
		{"bad base58", func(c *Config) { c.Wallet.Address = "0OIl" }},
		{"short key", func(c *Config) { c.Wallet.Address = "abc" }},
		{"unknown network", func(c *Config) { c.Solana.Network = "moonnet" }},
		{"custom without url", func(c *Config) { c.Solana.Network = NetworkCustom }},
		{"unknown commitment", func(c *Config) { c.Solana.Commitment = "max" }},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }},
		{"negative min amount", func(c *Config) { c.Monitor.MinTokenAmount = -1 }},
		{"thresholds inverted", func(c *Config) { c.Monitor.SecondThreshold = 1000 }},
		{"no concurrency", func(c *Config) { c.Monitor.EnrichConcurrency = 0 }},
		{"unknown store", func(c *Config) { c.Storage.MilestoneStore = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Storage.MilestoneStore = StorePostgres }},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	require.NoError(t, validConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCustomNetworkWithURL(t *testing.T) {
	cfg := validConfig()
	cfg.Solana.Network = NetworkCustom
	cfg.Solana.RPCURL = "https://rpc.example.com"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://rpc.example.com", cfg.RPCEndpoint())
}

func TestLoadEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadEnv_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TRACKER_TEST_VALUE=hello\n"), 0o644))
	t.Setenv("TRACKER_TEST_VALUE", "")
	os.Unsetenv("TRACKER_TEST_VALUE")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "hello", os.Getenv("TRACKER_TEST_VALUE"))
}
