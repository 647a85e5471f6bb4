package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/portto/solana-go-sdk/rpc"
	"gopkg.in/yaml.v3"
)

// 可选的 Solana 网络
const (
	NetworkMainnet  = "mainnet-beta"
	NetworkDevnet   = "devnet"
	NetworkTestnet  = "testnet"
	NetworkLocalnet = "localnet"
	NetworkCustom   = "custom"
)

// 里程碑存储方式
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

var (
	networks    = []string{NetworkMainnet, NetworkDevnet, NetworkTestnet, NetworkLocalnet, NetworkCustom}
	commitments = []string{string(rpc.CommitmentProcessed), string(rpc.CommitmentConfirmed), string(rpc.CommitmentFinalized)}
	logLevels   = []string{"debug", "info", "warn", "error"}
	logFormats  = []string{"text", "json"}
	stores      = []string{StoreMemory, StorePostgres}
)

// WalletConfig 被监控的钱包
type WalletConfig struct {
	Address string `yaml:"address"`
	Label   string `yaml:"label"`
}

// SolanaConfig RPC 节点配置
type SolanaConfig struct {
	Network    string `yaml:"network"`
	RPCURL     string `yaml:"rpc_url"`
	Commitment string `yaml:"commitment"`
}

// DexScreenerConfig 行情接口配置
type DexScreenerConfig struct {
	BaseURL string `yaml:"base_url"`
}

// DiscordConfig 通知渠道配置，WebhookURL 为空时只写日志
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// MonitorConfig 轮询与里程碑配置
type MonitorConfig struct {
	Interval          time.Duration `yaml:"interval"`
	CycleTimeout      time.Duration `yaml:"cycle_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MinTokenAmount    float64       `yaml:"min_token_amount"`
	FirstThreshold    float64       `yaml:"first_threshold"`
	SecondThreshold   float64       `yaml:"second_threshold"`
	EnrichConcurrency int           `yaml:"enrich_concurrency"`
}

// ServerConfig 状态接口配置
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig 里程碑状态存储
type StorageConfig struct {
	MilestoneStore string `yaml:"milestone_store"`
	PostgresDSN    string `yaml:"postgres_dsn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 存储所有配置
type Config struct {
	Wallet      WalletConfig      `yaml:"wallet"`
	Solana      SolanaConfig      `yaml:"solana"`
	DexScreener DexScreenerConfig `yaml:"dexscreener"`
	Discord     DiscordConfig     `yaml:"discord"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Solana: SolanaConfig{
			Network:    NetworkMainnet,
			Commitment: string(rpc.CommitmentConfirmed),
		},
		DexScreener: DexScreenerConfig{
			BaseURL: "https://api.dexscreener.com",
		},
		Monitor: MonitorConfig{
			Interval:          45 * time.Second,
			RequestTimeout:    15 * time.Second,
			MinTokenAmount:    0.000001,
			FirstThreshold:    5000,
			SecondThreshold:   10000,
			EnrichConcurrency: 4,
		},
		Server: ServerConfig{
			ListenAddr: "0.0.0.0:5000",
		},
		Storage: StorageConfig{
			MilestoneStore: StoreMemory,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadEnv 加载 .env 文件，文件不存在时忽略
func LoadEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("加载环境变量失败: %w", err)
	}
	return nil
}

// LoadConfig 从YAML文件加载配置，再用环境变量覆盖。filename 为空时只用默认值
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	override("WALLET_ADDRESS", &c.Wallet.Address)
	override("SOLANA_NETWORK", &c.Solana.Network)
	override("SOLANA_RPC_URL", &c.Solana.RPCURL)
	override("DISCORD_WEBHOOK_URL", &c.Discord.WebhookURL)
	override("LISTEN_ADDR", &c.Server.ListenAddr)
	override("MILESTONE_STORE", &c.Storage.MilestoneStore)
	override("POSTGRES_DSN", &c.Storage.PostgresDSN)

	// 兼容旧的 LOG_LEVEL=DEBUG 写法
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
}

// Validate 检查配置
func (c *Config) Validate() error {
	if err := ValidateAddress(c.Wallet.Address); err != nil {
		return fmt.Errorf("wallet.address: %w", err)
	}
	if !oneOf(c.Solana.Network, networks) {
		return fmt.Errorf("solana.network 无效: %q (可选: %s)", c.Solana.Network, strings.Join(networks, ", "))
	}
	if c.Solana.Network == NetworkCustom && c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.network=custom 时必须设置 solana.rpc_url")
	}
	if !oneOf(c.Solana.Commitment, commitments) {
		return fmt.Errorf("solana.commitment 无效: %q (可选: %s)", c.Solana.Commitment, strings.Join(commitments, ", "))
	}
	if c.DexScreener.BaseURL == "" {
		return fmt.Errorf("dexscreener.base_url 不能为空")
	}

	m := c.Monitor
	if m.Interval <= 0 {
		return fmt.Errorf("monitor.interval 必须大于0")
	}
	if m.CycleTimeout < 0 || m.RequestTimeout < 0 {
		return fmt.Errorf("monitor 超时不能为负数")
	}
	if m.MinTokenAmount < 0 {
		return fmt.Errorf("monitor.min_token_amount 不能为负数")
	}
	if m.FirstThreshold <= 0 || m.SecondThreshold <= m.FirstThreshold {
		return fmt.Errorf("里程碑阈值无效: first=%v second=%v", m.FirstThreshold, m.SecondThreshold)
	}
	if m.EnrichConcurrency < 1 {
		return fmt.Errorf("monitor.enrich_concurrency 必须至少为1")
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr 不能为空")
	}
	if !oneOf(c.Storage.MilestoneStore, stores) {
		return fmt.Errorf("storage.milestone_store 无效: %q (可选: %s)", c.Storage.MilestoneStore, strings.Join(stores, ", "))
	}
	if c.Storage.MilestoneStore == StorePostgres && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.milestone_store=postgres 时必须设置 postgres_dsn")
	}
	if !oneOf(c.Log.Level, logLevels) {
		return fmt.Errorf("log.level 无效: %q (可选: %s)", c.Log.Level, strings.Join(logLevels, ", "))
	}
	if !oneOf(c.Log.Format, logFormats) {
		return fmt.Errorf("log.format 无效: %q (可选: %s)", c.Log.Format, strings.Join(logFormats, ", "))
	}
	return nil
}

// RPCEndpoint 根据网络选项返回 RPC 地址，rpc_url 优先
func (c *Config) RPCEndpoint() string {
	if c.Solana.RPCURL != "" {
		return c.Solana.RPCURL
	}
	switch c.Solana.Network {
	case NetworkDevnet:
		return rpc.DevnetRPCEndpoint
	case NetworkTestnet:
		return rpc.TestnetRPCEndpoint
	case NetworkLocalnet:
		return rpc.LocalnetRPCEndpoint
	default:
		return rpc.MainnetRPCEndpoint
	}
}

// CycleTimeout 单轮超时，未配置时等于轮询间隔
func (c *Config) CycleTimeout() time.Duration {
	if c.Monitor.CycleTimeout > 0 {
		return c.Monitor.CycleTimeout
	}
	return c.Monitor.Interval
}

// ValidateAddress 检查 base58 地址是否为 32 字节公钥
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("地址不能为空")
	}
	b, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("地址不是合法的 base58: %w", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("地址长度错误: %d 字节", len(b))
	}
	return nil
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
