package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portto/solana-go-sdk/rpc"

	"milestone-tracker/config"
	"milestone-tracker/internal/notify"
	"milestone-tracker/internal/observability"
	"milestone-tracker/internal/server"
	"milestone-tracker/internal/storage/postgres"
	"milestone-tracker/internal/tracker"
)

func main() {
	// 解析命令行参数
	var (
		configFile string
		walletAddr string
		once       bool
	)
	flag.StringVar(&configFile, "config", "config/tracker.yaml", "配置文件路径")
	flag.StringVar(&walletAddr, "wallet", "", "要监控的钱包地址，覆盖配置文件")
	flag.BoolVar(&once, "once", false, "只执行一轮并打印报告")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置文件失败:", err)
		os.Exit(1)
	}
	if walletAddr != "" {
		cfg.Wallet.Address = walletAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "配置无效:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, once, logger); err != nil {
		logger.Error("程序异常退出", "err", err)
		os.Exit(1)
	}
}

func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg *config.Config, once bool, logger *slog.Logger) error {
	// 创建上下文以便优雅退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("")

	store, closeStore, err := newMilestoneStore(ctx, cfg.Storage, metrics, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	holdings := tracker.NewRPCHoldingsSource(cfg.RPCEndpoint(),
		tracker.WithCommitment(rpc.Commitment(cfg.Solana.Commitment)),
		tracker.WithRequestTimeout(cfg.Monitor.RequestTimeout),
		tracker.WithHoldingsLogger(logger),
	)
	market := tracker.NewDexScreenerClient(nil, logger).
		WithBaseURL(cfg.DexScreener.BaseURL).
		WithTimeout(cfg.Monitor.RequestTimeout)

	monitor := tracker.NewMonitor(tracker.MonitorConfig{
		Wallet:            cfg.Wallet.Address,
		Interval:          cfg.Monitor.Interval,
		CycleTimeout:      cfg.CycleTimeout(),
		NotifyTimeout:     cfg.Monitor.RequestTimeout,
		MinTokenAmount:    cfg.Monitor.MinTokenAmount,
		Thresholds:        thresholds(cfg),
		EnrichConcurrency: cfg.Monitor.EnrichConcurrency,
	}, holdings, market, newNotifier(cfg.Discord, cfg.Monitor.RequestTimeout, logger),
		tracker.WithStore(store),
		tracker.WithRecorder(metrics),
		tracker.WithLogger(logger),
	)

	if once {
		return runOnce(ctx, monitor)
	}

	logger.Info("启动钱包监控",
		"wallet", cfg.Wallet.Address,
		"label", cfg.Wallet.Label,
		"network", cfg.Solana.Network,
		"store", cfg.Storage.MilestoneStore,
	)

	srv := server.New(server.Config{
		Addr:       cfg.Server.ListenAddr,
		Wallet:     cfg.Wallet.Address,
		Thresholds: thresholds(cfg),
		Interval:   cfg.Monitor.Interval,
	}, monitor.State(), metrics.Handler(), logger)
	if err := srv.Start(); err != nil {
		return err
	}

	if err := monitor.Start(ctx); err != nil {
		shutdown(srv, monitor, logger)
		return err
	}

	// 等待中断信号
	<-ctx.Done()
	logger.Info("收到退出信号，正在停止")
	shutdown(srv, monitor, logger)
	return nil
}

// runOnce 执行一轮后打印报告
func runOnce(ctx context.Context, monitor *tracker.Monitor) error {
	if err := monitor.Restore(ctx); err != nil {
		return err
	}
	cycleErr := monitor.RunCycle(ctx)
	fmt.Print(tracker.GenerateReport(monitor.State().Snapshot().Tokens))
	return cycleErr
}

func shutdown(srv *server.Server, monitor *tracker.Monitor, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := monitor.Stop(ctx); err != nil {
		logger.Warn("停止监控超时", "err", err)
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("关闭状态接口失败", "err", err)
	}
}

func thresholds(cfg *config.Config) tracker.Thresholds {
	return tracker.Thresholds{
		First:  cfg.Monitor.FirstThreshold,
		Second: cfg.Monitor.SecondThreshold,
	}
}

func newNotifier(c config.DiscordConfig, timeout time.Duration, logger *slog.Logger) tracker.Notifier {
	if c.WebhookURL == "" {
		logger.Warn("未配置DISCORD_WEBHOOK_URL，通知只写入日志")
		return notify.NewLog(logger)
	}
	return notify.NewDiscord(c.WebhookURL, &http.Client{Timeout: timeout}, logger)
}

func newMilestoneStore(ctx context.Context, c config.StorageConfig, metrics *observability.Metrics, logger *slog.Logger) (tracker.MilestoneStore, func(), error) {
	if c.MilestoneStore != config.StorePostgres {
		return tracker.NewMemoryMilestoneStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, c.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("使用postgres保存里程碑状态")
	return postgres.NewMilestoneStore(pool).WithObserver(metrics), pool.Close, nil
}
