package notify

import (
	"context"
	"log/slog"

	"milestone-tracker/internal/tracker"
)

// Log 未配置 webhook 时使用，只把通知写到日志
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) NotifyMilestone(ctx context.Context, token tracker.TrackedToken, tier tracker.Tier, threshold float64) error {
	l.logger.Info("里程碑通知",
		"symbol", token.Symbol,
		"mint", token.Mint,
		"tier", tier.String(),
		"threshold", threshold,
		"mcap", token.MarketCap,
	)
	return nil
}

func (l *Log) NotifyError(ctx context.Context, err error) error {
	l.logger.Error("错误通知", "err", err)
	return nil
}
