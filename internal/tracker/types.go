package tracker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrHoldingsFetch        = errors.New("获取持仓失败")
	ErrEnrichmentFetch      = errors.New("获取行情失败")
	ErrNotificationDispatch = errors.New("发送通知失败")
	ErrUnhandledCycle       = errors.New("轮询异常")
	ErrCycleInProgress      = errors.New("上一轮轮询尚未结束")
)

// Holding 钱包中的单个代币持仓
type Holding struct {
	Mint     string
	Amount   float64
	Decimals uint8
}

// MarketSnapshot 单个交易对的行情
type MarketSnapshot struct {
	Symbol         string
	Price          float64
	MarketCap      float64 // 使用 FDV 近似市值
	Volume24h      float64
	Liquidity      float64
	PriceChange24h float64
}

// TrackedToken 最近一次轮询得到的代币数据
type TrackedToken struct {
	Mint string
	MarketSnapshot
	Amount    float64
	Value     float64
	UpdatedAt time.Time
}

// MilestoneState 已经通知过的里程碑
type MilestoneState struct {
	FirstCrossed  bool `json:"first"`
	SecondCrossed bool `json:"second"`
}

// Tier 里程碑级别
type Tier int

const (
	TierNone Tier = iota
	TierFirst
	TierSecond
)

func (t Tier) String() string {
	switch t {
	case TierFirst:
		return "FIRST"
	case TierSecond:
		return "SECOND"
	default:
		return "NONE"
	}
}

// Thresholds 市值里程碑阈值
type Thresholds struct {
	First  float64 `json:"FIRST"`
	Second float64 `json:"SECOND"`
}

// Value 返回某个级别对应的阈值
func (t Thresholds) Value(tier Tier) float64 {
	if tier == TierSecond {
		return t.Second
	}
	return t.First
}

// HoldingsSource 获取钱包持仓
type HoldingsSource interface {
	FetchHoldings(ctx context.Context, wallet string) ([]Holding, error)
}

// MarketSource 获取代币行情，没有交易对时返回 nil, nil
type MarketSource interface {
	FetchMarket(ctx context.Context, mint string) (*MarketSnapshot, error)
}

// MilestoneStore 里程碑状态持久化
type MilestoneStore interface {
	Load(ctx context.Context) (map[string]MilestoneState, error)
	Save(ctx context.Context, mint string, state MilestoneState) error
}

// Notifier 发送里程碑和错误通知
type Notifier interface {
	NotifyMilestone(ctx context.Context, token TrackedToken, tier Tier, threshold float64) error
	NotifyError(ctx context.Context, err error) error
}

// Recorder 轮询指标
type Recorder interface {
	HoldingsFailed()
	EnrichmentFailed()
	NotificationSent(kind string, err error)
	CycleFinished(result string, d time.Duration, holdings, tracked int)
}

type nopRecorder struct{}

func (nopRecorder) HoldingsFailed() {}
func (nopRecorder) EnrichmentFailed() {}
func (nopRecorder) NotificationSent(string, error) {}
func (nopRecorder) CycleFinished(string, time.Duration, int, int) {}
