package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MonitorConfig 轮询配置
type MonitorConfig struct {
	Wallet            string
	Interval          time.Duration
	CycleTimeout      time.Duration // 单轮超时，0 表示不限制
	NotifyTimeout     time.Duration // 单条通知超时，0 表示不限制
	MinTokenAmount    float64
	Thresholds        Thresholds
	EnrichConcurrency int
}

// MonitorOption 配置 Monitor
type MonitorOption func(*Monitor)

// WithStore 设置里程碑存储
func WithStore(s MilestoneStore) MonitorOption {
	return func(m *Monitor) { m.store = s }
}

// WithState 使用外部创建的状态
func WithState(s *State) MonitorOption {
	return func(m *Monitor) { m.state = s }
}

// WithRecorder 设置指标
func WithRecorder(r Recorder) MonitorOption {
	return func(m *Monitor) { m.recorder = r }
}

// WithLogger 设置日志
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// WithClock 设置时钟，测试用
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// Monitor 定时获取持仓、更新行情并发送里程碑通知
type Monitor struct {
	cfg      MonitorConfig
	holdings HoldingsSource
	market   MarketSource
	notifier Notifier
	store    MilestoneStore
	state    *State
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// pendingAlert 本轮需要发送的里程碑通知
type pendingAlert struct {
	token     TrackedToken
	tier      Tier
	threshold float64
}

// NewMonitor 创建新的监控器
func NewMonitor(cfg MonitorConfig, holdings HoldingsSource, market MarketSource, notifier Notifier, opts ...MonitorOption) *Monitor {
	if cfg.EnrichConcurrency < 1 {
		cfg.EnrichConcurrency = 1
	}
	m := &Monitor{
		cfg:      cfg,
		holdings: holdings,
		market:   market,
		notifier: notifier,
		store:    NewMemoryMilestoneStore(),
		state:    NewState(),
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State 返回共享状态，供状态接口读取
func (m *Monitor) State() *State {
	return m.state
}

// Restore 从存储载入已通知的里程碑
func (m *Monitor) Restore(ctx context.Context) error {
	ms, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("载入里程碑失败: %w", err)
	}
	m.state.restore(ms)
	if len(ms) > 0 {
		m.logger.Info("已载入里程碑状态", "tokens", len(ms))
	}
	return nil
}

// Start 载入里程碑后立即执行一轮，之后按间隔执行
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.Restore(ctx); err != nil {
		return err
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run()

	m.logger.Info("开始监控钱包",
		"wallet", m.cfg.Wallet,
		"interval", m.cfg.Interval,
		"first", m.cfg.Thresholds.First,
		"second", m.cfg.Thresholds.Second,
	)
	return nil
}

// Stop 停止监控并等待当前一轮结束
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("监控已停止")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.tick()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	if err := m.RunCycle(m.ctx); errors.Is(err, ErrCycleInProgress) {
		m.logger.Warn("跳过本轮: 上一轮尚未结束")
	}
}

// RunCycle 执行一轮轮询。同一时间只允许一轮运行，否则返回 ErrCycleInProgress。
// 未处理的错误会被记录并发送一条错误通知，返回值包装 ErrUnhandledCycle。
func (m *Monitor) RunCycle(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	defer m.running.Store(false)

	id := uuid.NewString()
	logger := m.logger.With("cycle", id)
	start := m.now()

	cycleCtx := ctx
	if m.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, m.cfg.CycleTimeout)
		defer cancel()
	}

	logger.Debug("开始轮询", "wallet", m.cfg.Wallet)
	holdings, err := m.cycle(cycleCtx, logger)

	end := m.now()
	m.state.finishCycle(id, end, err == nil)
	snap := m.state.Snapshot()

	if err == nil {
		m.recorder.CycleFinished("ok", end.Sub(start), holdings, len(snap.Tokens))
		logger.Info("轮询完成",
			"holdings", holdings,
			"tracked", len(snap.Tokens),
			"duration", end.Sub(start),
		)
		return nil
	}

	m.recorder.CycleFinished("error", end.Sub(start), holdings, len(snap.Tokens))
	logger.Error("轮询异常", "err", err)

	nctx, cancel := m.notifyContext(ctx)
	defer cancel()
	nerr := m.safeNotifyError(nctx, err)
	m.recorder.NotificationSent("error", nerr)
	if nerr != nil {
		logger.Warn("发送错误通知失败", "err", nerr)
	}
	return err
}

// cycle 返回本轮处理的持仓数。已提交的里程碑通知无论成功与否都会发送。
func (m *Monitor) cycle(ctx context.Context, logger *slog.Logger) (processed int, err error) {
	var alerts []pendingAlert
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrUnhandledCycle, r)
		}
		m.dispatch(ctx, logger, alerts)
	}()

	holdings := m.fetchHoldings(ctx, logger)
	processed = len(holdings)

	markets, err := m.enrich(ctx, logger, holdings)
	if err != nil {
		return processed, err
	}

	th := m.cfg.Thresholds
	for i, h := range holdings {
		snap := markets[i]
		if snap == nil {
			continue
		}

		token := TrackedToken{
			Mint:           h.Mint,
			MarketSnapshot: *snap,
			Amount:         h.Amount,
			Value:          h.Amount * snap.Price,
			UpdatedAt:      m.now(),
		}
		m.state.putToken(token)

		logger.Debug("代币",
			"symbol", token.Symbol,
			"price", token.Price,
			"mcap", token.MarketCap,
			"amount", token.Amount,
		)

		current := m.state.ensureMilestone(h.Mint)
		tier, next := Evaluate(current, token.MarketCap, th)
		if tier == TierNone {
			continue
		}

		if err := m.store.Save(ctx, h.Mint, next); err != nil {
			return processed, fmt.Errorf("%w: 保存里程碑失败 %s: %w", ErrUnhandledCycle, h.Mint, err)
		}
		m.state.setMilestone(h.Mint, next)
		alerts = append(alerts, pendingAlert{token: token, tier: tier, threshold: th.Value(tier)})
		logger.Info("达到市值里程碑",
			"symbol", token.Symbol,
			"mint", h.Mint,
			"tier", tier.String(),
			"mcap", token.MarketCap,
		)
	}

	mints := make([]string, len(holdings))
	for i, h := range holdings {
		mints[i] = h.Mint
	}
	m.state.addKnown(mints)

	return processed, nil
}

// fetchHoldings 失败时返回空列表，不发送通知
func (m *Monitor) fetchHoldings(ctx context.Context, logger *slog.Logger) []Holding {
	raw, err := m.holdings.FetchHoldings(ctx, m.cfg.Wallet)
	if err != nil {
		m.recorder.HoldingsFailed()
		logger.Warn("获取持仓失败", "err", err)
		return nil
	}

	holdings := FilterHoldings(raw, m.cfg.MinTokenAmount)
	logger.Debug("持仓", "raw", len(raw), "valid", len(holdings))
	return holdings
}

// FilterHoldings 丢弃数量小于等于 minAmount 的持仓
func FilterHoldings(holdings []Holding, minAmount float64) []Holding {
	out := make([]Holding, 0, len(holdings))
	for _, h := range holdings {
		if h.Mint == "" || h.Amount <= minAmount {
			continue
		}
		out = append(out, h)
	}
	return out
}

// enrich 并发获取行情，结果与 holdings 下标对应，失败或无数据的位置为 nil
func (m *Monitor) enrich(ctx context.Context, logger *slog.Logger, holdings []Holding) ([]*MarketSnapshot, error) {
	results := make([]*MarketSnapshot, len(holdings))

	var g errgroup.Group
	g.SetLimit(m.cfg.EnrichConcurrency)
	for i, h := range holdings {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: 获取行情 panic %s: %v", ErrUnhandledCycle, h.Mint, r)
				}
			}()

			snap, ferr := m.market.FetchMarket(ctx, h.Mint)
			if ferr != nil {
				m.recorder.EnrichmentFailed()
				logger.Warn("获取行情失败", "mint", h.Mint, "err", ferr)
				return nil
			}
			results[i] = snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dispatch 并发发送通知并等待全部结束，单条失败不影响其他
func (m *Monitor) dispatch(ctx context.Context, logger *slog.Logger, alerts []pendingAlert) {
	if len(alerts) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, a := range alerts {
		wg.Add(1)
		go func(a pendingAlert) {
			defer wg.Done()

			nctx, cancel := m.notifyContext(ctx)
			defer cancel()

			err := m.safeNotify(nctx, a)
			m.recorder.NotificationSent(a.tier.String(), err)
			if err != nil {
				logger.Warn("发送里程碑通知失败",
					"symbol", a.token.Symbol,
					"tier", a.tier.String(),
					"err", err,
				)
				return
			}
			logger.Info("里程碑通知已发送", "symbol", a.token.Symbol, "tier", a.tier.String())
		}(a)
	}
	wg.Wait()
}

func (m *Monitor) safeNotify(ctx context.Context, a pendingAlert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrNotificationDispatch, r)
		}
	}()
	if err := m.notifier.NotifyMilestone(ctx, a.token, a.tier, a.threshold); err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationDispatch, err)
	}
	return nil
}

func (m *Monitor) safeNotifyError(ctx context.Context, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrNotificationDispatch, r)
		}
	}()
	if err := m.notifier.NotifyError(ctx, cause); err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationDispatch, err)
	}
	return nil
}

// notifyContext 通知不受本轮超时影响，只受单条超时限制
func (m *Monitor) notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if m.cfg.NotifyTimeout > 0 {
		return context.WithTimeout(base, m.cfg.NotifyTimeout)
	}
	return context.WithCancel(base)
}
