// Package server 提供只读的钱包状态 HTTP 接口。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"milestone-tracker/internal/tracker"
)

// StatusSource 提供状态快照
type StatusSource interface {
	Snapshot() tracker.Snapshot
}

// Config 状态接口展示的监控参数
type Config struct {
	Addr       string
	Wallet     string
	Thresholds tracker.Thresholds
	Interval   time.Duration
}

// Server 状态接口
type Server struct {
	cfg        Config
	source     StatusSource
	logger     *slog.Logger
	now        func() time.Time
	httpServer *http.Server
	listener   net.Listener
}

// New 创建状态接口，metrics 为 nil 时不挂载 /metrics
func New(cfg Config, source StatusSource, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /tokens", s.handleTokens)
	mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler 返回路由，测试用
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start 监听端口并在后台处理请求
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.logger.Info("状态接口已启动", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("状态接口异常退出", "err", err)
		}
	}()
	return nil
}

// Addr 实际监听地址，Start 之前为空
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown 等待进行中的请求完成后关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusResponse struct {
	Status              string             `json:"status"`
	Wallet              string             `json:"wallet"`
	LastUpdate          *time.Time         `json:"lastUpdate"`
	ServerTime          time.Time          `json:"serverTime"`
	LastCycleID         string             `json:"lastCycleId,omitempty"`
	MarketCapThresholds tracker.Thresholds `json:"marketCapThresholds"`
	UpdateInterval      string             `json:"updateInterval"`
	KnownTokensCount    int                `json:"knownTokensCount"`
	TrackedTokensCount  int                `json:"trackedTokensCount"`
	CyclesRun           int                `json:"cyclesRun"`
}

type tokensResponse struct {
	TotalTokens int                 `json:"totalTokens"`
	Tokens      []tracker.TokenView `json:"tokens"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Snapshot()

	resp := statusResponse{
		Status:              "active",
		Wallet:              s.cfg.Wallet,
		ServerTime:          s.now().UTC(),
		LastCycleID:         snap.LastCycleID,
		MarketCapThresholds: s.cfg.Thresholds,
		UpdateInterval:      FormatInterval(s.cfg.Interval),
		KnownTokensCount:    snap.KnownCount,
		TrackedTokensCount:  len(snap.Tokens),
		CyclesRun:           snap.Cycles,
	}
	if !snap.LastCycleAt.IsZero() {
		t := snap.LastCycleAt.UTC()
		resp.LastUpdate = &t
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleTokens(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Snapshot()

	views := make([]tracker.TokenView, 0, len(snap.Tokens))
	for _, t := range snap.Tokens {
		views = append(views, tracker.FormatToken(t))
	}
	s.writeJSON(w, tokensResponse{TotalTokens: len(views), Tokens: views})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("写入响应失败", "err", err)
	}
}

// FormatInterval 整秒显示为 "45 seconds"
func FormatInterval(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int64(d/time.Second))
	}
	return d.String()
}
