// Package notify 把里程碑和错误发送到 Discord webhook。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"milestone-tracker/internal/tracker"
)

// Discord embed 颜色
const (
	ColorFirst  = 0x00FF00
	ColorSecond = 0xFFD700
	ColorError  = 0xFF0000
)

// Discord 单条 embed 描述上限为 4096 字符
const maxDescription = 4000

// Message webhook 消息，Content 和 Embeds 至少有一个
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed 富文本消息
type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Footer struct {
	Text string `json:"text"`
}

// StatusError webhook 返回非 2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook返回状态码 %d: %s", e.StatusCode, e.Body)
}

// Discord webhook 通知渠道
type Discord struct {
	client     *http.Client
	webhookURL string
	logger     *slog.Logger
	now        func() time.Time
}

func NewDiscord(webhookURL string, httpClient *http.Client, logger *slog.Logger) *Discord {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		client:     httpClient,
		webhookURL: webhookURL,
		logger:     logger,
		now:        time.Now,
	}
}

// Send 发送一条消息，不重试
func (d *Discord) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	d.logger.Debug("Discord消息发送成功")
	return nil
}

func (d *Discord) NotifyMilestone(ctx context.Context, token tracker.TrackedToken, tier tracker.Tier, threshold float64) error {
	return d.Send(ctx, MilestoneMessage(token.Symbol, token.MarketCap, tier, threshold, d.now()))
}

func (d *Discord) NotifyError(ctx context.Context, err error) error {
	return d.Send(ctx, ErrorMessage(err, d.now()))
}

// MilestoneMessage 市值里程碑消息
func MilestoneMessage(symbol string, marketCap float64, tier tracker.Tier, threshold float64, now time.Time) Message {
	emoji, color := "🚀", ColorFirst
	if tier == tracker.TierSecond {
		emoji, color = "🌕", ColorSecond
	}

	return Message{Embeds: []Embed{{
		Title:       fmt.Sprintf("%s MILESTONE ALERT %s", emoji, emoji),
		Description: fmt.Sprintf("**%s** just reached a **%s** Market Cap!", symbol, tracker.FormatUSD(threshold, 3)),
		Color:       color,
		Fields: []Field{{
			Name:  "Token Details:",
			Value: fmt.Sprintf("Market Cap: %s\nThis is a significant milestone!", tracker.FormatUSD(marketCap, 3)),
		}},
		Timestamp: timestamp(now),
		Footer:    &Footer{Text: "Track this token closely! It's showing momentum!"},
	}}}
}

// ErrorMessage 轮询异常消息
func ErrorMessage(err error, now time.Time) Message {
	desc := "An error occurred while fetching token data: " + err.Error()
	if r := []rune(desc); len(r) > maxDescription {
		desc = string(r[:maxDescription]) + "…"
	}

	return Message{Embeds: []Embed{{
		Title:       "⚠️ Error Tracking Wallet ⚠️",
		Description: desc,
		Color:       ColorError,
		Timestamp:   timestamp(now),
	}}}
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
