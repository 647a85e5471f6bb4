package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const dexScreenerAPIEndpoint = "https://api.dexscreener.com"

// DexPair DexScreener 返回的交易对，只保留用到的字段
type DexPair struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD string  `json:"priceUsd"`
	FDV      float64 `json:"fdv"`
	Volume   struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
}

// LiquidityUSD 没有流动性数据时视为 0
func (p DexPair) LiquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

// Snapshot 转换为行情快照
func (p DexPair) Snapshot() MarketSnapshot {
	symbol := p.BaseToken.Symbol
	if symbol == "" {
		symbol = "Unknown"
	}
	price, err := strconv.ParseFloat(p.PriceUSD, 64)
	if err != nil {
		price = 0
	}
	return MarketSnapshot{
		Symbol:         symbol,
		Price:          price,
		MarketCap:      p.FDV,
		Volume24h:      p.Volume.H24,
		Liquidity:      p.LiquidityUSD(),
		PriceChange24h: p.PriceChange.H24,
	}
}

// BestPair 返回流动性最高的交易对，流动性相同时取靠前的
func BestPair(pairs []DexPair) (DexPair, bool) {
	if len(pairs) == 0 {
		return DexPair{}, false
	}
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.LiquidityUSD() > best.LiquidityUSD() {
			best = p
		}
	}
	return best, true
}

// DexScreenerClient DexScreener 行情服务
type DexScreenerClient struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

func NewDexScreenerClient(httpClient *http.Client, logger *slog.Logger) *DexScreenerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DexScreenerClient{
		client:  httpClient,
		baseURL: dexScreenerAPIEndpoint,
		logger:  logger,
	}
}

// WithBaseURL 设置自定义 API 地址
func (c *DexScreenerClient) WithBaseURL(baseURL string) *DexScreenerClient {
	c.baseURL = baseURL
	return c
}

// WithTimeout 设置单次请求超时
func (c *DexScreenerClient) WithTimeout(d time.Duration) *DexScreenerClient {
	c.timeout = d
	return c
}

// FetchPairs 获取 mint 的全部交易对
func (c *DexScreenerClient) FetchPairs(ctx context.Context, mint string) ([]DexPair, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := c.baseURL + "/latest/dex/tokens/" + url.PathEscape(mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API返回非200状态码: %d", resp.StatusCode)
	}

	var result struct {
		Pairs []DexPair `json:"pairs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return result.Pairs, nil
}

// FetchMarket 返回流动性最高交易对的行情，没有交易对时返回 nil
func (c *DexScreenerClient) FetchMarket(ctx context.Context, mint string) (*MarketSnapshot, error) {
	pairs, err := c.FetchPairs(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEnrichmentFetch, mint, err)
	}

	best, ok := BestPair(pairs)
	if !ok {
		c.logger.Info("未找到DexScreener数据", "mint", mint)
		return nil, nil
	}

	snap := best.Snapshot()
	c.logger.Debug("DexScreener行情",
		"mint", mint,
		"symbol", snap.Symbol,
		"pairs", len(pairs),
		"price", snap.Price,
		"mcap", snap.MarketCap,
	)
	return &snap, nil
}
