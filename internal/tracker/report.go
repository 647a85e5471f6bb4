package tracker

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// TokenView /tokens 接口中单个代币的展示格式
type TokenView struct {
	Mint           string    `json:"mint"`
	Symbol         string    `json:"symbol"`
	Price          string    `json:"price"`
	MarketCap      string    `json:"marketCap"`
	PriceChange24h string    `json:"priceChange24h"`
	Amount         string    `json:"amount"`
	Value          string    `json:"value"`
	Volume24h      string    `json:"volume24h"`
	Liquidity      string    `json:"liquidity"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// FormatToken 把代币数据格式化为可读字符串
func FormatToken(t TrackedToken) TokenView {
	return TokenView{
		Mint:           t.Mint,
		Symbol:         t.Symbol,
		Price:          FormatUSD(t.Price, 8),
		MarketCap:      FormatUSD(t.MarketCap, 3),
		PriceChange24h: FormatPercent(t.PriceChange24h),
		Amount:         FormatNumber(t.Amount, 6),
		Value:          FormatUSD(t.Value, 2),
		Volume24h:      FormatUSD(t.Volume24h, 3),
		Liquidity:      FormatUSD(t.Liquidity, 3),
		UpdatedAt:      t.UpdatedAt,
	}
}

// FormatNumber 千分位分隔，最多保留 maxFrac 位小数并去掉末尾的 0
func FormatNumber(v float64, maxFrac int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	d := decimal.NewFromFloat(v).Round(maxFrac)
	neg := d.IsNegative()
	intPart, frac, _ := strings.Cut(d.Abs().String(), ".")
	frac = strings.TrimRight(frac, "0")

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	if frac != "" {
		sb.WriteByte('.')
		sb.WriteString(frac)
	}
	return sb.String()
}

// FormatUSD 美元金额
func FormatUSD(v float64, maxFrac int32) string {
	s := FormatNumber(v, maxFrac)
	if strings.HasPrefix(s, "-") {
		return "-$" + s[1:]
	}
	return "$" + s
}

// FormatPercent 两位小数，正数带 + 号
func FormatPercent(v float64) string {
	sign := ""
	if v > 0 {
		sign = "+"
	}
	return sign + strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

// GenerateReport 生成代币持仓报告
func GenerateReport(tokens []TrackedToken) string {
	var sb strings.Builder

	sb.WriteString("\n代币持仓报告\n")
	sb.WriteString("生成时间: " + time.Now().Format("2006-01-02 15:04:05") + "\n\n")

	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "排名\t代币\t价格\t市值\t24h\t持有量\t价值\t")

	var total float64
	for i, t := range tokens {
		v := FormatToken(t)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			i+1, v.Symbol, v.Price, v.MarketCap, v.PriceChange24h, v.Amount, v.Value)
		total += t.Value
	}
	fmt.Fprintf(w, "总计\t-\t-\t-\t-\t-\t%s\t\n", FormatUSD(total, 2))
	w.Flush()

	return sb.String()
}
