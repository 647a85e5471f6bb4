package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/portto/solana-go-sdk/common"
	"github.com/portto/solana-go-sdk/rpc"
)

// RPCHoldingsSource 通过 getTokenAccountsByOwner 获取钱包的 SPL 代币
type RPCHoldingsSource struct {
	rpc        rpc.RpcClient
	programID  string
	commitment rpc.Commitment
	timeout    time.Duration
	logger     *slog.Logger
}

// HoldingsOption 配置 RPCHoldingsSource
type HoldingsOption func(*RPCHoldingsSource)

// WithCommitment 设置查询的确认级别
func WithCommitment(c rpc.Commitment) HoldingsOption {
	return func(s *RPCHoldingsSource) {
		s.commitment = c
	}
}

// WithRequestTimeout 设置单次 RPC 调用超时
func WithRequestTimeout(d time.Duration) HoldingsOption {
	return func(s *RPCHoldingsSource) {
		s.timeout = d
	}
}

// WithHoldingsLogger 设置日志
func WithHoldingsLogger(l *slog.Logger) HoldingsOption {
	return func(s *RPCHoldingsSource) {
		s.logger = l
	}
}

func NewRPCHoldingsSource(endpoint string, opts ...HoldingsOption) *RPCHoldingsSource {
	s := &RPCHoldingsSource{
		rpc:        rpc.NewRpcClient(endpoint),
		programID:  common.TokenProgramID.ToBase58(),
		commitment: rpc.CommitmentConfirmed,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type tokenAccountsResponse struct {
	Result *struct {
		Value []json.RawMessage `json:"value"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// tokenAccount jsonParsed 格式的单个代币账户，无法解析的账户 data 会是 base64 数组
type tokenAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					Mint        string `json:"mint"`
					TokenAmount struct {
						UIAmount       *float64 `json:"uiAmount"`
						UIAmountString string   `json:"uiAmountString"`
						Decimals       *int     `json:"decimals"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

// FetchHoldings 获取钱包下所有可解析的代币账户，数量过滤由 Monitor 负责
func (s *RPCHoldingsSource) FetchHoldings(ctx context.Context, wallet string) ([]Holding, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Debug("获取代币账户", "wallet", wallet)

	body, err := s.rpc.Call(ctx,
		"getTokenAccountsByOwner",
		wallet,
		map[string]any{"programId": s.programID},
		map[string]any{"encoding": "jsonParsed", "commitment": s.commitment},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: 请求失败: %v", ErrHoldingsFetch, err)
	}

	var resp tokenAccountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: 解析响应失败: %v", ErrHoldingsFetch, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: RPC error %d: %s", ErrHoldingsFetch, resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("%w: 响应缺少 result", ErrHoldingsFetch)
	}

	holdings := make([]Holding, 0, len(resp.Result.Value))
	for i, raw := range resp.Result.Value {
		var acc tokenAccount
		if err := json.Unmarshal(raw, &acc); err != nil {
			s.logger.Warn("无法解析代币账户", "index", i, "err", err)
			continue
		}
		info := acc.Account.Data.Parsed.Info
		amount, ok := uiAmount(info.TokenAmount.UIAmount, info.TokenAmount.UIAmountString)
		if info.Mint == "" || !ok || info.TokenAmount.Decimals == nil {
			s.logger.Warn("无法解析代币账户", "account", acc.Pubkey)
			continue
		}
		holdings = append(holdings, Holding{
			Mint:     info.Mint,
			Amount:   amount,
			Decimals: uint8(*info.TokenAmount.Decimals),
		})
	}

	s.logger.Info("获取代币账户完成",
		"accounts", len(resp.Result.Value),
		"holdings", len(holdings),
	)
	return holdings, nil
}

func uiAmount(v *float64, s string) (float64, bool) {
	if v != nil {
		return *v, true
	}
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
