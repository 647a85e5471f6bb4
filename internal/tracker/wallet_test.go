package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portto/solana-go-sdk/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcTestRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func tokenAccountJSON(pubkey, mint string, uiAmount any, uiAmountString string, decimals any) map[string]any {
	return map[string]any{
		"pubkey": pubkey,
		"account": map[string]any{
			"lamports": 2039280,
			"owner":    common.TokenProgramID.ToBase58(),
			"data": map[string]any{
				"program": "spl-token",
				"space":   165,
				"parsed": map[string]any{
					"type": "account",
					"info": map[string]any{
						"mint": mint,
						"tokenAmount": map[string]any{
							"uiAmount":       uiAmount,
							"uiAmountString": uiAmountString,
							"decimals":       decimals,
						},
					},
				},
			},
		},
	}
}

func newRPCServer(t *testing.T, handle func(req rpcTestRequest) any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcTestRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(handle(req))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRPCHoldingsSource_FetchHoldings(t *testing.T) {
	var got rpcTestRequest
	server := newRPCServer(t, func(req rpcTestRequest) any {
		got = req
		return map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]any{
				"context": map[string]any{"slot": 1},
				"value": []any{
					tokenAccountJSON("acc1", "MintA", 1.5, "1.5", 6),
					tokenAccountJSON("acc2", "MintB", nil, "42.25", 9),
					tokenAccountJSON("acc3", "MintC", 0, "0", 6),
					tokenAccountJSON("acc4", "", 3.0, "3", 6),
					tokenAccountJSON("acc5", "MintE", nil, "", 6),
					tokenAccountJSON("acc6", "MintF", 7.0, "7", nil),
				},
			},
		}
	})

	src := NewRPCHoldingsSource(server.URL, WithRequestTimeout(5*time.Second))
	holdings, err := src.FetchHoldings(context.Background(), "Wallet111")
	require.NoError(t, err)

	assert.Equal(t, "getTokenAccountsByOwner", got.Method)
	require.Len(t, got.Params, 3)

	var wallet string
	require.NoError(t, json.Unmarshal(got.Params[0], &wallet))
	assert.Equal(t, "Wallet111", wallet)

	var filter map[string]string
	require.NoError(t, json.Unmarshal(got.Params[1], &filter))
	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", filter["programId"])

	var cfg map[string]string
	require.NoError(t, json.Unmarshal(got.Params[2], &cfg))
	assert.Equal(t, "jsonParsed", cfg["encoding"])
	assert.Equal(t, "confirmed", cfg["commitment"])

	assert.Equal(t, []Holding{
		{Mint: "MintA", Amount: 1.5, Decimals: 6},
		{Mint: "MintB", Amount: 42.25, Decimals: 9},
		{Mint: "MintC", Amount: 0, Decimals: 6},
	}, holdings)
}

func TestRPCHoldingsSource_SkipsUndecodableAccounts(t *testing.T) {
	server := newRPCServer(t, func(req rpcTestRequest) any {
		return map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]any{
				"context": map[string]any{"slot": 1},
				"value": []any{
					tokenAccountJSON("acc1", "MintA", 1.5, "1.5", 6),
					map[string]any{
						"pubkey":  "acc2",
						"account": map[string]any{"data": []any{"AAAA", "base64"}},
					},
					tokenAccountJSON("acc3", "MintC", 2.0, "2", "6"),
					tokenAccountJSON("acc4", "MintD", 4.0, "4", 9),
				},
			},
		}
	})

	src := NewRPCHoldingsSource(server.URL)
	holdings, err := src.FetchHoldings(context.Background(), "Wallet111")
	require.NoError(t, err)

	assert.Equal(t, []Holding{
		{Mint: "MintA", Amount: 1.5, Decimals: 6},
		{Mint: "MintD", Amount: 4, Decimals: 9},
	}, holdings)
}

func TestRPCHoldingsSource_RPCError(t *testing.T) {
	server := newRPCServer(t, func(req rpcTestRequest) any {
		return map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32602, "message": "Invalid param: WrongSize"},
		}
	})

	src := NewRPCHoldingsSource(server.URL)
	_, err := src.FetchHoldings(context.Background(), "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHoldingsFetch)
	assert.Contains(t, err.Error(), "WrongSize")
}

func TestRPCHoldingsSource_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src := NewRPCHoldingsSource(server.URL)
	_, err := src.FetchHoldings(context.Background(), "Wallet111")
	assert.ErrorIs(t, err, ErrHoldingsFetch)
}

func TestRPCHoldingsSource_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	src := NewRPCHoldingsSource(server.URL, WithRequestTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := src.FetchHoldings(context.Background(), "Wallet111")
	assert.ErrorIs(t, err, ErrHoldingsFetch)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFilterHoldings(t *testing.T) {
	in := []Holding{
		{Mint: "A", Amount: 0},
		{Mint: "B", Amount: 0.000001},
		{Mint: "C", Amount: 0.0000011},
		{Mint: "", Amount: 10},
		{Mint: "D", Amount: 100},
	}

	out := FilterHoldings(in, 0.000001)
	require.Len(t, out, 2)
	assert.Equal(t, "C", out[0].Mint)
	assert.Equal(t, "D", out[1].Mint)
}
