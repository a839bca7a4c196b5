package swap

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quoteRequest() QuoteRequest {
	r := request(nil).QuoteRequest
	r.Prices["eth"] = 2000
	return r
}

func TestOneInchQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v6.0/42161/swap", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "1000000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "1", r.URL.Query().Get("slippage"))
		_, _ = w.Write([]byte(`{
			"dstAmount": "500000000000000000",
			"tx": {"to": "0x111111125421ca6dc452d289314280a0f8842a65", "data": "0x07ed2379", "value": "0", "gas": 250000, "gasPrice": "10000000"}
		}`))
	}))
	defer server.Close()

	q, err := NewOneInchClient(server.URL, "secret", server.Client()).Quote(context.Background(), quoteRequest())
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", q.ToAmount.String())
	assert.Equal(t, "495000000000000000", q.MinToAmount.String())
	assert.InDelta(t, 1000, q.ToUSD, 1e-9)
	assert.InDelta(t, 0.005, q.GasCostUSD, 1e-12)
	assert.Equal(t, common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65"), q.ApproveTo)
	require.Len(t, q.Transactions, 1)
	assert.Equal(t, uint64(250000), q.Transactions[0].ExtraGas)
	assert.Nil(t, q.Transactions[0].Value)
}

func TestOneInchErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Bad Request", "description": "insufficient liquidity"}`))
	}))
	defer server.Close()

	_, err := NewOneInchClient(server.URL, "", server.Client()).Quote(context.Background(), quoteRequest())
	assert.ErrorContains(t, err, "insufficient liquidity")
}

func TestZeroXQuote(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
		spender common.Address
	}{
		{
			name: "allowance spender",
			body: `{"liquidityAvailable": true, "buyAmount": "500000000000000000", "minBuyAmount": "495000000000000000",
				"issues": {"allowance": {"spender": "0x0000000000001ff3684f28c67538d4d072c22734"}},
				"transaction": {"to": "0x7f6cee965959295cc64d0e6c00d99d6532d8e86b", "data": "0x2213bc0b", "gas": "300000", "gasPrice": "10000000", "value": "0"}}`,
			spender: common.HexToAddress("0x0000000000001ff3684f28c67538d4d072c22734"),
		},
		{
			name:    "no liquidity",
			body:    `{"liquidityAvailable": false}`,
			wantErr: "no liquidity",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/swap/allowance-holder/quote", r.URL.Path)
				assert.Equal(t, "v2", r.Header.Get("0x-version"))
				assert.Equal(t, "100", r.URL.Query().Get("slippageBps"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			q, err := NewZeroXClient(server.URL, "key", server.Client()).Quote(context.Background(), quoteRequest())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spender, q.ApproveTo)
			assert.Equal(t, "495000000000000000", q.MinToAmount.String())
			assert.Equal(t, uint64(300000), q.Transactions[0].ExtraGas)
		})
	}
}

func TestParaSwapQuote(t *testing.T) {
	var posted map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prices":
			assert.Equal(t, "SELL", r.URL.Query().Get("side"))
			_, _ = w.Write([]byte(`{"priceRoute": {"destAmount": "500000000000000000", "destUSD": "998.5", "gasCostUSD": "0.12",
				"tokenTransferProxy": "0x216b4b4ba9f3e719726886d34a177484278bfcae"}}`))
		case "/transactions/42161":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			_, _ = w.Write([]byte(`{"to": "0x6a000f20005980200259b80c5102003040001068", "data": "0xe3ead59e", "value": "0", "gas": "280000"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	q, err := NewParaSwapClient(server.URL, server.Client()).Quote(context.Background(), quoteRequest())
	require.NoError(t, err)
	assert.InDelta(t, 998.5, q.ToUSD, 1e-9)
	assert.InDelta(t, 0.12, q.GasCostUSD, 1e-9)
	assert.Equal(t, common.HexToAddress("0x216b4b4ba9f3e719726886d34a177484278bfcae"), q.ApproveTo)
	assert.Equal(t, 0, q.MinToAmount.Cmp(big.NewInt(495000000000000000)))
	assert.Equal(t, float64(100), posted["slippage"])
	assert.Equal(t, "1000000000", posted["srcAmount"])
	assert.Contains(t, posted, "priceRoute")
}
