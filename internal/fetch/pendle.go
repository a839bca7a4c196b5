package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/types"
)

// DefaultPendleURL is the Pendle hosted API
const DefaultPendleURL = "https://api-v2.pendle.finance/core"

// PendleClient calls the Pendle SDK endpoints
type PendleClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPendleClient creates a new Pendle API client
func NewPendleClient(baseURL string, httpClient *http.Client) *PendleClient {
	if baseURL == "" {
		baseURL = DefaultPendleURL
	}
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &PendleClient{baseURL: baseURL, httpClient: httpClient}
}

// PendleLiquidityRequest describes an add- or remove-liquidity quote.
// Slippage is a percentage (0.5 means 0.5%).
type PendleLiquidityRequest struct {
	Receiver common.Address
	Token    common.Address
	Amount   *big.Int
	Slippage float64
}

// PendleQuote is the calldata and expected output returned by the SDK
type PendleQuote struct {
	To   common.Address
	Data []byte
	// AmountOut is amountLpOut for deposits and amountOut for withdrawals
	AmountOut *big.Int
	// MinOut is the minimum token out encoded in the call, when present
	MinOut *big.Int
}

type pendleSDKResponse struct {
	Tx struct {
		To   common.Address `json:"to"`
		Data hexutil.Bytes  `json:"data"`
	} `json:"tx"`
	Data struct {
		AmountLpOut string `json:"amountLpOut"`
		AmountOut   string `json:"amountOut"`
	} `json:"data"`
	ContractCallParams []json.RawMessage `json:"contractCallParams"`
}

// AddLiquidity quotes a single-token liquidity deposit into market
func (c *PendleClient) AddLiquidity(ctx context.Context, chain types.ChainID, market common.Address, r PendleLiquidityRequest) (PendleQuote, error) {
	q := url.Values{}
	q.Set("receiver", r.Receiver.Hex())
	q.Set("slippage", strconv.FormatFloat(r.Slippage/100, 'f', -1, 64))
	q.Set("enableAggregator", "true")
	q.Set("tokenIn", r.Token.Hex())
	q.Set("amountIn", r.Amount.String())
	q.Set("zpi", "false")

	var resp pendleSDKResponse
	endpoint := fmt.Sprintf("%s/v1/sdk/%d/markets/%s/add-liquidity?%s", c.baseURL, uint64(chain), market.Hex(), q.Encode())
	if err := GetJSON(ctx, c.httpClient, endpoint, nil, &resp); err != nil {
		return PendleQuote{}, fmt.Errorf("pendle add-liquidity: %w", err)
	}
	out, ok := new(big.Int).SetString(resp.Data.AmountLpOut, 10)
	if !ok {
		return PendleQuote{}, fmt.Errorf("pendle add-liquidity: invalid amountLpOut %q", resp.Data.AmountLpOut)
	}
	return PendleQuote{To: resp.Tx.To, Data: resp.Tx.Data, AmountOut: out}, nil
}

// RemoveLiquidity quotes a single-token withdrawal from market
func (c *PendleClient) RemoveLiquidity(ctx context.Context, chain types.ChainID, market common.Address, r PendleLiquidityRequest) (PendleQuote, error) {
	q := url.Values{}
	q.Set("receiver", r.Receiver.Hex())
	q.Set("slippage", strconv.FormatFloat(r.Slippage/100, 'f', -1, 64))
	q.Set("enableAggregator", "true")
	q.Set("tokenOut", r.Token.Hex())
	q.Set("amountIn", r.Amount.String())

	var resp pendleSDKResponse
	endpoint := fmt.Sprintf("%s/v1/sdk/%d/markets/%s/remove-liquidity?%s", c.baseURL, uint64(chain), market.Hex(), q.Encode())
	if err := GetJSON(ctx, c.httpClient, endpoint, nil, &resp); err != nil {
		return PendleQuote{}, fmt.Errorf("pendle remove-liquidity: %w", err)
	}
	out, ok := new(big.Int).SetString(resp.Data.AmountOut, 10)
	if !ok {
		return PendleQuote{}, fmt.Errorf("pendle remove-liquidity: invalid amountOut %q", resp.Data.AmountOut)
	}
	quote := PendleQuote{To: resp.Tx.To, Data: resp.Tx.Data, AmountOut: out}

	// the fourth call parameter is the TokenOutput struct carrying minTokenOut
	if len(resp.ContractCallParams) > 3 {
		var tokenOut struct {
			MinTokenOut string `json:"minTokenOut"`
		}
		if err := json.Unmarshal(resp.ContractCallParams[3], &tokenOut); err == nil {
			if v, ok := new(big.Int).SetString(tokenOut.MinTokenOut, 10); ok {
				quote.MinOut = v
			}
		}
	}
	return quote, nil
}

// AssetPrice returns the USD price of one raw unit of asset, i.e. pricesUsd[0]/1e18
func (c *PendleClient) AssetPrice(ctx context.Context, chain types.ChainID, asset common.Address) (float64, error) {
	var resp struct {
		PricesUsd []float64 `json:"pricesUsd"`
	}
	endpoint := fmt.Sprintf("%s/v1/%d/prices/assets/addresses?addresses=%s", c.baseURL, uint64(chain), asset.Hex())
	if err := GetJSON(ctx, c.httpClient, endpoint, nil, &resp); err != nil {
		return 0, fmt.Errorf("pendle asset price: %w", err)
	}
	if len(resp.PricesUsd) == 0 {
		return 0, fmt.Errorf("pendle asset price: no price for %s", asset.Hex())
	}
	logrus.WithFields(logrus.Fields{
		"asset": asset.Hex(),
		"price": resp.PricesUsd[0],
	}).Debug("Fetched Pendle asset price")
	return resp.PricesUsd[0] / 1e18, nil
}
