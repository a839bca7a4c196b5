package swap

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/model"
)

// DefaultZeroXURL is the 0x API host
const DefaultZeroXURL = "https://api.0x.org"

// ZeroXClient quotes swaps through the 0x allowance-holder API
type ZeroXClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewZeroXClient creates a new 0x client
func NewZeroXClient(baseURL, apiKey string, httpClient *http.Client) *ZeroXClient {
	if baseURL == "" {
		baseURL = DefaultZeroXURL
	}
	if httpClient == nil {
		httpClient = fetch.DefaultHTTPClient()
	}
	return &ZeroXClient{baseURL: baseURL, httpClient: httpClient, apiKey: apiKey}
}

// Name implements Provider
func (c *ZeroXClient) Name() string { return ZeroX }

type zeroXResponse struct {
	LiquidityAvailable bool   `json:"liquidityAvailable"`
	BuyAmount          string `json:"buyAmount"`
	MinBuyAmount       string `json:"minBuyAmount"`
	Issues             struct {
		Allowance *struct {
			Spender common.Address `json:"spender"`
		} `json:"allowance"`
	} `json:"issues"`
	Transaction struct {
		To       common.Address `json:"to"`
		Data     hexutil.Bytes  `json:"data"`
		Value    string         `json:"value"`
		Gas      string         `json:"gas"`
		GasPrice string         `json:"gasPrice"`
	} `json:"transaction"`
}

// Quote implements Provider
func (c *ZeroXClient) Quote(ctx context.Context, req QuoteRequest) (model.SwapQuote, error) {
	q := url.Values{}
	q.Set("chainId", strconv.FormatUint(uint64(req.Chain), 10))
	q.Set("sellToken", req.From.Address.Hex())
	q.Set("buyToken", req.To.Address.Hex())
	q.Set("sellAmount", req.Amount.String())
	q.Set("taker", req.Owner.Hex())
	q.Set("slippageBps", strconv.FormatInt(slippageBps(req.Slippage), 10))
	endpoint := c.baseURL + "/swap/allowance-holder/quote?" + q.Encode()

	headers := map[string]string{"0x-version": "v2"}
	if c.apiKey != "" {
		headers["0x-api-key"] = c.apiKey
	}
	var resp zeroXResponse
	if err := fetch.GetJSON(ctx, c.httpClient, endpoint, headers, &resp); err != nil {
		return model.SwapQuote{}, fmt.Errorf("0x: %w", err)
	}
	if !resp.LiquidityAvailable {
		return model.SwapQuote{}, fmt.Errorf("0x: no liquidity for %s to %s", req.From.Symbol, req.To.Symbol)
	}
	toAmount, err := parseAmount(ZeroX, "buyAmount", resp.BuyAmount)
	if err != nil {
		return model.SwapQuote{}, err
	}
	minAmount, err := parseAmount(ZeroX, "minBuyAmount", resp.MinBuyAmount)
	if err != nil {
		return model.SwapQuote{}, err
	}
	var value *big.Int
	if resp.Transaction.Value != "" {
		if value, err = parseAmount(ZeroX, "value", resp.Transaction.Value); err != nil {
			return model.SwapQuote{}, err
		}
	}
	gas, _ := strconv.ParseUint(resp.Transaction.Gas, 10, 64)
	gasPrice, _ := new(big.Int).SetString(resp.Transaction.GasPrice, 10)

	spender := resp.Transaction.To
	if resp.Issues.Allowance != nil && resp.Issues.Allowance.Spender != (common.Address{}) {
		spender = resp.Issues.Allowance.Spender
	}
	tx := chain.WithExtraGas(chain.Raw(req.Chain, resp.Transaction.To, resp.Transaction.Data, value, "0x.swap"), gas)
	return model.SwapQuote{
		Provider:     ZeroX,
		ToAmount:     toAmount,
		MinToAmount:  minAmount,
		GasCostUSD:   gasCostUSD(gas, gasPrice, req.Prices),
		ToUSD:        model.UnitsToUSD(toAmount, req.To.Decimals, req.Prices.PriceOrZero(req.To.Symbol)),
		ApproveTo:    spender,
		Transactions: []model.Transaction{tx},
	}, nil
}
