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
	"github.com/yourorg/vault-bff/internal/protocol"
)

// DefaultOneInchURL is the 1inch developer portal gateway
const DefaultOneInchURL = "https://api.1inch.dev"

// OneInchClient quotes swaps through the 1inch v6 swap API
type OneInchClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewOneInchClient creates a new 1inch client
func NewOneInchClient(baseURL, apiKey string, httpClient *http.Client) *OneInchClient {
	if baseURL == "" {
		baseURL = DefaultOneInchURL
	}
	if httpClient == nil {
		httpClient = fetch.DefaultHTTPClient()
	}
	return &OneInchClient{baseURL: baseURL, httpClient: httpClient, apiKey: apiKey}
}

// Name implements Provider
func (c *OneInchClient) Name() string { return OneInch }

type oneInchResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		To       common.Address `json:"to"`
		Data     hexutil.Bytes  `json:"data"`
		Value    string         `json:"value"`
		Gas      uint64         `json:"gas"`
		GasPrice string         `json:"gasPrice"`
	} `json:"tx"`
	Error       string `json:"error"`
	Description string `json:"description"`
}

// Quote implements Provider
func (c *OneInchClient) Quote(ctx context.Context, req QuoteRequest) (model.SwapQuote, error) {
	q := url.Values{}
	q.Set("src", req.From.Address.Hex())
	q.Set("dst", req.To.Address.Hex())
	q.Set("amount", req.Amount.String())
	q.Set("from", req.Owner.Hex())
	q.Set("origin", req.Owner.Hex())
	q.Set("slippage", strconv.FormatFloat(req.Slippage, 'f', -1, 64))
	q.Set("disableEstimate", "true")
	q.Set("includeGas", "true")
	endpoint := fmt.Sprintf("%s/swap/v6.0/%d/swap?%s", c.baseURL, uint64(req.Chain), q.Encode())

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	var resp oneInchResponse
	if err := fetch.GetJSON(ctx, c.httpClient, endpoint, headers, &resp); err != nil {
		return model.SwapQuote{}, fmt.Errorf("1inch: %w", err)
	}
	if resp.Error != "" {
		return model.SwapQuote{}, fmt.Errorf("1inch: %s: %s", resp.Error, resp.Description)
	}
	toAmount, err := parseAmount(OneInch, "dstAmount", resp.DstAmount)
	if err != nil {
		return model.SwapQuote{}, err
	}
	var value *big.Int
	if resp.Tx.Value != "" {
		if value, err = parseAmount(OneInch, "value", resp.Tx.Value); err != nil {
			return model.SwapQuote{}, err
		}
	}
	var gasPrice *big.Int
	if resp.Tx.GasPrice != "" {
		gasPrice, _ = new(big.Int).SetString(resp.Tx.GasPrice, 10)
	}

	tx := chain.WithExtraGas(chain.Raw(req.Chain, resp.Tx.To, resp.Tx.Data, value, "1inch.swap"), resp.Tx.Gas)
	return model.SwapQuote{
		Provider:     OneInch,
		ToAmount:     toAmount,
		MinToAmount:  protocol.MulWithSlippage(toAmount, req.Slippage),
		GasCostUSD:   gasCostUSD(resp.Tx.Gas, gasPrice, req.Prices),
		ToUSD:        model.UnitsToUSD(toAmount, req.To.Decimals, req.Prices.PriceOrZero(req.To.Symbol)),
		ApproveTo:    resp.Tx.To,
		Transactions: []model.Transaction{tx},
	}, nil
}
