package swap

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
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/protocol"
)

// DefaultParaSwapURL is the ParaSwap API host
const DefaultParaSwapURL = "https://api.paraswap.io"

// ParaSwapClient prices a route and then builds its transaction
type ParaSwapClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewParaSwapClient creates a new ParaSwap client
func NewParaSwapClient(baseURL string, httpClient *http.Client) *ParaSwapClient {
	if baseURL == "" {
		baseURL = DefaultParaSwapURL
	}
	if httpClient == nil {
		httpClient = fetch.DefaultHTTPClient()
	}
	return &ParaSwapClient{baseURL: baseURL, httpClient: httpClient}
}

// Name implements Provider
func (c *ParaSwapClient) Name() string { return ParaSwap }

type paraSwapPriceResponse struct {
	PriceRoute json.RawMessage `json:"priceRoute"`
	Error      string          `json:"error"`
}

type paraSwapRoute struct {
	DestAmount         string         `json:"destAmount"`
	DestUSD            string         `json:"destUSD"`
	GasCostUSD         string         `json:"gasCostUSD"`
	TokenTransferProxy common.Address `json:"tokenTransferProxy"`
}

type paraSwapTxResponse struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value string         `json:"value"`
	Gas   string         `json:"gas"`
	Error string         `json:"error"`
}

// Quote implements Provider
func (c *ParaSwapClient) Quote(ctx context.Context, req QuoteRequest) (model.SwapQuote, error) {
	q := url.Values{}
	q.Set("srcToken", req.From.Address.Hex())
	q.Set("srcDecimals", strconv.Itoa(int(req.From.Decimals)))
	q.Set("destToken", req.To.Address.Hex())
	q.Set("destDecimals", strconv.Itoa(int(req.To.Decimals)))
	q.Set("amount", req.Amount.String())
	q.Set("side", "SELL")
	q.Set("network", strconv.FormatUint(uint64(req.Chain), 10))
	q.Set("userAddress", req.Owner.Hex())

	var priced paraSwapPriceResponse
	if err := fetch.GetJSON(ctx, c.httpClient, c.baseURL+"/prices?"+q.Encode(), nil, &priced); err != nil {
		return model.SwapQuote{}, fmt.Errorf("paraswap prices: %w", err)
	}
	if priced.Error != "" || len(priced.PriceRoute) == 0 {
		return model.SwapQuote{}, fmt.Errorf("paraswap prices: %s", priced.Error)
	}
	var route paraSwapRoute
	if err := json.Unmarshal(priced.PriceRoute, &route); err != nil {
		return model.SwapQuote{}, fmt.Errorf("paraswap route: %w", err)
	}
	toAmount, err := parseAmount(ParaSwap, "destAmount", route.DestAmount)
	if err != nil {
		return model.SwapQuote{}, err
	}

	body := map[string]interface{}{
		"srcToken":     req.From.Address.Hex(),
		"srcDecimals":  req.From.Decimals,
		"destToken":    req.To.Address.Hex(),
		"destDecimals": req.To.Decimals,
		"srcAmount":    req.Amount.String(),
		"slippage":     slippageBps(req.Slippage),
		"userAddress":  req.Owner.Hex(),
		"priceRoute":   priced.PriceRoute,
	}
	txURL := fmt.Sprintf("%s/transactions/%d?ignoreChecks=true", c.baseURL, uint64(req.Chain))
	var built paraSwapTxResponse
	if err := fetch.PostJSON(ctx, c.httpClient, txURL, nil, body, &built); err != nil {
		return model.SwapQuote{}, fmt.Errorf("paraswap transactions: %w", err)
	}
	if built.Error != "" {
		return model.SwapQuote{}, fmt.Errorf("paraswap transactions: %s", built.Error)
	}
	var value *big.Int
	if built.Value != "" {
		if value, err = parseAmount(ParaSwap, "value", built.Value); err != nil {
			return model.SwapQuote{}, err
		}
	}
	gas, _ := strconv.ParseUint(built.Gas, 10, 64)
	toUSD, _ := strconv.ParseFloat(route.DestUSD, 64)
	gasUSD, _ := strconv.ParseFloat(route.GasCostUSD, 64)

	tx := chain.WithExtraGas(chain.Raw(req.Chain, built.To, built.Data, value, "paraswap.swap"), gas)
	return model.SwapQuote{
		Provider:     ParaSwap,
		ToAmount:     toAmount,
		MinToAmount:  protocol.MulWithSlippage(toAmount, req.Slippage),
		GasCostUSD:   gasUSD,
		ToUSD:        toUSD,
		ApproveTo:    route.TokenTransferProxy,
		Transactions: []model.Transaction{tx},
	}, nil
}
