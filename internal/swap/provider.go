// Package swap routes token conversions through several aggregator APIs and
// keeps the best quote.
package swap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/types"
)

// Provider names
const (
	OneInch  = "1inch"
	ZeroX    = "0x"
	ParaSwap = "paraswap"
)

// QuoteRequest is what every provider needs to build a swap
type QuoteRequest struct {
	Chain    types.ChainID
	Owner    common.Address
	From     model.TokenMetadata
	To       model.TokenMetadata
	Amount   *big.Int
	Slippage float64
	Prices   model.PriceTable
}

// Provider returns a normalized quote with the swap transaction. Approvals are added by the Router.
type Provider interface {
	Name() string
	Quote(ctx context.Context, req QuoteRequest) (model.SwapQuote, error)
}

func parseAmount(provider, field, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid %s %q", provider, field, raw)
	}
	return v, nil
}

// slippageBps converts a slippage percentage to basis points
func slippageBps(slippage float64) int64 {
	return int64(slippage * 100)
}

// gasCostUSD prices gas units at gasPrice wei with the chain's native token price
func gasCostUSD(gas uint64, gasPrice *big.Int, prices model.PriceTable) float64 {
	if gas == 0 || gasPrice == nil {
		return 0
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	price, ok := prices.Price("eth")
	if !ok {
		price = prices.PriceOrZero("weth")
	}
	return model.UnitsToUSD(wei, 18, price)
}
