// Package validation filters malformed aggregator quotes and checks request parameters.
package validation

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/model"
)

// QuoteOptions holds configuration for quote filtering
type QuoteOptions struct {
	// RequireTransactions drops quotes that carry no calldata
	RequireTransactions bool

	// RequireSpender drops quotes without an approval target
	RequireSpender bool

	// MaxGasCostUSD drops quotes whose estimated gas exceeds this value. Zero disables the check.
	MaxGasCostUSD float64
}

// DefaultQuoteOptions returns the options used by the swap router
func DefaultQuoteOptions() QuoteOptions {
	return QuoteOptions{
		RequireTransactions: true,
		RequireSpender:      true,
	}
}

// FilterInvalidQuotes removes quotes that fail basic sanity checks
func FilterInvalidQuotes(quotes []model.SwapQuote) []model.SwapQuote {
	return FilterInvalidQuotesWithOptions(quotes, DefaultQuoteOptions())
}

// FilterInvalidQuotesWithOptions removes quotes with custom validation options
func FilterInvalidQuotesWithOptions(quotes []model.SwapQuote, opts QuoteOptions) []model.SwapQuote {
	valid := make([]model.SwapQuote, 0, len(quotes))
	for _, q := range quotes {
		if reason := quoteProblem(q, opts); reason != "" {
			logrus.WithFields(logrus.Fields{
				"provider": q.Provider,
				"reason":   reason,
			}).Debug("Filtered invalid quote")
			continue
		}
		valid = append(valid, q)
	}
	return valid
}

// quoteProblem returns why q is unusable, or ""
func quoteProblem(q model.SwapQuote, opts QuoteOptions) string {
	if q.Provider == "" {
		return "missing provider"
	}
	if q.ToAmount == nil || q.ToAmount.Sign() <= 0 {
		return "zero output amount"
	}
	if q.MinToAmount == nil || q.MinToAmount.Sign() <= 0 {
		return "zero minimum output"
	}
	if q.MinToAmount.Cmp(q.ToAmount) > 0 {
		return "minimum output above quoted output"
	}
	if math.IsNaN(q.ToUSD) || math.IsInf(q.ToUSD, 0) || q.ToUSD < 0 {
		return "invalid USD estimate"
	}
	if math.IsNaN(q.GasCostUSD) || math.IsInf(q.GasCostUSD, 0) || q.GasCostUSD < 0 {
		return "invalid gas estimate"
	}
	if opts.MaxGasCostUSD > 0 && q.GasCostUSD > opts.MaxGasCostUSD {
		return "gas cost too high"
	}
	if opts.RequireSpender && q.ApproveTo == (common.Address{}) {
		return "missing spender"
	}
	if opts.RequireTransactions {
		if len(q.Transactions) == 0 {
			return "no transactions"
		}
		for _, tx := range q.Transactions {
			if len(tx.Data) == 0 || tx.To == (common.Address{}) {
				return "empty calldata"
			}
		}
	}
	return ""
}
