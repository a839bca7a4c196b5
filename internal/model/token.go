// Package model defines the core data structures shared by adapters, the composer and the API.
package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/types"
)

// TokenMetadata describes an ERC20 token on a single chain.
// Values are immutable once loaded into the registry.
type TokenMetadata struct {
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Address  common.Address `json:"address" yaml:"address"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
	// PriceID is the price-feed identifier used to look the token up in the price table source
	PriceID string        `json:"priceId,omitempty" yaml:"price_id,omitempty"`
	Chain   types.ChainID `json:"chainId,omitempty" yaml:"-"`
}

// Key returns the lower-case symbol used by price tables
func (t TokenMetadata) Key() string {
	return strings.ToLower(t.Symbol)
}

// SameToken compares by address, ignoring symbol casing and metadata
func (t TokenMetadata) SameToken(other TokenMetadata) bool {
	return t.Address == other.Address
}

// PriceTable maps a lower-case token symbol to its USD price.
// It is supplied by the caller per request.
type PriceTable map[string]float64

// Price returns the USD price for symbol, case-insensitively
func (p PriceTable) Price(symbol string) (float64, bool) {
	v, ok := p[strings.ToLower(symbol)]
	return v, ok
}

// PriceOrZero returns the price, or 0 when the symbol is absent.
// Callers that must not price a missing token at zero use Price.
func (p PriceTable) PriceOrZero(symbol string) float64 {
	v, _ := p.Price(symbol)
	return v
}
