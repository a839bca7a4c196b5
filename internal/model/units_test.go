package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUSDToUnits(t *testing.T) {
	tests := []struct {
		name     string
		usd      float64
		price    float64
		decimals uint8
		want     string
	}{
		{"stable six decimals", 100, 1, 6, "100000000"},
		{"eth eighteen decimals", 3000, 2000, 18, "1500000000000000000"},
		{"zero price", 100, 0, 18, "0"},
		{"negative usd", -1, 1, 6, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, USDToUnits(tt.usd, tt.price, tt.decimals).String())
		})
	}
}

func TestToFloatRoundTrip(t *testing.T) {
	v := FromFloat(1.25, 6)
	assert.Equal(t, big.NewInt(1250000), v)
	assert.InDelta(t, 1.25, ToFloat(v, 6), 1e-12)
	assert.InDelta(t, 2.5, UnitsToUSD(v, 6, 2), 1e-12)
	assert.Equal(t, 0.0, ToFloat(nil, 18))
}
