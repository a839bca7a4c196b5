package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToDecimal converts an integer amount in smallest units into a decimal token amount
func ToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ToFloat converts an integer amount in smallest units into a float token amount
func ToFloat(amount *big.Int, decimals uint8) float64 {
	f, _ := ToDecimal(amount, decimals).Float64()
	return f
}

// FromFloat converts a float token amount into smallest units, rounding down
func FromFloat(amount float64, decimals uint8) *big.Int {
	if amount <= 0 {
		return new(big.Int)
	}
	return decimal.NewFromFloat(amount).Shift(int32(decimals)).Floor().BigInt()
}

// USDToUnits converts a USD value into smallest units of a token priced at price
func USDToUnits(usd, price float64, decimals uint8) *big.Int {
	if price <= 0 || usd <= 0 {
		return new(big.Int)
	}
	return decimal.NewFromFloat(usd).
		Div(decimal.NewFromFloat(price)).
		Shift(int32(decimals)).
		Floor().
		BigInt()
}

// UnitsToUSD values an integer amount with a USD price
func UnitsToUSD(amount *big.Int, decimals uint8, price float64) float64 {
	v, _ := ToDecimal(amount, decimals).Mul(decimal.NewFromFloat(price)).Float64()
	return v
}
