package protocol

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	wad      = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	bpsScale = big.NewInt(10000)
)

// MulWithSlippage returns floor(amount * (100 - slippage) / 100).
// The result is never above amount and never negative.
func MulWithSlippage(amount *big.Int, slippage float64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	if slippage <= 0 {
		return new(big.Int).Set(amount)
	}
	if slippage >= 100 {
		return new(big.Int)
	}
	out := decimal.NewFromBigInt(amount, 0).
		Mul(hundred.Sub(decimal.NewFromFloat(slippage))).
		Div(hundred).
		Floor().
		BigInt()
	if out.Cmp(amount) > 0 {
		return new(big.Int).Set(amount)
	}
	return out
}

// SplitUSD divides usd across legs in proportion to amounts[i]*prices[i]
func SplitUSD(usd float64, amounts, prices []float64) ([]float64, error) {
	if len(amounts) != len(prices) {
		return nil, fmt.Errorf("ratio has %d legs but %d prices", len(amounts), len(prices))
	}
	values := make([]float64, len(amounts))
	var total float64
	for i := range amounts {
		values[i] = amounts[i] * prices[i]
		total += values[i]
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, ErrNoLiquidity
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = usd * v / total
	}
	return out, nil
}

// Deadline returns now+window as a unix timestamp
func Deadline(now time.Time, window time.Duration) *big.Int {
	return big.NewInt(now.Add(window).Unix())
}

// BasisPoints converts a percentage in [0,1] to floor(p*10000)
func BasisPoints(percentage float64) (*big.Int, error) {
	if percentage < 0 || percentage > 1 || math.IsNaN(percentage) {
		return nil, ErrInvalidPercentage
	}
	return decimal.NewFromFloat(percentage).Mul(decimal.NewFromInt(10000)).Floor().BigInt(), nil
}

// FixedPoint18 converts a percentage in [0,1] to an 18-decimal fixed point integer
func FixedPoint18(percentage float64) (*big.Int, error) {
	if percentage < 0 || percentage > 1 || math.IsNaN(percentage) {
		return nil, ErrInvalidPercentage
	}
	return decimal.NewFromFloat(percentage).Shift(18).Floor().BigInt(), nil
}

// ApplyBasisPoints returns balance*bps/10000
func ApplyBasisPoints(balance, bps *big.Int) *big.Int {
	out := new(big.Int).Mul(balance, bps)
	return out.Quo(out, bpsScale)
}

// ApplyFixedPoint18 returns balance*fp/1e18
func ApplyFixedPoint18(balance, fp *big.Int) *big.Int {
	out := new(big.Int).Mul(balance, fp)
	return out.Quo(out, wad)
}

// ProportionalShare returns reserve * (amount*1e18/totalSupply) / 1e18
func ProportionalShare(reserve, amount, totalSupply *big.Int) *big.Int {
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return new(big.Int)
	}
	share := new(big.Int).Mul(amount, wad)
	share.Quo(share, totalSupply)
	out := new(big.Int).Mul(reserve, share)
	return out.Quo(out, wad)
}
