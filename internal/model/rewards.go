package model

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RewardEntry is a claimable or vesting reward balance for one token
type RewardEntry struct {
	Symbol   string   `json:"symbol"`
	Balance  *big.Int `json:"balance"`
	USDValue float64  `json:"usdDenominatedValue"`
	Decimals uint8    `json:"decimals"`
	Vesting  bool     `json:"vesting"`
}

// Rewards maps a lower-case token address to its reward entry
type Rewards map[string]RewardEntry

// RewardKey normalizes a token address into a Rewards key
func RewardKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// NewRewardEntry prices balance with the table entry for symbol
func NewRewardEntry(symbol string, balance *big.Int, decimals uint8, prices PriceTable, vesting bool) RewardEntry {
	if balance == nil {
		balance = new(big.Int)
	}
	return RewardEntry{
		Symbol:   symbol,
		Balance:  new(big.Int).Set(balance),
		USDValue: ToFloat(balance, decimals) * prices.PriceOrZero(symbol),
		Decimals: decimals,
		Vesting:  vesting,
	}
}

// Add records entry under addr, summing with any existing entry
func (r Rewards) Add(addr common.Address, entry RewardEntry) {
	key := RewardKey(addr)
	existing, ok := r[key]
	if !ok {
		if entry.Balance == nil {
			entry.Balance = new(big.Int)
		}
		r[key] = entry
		return
	}
	r[key] = mergeEntry(existing, entry)
}

// Merge combines reward maps. Balances and USD values are summed; the vesting flag
// is true if either side is vesting, so the result does not depend on argument order.
func Merge(sets ...Rewards) Rewards {
	out := Rewards{}
	for _, set := range sets {
		for key, entry := range set {
			if existing, ok := out[key]; ok {
				out[key] = mergeEntry(existing, entry)
				continue
			}
			entry.Balance = cloneInt(entry.Balance)
			out[key] = entry
		}
	}
	return out
}

func mergeEntry(a, b RewardEntry) RewardEntry {
	merged := a
	merged.Balance = new(big.Int).Add(cloneInt(a.Balance), cloneInt(b.Balance))
	merged.USDValue = a.USDValue + b.USDValue
	merged.Vesting = a.Vesting || b.Vesting
	if merged.Symbol == "" {
		merged.Symbol = b.Symbol
	}
	if merged.Decimals == 0 {
		merged.Decimals = b.Decimals
	}
	return merged
}

// TotalUSD sums the USD value of all entries
func (r Rewards) TotalUSD() float64 {
	var total float64
	for _, e := range r {
		total += e.USDValue
	}
	return total
}

// Keys returns the reward addresses in sorted order
func (r Rewards) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
