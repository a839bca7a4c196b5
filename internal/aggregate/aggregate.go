// Package aggregate derives reports from balance snapshots and reward sets.
package aggregate

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/yourorg/vault-bff/internal/model"
)

// WeeksPerYear annualizes a weekly return
const WeeksPerYear = 52

// ErrNoData is returned when an address has no snapshots
var ErrNoData = errors.New("no data found for this address")

// Newest returns the snapshots of address ordered newest first. Addresses compare case-insensitively.
func Newest(snapshots []model.BalanceSnapshot, address string) []model.BalanceSnapshot {
	out := make([]model.BalanceSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if strings.EqualFold(s.Address, address) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TakenAt.After(out[j].TakenAt)
	})
	return out
}

// PnL compares the newest snapshot with the one before it. A missing previous
// snapshot counts as a zero balance and yields a zero ROI.
func PnL(snapshots []model.BalanceSnapshot, address string) (model.PnLReport, error) {
	rows := Newest(snapshots, address)
	if len(rows) == 0 {
		return model.PnLReport{}, ErrNoData
	}
	report := model.PnLReport{CurrentBalance: rows[0].USDValue}
	if len(rows) > 1 {
		report.LastWeekBalance = rows[1].USDValue
	}
	report.WeeklyPnL = report.CurrentBalance - report.LastWeekBalance
	report.AnnualROI = AnnualROI(report.WeeklyPnL, report.LastWeekBalance)
	return report, nil
}

// AnnualROI is pnl*52/base*100, or 0 when base is zero or the result is not finite
func AnnualROI(weeklyPnL, base float64) float64 {
	if base == 0 {
		return 0
	}
	roi := weeklyPnL * WeeksPerYear / base * 100
	if math.IsNaN(roi) || math.IsInf(roi, 0) {
		return 0
	}
	return roi
}

// RewardSummary splits a reward set into liquid and vesting USD value
type RewardSummary struct {
	TotalUSD   float64 `json:"totalUsd"`
	LiquidUSD  float64 `json:"liquidUsd"`
	VestingUSD float64 `json:"vestingUsd"`
	Tokens     int     `json:"tokens"`
}

// Summarize totals rewards, ignoring entries with a non-finite or negative value
func Summarize(rewards model.Rewards) RewardSummary {
	var s RewardSummary
	for _, e := range rewards {
		if e.USDValue < 0 || math.IsNaN(e.USDValue) || math.IsInf(e.USDValue, 0) {
			continue
		}
		s.Tokens++
		if e.Vesting {
			s.VestingUSD += e.USDValue
		} else {
			s.LiquidUSD += e.USDValue
		}
	}
	s.TotalUSD = s.LiquidUSD + s.VestingUSD
	return s
}
