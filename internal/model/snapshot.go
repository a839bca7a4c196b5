package model

import "time"

// BalanceSnapshot is an address's total USD balance at one point in time
type BalanceSnapshot struct {
	Address  string    `json:"address"`
	USDValue float64   `json:"usd_value"`
	TakenAt  time.Time `json:"date"`
}

// PnLReport compares the two newest balance snapshots
type PnLReport struct {
	WeeklyPnL       float64 `json:"weeklyPnL"`
	CurrentBalance  float64 `json:"currentBalance"`
	LastWeekBalance float64 `json:"lastWeekBalance"`
	AnnualROI       float64 `json:"annualROI"`
}
