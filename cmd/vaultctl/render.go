package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/yourorg/vault-bff/internal/api"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/security"
)

func decodeIntent(signed security.Signed) (api.IntentResponse, error) {
	var resp api.IntentResponse
	if err := json.Unmarshal(signed.Payload, &resp); err != nil {
		return api.IntentResponse{}, fmt.Errorf("decode intent: %w", err)
	}
	return resp, nil
}

func renderPortfolios(w io.Writer, views []api.PortfolioView) {
	for _, v := range views {
		fmt.Fprintln(w, color.HiBlueString("%s", v.Name))
		categories := make([]string, 0, len(v.Weights))
		for c := range v.Weights {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Fprintf(w, "  %-12s %5.1f%%\n", c, v.Weights[c]*100)
		}
		fmt.Fprintf(w, "  chains: %s\n", strings.Join(v.Chains, ", "))
		for _, a := range v.Adapters {
			fmt.Fprintf(w, "  - %s\n", a)
		}
	}
}

func renderIntent(w io.Writer, resp api.IntentResponse, signed security.Signed, now time.Time) {
	fmt.Fprintln(w, color.HiBlueString("%s %s on %s (%d transactions)", resp.Portfolio, resp.Intent, resp.Chain, len(resp.Transactions)))
	for i, tx := range resp.Transactions {
		desc := tx.Description
		if desc == "" {
			desc = "call"
		}
		fmt.Fprintf(w, "  %2d. %-40s to %s\n", i+1, desc, tx.To.Hex())
	}

	loss := fmt.Sprintf("trading loss: $%.2f", resp.TradingLossUSD)
	if resp.TradingLossUSD < 0 {
		fmt.Fprintln(w, color.HiYellowString("%s", loss))
	} else {
		fmt.Fprintln(w, color.HiGreenString("%s", loss))
	}
	if len(resp.Rewards) > 0 {
		renderRewards(w, resp.Rewards)
	}

	switch {
	case signed.Signature == nil:
		fmt.Fprintln(w, color.HiYellowString("unsigned bundle"))
	case security.Verify(signed, now) != nil:
		fmt.Fprintln(w, color.HiRedString("signature invalid: %v", security.Verify(signed, now)))
	default:
		fmt.Fprintln(w, color.HiGreenString("signed by %s", signed.Signature.Signer.Hex()))
	}
}

func renderRewards(w io.Writer, rewards model.Rewards) {
	keys := rewards.Keys()
	for _, k := range keys {
		e := rewards[k]
		line := fmt.Sprintf("  reward %-8s $%.2f", e.Symbol, e.USDValue)
		if e.Vesting {
			line += " (vesting)"
		}
		fmt.Fprintln(w, line)
	}
}

func renderPnL(w io.Writer, r model.PnLReport) {
	fmt.Fprintf(w, "balance:    $%.2f (last week $%.2f)\n", r.CurrentBalance, r.LastWeekBalance)
	pnl := fmt.Sprintf("weekly pnl: $%.2f, annual roi %.2f%%", r.WeeklyPnL, r.AnnualROI)
	if r.WeeklyPnL < 0 {
		fmt.Fprintln(w, color.HiRedString("%s", pnl))
		return
	}
	fmt.Fprintln(w, color.HiGreenString("%s", pnl))
}
