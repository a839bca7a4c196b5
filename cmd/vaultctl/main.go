// Command vaultctl calls the vault backend and prints composed intents.
//
//	vaultctl list
//	vaultctl zap-in  -p "Yearn Vault" -owner 0x.. -chain arbitrum -token usdc -amount 1000000 -slippage 0.5
//	vaultctl zap-out -p "Yearn Vault" -owner 0x.. -chain arbitrum -token usdc -pct 1
//	vaultctl claim   -p "Yearn Vault" -owner 0x.. -chain arbitrum [-token usdc]
//	vaultctl pnl     -address 0x..
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/yourorg/vault-bff/internal/api"
	"github.com/yourorg/vault-bff/internal/config"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/security"
)

type client struct {
	base string
	http *http.Client
}

func (c client) portfolioURL(name, action string) string {
	return fmt.Sprintf("%s/api/portfolios/%s/%s", c.base, url.PathEscape(name), action)
}

func main() {
	config.LoadDotEnv()
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	c := client{
		base: config.GetEnvOrDefault("VAULT_API", "http://localhost:8080"),
		http: fetch.DefaultHTTPClient(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "list":
		err = c.list(ctx)
	case "zap-in":
		err = c.zapIn(ctx, args)
	case "zap-out":
		err = c.zapOut(ctx, args)
	case "claim":
		err = c.claim(ctx, args)
	case "pnl":
		err = c.pnl(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.HiRedString("error: %v", err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vaultctl <list|zap-in|zap-out|claim|pnl> [flags]")
}

func (c client) list(ctx context.Context) error {
	var views []api.PortfolioView
	if err := fetch.GetJSON(ctx, c.http, c.base+"/api/portfolios", nil, &views); err != nil {
		return err
	}
	renderPortfolios(os.Stdout, views)
	return nil
}

func (c client) zapIn(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("zap-in", flag.ExitOnError)
	name := fs.String("p", "", "portfolio name")
	var body api.ZapInBody
	fs.StringVar(&body.Owner, "owner", "", "owner address")
	fs.StringVar(&body.Chain, "chain", "arbitrum", "chain the input is held on")
	fs.StringVar(&body.Token, "token", "usdc", "input token symbol or address")
	fs.StringVar(&body.Amount, "amount", "", "input amount in smallest units")
	fs.Float64Var(&body.Slippage, "slippage", 0.5, "slippage percent")
	fs.BoolVar(&body.OnlyThisChain, "only-this-chain", false, "skip adapters on other chains")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.intent(ctx, c.portfolioURL(*name, "zap-in"), body)
}

func (c client) zapOut(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("zap-out", flag.ExitOnError)
	name := fs.String("p", "", "portfolio name")
	var body api.ZapOutBody
	fs.StringVar(&body.Owner, "owner", "", "owner address")
	fs.StringVar(&body.Chain, "chain", "arbitrum", "chain to withdraw on")
	fs.StringVar(&body.Token, "token", "usdc", "output token")
	fs.Float64Var(&body.Percentage, "pct", 1, "fraction of the position to withdraw")
	fs.Float64Var(&body.Slippage, "slippage", 0.5, "slippage percent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.intent(ctx, c.portfolioURL(*name, "zap-out"), body)
}

func (c client) claim(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	name := fs.String("p", "", "portfolio name")
	var body api.ClaimBody
	fs.StringVar(&body.Owner, "owner", "", "owner address")
	fs.StringVar(&body.Chain, "chain", "arbitrum", "chain to claim on")
	fs.StringVar(&body.Token, "token", "", "swap liquid rewards into this token")
	fs.Float64Var(&body.Slippage, "slippage", 0.5, "slippage percent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.intent(ctx, c.portfolioURL(*name, "claim"), body)
}

func (c client) intent(ctx context.Context, endpoint string, body interface{}) error {
	var signed security.Signed
	if err := fetch.PostJSON(ctx, c.http, endpoint, nil, body, &signed); err != nil {
		return err
	}
	resp, err := decodeIntent(signed)
	if err != nil {
		return err
	}
	renderIntent(os.Stdout, resp, signed, time.Now())
	return nil
}

func (c client) pnl(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pnl", flag.ExitOnError)
	address := fs.String("address", "", "wallet address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var report model.PnLReport
	if err := fetch.GetJSON(ctx, c.http, c.base+"/api/balances/"+*address+"/pnl", nil, &report); err != nil {
		return err
	}
	renderPnL(os.Stdout, report)
	return nil
}
