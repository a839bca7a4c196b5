// Package yearn adapts Yearn V3 ERC-4626 vaults. Vaults pay no separate
// rewards and have no lock-up.
package yearn

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/erc20"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/types"
)

// Params configures one vault
type Params struct {
	Vault   common.Address `yaml:"vault" param:"required"`
	Asset   string         `yaml:"asset" param:"required"`
	Symbols []string       `yaml:"symbols"`
}

// Adapter implements protocol.SingleAdapter
type Adapter struct {
	protocol.Base
	deps   protocol.Deps
	params Params
	asset  model.TokenMetadata
}

var _ protocol.SingleAdapter = (*Adapter)(nil)

// New resolves the vault asset on chainID
func New(deps protocol.Deps, chainID types.ChainID, p Params) (*Adapter, error) {
	if err := protocol.RequireParams(p); err != nil {
		return nil, fmt.Errorf("yearn: %w", err)
	}
	asset, err := deps.Registry.Token(chainID, p.Asset)
	if err != nil {
		return nil, fmt.Errorf("yearn: %w", err)
	}
	symbols := p.Symbols
	if len(symbols) == 0 {
		symbols = []string{asset.Key()}
	}
	return &Adapter{
		Base: protocol.Base{
			Protocol: "yearn",
			Version:  "v3",
			ChainID:  chainID,
			Symbols:  symbols,
		},
		deps:   deps,
		params: p,
		asset:  asset,
	}, nil
}

// Rewards is always empty
func (a *Adapter) Rewards() []model.TokenMetadata { return nil }

// ZapInToken is the vault asset regardless of input
func (a *Adapter) ZapInToken(model.TokenMetadata) model.TokenMetadata { return a.asset }

// ZapOutToken is the vault asset
func (a *Adapter) ZapOutToken() model.TokenMetadata { return a.asset }

func (a *Adapter) convertToAssets(ctx context.Context, shares *big.Int) (*big.Int, error) {
	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.params.Vault, chain.ERC4626, "convertToAssets", shares))
	if err != nil {
		return nil, fmt.Errorf("yearn convertToAssets: %w", err)
	}
	return res.Big(0), nil
}

// AssetUSDPrice is the USD value of one raw share unit. Shares use the asset's decimals.
func (a *Adapter) AssetUSDPrice(ctx context.Context, prices model.PriceTable) (float64, error) {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.asset.Decimals)), nil)
	assets, err := a.convertToAssets(ctx, one)
	if err != nil {
		return 0, err
	}
	return model.UnitsToUSD(assets, a.asset.Decimals, prices.PriceOrZero(a.asset.Symbol)) / model.ToFloat(one, 0), nil
}

// USDBalanceOf values the owner's shares at the vault's current exchange rate
func (a *Adapter) USDBalanceOf(ctx context.Context, owner common.Address, prices model.PriceTable) (float64, error) {
	shares, err := erc20.BalanceOf(ctx, a.deps.Reader, a.ChainID, a.params.Vault, owner)
	if err != nil {
		return 0, err
	}
	if shares.Sign() == 0 {
		return 0, nil
	}
	assets, err := a.convertToAssets(ctx, shares)
	if err != nil {
		return 0, err
	}
	return model.UnitsToUSD(assets, a.asset.Decimals, prices.PriceOrZero(a.asset.Symbol)), nil
}

// PendingRewards is always empty
func (a *Adapter) PendingRewards(context.Context, common.Address, model.PriceTable, progress.Sink) (model.Rewards, error) {
	return model.Rewards{}, nil
}

// Claim has nothing to claim
func (a *Adapter) Claim(context.Context, common.Address, model.PriceTable, progress.Sink) ([]model.Transaction, model.Rewards, error) {
	return nil, model.Rewards{}, nil
}

// Stake is a no-op; vault shares are the position
func (a *Adapter) Stake(context.Context, *big.Int) ([]model.Transaction, error) {
	return nil, nil
}

// Unstake needs no transactions and reports the share of vault shares to redeem
func (a *Adapter) Unstake(ctx context.Context, owner common.Address, percentage float64) (protocol.UnstakeResult, error) {
	bps, err := protocol.BasisPoints(percentage)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	shares, err := erc20.BalanceOf(ctx, a.deps.Reader, a.ChainID, a.params.Vault, owner)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	if shares.Sign() == 0 {
		return protocol.UnstakeResult{}, nil
	}
	return protocol.UnstakeResult{Amount: protocol.ApplyBasisPoints(shares, bps)}, nil
}

// LockUpPeriod is always zero
func (a *Adapter) LockUpPeriod(context.Context, common.Address) (time.Duration, error) {
	return 0, nil
}

// Deposit approves the asset to the vault and deposits it for the owner
func (a *Adapter) Deposit(_ context.Context, req protocol.DepositRequest) ([]model.Transaction, error) {
	if !req.Leg.Token.SameToken(a.asset) {
		return nil, fmt.Errorf("yearn: vault takes %s, got %s", a.asset.Symbol, req.Leg.Token.Symbol)
	}
	approve, err := erc20.Approve(a.ChainID, a.asset.Address, a.params.Vault, req.Leg.Amount)
	if err != nil {
		return nil, err
	}
	deposit, err := chain.Build(a.ChainID, a.params.Vault, chain.ERC4626, "deposit", req.Leg.Amount, req.Owner)
	if err != nil {
		return nil, err
	}
	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-deposit", 0)
	return []model.Transaction{approve, deposit}, nil
}

// WithdrawAndClaim redeems shares into the asset with a slippage minimum on the converted amount
func (a *Adapter) WithdrawAndClaim(ctx context.Context, req protocol.WithdrawRequest) (protocol.WithdrawResult, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return protocol.WithdrawResult{}, protocol.ErrNoPosition
	}
	assets, err := a.convertToAssets(ctx, req.Amount)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	redeem, err := chain.Build(a.ChainID, a.params.Vault, chain.ERC4626, "redeem", req.Amount, req.Owner, req.Owner)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-withdraw", 0)
	return protocol.WithdrawResult{
		Transactions: []model.Transaction{redeem},
		Tokens:       []model.TokenMetadata{a.asset},
		MinAmounts:   []*big.Int{protocol.MulWithSlippage(assets, req.Slippage)},
	}, nil
}
