// Package velodrome adapts Velodrome and Aerodrome stable pools with gauge staking.
package velodrome

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/erc20"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
)

// DeadlineWindow bounds router calls
const DeadlineWindow = 10 * time.Minute

// Params configures one pool. Protocol is "velodrome" or "aerodrome".
type Params struct {
	Protocol string         `yaml:"protocol" param:"required"`
	Version  string         `yaml:"version"`
	Pool     common.Address `yaml:"pool" param:"required"`
	Gauge    common.Address `yaml:"gauge" param:"required"`
	Router   common.Address `yaml:"router"`
	LPTokens []string       `yaml:"lp_tokens" param:"required"`
	Rewards  []string       `yaml:"rewards"`
}

// Adapter implements protocol.LPAdapter
type Adapter struct {
	protocol.Base
	deps     protocol.Deps
	params   Params
	router   common.Address
	lpTokens [2]model.TokenMetadata
	rewards  []model.TokenMetadata
}

var _ protocol.LPAdapter = (*Adapter)(nil)

// New resolves tokens and the router for p on chainID
func New(deps protocol.Deps, chainID types.ChainID, p Params) (*Adapter, error) {
	if err := protocol.RequireParams(p); err != nil {
		return nil, fmt.Errorf("velodrome: %w", err)
	}
	if len(p.LPTokens) != 2 {
		return nil, fmt.Errorf("velodrome: %w: lp_tokens needs two symbols, got %d", protocol.ErrMissingParam, len(p.LPTokens))
	}
	name := strings.ToLower(p.Protocol)
	if p.Version == "" {
		p.Version = "v2"
	}

	router := p.Router
	if router == (common.Address{}) {
		key := registry.VelodromeRouter
		if name == "aerodrome" {
			key = registry.AerodromeRouter
		}
		addr, err := deps.Registry.Contract(chainID, key)
		if err != nil {
			return nil, fmt.Errorf("velodrome: %w", err)
		}
		router = addr
	}

	a := &Adapter{
		Base: protocol.Base{
			Protocol: name,
			Version:  p.Version,
			ChainID:  chainID,
			Symbols:  p.LPTokens,
		},
		deps:   deps,
		params: p,
		router: router,
	}
	for i, sym := range p.LPTokens {
		tok, err := deps.Registry.Token(chainID, sym)
		if err != nil {
			return nil, fmt.Errorf("velodrome: %w", err)
		}
		a.lpTokens[i] = tok
	}
	for _, sym := range p.Rewards {
		tok, err := deps.Registry.Token(chainID, sym)
		if err != nil {
			return nil, fmt.Errorf("velodrome: %w", err)
		}
		a.rewards = append(a.rewards, tok)
	}
	return a, nil
}

// Rewards returns the configured reward tokens
func (a *Adapter) Rewards() []model.TokenMetadata {
	return append([]model.TokenMetadata(nil), a.rewards...)
}

// LPTokens returns the pool pair
func (a *Adapter) LPTokens() [2]model.TokenMetadata {
	return a.lpTokens
}

type poolState struct {
	dec0, dec1  *big.Int
	r0, r1      *big.Int
	totalSupply *big.Int
}

// readPool reads metadata and totalSupply together; either failing fails both
func (a *Adapter) readPool(ctx context.Context) (poolState, error) {
	results, err := chain.CallBatch(ctx, a.deps.Reader, []chain.Call{
		chain.NewCall(a.ChainID, a.params.Pool, chain.VelodromePool, "metadata"),
		chain.NewCall(a.ChainID, a.params.Pool, chain.VelodromePool, "totalSupply"),
	})
	if err != nil {
		return poolState{}, fmt.Errorf("%s pool state: %w", a.Protocol, err)
	}
	meta := results[0]
	return poolState{
		dec0:        meta.Big(0),
		dec1:        meta.Big(1),
		r0:          meta.Big(2),
		r1:          meta.Big(3),
		totalSupply: results[1].Big(0),
	}, nil
}

// lpPrice is (r0n*p0 + r1n*p1) / totalSupply, per raw LP unit
func (a *Adapter) lpPrice(s poolState, prices model.PriceTable) float64 {
	if s.totalSupply.Sign() == 0 {
		return 0
	}
	value := model.UnitsToUSD(s.r0, a.lpTokens[0].Decimals, prices.PriceOrZero(a.lpTokens[0].Symbol)) +
		model.UnitsToUSD(s.r1, a.lpTokens[1].Decimals, prices.PriceOrZero(a.lpTokens[1].Symbol))
	return value / model.ToFloat(s.totalSupply, 0)
}

// AssetUSDPrice returns the USD price of one raw LP unit
func (a *Adapter) AssetUSDPrice(ctx context.Context, prices model.PriceTable) (float64, error) {
	s, err := a.readPool(ctx)
	if err != nil {
		return 0, err
	}
	return a.lpPrice(s, prices), nil
}

func (a *Adapter) stakedBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return erc20.BalanceOf(ctx, a.deps.Reader, a.ChainID, a.params.Gauge, owner)
}

// USDBalanceOf values the LP staked in the gauge
func (a *Adapter) USDBalanceOf(ctx context.Context, owner common.Address, prices model.PriceTable) (float64, error) {
	balance, err := a.stakedBalance(ctx, owner)
	if err != nil {
		return 0, err
	}
	price, err := a.AssetUSDPrice(ctx, prices)
	if err != nil {
		return 0, err
	}
	return model.ToFloat(balance, 0) * price, nil
}

// PendingRewards reads gauge earned(owner). The gauge emits a single token,
// so the amount is attributed to the first configured reward.
func (a *Adapter) PendingRewards(ctx context.Context, owner common.Address, prices model.PriceTable, _ progress.Sink) (model.Rewards, error) {
	out := model.Rewards{}
	if len(a.rewards) == 0 {
		return out, nil
	}
	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.params.Gauge, chain.VelodromeGauge, "earned", owner))
	if err != nil {
		return nil, fmt.Errorf("%s earned: %w", a.Protocol, err)
	}
	earned := res.Big(0)
	if earned.Sign() == 0 {
		return out, nil
	}
	tok := a.rewards[0]
	out.Add(tok.Address, model.NewRewardEntry(tok.Symbol, earned, tok.Decimals, prices, false))
	return out, nil
}

// Claim builds gauge getReward(owner)
func (a *Adapter) Claim(ctx context.Context, owner common.Address, prices model.PriceTable, sink progress.Sink) ([]model.Transaction, model.Rewards, error) {
	pending, err := a.PendingRewards(ctx, owner, prices, sink)
	if err != nil {
		return nil, nil, err
	}
	tx, err := chain.Build(a.ChainID, a.params.Gauge, chain.VelodromeGauge, "getReward", owner)
	if err != nil {
		return nil, nil, err
	}
	return []model.Transaction{tx}, pending, nil
}

// Stake approves amount of LP to the gauge and deposits it
func (a *Adapter) Stake(_ context.Context, amount *big.Int) ([]model.Transaction, error) {
	approve, err := erc20.Approve(a.ChainID, a.params.Pool, a.params.Gauge, amount)
	if err != nil {
		return nil, err
	}
	deposit, err := chain.Build(a.ChainID, a.params.Gauge, chain.VelodromeGauge, "deposit", amount)
	if err != nil {
		return nil, err
	}
	return []model.Transaction{approve, deposit}, nil
}

// Unstake withdraws a share of the gauge balance
func (a *Adapter) Unstake(ctx context.Context, owner common.Address, percentage float64) (protocol.UnstakeResult, error) {
	bps, err := protocol.BasisPoints(percentage)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	balance, err := a.stakedBalance(ctx, owner)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	if balance.Sign() == 0 {
		return protocol.UnstakeResult{}, nil
	}
	amount := protocol.ApplyBasisPoints(balance, bps)
	tx, err := chain.Build(a.ChainID, a.params.Gauge, chain.VelodromeGauge, "withdraw", amount)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	return protocol.UnstakeResult{Transactions: []model.Transaction{tx}, Amount: amount}, nil
}

// LockUpPeriod is always zero
func (a *Adapter) LockUpPeriod(context.Context, common.Address) (time.Duration, error) {
	return 0, nil
}

// TokenAmountsForLP returns the reserves scaled by the pool's decimals
func (a *Adapter) TokenAmountsForLP(ctx context.Context, _ float64, _ model.PriceTable) ([]float64, error) {
	s, err := a.readPool(ctx)
	if err != nil {
		return nil, err
	}
	if s.r0.Sign() == 0 || s.r1.Sign() == 0 || s.dec0.Sign() == 0 || s.dec1.Sign() == 0 {
		return nil, protocol.ErrNoLiquidity
	}
	r0, _ := decimal.NewFromBigInt(s.r0, 0).Div(decimal.NewFromBigInt(s.dec0, 0)).Float64()
	r1, _ := decimal.NewFromBigInt(s.r1, 0).Div(decimal.NewFromBigInt(s.dec1, 0)).Float64()
	return []float64{r0, r1}, nil
}

// DepositLP adds liquidity through the router and stakes the minimum minted LP
func (a *Adapter) DepositLP(ctx context.Context, req protocol.DepositLPRequest) ([]model.Transaction, error) {
	s, err := a.readPool(ctx)
	if err != nil {
		return nil, err
	}
	if s.r0.Sign() == 0 || s.r1.Sign() == 0 {
		return nil, protocol.ErrNoLiquidity
	}

	minA := protocol.MulWithSlippage(req.TokenA.Amount, req.Slippage)
	minB := protocol.MulWithSlippage(req.TokenB.Amount, req.Slippage)
	mintA := new(big.Int).Mul(minA, s.totalSupply)
	mintA.Quo(mintA, s.r0)
	mintB := new(big.Int).Mul(minB, s.totalSupply)
	mintB.Quo(mintB, s.r1)
	minMint := mintA
	if mintB.Cmp(mintA) < 0 {
		minMint = mintB
	}

	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-deposit", 0)

	var txs []model.Transaction
	for _, leg := range []protocol.Leg{req.TokenA, req.TokenB} {
		approve, err := erc20.Approve(a.ChainID, leg.Token.Address, a.router, leg.Amount)
		if err != nil {
			return nil, err
		}
		txs = append(txs, approve)
	}
	add, err := chain.Build(a.ChainID, a.router, chain.VelodromeRouter, "addLiquidity",
		req.TokenA.Token.Address, req.TokenB.Token.Address, true,
		req.TokenA.Amount, req.TokenB.Amount, minA, minB,
		req.Owner, protocol.Deadline(a.deps.Clock(), DeadlineWindow))
	if err != nil {
		return nil, err
	}
	txs = append(txs, add)

	stake, err := a.Stake(ctx, minMint)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"adapter":  a.UniqueID(),
		"min_mint": minMint.String(),
	}).Debug("Composed liquidity deposit")
	return append(txs, stake...), nil
}

// WithdrawLPAndClaim removes liquidity through the router and claims gauge rewards
func (a *Adapter) WithdrawLPAndClaim(ctx context.Context, req protocol.WithdrawRequest) (protocol.WithdrawResult, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return protocol.WithdrawResult{}, protocol.ErrNoPosition
	}
	approve, err := erc20.Approve(a.ChainID, a.params.Pool, a.router, req.Amount)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	s, err := a.readPool(ctx)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	if s.totalSupply.Sign() == 0 {
		return protocol.WithdrawResult{}, protocol.ErrNoLiquidity
	}
	min0 := protocol.MulWithSlippage(protocol.ProportionalShare(s.r0, req.Amount, s.totalSupply), req.Slippage)
	min1 := protocol.MulWithSlippage(protocol.ProportionalShare(s.r1, req.Amount, s.totalSupply), req.Slippage)

	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-withdraw", 0)

	remove, err := chain.Build(a.ChainID, a.router, chain.VelodromeRouter, "removeLiquidity",
		a.lpTokens[0].Address, a.lpTokens[1].Address, true,
		req.Amount, min0, min1, req.Owner, protocol.Deadline(a.deps.Clock(), DeadlineWindow))
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	claim, _, err := a.Claim(ctx, req.Owner, req.Prices, req.Sink)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}

	txs := append([]model.Transaction{approve, remove}, claim...)
	return protocol.WithdrawResult{
		Transactions: txs,
		Tokens:       []model.TokenMetadata{a.lpTokens[0], a.lpTokens[1]},
		MinAmounts:   []*big.Int{min0, min1},
	}, nil
}
