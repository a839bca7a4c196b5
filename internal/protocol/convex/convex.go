// Package convex adapts Curve StableSwap NG pools staked through the Convex booster.
package convex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/erc20"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
)

// Pool ids with a known LP pricing path
const (
	pidStableA = 34
	pidStableB = 36
	pidETH     = 28
)

// Params configures one Convex pool
type Params struct {
	Pid           uint64         `yaml:"pid" param:"required"`
	Pool          common.Address `yaml:"pool" param:"required"`
	RewardPool    common.Address `yaml:"reward_pool" param:"required"`
	AssetDecimals uint8          `yaml:"asset_decimals"`
	LPTokens      []string       `yaml:"lp_tokens" param:"required"`
	Rewards       []string       `yaml:"rewards"`
}

// Adapter implements protocol.LPAdapter
type Adapter struct {
	protocol.Base
	deps     protocol.Deps
	params   Params
	booster  common.Address
	lpTokens [2]model.TokenMetadata
	rewards  []model.TokenMetadata
}

var _ protocol.LPAdapter = (*Adapter)(nil)

// New resolves tokens and contracts for p on chainID
func New(deps protocol.Deps, chainID types.ChainID, p Params) (*Adapter, error) {
	if err := protocol.RequireParams(p); err != nil {
		return nil, fmt.Errorf("convex: %w", err)
	}
	if len(p.LPTokens) != 2 {
		return nil, fmt.Errorf("convex: %w: lp_tokens needs two symbols, got %d", protocol.ErrMissingParam, len(p.LPTokens))
	}
	if p.AssetDecimals == 0 {
		p.AssetDecimals = 18
	}
	booster, err := deps.Registry.Contract(chainID, registry.ConvexBooster)
	if err != nil {
		return nil, fmt.Errorf("convex: %w", err)
	}

	a := &Adapter{
		Base: protocol.Base{
			Protocol: "convex",
			Version:  "0",
			ChainID:  chainID,
			Symbols:  p.LPTokens,
		},
		deps:    deps,
		params:  p,
		booster: booster,
	}
	for i, sym := range p.LPTokens {
		tok, err := deps.Registry.Token(chainID, sym)
		if err != nil {
			return nil, fmt.Errorf("convex: %w", err)
		}
		a.lpTokens[i] = tok
	}
	for _, sym := range p.Rewards {
		tok, err := deps.Registry.Token(chainID, sym)
		if err != nil {
			return nil, fmt.Errorf("convex: %w", err)
		}
		a.rewards = append(a.rewards, tok)
	}
	return a, nil
}

// Rewards returns the configured reward tokens
func (a *Adapter) Rewards() []model.TokenMetadata {
	return append([]model.TokenMetadata(nil), a.rewards...)
}

// LPTokens returns the two pool coins
func (a *Adapter) LPTokens() [2]model.TokenMetadata {
	return a.lpTokens
}

// AssetUSDPrice returns the USD price of one raw LP unit
func (a *Adapter) AssetUSDPrice(_ context.Context, prices model.PriceTable) (float64, error) {
	scale := float64(1)
	for i := uint8(0); i < a.params.AssetDecimals; i++ {
		scale *= 10
	}
	switch a.params.Pid {
	case pidStableA, pidStableB:
		return 1 / scale, nil
	case pidETH:
		return prices.PriceOrZero("weth") / scale, nil
	}
	return 0, protocol.ErrNotImplemented
}

func (a *Adapter) stakedBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return erc20.BalanceOf(ctx, a.deps.Reader, a.ChainID, a.params.RewardPool, owner)
}

// USDBalanceOf values the staked LP balance
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

// PendingRewards reads claimable_reward for every reward token
func (a *Adapter) PendingRewards(ctx context.Context, owner common.Address, prices model.PriceTable, _ progress.Sink) (model.Rewards, error) {
	calls := make([]chain.Call, len(a.rewards))
	for i, tok := range a.rewards {
		calls[i] = chain.NewCall(a.ChainID, a.params.RewardPool, chain.ConvexRewardPool, "claimable_reward", tok.Address, owner)
	}
	results, err := chain.CallBatch(ctx, a.deps.Reader, calls)
	if err != nil {
		return nil, fmt.Errorf("convex pending rewards: %w", err)
	}
	out := model.Rewards{}
	for i, tok := range a.rewards {
		balance := results[i].Big(0)
		if balance.Sign() == 0 {
			continue
		}
		out.Add(tok.Address, model.NewRewardEntry(tok.Symbol, balance, tok.Decimals, prices, false))
	}
	return out, nil
}

// Claim builds getReward(owner) on the reward pool
func (a *Adapter) Claim(ctx context.Context, owner common.Address, prices model.PriceTable, sink progress.Sink) ([]model.Transaction, model.Rewards, error) {
	pending, err := a.PendingRewards(ctx, owner, prices, sink)
	if err != nil {
		return nil, nil, err
	}
	tx, err := chain.Build(a.ChainID, a.params.RewardPool, chain.ConvexRewardPool, "getReward", owner)
	if err != nil {
		return nil, nil, err
	}
	return []model.Transaction{tx}, pending, nil
}

// Stake approves the LP token to the booster and deposits the full balance.
// depositAll ignores amount; the approval is unlimited.
func (a *Adapter) Stake(_ context.Context, _ *big.Int) ([]model.Transaction, error) {
	approve, err := erc20.Approve(a.ChainID, a.params.Pool, a.booster, erc20.MaxAllowance)
	if err != nil {
		return nil, err
	}
	deposit, err := chain.Build(a.ChainID, a.booster, chain.ConvexBooster, "depositAll", new(big.Int).SetUint64(a.params.Pid))
	if err != nil {
		return nil, err
	}
	return []model.Transaction{approve, deposit}, nil
}

// Unstake withdraws a share of the staked balance without claiming
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
	tx, err := chain.Build(a.ChainID, a.params.RewardPool, chain.ConvexRewardPool, "withdraw", amount, false)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	return protocol.UnstakeResult{Transactions: []model.Transaction{tx}, Amount: amount}, nil
}

// LockUpPeriod is always zero
func (a *Adapter) LockUpPeriod(context.Context, common.Address) (time.Duration, error) {
	return 0, nil
}

func (a *Adapter) balances(ctx context.Context) ([]*big.Int, error) {
	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.params.Pool, chain.CurvePool, "get_balances"))
	if err != nil {
		return nil, fmt.Errorf("convex get_balances: %w", err)
	}
	balances := res.Bigs(0)
	if len(balances) < 2 {
		return nil, fmt.Errorf("convex get_balances: expected 2 coins, got %d", len(balances))
	}
	return balances, nil
}

// TokenAmountsForLP returns the normalized pool balances
func (a *Adapter) TokenAmountsForLP(ctx context.Context, _ float64, _ model.PriceTable) ([]float64, error) {
	balances, err := a.balances(ctx)
	if err != nil {
		return nil, err
	}
	if balances[0].Sign() == 0 && balances[1].Sign() == 0 {
		return nil, protocol.ErrNoLiquidity
	}
	return []float64{
		model.ToFloat(balances[0], a.lpTokens[0].Decimals),
		model.ToFloat(balances[1], a.lpTokens[1].Decimals),
	}, nil
}

// minMintAmount applies slippage to sum(normalized legs) * lpPrice * 10^assetDecimals
func (a *Adapter) minMintAmount(ctx context.Context, req protocol.DepositLPRequest) (*big.Int, error) {
	lpPrice, err := a.AssetUSDPrice(ctx, req.Prices)
	if err != nil {
		return nil, err
	}
	normalized := model.ToFloat(req.TokenA.Amount, req.TokenA.Token.Decimals) +
		model.ToFloat(req.TokenB.Amount, req.TokenB.Token.Decimals)
	expected := model.FromFloat(normalized*lpPrice, a.params.AssetDecimals)
	return protocol.MulWithSlippage(expected, req.Slippage), nil
}

// DepositLP approves both coins to the pool, adds liquidity and stakes
func (a *Adapter) DepositLP(ctx context.Context, req protocol.DepositLPRequest) ([]model.Transaction, error) {
	minMint, err := a.minMintAmount(ctx, req)
	if err != nil {
		return nil, err
	}

	var txs []model.Transaction
	for _, leg := range []protocol.Leg{req.TokenA, req.TokenB} {
		approve, err := erc20.Approve(a.ChainID, leg.Token.Address, a.params.Pool, leg.Amount)
		if err != nil {
			return nil, err
		}
		txs = append(txs, approve)
	}

	add, err := chain.Build(a.ChainID, a.params.Pool, chain.CurvePool, "add_liquidity",
		[]*big.Int{req.TokenA.Amount, req.TokenB.Amount}, minMint)
	if err != nil {
		return nil, err
	}
	txs = append(txs, add)

	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-deposit", 0)

	stake, err := a.Stake(ctx, minMint)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"adapter":  a.UniqueID(),
		"min_mint": minMint.String(),
	}).Debug("Composed Convex deposit")
	return append(txs, stake...), nil
}

// WithdrawLPAndClaim removes liquidity proportionally and claims rewards
func (a *Adapter) WithdrawLPAndClaim(ctx context.Context, req protocol.WithdrawRequest) (protocol.WithdrawResult, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return protocol.WithdrawResult{}, protocol.ErrNoPosition
	}
	results, err := chain.CallBatch(ctx, a.deps.Reader, []chain.Call{
		chain.NewCall(a.ChainID, a.params.Pool, chain.CurvePool, "get_balances"),
		chain.NewCall(a.ChainID, a.params.Pool, chain.CurvePool, "totalSupply"),
	})
	if err != nil {
		return protocol.WithdrawResult{}, fmt.Errorf("convex pool state: %w", err)
	}
	balances := results[0].Bigs(0)
	if len(balances) < 2 {
		return protocol.WithdrawResult{}, fmt.Errorf("convex get_balances: expected 2 coins, got %d", len(balances))
	}
	totalSupply := results[1].Big(0)

	mins := []*big.Int{
		protocol.MulWithSlippage(protocol.ProportionalShare(balances[0], req.Amount, totalSupply), req.Slippage),
		protocol.MulWithSlippage(protocol.ProportionalShare(balances[1], req.Amount, totalSupply), req.Slippage),
	}
	withdraw, err := chain.Build(a.ChainID, a.params.Pool, chain.CurvePool, "remove_liquidity", req.Amount, mins)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}

	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-withdraw", 0)

	claim, _, err := a.Claim(ctx, req.Owner, req.Prices, req.Sink)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	return protocol.WithdrawResult{
		Transactions: append([]model.Transaction{withdraw}, claim...),
		Tokens:       []model.TokenMetadata{a.lpTokens[0], a.lpTokens[1]},
		MinAmounts:   mins,
	}, nil
}
