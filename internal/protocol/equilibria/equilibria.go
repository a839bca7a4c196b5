// Package equilibria adapts Pendle liquidity markets boosted through Equilibria.
// Deposit and withdraw calldata come from the Pendle SDK API.
package equilibria

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/erc20"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
)

const (
	// XEqbRedeemDuration is the longest xEQB redeem period
	XEqbRedeemDuration = 14515200
	assetDecimals      = 18
)

// rewardSymbols are the static reward lists per chain
var rewardSymbols = map[types.ChainID][]string{
	types.ChainBase:     {"pendle"},
	types.ChainArbitrum: {"arb", "oarb", "pendle", "eqb", "xeqb"},
}

// vestingSymbols are reward tokens that vest before they are liquid
var vestingSymbols = map[string]bool{"oarb": true, "xeqb": true}

// PendleAPI quotes Pendle liquidity actions and prices market assets
type PendleAPI interface {
	AddLiquidity(ctx context.Context, chain types.ChainID, market common.Address, r fetch.PendleLiquidityRequest) (fetch.PendleQuote, error)
	RemoveLiquidity(ctx context.Context, chain types.ChainID, market common.Address, r fetch.PendleLiquidityRequest) (fetch.PendleQuote, error)
	AssetPrice(ctx context.Context, chain types.ChainID, asset common.Address) (float64, error)
}

// Params configures one market
type Params struct {
	Pid         uint64         `yaml:"pid" param:"required"`
	Market      common.Address `yaml:"market" param:"required"`
	ZapOutToken string         `yaml:"zap_out_token" param:"required"`
	Symbols     []string       `yaml:"symbols" param:"required"`
}

// Adapter implements protocol.SingleAdapter
type Adapter struct {
	protocol.Base
	deps    protocol.Deps
	params  Params
	pendle  PendleAPI
	booster common.Address
	router  common.Address
	zap     common.Address
	zapOut  model.TokenMetadata
	rewards []model.TokenMetadata
}

var _ protocol.SingleAdapter = (*Adapter)(nil)

// New resolves contracts and rewards for p on chainID
func New(deps protocol.Deps, chainID types.ChainID, p Params, pendle PendleAPI) (*Adapter, error) {
	if err := protocol.RequireParams(p); err != nil {
		return nil, fmt.Errorf("equilibria: %w", err)
	}
	if pendle == nil {
		return nil, fmt.Errorf("equilibria: %w: pendle client", protocol.ErrMissingParam)
	}
	symbols, ok := rewardSymbols[chainID]
	if !ok {
		return nil, fmt.Errorf("equilibria: unsupported chain %s", chainID)
	}

	a := &Adapter{
		Base: protocol.Base{
			Protocol: "equilibria",
			Version:  "0",
			ChainID:  chainID,
			Symbols:  p.Symbols,
		},
		deps:   deps,
		params: p,
		pendle: pendle,
	}
	var err error
	for name, dst := range map[string]*common.Address{
		registry.EquilibriaBooster: &a.booster,
		registry.PendleRouter:      &a.router,
		registry.EqbZap:            &a.zap,
	} {
		if *dst, err = deps.Registry.Contract(chainID, name); err != nil {
			return nil, fmt.Errorf("equilibria: %w", err)
		}
	}
	if a.zapOut, err = deps.Registry.Token(chainID, p.ZapOutToken); err != nil {
		return nil, fmt.Errorf("equilibria: %w", err)
	}
	for _, sym := range symbols {
		tok, err := deps.Registry.Token(chainID, sym)
		if err != nil {
			return nil, fmt.Errorf("equilibria: %w", err)
		}
		a.rewards = append(a.rewards, tok)
	}
	return a, nil
}

// Rewards returns the chain's reward tokens
func (a *Adapter) Rewards() []model.TokenMetadata {
	return append([]model.TokenMetadata(nil), a.rewards...)
}

func (a *Adapter) reward(symbol string) (model.TokenMetadata, bool) {
	for _, tok := range a.rewards {
		if tok.Key() == symbol {
			return tok, true
		}
	}
	return model.TokenMetadata{}, false
}

// ZapInToken deposits whatever the user supplies; the Pendle router aggregates the swap
func (a *Adapter) ZapInToken(input model.TokenMetadata) model.TokenMetadata {
	return input
}

// ZapOutToken is the configured withdrawal token
func (a *Adapter) ZapOutToken() model.TokenMetadata {
	return a.zapOut
}

// AssetUSDPrice returns the Pendle API price of one raw LP unit
func (a *Adapter) AssetUSDPrice(ctx context.Context, _ model.PriceTable) (float64, error) {
	return a.pendle.AssetPrice(ctx, a.ChainID, a.params.Market)
}

type poolInfo struct {
	token      common.Address
	rewardPool common.Address
}

func (a *Adapter) poolInfo(ctx context.Context) (poolInfo, error) {
	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.booster, chain.EquilibriaBooster, "poolInfo", new(big.Int).SetUint64(a.params.Pid)))
	if err != nil {
		return poolInfo{}, fmt.Errorf("equilibria poolInfo: %w", err)
	}
	return poolInfo{token: res.Address(1), rewardPool: res.Address(2)}, nil
}

func (a *Adapter) stakedBalance(ctx context.Context, owner common.Address) (*big.Int, poolInfo, error) {
	info, err := a.poolInfo(ctx)
	if err != nil {
		return nil, poolInfo{}, err
	}
	balance, err := erc20.BalanceOf(ctx, a.deps.Reader, a.ChainID, info.rewardPool, owner)
	if err != nil {
		return nil, poolInfo{}, err
	}
	return balance, info, nil
}

// USDBalanceOf values the staked LP with the Pendle asset price
func (a *Adapter) USDBalanceOf(ctx context.Context, owner common.Address, prices model.PriceTable) (float64, error) {
	balance, _, err := a.stakedBalance(ctx, owner)
	if err != nil {
		return 0, err
	}
	price, err := a.AssetUSDPrice(ctx, prices)
	if err != nil {
		return 0, err
	}
	return model.ToFloat(balance, 0) * price, nil
}

// Stake approves the market LP to the booster and deposits it with staking on
func (a *Adapter) Stake(_ context.Context, amount *big.Int) ([]model.Transaction, error) {
	approve, err := erc20.Approve(a.ChainID, a.params.Market, a.booster, amount)
	if err != nil {
		return nil, err
	}
	deposit, err := chain.Build(a.ChainID, a.booster, chain.EquilibriaBooster, "deposit",
		new(big.Int).SetUint64(a.params.Pid), amount, true)
	if err != nil {
		return nil, err
	}
	return []model.Transaction{approve, deposit}, nil
}

// Unstake withdraws an 18-decimal fixed point share of the staked LP through the zap
func (a *Adapter) Unstake(ctx context.Context, owner common.Address, percentage float64) (protocol.UnstakeResult, error) {
	fp, err := protocol.FixedPoint18(percentage)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	balance, info, err := a.stakedBalance(ctx, owner)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	if balance.Sign() == 0 {
		return protocol.UnstakeResult{}, nil
	}
	amount := protocol.ApplyFixedPoint18(balance, fp)
	approve, err := erc20.Approve(a.ChainID, info.token, a.zap, amount)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	withdraw, err := chain.Build(a.ChainID, a.zap, chain.EqbZap, "withdraw", new(big.Int).SetUint64(a.params.Pid), amount)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	return protocol.UnstakeResult{Transactions: []model.Transaction{approve, withdraw}, Amount: amount}, nil
}

// LockUpPeriod is always zero
func (a *Adapter) LockUpPeriod(context.Context, common.Address) (time.Duration, error) {
	return 0, nil
}

// Deposit zaps the leg into the market through the Pendle router and stakes
// the slippage-bounded LP amount
func (a *Adapter) Deposit(ctx context.Context, req protocol.DepositRequest) ([]model.Transaction, error) {
	approve, err := erc20.Approve(a.ChainID, req.Leg.Token.Address, a.router, req.Leg.Amount)
	if err != nil {
		return nil, err
	}
	quote, err := a.pendle.AddLiquidity(ctx, a.ChainID, a.params.Market, fetch.PendleLiquidityRequest{
		Receiver: req.Owner,
		Token:    req.Leg.Token.Address,
		Amount:   req.Leg.Amount,
		Slippage: req.Slippage,
	})
	if err != nil {
		return nil, fmt.Errorf("equilibria deposit quote: %w", err)
	}
	mint := chain.Raw(a.ChainID, a.routerOr(quote.To), quote.Data, nil, "pendle.addLiquiditySingleToken")
	minLP := protocol.MulWithSlippage(quote.AmountOut, req.Slippage)

	assetPrice, err := a.AssetUSDPrice(ctx, req.Prices)
	if err != nil {
		return nil, err
	}
	lpUSD := model.ToFloat(quote.AmountOut, assetDecimals) * assetPrice * 1e18
	inUSD := model.UnitsToUSD(req.Leg.Amount, req.Leg.Token.Decimals, req.Prices.PriceOrZero(req.Leg.Token.Symbol))
	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-deposit", lpUSD-inUSD)

	stake, err := a.Stake(ctx, minLP)
	if err != nil {
		return nil, err
	}
	return append([]model.Transaction{approve, mint}, stake...), nil
}

func (a *Adapter) routerOr(to common.Address) common.Address {
	if to == (common.Address{}) {
		return a.router
	}
	return to
}

// WithdrawAndClaim removes liquidity into the zap-out token. Rewards are
// claimed separately through Claim.
func (a *Adapter) WithdrawAndClaim(ctx context.Context, req protocol.WithdrawRequest) (protocol.WithdrawResult, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return protocol.WithdrawResult{}, protocol.ErrNoPosition
	}
	approve, err := erc20.Approve(a.ChainID, a.params.Market, a.router, req.Amount)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	quote, err := a.pendle.RemoveLiquidity(ctx, a.ChainID, a.params.Market, fetch.PendleLiquidityRequest{
		Receiver: req.Owner,
		Token:    a.zapOut.Address,
		Amount:   req.Amount,
		Slippage: req.Slippage,
	})
	if err != nil {
		return protocol.WithdrawResult{}, fmt.Errorf("equilibria withdraw quote: %w", err)
	}
	burn := chain.Raw(a.ChainID, a.routerOr(quote.To), quote.Data, nil, "pendle.removeLiquiditySingleToken")

	assetPrice, err := a.AssetUSDPrice(ctx, req.Prices)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	outUSD := model.UnitsToUSD(quote.AmountOut, a.zapOut.Decimals, req.Prices.PriceOrZero(a.zapOut.Symbol))
	lpUSD := model.ToFloat(req.Amount, assetDecimals) * assetPrice * 1e18
	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-withdraw", outUSD-lpUSD)

	minOut := quote.MinOut
	if minOut == nil {
		minOut = protocol.MulWithSlippage(quote.AmountOut, req.Slippage)
	}
	logrus.WithFields(logrus.Fields{
		"adapter": a.UniqueID(),
		"min_out": minOut.String(),
	}).Debug("Composed Pendle withdrawal")
	return protocol.WithdrawResult{
		Transactions: []model.Transaction{approve, burn},
		Tokens:       []model.TokenMetadata{a.zapOut},
		MinAmounts:   []*big.Int{minOut},
	}, nil
}

// PendingRewards reads earned rewards from the market's reward pool and
// splits the EQB emission between EQB and vesting xEQB
func (a *Adapter) PendingRewards(ctx context.Context, owner common.Address, prices model.PriceTable, _ progress.Sink) (model.Rewards, error) {
	info, err := a.poolInfo(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, info.rewardPool, chain.EquilibriaRewardPool, "getRewardTokens"))
	if err != nil {
		return nil, fmt.Errorf("equilibria reward tokens: %w", err)
	}
	tokens := res.Addresses(0)
	calls := make([]chain.Call, len(tokens))
	for i, tok := range tokens {
		calls[i] = chain.NewCall(a.ChainID, info.rewardPool, chain.EquilibriaRewardPool, "earned", owner, tok)
	}
	earned, err := chain.CallBatch(ctx, a.deps.Reader, calls)
	if err != nil {
		return nil, fmt.Errorf("equilibria earned: %w", err)
	}

	out := model.Rewards{}
	pendleAmount := new(big.Int)
	pendle, _ := a.reward("pendle")
	for i, addr := range tokens {
		amount := earned[i].Big(0)
		if addr == pendle.Address {
			pendleAmount = amount
		}
		var meta model.TokenMetadata
		found := false
		for _, tok := range a.rewards {
			if tok.Address == addr {
				meta, found = tok, true
				break
			}
		}
		if !found || amount.Sign() == 0 {
			continue
		}
		out.Add(addr, model.NewRewardEntry(meta.Symbol, amount, meta.Decimals, prices, vestingSymbols[meta.Key()]))
	}

	eqb, hasEQB := a.reward("eqb")
	xeqb, hasXEQB := a.reward("xeqb")
	if (!hasEQB && !hasXEQB) || pendleAmount.Sign() == 0 {
		return out, nil
	}
	eqbAmount, xeqbAmount, err := a.eqbSplit(ctx, pendleAmount)
	if err != nil {
		return nil, err
	}
	eqbPrice := prices.PriceOrZero("eqb")
	if hasEQB && eqbAmount.Sign() > 0 {
		entry := model.NewRewardEntry(eqb.Symbol, eqbAmount, eqb.Decimals, prices, false)
		out.Add(eqb.Address, entry)
	}
	if hasXEQB && xeqbAmount.Sign() > 0 {
		entry := model.NewRewardEntry(xeqb.Symbol, xeqbAmount, xeqb.Decimals, prices, true)
		entry.USDValue = model.UnitsToUSD(xeqbAmount, xeqb.Decimals, eqbPrice)
		out.Add(xeqb.Address, entry)
	}
	return out, nil
}

// eqbSplit returns pendle*factor/DENOMINATOR split by farmEqbShare into EQB and xEQB
func (a *Adapter) eqbSplit(ctx context.Context, pendleAmount *big.Int) (*big.Int, *big.Int, error) {
	booster, err := chain.CallBatch(ctx, a.deps.Reader, []chain.Call{
		chain.NewCall(a.ChainID, a.booster, chain.EquilibriaBooster, "eqbMinter"),
		chain.NewCall(a.ChainID, a.booster, chain.EquilibriaBooster, "farmEqbShare"),
		chain.NewCall(a.ChainID, a.booster, chain.EquilibriaBooster, "DENOMINATOR"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("equilibria booster: %w", err)
	}
	minter := booster[0].Address(0)
	minterState, err := chain.CallBatch(ctx, a.deps.Reader, []chain.Call{
		chain.NewCall(a.ChainID, minter, chain.EqbMinter, "getFactor"),
		chain.NewCall(a.ChainID, minter, chain.EqbMinter, "DENOMINATOR"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("equilibria minter: %w", err)
	}

	factor, minterDen := minterState[0].Big(0), minterState[1].Big(0)
	share, boosterDen := booster[1].Big(0), booster[2].Big(0)
	if minterDen.Sign() == 0 || boosterDen.Sign() == 0 {
		return nil, nil, fmt.Errorf("equilibria: zero denominator")
	}
	total := new(big.Int).Mul(pendleAmount, factor)
	total.Quo(total, minterDen)
	eqbAmount := new(big.Int).Mul(total, share)
	eqbAmount.Quo(eqbAmount, boosterDen)
	return eqbAmount, new(big.Int).Sub(total, eqbAmount), nil
}

// Claim claims through the zap and starts the longest xEQB redeem when xEQB is pending
func (a *Adapter) Claim(ctx context.Context, owner common.Address, prices model.PriceTable, sink progress.Sink) ([]model.Transaction, model.Rewards, error) {
	pending, err := a.PendingRewards(ctx, owner, prices, sink)
	if err != nil {
		return nil, nil, err
	}
	claim, err := chain.Build(a.ChainID, a.zap, chain.EqbZap, "claimRewards", []*big.Int{new(big.Int).SetUint64(a.params.Pid)})
	if err != nil {
		return nil, nil, err
	}
	txs := []model.Transaction{claim}

	if xeqb, ok := a.reward("xeqb"); ok {
		if entry, ok := pending[model.RewardKey(xeqb.Address)]; ok && entry.Balance.Sign() > 0 {
			redeem, err := chain.Build(a.ChainID, xeqb.Address, chain.XEqb, "redeem", entry.Balance, big.NewInt(XEqbRedeemDuration))
			if err != nil {
				return nil, nil, err
			}
			txs = append(txs, redeem)
		}
	}
	return txs, pending, nil
}
