// Package camelot adapts Camelot V3 (Algebra) concentrated liquidity positions.
// A position is an NFT held by the owner; its id is discovered on chain and cached.
package camelot

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
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
)

const (
	// DeadlineWindow bounds position manager calls
	DeadlineWindow = 600 * time.Second
	// RedeemDuration is the xGRAIL vesting period requested for campaign rewards
	RedeemDuration = 15552000
	// maxScannedPositions caps tokenOfOwnerByIndex lookups during discovery
	maxScannedPositions = 10
)

// maxUint128 is the collect amountMax
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// CampaignSource lists market-maker campaign rewards
type CampaignSource interface {
	CampaignRewards(ctx context.Context, chain types.ChainID, user common.Address) ([]fetch.CamelotReward, error)
}

// Params configures one pool range
type Params struct {
	Pool        common.Address `yaml:"pool" param:"required"`
	Distributor common.Address `yaml:"distributor" param:"required"`
	NFTManager  common.Address `yaml:"nft_manager"`
	TickLower   int64          `yaml:"tick_lower"`
	TickUpper   int64          `yaml:"tick_upper"`
	LPTokens    []string       `yaml:"lp_tokens" param:"required"`
	Rewards     []string       `yaml:"rewards"`
}

// Adapter implements protocol.LPAdapter
type Adapter struct {
	protocol.Base
	deps      protocol.Deps
	params    Params
	manager   common.Address
	lpTokens  [2]model.TokenMetadata
	rewards   []model.TokenMetadata
	grail     model.TokenMetadata
	xgrail    model.TokenMetadata
	campaigns CampaignSource
	positions *protocol.PositionCache
}

var _ protocol.LPAdapter = (*Adapter)(nil)

// New resolves tokens and contracts. campaigns may be nil, which disables campaign rewards.
func New(deps protocol.Deps, chainID types.ChainID, p Params, campaigns CampaignSource) (*Adapter, error) {
	if err := protocol.RequireParams(p); err != nil {
		return nil, fmt.Errorf("camelot: %w", err)
	}
	if len(p.LPTokens) != 2 {
		return nil, fmt.Errorf("camelot: %w: lp_tokens needs two symbols, got %d", protocol.ErrMissingParam, len(p.LPTokens))
	}
	if p.TickLower >= p.TickUpper {
		return nil, fmt.Errorf("camelot: tick_lower %d must be below tick_upper %d", p.TickLower, p.TickUpper)
	}
	manager := p.NFTManager
	if manager == (common.Address{}) {
		addr, err := deps.Registry.Contract(chainID, registry.CamelotNFTManager)
		if err != nil {
			return nil, fmt.Errorf("camelot: %w", err)
		}
		manager = addr
	}

	a := &Adapter{
		Base: protocol.Base{
			Protocol: "camelot",
			Version:  "v3",
			ChainID:  chainID,
			Symbols:  p.LPTokens,
		},
		deps:      deps,
		params:    p,
		manager:   manager,
		campaigns: campaigns,
		positions: protocol.NewPositionCache(),
	}
	var err error
	for i, sym := range p.LPTokens {
		if a.lpTokens[i], err = deps.Registry.Token(chainID, sym); err != nil {
			return nil, fmt.Errorf("camelot: %w", err)
		}
	}
	for _, sym := range p.Rewards {
		tok, err := deps.Registry.Token(chainID, sym)
		if err != nil {
			return nil, fmt.Errorf("camelot: %w", err)
		}
		a.rewards = append(a.rewards, tok)
	}
	if a.grail, err = deps.Registry.Token(chainID, "grail"); err != nil {
		return nil, fmt.Errorf("camelot: %w", err)
	}
	if a.xgrail, err = deps.Registry.Token(chainID, "xgrail"); err != nil {
		return nil, fmt.Errorf("camelot: %w", err)
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

// AssetUSDPrice is zero: positions are not fungible
func (a *Adapter) AssetUSDPrice(context.Context, model.PriceTable) (float64, error) {
	return 0, nil
}

// USDBalanceOf values the owner's position at the current pool price
func (a *Adapter) USDBalanceOf(ctx context.Context, owner common.Address, prices model.PriceTable) (float64, error) {
	pos, ok, err := a.resolvePosition(ctx, owner)
	if err != nil || !ok {
		return 0, err
	}
	sqrtPrice, err := a.sqrtPriceX96(ctx)
	if err != nil {
		return 0, err
	}
	amount0, amount1 := amountsForLiquidity(sqrtPrice, pos.tickLower, pos.tickUpper, pos.liquidity)
	return model.UnitsToUSD(amount0, a.lpTokens[0].Decimals, prices.PriceOrZero(a.lpTokens[0].Symbol)) +
		model.UnitsToUSD(amount1, a.lpTokens[1].Decimals, prices.PriceOrZero(a.lpTokens[1].Symbol)), nil
}

func (a *Adapter) sqrtPriceX96(ctx context.Context) (*big.Int, error) {
	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.params.Pool, chain.AlgebraPool, "globalState"))
	if err != nil {
		return nil, fmt.Errorf("camelot globalState: %w", err)
	}
	return res.Big(0), nil
}

// TokenAmountsForLP returns the token ratio a position over the configured
// range needs at the price implied by the price table
func (a *Adapter) TokenAmountsForLP(_ context.Context, _ float64, prices model.PriceTable) ([]float64, error) {
	p0, ok0 := prices.Price(a.lpTokens[0].Symbol)
	p1, ok1 := prices.Price(a.lpTokens[1].Symbol)
	if !ok0 || !ok1 || p0 <= 0 || p1 <= 0 {
		return nil, fmt.Errorf("camelot: missing price for %s or %s", a.lpTokens[0].Symbol, a.lpTokens[1].Symbol)
	}
	amount0, amount1 := rangeRatio(p0/p1, a.params.TickLower, a.params.TickUpper, a.lpTokens[0].Decimals, a.lpTokens[1].Decimals)
	if amount0 <= 0 && amount1 <= 0 {
		return nil, protocol.ErrNoLiquidity
	}
	return []float64{amount0, amount1}, nil
}

// Stake is a no-op: positions earn without staking
func (a *Adapter) Stake(context.Context, *big.Int) ([]model.Transaction, error) {
	return nil, nil
}

// Unstake reports a share of the position liquidity. No transactions are needed.
func (a *Adapter) Unstake(ctx context.Context, owner common.Address, percentage float64) (protocol.UnstakeResult, error) {
	bps, err := protocol.BasisPoints(percentage)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	pos, ok, err := a.resolvePosition(ctx, owner)
	if err != nil {
		return protocol.UnstakeResult{}, err
	}
	if !ok {
		return protocol.UnstakeResult{}, nil
	}
	return protocol.UnstakeResult{Amount: protocol.ApplyBasisPoints(pos.liquidity, bps)}, nil
}

// LockUpPeriod is always zero
func (a *Adapter) LockUpPeriod(context.Context, common.Address) (time.Duration, error) {
	return 0, nil
}

type mintParams struct {
	Token0         common.Address
	Token1         common.Address
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

type increaseParams struct {
	TokenId        *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

type decreaseParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

// DepositLP approves both legs to the position manager, then increases the
// owner's existing position or mints a new one
func (a *Adapter) DepositLP(ctx context.Context, req protocol.DepositLPRequest) ([]model.Transaction, error) {
	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-deposit", 0)
	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-stake", 0)

	var txs []model.Transaction
	for _, leg := range []protocol.Leg{req.TokenA, req.TokenB} {
		approve, err := erc20.Approve(a.ChainID, leg.Token.Address, a.manager, leg.Amount)
		if err != nil {
			return nil, err
		}
		txs = append(txs, approve)
	}

	pos, ok, err := a.resolvePosition(ctx, req.Owner)
	if err != nil {
		return nil, err
	}
	deadline := protocol.Deadline(a.deps.Clock(), DeadlineWindow)
	one := big.NewInt(1)

	var deposit model.Transaction
	if ok {
		deposit, err = chain.Build(a.ChainID, a.manager, chain.CamelotNFTManager, "increaseLiquidity", increaseParams{
			TokenId:        pos.id,
			Amount0Desired: req.TokenA.Amount,
			Amount1Desired: req.TokenB.Amount,
			Amount0Min:     one,
			Amount1Min:     one,
			Deadline:       deadline,
		})
	} else {
		deposit, err = chain.Build(a.ChainID, a.manager, chain.CamelotNFTManager, "mint", mintParams{
			Token0:         a.lpTokens[0].Address,
			Token1:         a.lpTokens[1].Address,
			TickLower:      big.NewInt(a.params.TickLower),
			TickUpper:      big.NewInt(a.params.TickUpper),
			Amount0Desired: req.TokenA.Amount,
			Amount1Desired: req.TokenB.Amount,
			Amount0Min:     one,
			Amount1Min:     one,
			Recipient:      req.Owner,
			Deadline:       deadline,
		})
	}
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"adapter":  a.UniqueID(),
		"increase": ok,
	}).Debug("Composed Camelot deposit")
	return append(txs, deposit), nil
}

// WithdrawLPAndClaim decreases liquidity, collects fees and claims rewards.
// The NFT is burned only when the whole position is withdrawn; an amount of
// zero claims and burns.
func (a *Adapter) WithdrawLPAndClaim(ctx context.Context, req protocol.WithdrawRequest) (protocol.WithdrawResult, error) {
	pos, ok, err := a.resolvePosition(ctx, req.Owner)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	if !ok {
		return protocol.WithdrawResult{}, protocol.ErrNoPosition
	}
	amount := new(big.Int)
	if req.Amount != nil {
		amount.Set(req.Amount)
	}

	sqrtPrice, err := a.sqrtPriceX96(ctx)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	expected0, expected1 := amountsForLiquidity(sqrtPrice, pos.tickLower, pos.tickUpper, amount)
	min0 := protocol.MulWithSlippage(expected0, req.Slippage)
	min1 := protocol.MulWithSlippage(expected1, req.Slippage)

	protocol.ReportTradingLoss(req.Sink, a.UniqueID()+"-withdraw", 0)

	claim, _, err := a.Claim(ctx, req.Owner, req.Prices, req.Sink)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	burn, err := chain.Build(a.ChainID, a.manager, chain.CamelotNFTManager, "burn", pos.id)
	if err != nil {
		return protocol.WithdrawResult{}, err
	}

	result := protocol.WithdrawResult{
		Tokens:     []model.TokenMetadata{a.lpTokens[0], a.lpTokens[1]},
		MinAmounts: []*big.Int{min0, min1},
	}
	if amount.Sign() == 0 {
		result.Transactions = append(claim, burn)
		return result, nil
	}

	decrease, err := chain.Build(a.ChainID, a.manager, chain.CamelotNFTManager, "decreaseLiquidity", decreaseParams{
		TokenId:    pos.id,
		Liquidity:  amount,
		Amount0Min: min0,
		Amount1Min: min1,
		Deadline:   protocol.Deadline(a.deps.Clock(), DeadlineWindow),
	})
	if err != nil {
		return protocol.WithdrawResult{}, err
	}
	result.Transactions = append([]model.Transaction{decrease}, claim...)
	if amount.Cmp(pos.liquidity) == 0 {
		result.Transactions = append(result.Transactions, burn)
	}
	return result, nil
}
