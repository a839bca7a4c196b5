package portfolio

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/bridge"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/swap"
	"github.com/yourorg/vault-bff/internal/tracing"
	"github.com/yourorg/vault-bff/internal/types"
	"golang.org/x/sync/errgroup"
)

// ZapInRequest deposits Amount of Input held on Chain across the portfolio
type ZapInRequest struct {
	Owner    common.Address
	Chain    types.ChainID
	Input    model.TokenMetadata
	Amount   *big.Int
	Prices   model.PriceTable
	Slippage float64
	// OnlyThisChain skips adapters on other chains instead of bridging to them
	OnlyThisChain bool
	Sink          progress.Sink
}

// ZapIn splits the input by category and adapter weight and builds every
// swap, deposit and bridge transaction
func (c *Composer) ZapIn(ctx context.Context, req ZapInRequest) ([]model.Transaction, error) {
	ctx, span := tracing.Start(ctx, "portfolio.ZapIn", "portfolio", c.name, "chain", req.Chain.String())
	defer span.End()

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("portfolio %q: zap-in amount must be positive", c.name)
	}
	inputPrice, ok := req.Prices.Price(req.Input.Symbol)
	if !ok || inputPrice <= 0 {
		return nil, fmt.Errorf("portfolio %q: no price for %s", c.name, req.Input.Symbol)
	}
	totalUSD := model.UnitsToUSD(req.Amount, req.Input.Decimals, inputPrice)

	var txs []model.Transaction
	bridgeUSD := map[types.ChainID]float64{}
	for _, p := range c.placements() {
		if p.weight == 0 {
			continue
		}
		usd := totalUSD * p.weight
		if p.chain != req.Chain {
			if !req.OnlyThisChain {
				bridgeUSD[p.chain] += usd
			}
			continue
		}
		adapterTxs, err := c.zapInAdapter(ctx, p.adapter, req, usd, inputPrice)
		if err != nil {
			tracing.RecordError(ctx, err)
			return nil, fmt.Errorf("%s: %w", p.adapter.UniqueID(), err)
		}
		txs = append(txs, adapterTxs...)
	}

	bridged, err := c.bridgeLegs(ctx, req, bridgeUSD, inputPrice)
	if err != nil {
		return nil, err
	}
	txs = append(txs, bridged...)

	logrus.WithFields(logrus.Fields{
		"portfolio":    c.name,
		"usd":          totalUSD,
		"transactions": len(txs),
	}).Info("Composed zap-in")
	return txs, nil
}

func (c *Composer) zapInAdapter(ctx context.Context, a protocol.Adapter, req ZapInRequest, usd, inputPrice float64) ([]model.Transaction, error) {
	switch adapter := a.(type) {
	case protocol.LPAdapter:
		tokens := adapter.LPTokens()
		ratio, err := adapter.TokenAmountsForLP(ctx, usd, req.Prices)
		if err != nil {
			return nil, err
		}
		legsUSD, err := protocol.SplitUSD(usd, ratio, []float64{
			req.Prices.PriceOrZero(tokens[0].Symbol),
			req.Prices.PriceOrZero(tokens[1].Symbol),
		})
		if err != nil {
			return nil, err
		}
		var txs []model.Transaction
		legs := make([]protocol.Leg, 2)
		for i, tok := range tokens {
			amount, swapTxs, err := c.convert(ctx, req, a.UniqueID(), tok, legsUSD[i], inputPrice)
			if err != nil {
				return nil, err
			}
			txs = append(txs, swapTxs...)
			legs[i] = protocol.Leg{Token: tok, Amount: amount}
		}
		deposit, err := adapter.DepositLP(ctx, protocol.DepositLPRequest{
			Owner:    req.Owner,
			TokenA:   legs[0],
			TokenB:   legs[1],
			Prices:   req.Prices,
			Slippage: req.Slippage,
			Sink:     req.Sink,
		})
		if err != nil {
			return nil, err
		}
		return append(txs, deposit...), nil

	case protocol.SingleAdapter:
		target := adapter.ZapInToken(req.Input)
		amount, txs, err := c.convert(ctx, req, a.UniqueID(), target, usd, inputPrice)
		if err != nil {
			return nil, err
		}
		deposit, err := adapter.Deposit(ctx, protocol.DepositRequest{
			Owner:    req.Owner,
			Input:    req.Input,
			Leg:      protocol.Leg{Token: target, Amount: amount},
			Prices:   req.Prices,
			Slippage: req.Slippage,
			Sink:     req.Sink,
		})
		if err != nil {
			return nil, err
		}
		return append(txs, deposit...), nil
	}
	return nil, fmt.Errorf("adapter %s supports neither LP nor single-token deposits", a.UniqueID())
}

// convert returns the amount of target available after swapping usd worth of the input
func (c *Composer) convert(ctx context.Context, req ZapInRequest, uniqueID string, target model.TokenMetadata, usd, inputPrice float64) (*big.Int, []model.Transaction, error) {
	inputAmount := model.USDToUnits(usd, inputPrice, req.Input.Decimals)
	if req.Input.SameToken(target) {
		return inputAmount, nil, nil
	}
	res, err := c.swap(ctx, swap.Request{
		QuoteRequest: swap.QuoteRequest{
			Chain:    req.Chain,
			Owner:    req.Owner,
			From:     req.Input,
			To:       target,
			Amount:   inputAmount,
			Slippage: req.Slippage,
			Prices:   req.Prices,
		},
		UniqueID: uniqueID,
		Sink:     req.Sink,
	})
	if err != nil {
		return nil, nil, err
	}
	return res.MinToAmount(), res.Transactions, nil
}

func (c *Composer) bridgeLegs(ctx context.Context, req ZapInRequest, bridgeUSD map[types.ChainID]float64, inputPrice float64) ([]model.Transaction, error) {
	if len(bridgeUSD) == 0 {
		return nil, nil
	}
	if c.bridge == nil || c.tokens == nil {
		return nil, fmt.Errorf("portfolio %q: no bridge configured for other chains", c.name)
	}
	chains := make([]types.ChainID, 0, len(bridgeUSD))
	for ch := range bridgeUSD {
		chains = append(chains, ch)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	var txs []model.Transaction
	for _, dest := range chains {
		to, err := c.tokens.Token(dest, req.Input.Symbol)
		if err != nil {
			return nil, fmt.Errorf("bridge %s to %s: %w", req.Input.Symbol, dest, err)
		}
		txs = append(txs, bridge.Transactions(ctx, c.bridge, bridge.Request{
			Owner:     req.Owner,
			FromChain: req.Chain,
			ToChain:   dest,
			From:      req.Input,
			To:        to,
			Amount:    model.USDToUnits(bridgeUSD[dest], inputPrice, req.Input.Decimals),
			Prices:    req.Prices,
			Sink:      req.Sink,
		})...)
	}
	return txs, nil
}

// ZapOutRequest withdraws Percentage of every position on Chain into Output
type ZapOutRequest struct {
	Owner      common.Address
	Chain      types.ChainID
	Percentage float64
	Output     model.TokenMetadata
	Prices     model.PriceTable
	Slippage   float64
	Sink       progress.Sink
}

// ZapOut unstakes, withdraws and swaps released tokens into the output token.
// Adapters without a position are skipped.
func (c *Composer) ZapOut(ctx context.Context, req ZapOutRequest) ([]model.Transaction, error) {
	ctx, span := tracing.Start(ctx, "portfolio.ZapOut", "portfolio", c.name, "chain", req.Chain.String())
	defer span.End()

	var txs []model.Transaction
	for _, p := range c.placements() {
		if p.chain != req.Chain {
			continue
		}
		adapterTxs, err := c.zapOutAdapter(ctx, p.adapter, req)
		if err != nil {
			tracing.RecordError(ctx, err)
			return nil, fmt.Errorf("%s: %w", p.adapter.UniqueID(), err)
		}
		txs = append(txs, adapterTxs...)
	}
	return txs, nil
}

func (c *Composer) zapOutAdapter(ctx context.Context, a protocol.Adapter, req ZapOutRequest) ([]model.Transaction, error) {
	unstaked, err := a.Unstake(ctx, req.Owner, req.Percentage)
	if err != nil {
		return nil, err
	}
	if !nonZero(unstaked.Amount) {
		logrus.WithFields(logrus.Fields{"adapter": a.UniqueID()}).Debug("No position to withdraw")
		return nil, nil
	}
	withdrawReq := protocol.WithdrawRequest{
		Owner:    req.Owner,
		Amount:   unstaked.Amount,
		Slippage: req.Slippage,
		Prices:   req.Prices,
		Sink:     req.Sink,
	}
	var res protocol.WithdrawResult
	switch adapter := a.(type) {
	case protocol.LPAdapter:
		res, err = adapter.WithdrawLPAndClaim(ctx, withdrawReq)
	case protocol.SingleAdapter:
		res, err = adapter.WithdrawAndClaim(ctx, withdrawReq)
	default:
		err = fmt.Errorf("adapter supports neither LP nor single-token withdrawals")
	}
	if err != nil {
		return nil, err
	}

	txs := append(append([]model.Transaction{}, unstaked.Transactions...), res.Transactions...)
	for i, tok := range res.Tokens {
		if i >= len(res.MinAmounts) || !nonZero(res.MinAmounts[i]) {
			continue
		}
		swapped, err := c.swap(ctx, swap.Request{
			QuoteRequest: swap.QuoteRequest{
				Chain:    req.Chain,
				Owner:    req.Owner,
				From:     tok,
				To:       req.Output,
				Amount:   res.MinAmounts[i],
				Slippage: req.Slippage,
				Prices:   req.Prices,
			},
			UniqueID: a.UniqueID(),
			Sink:     req.Sink,
		})
		if err != nil {
			return nil, err
		}
		txs = append(txs, swapped.Transactions...)
	}
	return txs, nil
}

// ClaimRequest claims every adapter's rewards on Chain. When Output is set,
// liquid rewards are swapped into it.
type ClaimRequest struct {
	Owner    common.Address
	Chain    types.ChainID
	Prices   model.PriceTable
	Slippage float64
	Output   *model.TokenMetadata
	Sink     progress.Sink
}

// ClaimResult is the claim batch and the rewards it releases
type ClaimResult struct {
	Transactions []model.Transaction `json:"transactions"`
	Rewards      model.Rewards       `json:"rewards"`
}

// Claim concatenates every adapter's claim and merges their rewards
func (c *Composer) Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	ctx, span := tracing.Start(ctx, "portfolio.Claim", "portfolio", c.name, "chain", req.Chain.String())
	defer span.End()

	var (
		txs  []model.Transaction
		sets []model.Rewards
	)
	for _, p := range c.placements() {
		if p.chain != req.Chain {
			continue
		}
		claimTxs, rewards, err := p.adapter.Claim(ctx, req.Owner, req.Prices, req.Sink)
		if err != nil {
			tracing.RecordError(ctx, err)
			return ClaimResult{}, fmt.Errorf("%s claim: %w", p.adapter.UniqueID(), err)
		}
		txs = append(txs, claimTxs...)
		sets = append(sets, rewards)
	}
	merged := model.Merge(sets...)
	if req.Output != nil {
		txs = append(txs, c.swapRewards(ctx, req, merged)...)
	}
	return ClaimResult{Transactions: txs, Rewards: merged}, nil
}

// swapRewards converts liquid rewards into the output token. Rewards that
// cannot be routed are left unswapped.
func (c *Composer) swapRewards(ctx context.Context, req ClaimRequest, rewards model.Rewards) []model.Transaction {
	if c.tokens == nil {
		return nil
	}
	var txs []model.Transaction
	for _, key := range rewards.Keys() {
		entry := rewards[key]
		if entry.Vesting || !nonZero(entry.Balance) {
			continue
		}
		tok, err := c.tokens.Token(req.Chain, key)
		if err != nil {
			continue
		}
		res, err := c.swap(ctx, swap.Request{
			QuoteRequest: swap.QuoteRequest{
				Chain:    req.Chain,
				Owner:    req.Owner,
				From:     tok,
				To:       *req.Output,
				Amount:   entry.Balance,
				Slippage: req.Slippage,
				Prices:   req.Prices,
			},
			UniqueID: c.name + "-claim",
			Sink:     req.Sink,
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"portfolio": c.name,
				"token":     tok.Symbol,
			}).WithError(err).Warn("Leaving reward unswapped")
			continue
		}
		txs = append(txs, res.Transactions...)
	}
	return txs
}

// PendingRewards merges the pending rewards of every adapter on every chain
func (c *Composer) PendingRewards(ctx context.Context, owner common.Address, prices model.PriceTable, sink progress.Sink) (model.Rewards, error) {
	adapters := c.Adapters()
	sets := make([]model.Rewards, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			rewards, err := a.PendingRewards(gctx, owner, prices, sink)
			if err != nil {
				return fmt.Errorf("%s pending rewards: %w", a.UniqueID(), err)
			}
			sets[i] = rewards
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return model.Merge(sets...), nil
}

// Balance is the owner's USD value per adapter unique id and in total
type Balance struct {
	Total     float64            `json:"total"`
	ByAdapter map[string]float64 `json:"byAdapter"`
}

// USDBalance values the owner's position in every adapter
func (c *Composer) USDBalance(ctx context.Context, owner common.Address, prices model.PriceTable) (Balance, error) {
	var mu sync.Mutex
	out := Balance{ByAdapter: map[string]float64{}}
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range c.Adapters() {
		a := a
		g.Go(func() error {
			usd, err := a.USDBalanceOf(gctx, owner, prices)
			if err != nil {
				return fmt.Errorf("%s balance: %w", a.UniqueID(), err)
			}
			mu.Lock()
			out.ByAdapter[a.UniqueID()] += usd
			out.Total += usd
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Balance{}, err
	}
	return out, nil
}
