package camelot

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"golang.org/x/sync/errgroup"
)

// redeemState is the owner's xGRAIL redeem queue
type redeemState struct {
	rewards     model.Rewards
	finalizable []int64
}

func (a *Adapter) feeRewards(pos position, prices model.PriceTable) model.Rewards {
	out := model.Rewards{}
	for i, owed := range []*big.Int{pos.owed0, pos.owed1} {
		if owed == nil || owed.Sign() == 0 {
			continue
		}
		tok := a.lpTokens[i]
		out.Add(tok.Address, model.NewRewardEntry(tok.Symbol, owed, tok.Decimals, prices, false))
	}
	return out
}

func (a *Adapter) campaignRewards(ctx context.Context, owner common.Address) ([]fetch.CamelotReward, error) {
	if a.campaigns == nil {
		return nil, nil
	}
	rewards, err := a.campaigns.CampaignRewards(ctx, a.ChainID, owner)
	if err != nil {
		return nil, fmt.Errorf("camelot campaigns: %w", err)
	}
	return rewards, nil
}

// campaignEntries keeps campaign rewards paid in a configured reward token. They vest.
func (a *Adapter) campaignEntries(campaigns []fetch.CamelotReward, prices model.PriceTable) model.Rewards {
	known := make(map[common.Address]model.TokenMetadata, len(a.rewards))
	for _, tok := range a.rewards {
		known[tok.Address] = tok
	}
	out := model.Rewards{}
	for _, c := range campaigns {
		tok, ok := known[c.TokenAddress]
		if !ok {
			continue
		}
		claimable := c.Claimable()
		if claimable.Sign() == 0 {
			continue
		}
		out.Add(tok.Address, model.NewRewardEntry(tok.Symbol, claimable, tok.Decimals, prices, true))
	}
	return out
}

// redeems splits the xGRAIL redeem queue: ended redeems count as GRAIL and can
// be finalized, the rest are still vesting xGRAIL
func (a *Adapter) redeems(ctx context.Context, owner common.Address, prices model.PriceTable) (redeemState, error) {
	res, err := a.deps.Reader.Call(ctx, chain.NewCall(a.ChainID, a.xgrail.Address, chain.XGrail, "getUserRedeemsLength", owner))
	if err != nil {
		return redeemState{}, fmt.Errorf("camelot redeems: %w", err)
	}
	n := res.Big(0).Int64()
	calls := make([]chain.Call, n)
	for i := range calls {
		calls[i] = chain.NewCall(a.ChainID, a.xgrail.Address, chain.XGrail, "getUserRedeem", owner, big.NewInt(int64(i)))
	}
	results, err := chain.CallBatch(ctx, a.deps.Reader, calls)
	if err != nil {
		return redeemState{}, fmt.Errorf("camelot redeems: %w", err)
	}

	now := a.deps.Clock().Unix()
	ended, vesting := new(big.Int), new(big.Int)
	state := redeemState{rewards: model.Rewards{}}
	for i, r := range results {
		amount := r.Big(1)
		if r.Big(2).Int64() < now {
			ended.Add(ended, amount)
			state.finalizable = append(state.finalizable, int64(i))
		} else {
			vesting.Add(vesting, amount)
		}
	}
	if ended.Sign() > 0 {
		state.rewards.Add(a.grail.Address, model.NewRewardEntry(a.grail.Symbol, ended, a.grail.Decimals, prices, false))
	}
	if vesting.Sign() > 0 {
		state.rewards.Add(a.xgrail.Address, model.NewRewardEntry(a.xgrail.Symbol, vesting, a.xgrail.Decimals, prices, true))
	}
	return state, nil
}

type rewardState struct {
	pos       position
	found     bool
	campaigns []fetch.CamelotReward
	redeems   redeemState
	merged    model.Rewards
}

func (a *Adapter) loadRewards(ctx context.Context, owner common.Address, prices model.PriceTable) (rewardState, error) {
	var s rewardState
	var err error
	s.pos, s.found, err = a.resolvePosition(ctx, owner)
	if err != nil {
		return s, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		s.redeems, err = a.redeems(gctx, owner, prices)
		return err
	})
	if s.found {
		g.Go(func() error {
			var err error
			s.campaigns, err = a.campaignRewards(gctx, owner)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return s, err
	}

	if s.found {
		s.merged = model.Merge(a.feeRewards(s.pos, prices), a.campaignEntries(s.campaigns, prices), s.redeems.rewards)
	} else {
		s.merged = model.Rewards{}
	}
	return s, nil
}

// PendingRewards merges uncollected fees, campaign rewards and xGRAIL redeems.
// It is empty when the owner holds no position for the range.
func (a *Adapter) PendingRewards(ctx context.Context, owner common.Address, prices model.PriceTable, _ progress.Sink) (model.Rewards, error) {
	s, err := a.loadRewards(ctx, owner, prices)
	if err != nil {
		return nil, err
	}
	return s.merged, nil
}

// Claim collects fees, harvests campaign rewards of the position into xGRAIL
// redeems and finalizes ended redeems. Without a position only the finalize
// calls are built.
func (a *Adapter) Claim(ctx context.Context, owner common.Address, prices model.PriceTable, _ progress.Sink) ([]model.Transaction, model.Rewards, error) {
	s, err := a.loadRewards(ctx, owner, prices)
	if err != nil {
		return nil, nil, err
	}

	var txs []model.Transaction
	rewards := s.merged
	if s.found {
		collect, err := chain.Build(a.ChainID, a.manager, chain.CamelotNFTManager, "collect", collectParams{
			TokenId:    s.pos.id,
			Recipient:  owner,
			Amount0Max: maxUint128,
			Amount1Max: maxUint128,
		})
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, collect)

		for _, c := range s.campaigns {
			if c.PositionID != s.pos.id.String() {
				continue
			}
			harvest, err := a.harvest(owner, c)
			if err != nil {
				return nil, nil, err
			}
			txs = append(txs, harvest...)
		}
	} else {
		rewards = model.Merge(s.redeems.rewards)
	}

	for _, idx := range s.redeems.finalizable {
		tx, err := chain.Build(a.ChainID, a.xgrail.Address, chain.XGrail, "finalizeRedeem", big.NewInt(idx))
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rewards, nil
}

// harvest claims a campaign reward from the distributor and redeems the
// claimable part through xGRAIL
func (a *Adapter) harvest(owner common.Address, c fetch.CamelotReward) ([]model.Transaction, error) {
	proof := make([][32]byte, len(c.Proof))
	for i, p := range c.Proof {
		proof[i] = p
	}
	harvest, err := chain.Build(a.ChainID, a.params.Distributor, chain.CamelotDistributor, "harvest",
		owner, c.PoolAddress, c.TokenAddress, c.Rewards, [32]byte(c.PositionIdentifier), proof)
	if err != nil {
		return nil, err
	}
	redeem, err := chain.Build(a.ChainID, a.xgrail.Address, chain.XGrail, "redeem", c.Claimable(), big.NewInt(RedeemDuration))
	if err != nil {
		return nil, err
	}
	return []model.Transaction{harvest, redeem}, nil
}
