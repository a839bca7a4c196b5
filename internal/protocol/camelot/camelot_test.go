package camelot

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/chain/chaintest"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
)

var (
	pool        = common.HexToAddress("0xb1026b8e7276e7ac75410f1fcbbe21796e8f7526")
	distributor = common.HexToAddress("0x6dcd1e0a3e4f7c1b5b0c0a1e5d2f7a3c1b2d3e4f")
	manager     = common.HexToAddress("0x00c7f3082833e796A5b3e4Bd59f6642FF44DCD15")
	xgrailAddr  = common.HexToAddress("0x3CAaE25Ee616f2C8E13C74dA0813402eae3F496b")
	grailAddr   = common.HexToAddress("0x3d9907F9a368ad0a51Be60f7Da3b97cf940982D8")
	owner       = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	now         = time.Unix(1_700_000_000, 0)
	liquidity   = big.NewInt(1_000_000_000_000)
)

type fakeCampaigns struct {
	rewards []fetch.CamelotReward
	err     error
}

func (f *fakeCampaigns) CampaignRewards(context.Context, types.ChainID, common.Address) ([]fetch.CamelotReward, error) {
	return f.rewards, f.err
}

func selector(t *testing.T, abiName, method string) []byte {
	t.Helper()
	parsed, err := chain.ABI(abiName)
	require.NoError(t, err)
	return parsed.Methods[method].ID
}

type fixture struct {
	adapter   *Adapter
	reader    *chaintest.Reader
	campaigns *fakeCampaigns
	weth      model.TokenMetadata
	usdc      model.TokenMetadata
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	reader := chaintest.New()
	campaigns := &fakeCampaigns{}
	a, err := New(protocol.Deps{Reader: reader, Registry: reg, Now: func() time.Time { return now }}, types.ChainArbitrum, Params{
		Pool:        pool,
		Distributor: distributor,
		TickLower:   -600,
		TickUpper:   600,
		LPTokens:    []string{"weth", "usdc"},
		Rewards:     []string{"grail", "xgrail"},
	}, campaigns)
	require.NoError(t, err)

	f := &fixture{adapter: a, reader: reader, campaigns: campaigns}
	f.weth, _ = reg.Token(types.ChainArbitrum, "weth")
	f.usdc, _ = reg.Token(types.ChainArbitrum, "usdc")

	reader.Set(pool, "globalState", new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(0),
		uint16(0), uint16(0), uint16(0), uint8(0), uint8(0), true)
	reader.Set(xgrailAddr, "getUserRedeemsLength", big.NewInt(0))
	return f
}

// withPositions registers two NFTs; only id 12 matches the configured range
func (f *fixture) withPositions() {
	f.reader.Set(manager, "balanceOf", big.NewInt(2))
	f.reader.SetWithArgs(manager, "tokenOfOwnerByIndex", []interface{}{owner, big.NewInt(0)}, big.NewInt(11))
	f.reader.SetWithArgs(manager, "tokenOfOwnerByIndex", []interface{}{owner, big.NewInt(1)}, big.NewInt(12))
	f.reader.SetWithArgs(manager, "positions", []interface{}{big.NewInt(11)},
		big.NewInt(0), common.Address{}, f.weth.Address, f.usdc.Address, big.NewInt(-1200), big.NewInt(1200),
		big.NewInt(5), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0))
	f.reader.SetWithArgs(manager, "positions", []interface{}{big.NewInt(12)},
		big.NewInt(0), common.Address{}, f.weth.Address, f.usdc.Address, big.NewInt(-600), big.NewInt(600),
		liquidity, big.NewInt(0), big.NewInt(0), big.NewInt(1e18), big.NewInt(0))
}

func (f *fixture) withRedeems() {
	f.reader.Set(xgrailAddr, "getUserRedeemsLength", big.NewInt(2))
	f.reader.SetWithArgs(xgrailAddr, "getUserRedeem", []interface{}{owner, big.NewInt(0)},
		big.NewInt(5e17), big.NewInt(5e17), big.NewInt(1_600_000_000), common.Address{}, big.NewInt(0))
	f.reader.SetWithArgs(xgrailAddr, "getUserRedeem", []interface{}{owner, big.NewInt(1)},
		big.NewInt(1e18), big.NewInt(1e18), big.NewInt(1_800_000_000), common.Address{}, big.NewInt(0))
}

func TestPositionDiscovery(t *testing.T) {
	f := newFixture(t)
	f.withPositions()

	pos, ok, err := f.adapter.resolvePosition(context.Background(), owner)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), pos.id.Int64())

	cached, ok := f.adapter.positions.Get(owner)
	require.True(t, ok)
	assert.Equal(t, int64(12), cached.Int64())
}

func TestStalePositionIsRediscovered(t *testing.T) {
	f := newFixture(t)
	f.withPositions()
	f.adapter.positions.Set(owner, big.NewInt(99))

	pos, ok, err := f.adapter.resolvePosition(context.Background(), owner)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), pos.id.Int64())
}

func TestBurnedPositionWithoutReplacement(t *testing.T) {
	f := newFixture(t)
	f.reader.Set(manager, "balanceOf", big.NewInt(0))
	f.adapter.positions.Set(owner, big.NewInt(99))

	rewards, err := f.adapter.PendingRewards(context.Background(), owner, model.PriceTable{"weth": 2000, "usdc": 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, rewards)
	_, cached := f.adapter.positions.Get(owner)
	assert.False(t, cached)

	f.adapter.positions.Set(owner, big.NewInt(99))
	usd, err := f.adapter.USDBalanceOf(context.Background(), owner, model.PriceTable{"weth": 2000, "usdc": 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, usd)
	_, cached = f.adapter.positions.Get(owner)
	assert.False(t, cached)
}

func TestNoPosition(t *testing.T) {
	f := newFixture(t)
	f.reader.Set(manager, "balanceOf", big.NewInt(0))

	res, err := f.adapter.Unstake(context.Background(), owner, 0.5)
	require.NoError(t, err)
	assert.Nil(t, res.Amount)

	rewards, err := f.adapter.PendingRewards(context.Background(), owner, model.PriceTable{}, nil)
	require.NoError(t, err)
	assert.Empty(t, rewards)

	usd, err := f.adapter.USDBalanceOf(context.Background(), owner, model.PriceTable{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, usd)

	_, err = f.adapter.WithdrawLPAndClaim(context.Background(), protocol.WithdrawRequest{Owner: owner, Amount: big.NewInt(1)})
	assert.True(t, errors.Is(err, protocol.ErrNoPosition))
}

func TestWithdrawBurnsOnlyOnFullWithdrawal(t *testing.T) {
	tests := []struct {
		name        string
		amount      *big.Int
		wantMethods []string
	}{
		{"full", new(big.Int).Set(liquidity), []string{"decreaseLiquidity", "collect", "burn"}},
		{"partial", big.NewInt(400_000_000_000), []string{"decreaseLiquidity", "collect"}},
		{"zero", big.NewInt(0), []string{"collect", "burn"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.withPositions()

			res, err := f.adapter.WithdrawLPAndClaim(context.Background(), protocol.WithdrawRequest{
				Owner:    owner,
				Amount:   tt.amount,
				Slippage: 1,
				Prices:   model.PriceTable{},
			})
			require.NoError(t, err)
			require.Len(t, res.Transactions, len(tt.wantMethods))
			for i, m := range tt.wantMethods {
				assert.Equal(t, selector(t, chain.CamelotNFTManager, m), res.Transactions[i].Method(), m)
			}
			require.Len(t, res.MinAmounts, 2)
		})
	}
}

func TestDepositMintsOrIncreases(t *testing.T) {
	tests := []struct {
		name       string
		positions  bool
		wantMethod string
	}{
		{"new position", false, "mint"},
		{"existing position", true, "increaseLiquidity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.positions {
				f.withPositions()
			} else {
				f.reader.Set(manager, "balanceOf", big.NewInt(0))
			}
			txs, err := f.adapter.DepositLP(context.Background(), protocol.DepositLPRequest{
				Owner:  owner,
				TokenA: protocol.Leg{Token: f.weth, Amount: big.NewInt(1e18)},
				TokenB: protocol.Leg{Token: f.usdc, Amount: big.NewInt(3_000_000_000)},
			})
			require.NoError(t, err)
			require.Len(t, txs, 3)
			assert.Equal(t, f.weth.Address, txs[0].To)
			assert.Equal(t, f.usdc.Address, txs[1].To)
			assert.Equal(t, manager, txs[2].To)
			assert.Equal(t, selector(t, chain.CamelotNFTManager, tt.wantMethod), txs[2].Method())
		})
	}
}

func TestPendingRewardsMergesSources(t *testing.T) {
	f := newFixture(t)
	f.withPositions()
	f.withRedeems()
	f.campaigns.rewards = []fetch.CamelotReward{{
		TokenAddress: xgrailAddr,
		Rewards:      big.NewInt(1000),
		Claimed:      big.NewInt(400),
		PositionID:   "12",
	}}
	prices := model.PriceTable{"weth": 3000, "grail": 2, "xgrail": 2}

	rewards, err := f.adapter.PendingRewards(context.Background(), owner, prices, nil)
	require.NoError(t, err)
	require.Len(t, rewards, 3)

	fees := rewards[model.RewardKey(f.weth.Address)]
	assert.InDelta(t, 3000.0, fees.USDValue, 1e-6)
	assert.False(t, fees.Vesting)

	grail := rewards[model.RewardKey(grailAddr)]
	assert.Equal(t, int64(5e17), grail.Balance.Int64())
	assert.False(t, grail.Vesting)

	xgrail := rewards[model.RewardKey(xgrailAddr)]
	assert.Equal(t, "1000000000000000600", xgrail.Balance.String())
	assert.True(t, xgrail.Vesting)
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	f.withPositions()
	f.withRedeems()
	f.campaigns.rewards = []fetch.CamelotReward{
		{TokenAddress: xgrailAddr, Rewards: big.NewInt(1000), Claimed: big.NewInt(400), PositionID: "12"},
		{TokenAddress: xgrailAddr, Rewards: big.NewInt(50), Claimed: big.NewInt(0), PositionID: "11"},
	}

	txs, _, err := f.adapter.Claim(context.Background(), owner, model.PriceTable{}, nil)
	require.NoError(t, err)
	require.Len(t, txs, 4)
	assert.Equal(t, selector(t, chain.CamelotNFTManager, "collect"), txs[0].Method())
	assert.Equal(t, distributor, txs[1].To)
	wantRedeem, err := chain.Pack(chain.XGrail, "redeem", big.NewInt(600), big.NewInt(RedeemDuration))
	require.NoError(t, err)
	assert.Equal(t, wantRedeem, []byte(txs[2].Data))
	wantFinalize, err := chain.Pack(chain.XGrail, "finalizeRedeem", big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, wantFinalize, []byte(txs[3].Data))
}

func TestClaimWithoutPositionOnlyFinalizes(t *testing.T) {
	f := newFixture(t)
	f.reader.Set(manager, "balanceOf", big.NewInt(0))
	f.withRedeems()

	txs, rewards, err := f.adapter.Claim(context.Background(), owner, model.PriceTable{"grail": 2}, nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, xgrailAddr, txs[0].To)
	assert.InDelta(t, 1.0, rewards[model.RewardKey(grailAddr)].USDValue, 1e-9)
}

func TestAmountsForLiquidity(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	l := big.NewInt(1e18)

	a0, a1 := amountsForLiquidity(sqrtPrice, -600, 600, l)
	f0, _ := new(big.Float).SetInt(a0).Float64()
	f1, _ := new(big.Float).SetInt(a1).Float64()
	assert.InEpsilon(t, f0, f1, 1e-6, "symmetric range around the current price")
	assert.InEpsilon(t, 2.9554e16, f0, 1e-3)

	// below the range everything is token0
	a0, a1 = amountsForLiquidity(sqrtPrice, 600, 1200, l)
	assert.Positive(t, a0.Sign())
	assert.Zero(t, a1.Sign())

	// above the range everything is token1
	a0, a1 = amountsForLiquidity(sqrtPrice, -1200, -600, l)
	assert.Zero(t, a0.Sign())
	assert.Positive(t, a1.Sign())
}

func TestTokenAmountsForLP(t *testing.T) {
	f := newFixture(t)

	_, err := f.adapter.TokenAmountsForLP(context.Background(), 100, model.PriceTable{"weth": 3000})
	require.Error(t, err)

	amounts, err := f.adapter.TokenAmountsForLP(context.Background(), 100, model.PriceTable{"weth": 1, "usdc": 1})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Positive(t, amounts[0])
	assert.Zero(t, amounts[1], "a price below the range needs only token0")
}
