package yearn

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/chain/chaintest"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
)

var (
	vault = common.HexToAddress("0x0000000000000000000000000000000000007a01")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func newAdapter(t *testing.T) (*Adapter, *chaintest.Reader, model.TokenMetadata) {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	reader := chaintest.New()
	a, err := New(protocol.Deps{Reader: reader, Registry: reg}, types.ChainArbitrum, Params{Vault: vault, Asset: "weth"})
	require.NoError(t, err)
	weth, err := reg.Token(types.ChainArbitrum, "weth")
	require.NoError(t, err)
	return a, reader, weth
}

func TestIdentity(t *testing.T) {
	a, _, weth := newAdapter(t)
	assert.Equal(t, "arbitrum/yearn/v3/weth", a.UniqueID())
	assert.Empty(t, a.Rewards())
	assert.Equal(t, weth, a.ZapInToken(model.TokenMetadata{Symbol: "usdc"}))

	lock, err := a.LockUpPeriod(context.Background(), owner)
	require.NoError(t, err)
	assert.Zero(t, lock)

	_, err = New(protocol.Deps{}, types.ChainArbitrum, Params{Asset: "weth"})
	assert.True(t, errors.Is(err, protocol.ErrMissingParam))
}

func TestDeposit(t *testing.T) {
	a, _, weth := newAdapter(t)
	rec := progress.NewRecorder()
	amount := big.NewInt(1e18)

	txs, err := a.Deposit(context.Background(), protocol.DepositRequest{
		Owner: owner,
		Leg:   protocol.Leg{Token: weth, Amount: amount},
		Sink:  rec.Sink(),
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, weth.Address, txs[0].To)
	assert.Equal(t, vault, txs[1].To)
	want, err := chain.Pack(chain.ERC4626, "deposit", amount, owner)
	require.NoError(t, err)
	assert.Equal(t, want, []byte(txs[1].Data))
	require.Len(t, rec.Events(), 1)

	_, err = a.Deposit(context.Background(), protocol.DepositRequest{
		Owner: owner,
		Leg:   protocol.Leg{Token: model.TokenMetadata{Symbol: "usdc", Address: common.HexToAddress("0x01")}, Amount: amount},
	})
	assert.Error(t, err)
}

func TestWithdrawAndClaim(t *testing.T) {
	a, reader, weth := newAdapter(t)
	shares := big.NewInt(1_000_000)
	reader.Set(vault, "convertToAssets", big.NewInt(1_100_000))

	res, err := a.WithdrawAndClaim(context.Background(), protocol.WithdrawRequest{
		Owner:    owner,
		Amount:   shares,
		Slippage: 10,
	})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	want, err := chain.Pack(chain.ERC4626, "redeem", shares, owner, owner)
	require.NoError(t, err)
	assert.Equal(t, want, []byte(res.Transactions[0].Data))
	assert.Equal(t, []model.TokenMetadata{weth}, res.Tokens)
	assert.Equal(t, "990000", res.MinAmounts[0].String())

	_, err = a.WithdrawAndClaim(context.Background(), protocol.WithdrawRequest{Owner: owner})
	assert.True(t, errors.Is(err, protocol.ErrNoPosition))
}

func TestUnstake(t *testing.T) {
	tests := []struct {
		name       string
		balance    int64
		percentage float64
		want       string
	}{
		{"quarter", 1000, 0.25, "250"},
		{"all", 1000, 1, "1000"},
		{"empty", 0, 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, reader, _ := newAdapter(t)
			reader.Set(vault, "balanceOf", big.NewInt(tt.balance))
			res, err := a.Unstake(context.Background(), owner, tt.percentage)
			require.NoError(t, err)
			assert.Empty(t, res.Transactions)
			if tt.want == "" {
				assert.Nil(t, res.Amount)
				return
			}
			assert.Equal(t, tt.want, res.Amount.String())
		})
	}
}

func TestBalances(t *testing.T) {
	a, reader, _ := newAdapter(t)
	reader.Set(vault, "balanceOf", big.NewInt(2e18))
	reader.Set(vault, "convertToAssets", big.NewInt(21e17))
	prices := model.PriceTable{"weth": 2000}

	usd, err := a.USDBalanceOf(context.Background(), owner, prices)
	require.NoError(t, err)
	assert.InDelta(t, 4200, usd, 1e-6)

	price, err := a.AssetUSDPrice(context.Background(), prices)
	require.NoError(t, err)
	assert.InDelta(t, 4200e-18, price, 1e-24)
}
