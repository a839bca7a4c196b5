package chain_test

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
	"github.com/yourorg/vault-bff/internal/types"
)

var (
	pool  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestEmbeddedABIsParse(t *testing.T) {
	for _, name := range []string{
		chain.ERC20, chain.ERC4626, chain.CurvePool, chain.ConvexBooster, chain.ConvexRewardPool,
		chain.VelodromeRouter, chain.VelodromePool, chain.VelodromeGauge, chain.CamelotNFTManager,
		chain.AlgebraPool, chain.CamelotDistributor, chain.XGrail, chain.EquilibriaBooster,
		chain.EquilibriaRewardPool, chain.EqbMinter, chain.EqbZap, chain.XEqb, chain.AcrossSpokePool,
	} {
		_, err := chain.ABI(name)
		assert.NoError(t, err, name)
	}
	_, err := chain.ABI("missing")
	assert.Error(t, err)
}

func TestBuildApprove(t *testing.T) {
	tx, err := chain.Build(types.ChainArbitrum, pool, chain.ERC20, "approve", owner, big.NewInt(42))
	require.NoError(t, err)

	assert.Equal(t, types.ChainArbitrum, tx.ChainID)
	assert.Equal(t, pool, tx.To)
	assert.Equal(t, "erc20.approve", tx.Description)
	// approve(address,uint256)
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, tx.Method())
	assert.Len(t, tx.Data, 4+32+32)
}

func TestBuildRejectsBadArgs(t *testing.T) {
	_, err := chain.Build(types.ChainArbitrum, pool, chain.ERC20, "approve", "not-an-address")
	assert.Error(t, err)
}

func TestRoundTripUnpack(t *testing.T) {
	a, err := chain.ABI(chain.ERC20)
	require.NoError(t, err)
	out, err := a.Methods["balanceOf"].Outputs.Pack(big.NewInt(7))
	require.NoError(t, err)

	res, err := chain.Unpack(chain.ERC20, "balanceOf", out)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Big(0).Int64())
	assert.Equal(t, int64(0), res.Big(3).Int64())
}

func TestCallBatch(t *testing.T) {
	reader := chaintest.New().
		Set(pool, "totalSupply", big.NewInt(100)).
		Set(pool, "get_balances", []*big.Int{big.NewInt(1), big.NewInt(2)})

	res, err := chain.CallBatch(context.Background(), reader, []chain.Call{
		chain.NewCall(types.ChainArbitrum, pool, chain.CurvePool, "totalSupply"),
		chain.NewCall(types.ChainArbitrum, pool, chain.CurvePool, "get_balances"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), res[0].Big(0).Int64())
	assert.Len(t, res[1].Bigs(0), 2)

	reader.Fail(pool, "totalSupply", errors.New("rpc down"))
	_, err = chain.CallBatch(context.Background(), reader, []chain.Call{
		chain.NewCall(types.ChainArbitrum, pool, chain.CurvePool, "totalSupply"),
		chain.NewCall(types.ChainArbitrum, pool, chain.CurvePool, "get_balances"),
	})
	assert.EqualError(t, err, "rpc down")
}

func TestRaw(t *testing.T) {
	data := []byte{1, 2, 3}
	tx := chain.Raw(types.ChainBase, pool, data, big.NewInt(0), "pendle.addLiquidity")
	data[0] = 9
	assert.Equal(t, byte(1), tx.Data[0])
	assert.Nil(t, tx.Value)

	tx = chain.WithExtraGas(tx, 150000)
	assert.Equal(t, uint64(150000), tx.ExtraGas)
}
