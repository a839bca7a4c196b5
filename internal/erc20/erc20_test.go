package erc20

import (
	"context"
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
	usdc    = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	spender = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestApprove(t *testing.T) {
	tx, err := Approve(types.ChainArbitrum, usdc, spender, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, usdc, tx.To)

	a, err := chain.ABI(chain.ERC20)
	require.NoError(t, err)
	args, err := a.Methods["approve"].Inputs.Unpack(tx.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, spender, args[0])
	assert.Equal(t, big.NewInt(1000), args[1])

	_, err = Approve(types.ChainArbitrum, usdc, spender, big.NewInt(-1))
	assert.Error(t, err)
}

func TestApproveIfNeeded(t *testing.T) {
	tests := []struct {
		name      string
		allowance int64
		amount    int64
		want      int
	}{
		{"insufficient allowance", 10, 100, 1},
		{"exact allowance", 100, 100, 0},
		{"larger allowance", 1000, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := chaintest.New().Set(usdc, "allowance", big.NewInt(tt.allowance))
			txs, err := ApproveIfNeeded(context.Background(), reader, types.ChainArbitrum, usdc, owner, spender, big.NewInt(tt.amount))
			require.NoError(t, err)
			assert.Len(t, txs, tt.want)
		})
	}
}
