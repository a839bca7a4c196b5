package protocol

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/types"
)

func bigString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func TestMulWithSlippage(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		slippage float64
		want     string
	}{
		{"half percent", "1000", 0.5, "995"},
		{"rounds down", "999", 0.5, "994"},
		{"zero slippage", "12345", 0, "12345"},
		{"full slippage", "12345", 100, "0"},
		{"tiny amount", "1", 0.5, "0"},
		{"wei scale", "1000000000000000000000", 1, "990000000000000000000"},
		{"beyond float precision", "123456789012345678901234567890", 3, "119753085341975308534197530853"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := bigString(t, tt.amount)
			got := MulWithSlippage(amount, tt.slippage)
			assert.Equal(t, tt.want, got.String())
			assert.True(t, got.Cmp(amount) <= 0)
		})
	}
}

func TestSplitUSD(t *testing.T) {
	legs, err := SplitUSD(1000, []float64{100, 300}, []float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 250, legs[0], 1e-9)
	assert.InDelta(t, 750, legs[1], 1e-9)

	legs, err = SplitUSD(1000, []float64{1, 2000}, []float64{2000, 1})
	require.NoError(t, err)
	assert.InDelta(t, 500, legs[0], 1e-9)

	_, err = SplitUSD(1000, []float64{0, 0}, []float64{1, 1})
	assert.ErrorIs(t, err, ErrNoLiquidity)

	_, err = SplitUSD(1000, []float64{1}, []float64{1, 1})
	assert.Error(t, err)
}

func TestPercentageConversions(t *testing.T) {
	bps, err := BasisPoints(0.3333)
	require.NoError(t, err)
	assert.Equal(t, int64(3333), bps.Int64())
	assert.Equal(t, int64(3333), ApplyBasisPoints(big.NewInt(10000), bps).Int64())

	fp, err := FixedPoint18(0.5)
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", fp.String())
	assert.Equal(t, int64(50), ApplyFixedPoint18(big.NewInt(100), fp).Int64())

	_, err = BasisPoints(1.5)
	assert.ErrorIs(t, err, ErrInvalidPercentage)
	_, err = FixedPoint18(-0.1)
	assert.ErrorIs(t, err, ErrInvalidPercentage)
}

func TestProportionalShare(t *testing.T) {
	got := ProportionalShare(big.NewInt(1_000_000), big.NewInt(25), big.NewInt(100))
	assert.Equal(t, int64(250_000), got.Int64())
	assert.Equal(t, int64(0), ProportionalShare(big.NewInt(1), big.NewInt(1), big.NewInt(0)).Int64())
}

func TestDeadline(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.Equal(t, int64(1_700_000_600), Deadline(now, 10*time.Minute).Int64())
}

type sampleParams struct {
	Pool     common.Address `yaml:"pool" param:"required"`
	Pid      int64          `yaml:"pid" param:"required"`
	Optional string         `yaml:"optional"`
}

func TestRequireParams(t *testing.T) {
	err := RequireParams(sampleParams{Pid: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingParam))
	assert.Contains(t, err.Error(), "pool")

	err = RequireParams(&sampleParams{Pool: common.HexToAddress("0x01")})
	assert.Contains(t, err.Error(), "pid")

	assert.NoError(t, RequireParams(sampleParams{Pool: common.HexToAddress("0x01"), Pid: 34}))
	assert.Error(t, RequireParams((*sampleParams)(nil)))
}

func TestPositionCache(t *testing.T) {
	c := NewPositionCache()
	owner := common.HexToAddress("0xaa")

	_, ok := c.Get(owner)
	assert.False(t, ok)

	c.Set(owner, big.NewInt(0))
	_, ok = c.Get(owner)
	assert.False(t, ok, "zero ids are not cached")

	c.Set(owner, big.NewInt(77))
	id, ok := c.Get(owner)
	require.True(t, ok)
	assert.Equal(t, int64(77), id.Int64())

	c.Invalidate(owner)
	_, ok = c.Get(owner)
	assert.False(t, ok)
}

func TestBaseIdentity(t *testing.T) {
	b := Base{Protocol: "convex", Version: "0", ChainID: types.ChainArbitrum, Symbols: []string{"usdc", "usdt"}}
	assert.Equal(t, "arbitrum/convex/0/usdc-usdt", b.UniqueID())
	assert.Equal(t, "convex", b.Name())
}

func TestReportTradingLoss(t *testing.T) {
	rec := progress.NewRecorder()
	ReportTradingLoss(rec.Sink(), "x-deposit", -2)
	ReportTradingLoss(nil, "ignored", 1)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "x-deposit", rec.Events()[0].Key)
}
