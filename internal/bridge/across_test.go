package bridge

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func bridgeRequest(t *testing.T, sink progress.Sink) Request {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	from, err := reg.Token(types.ChainArbitrum, "usdc")
	require.NoError(t, err)
	to, err := reg.Token(types.ChainBase, "usdc")
	require.NoError(t, err)
	return Request{
		Owner:     owner,
		FromChain: types.ChainArbitrum,
		ToChain:   types.ChainBase,
		From:      from,
		To:        to,
		Amount:    big.NewInt(500_000_000),
		Prices:    model.PriceTable{"usdc": 1},
		Sink:      sink,
	}
}

func newAcross(t *testing.T, handler http.HandlerFunc) *Across {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	reg, err := registry.Default()
	require.NoError(t, err)
	return NewAcross(server.URL, server.Client(), reg).WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
}

func TestAcrossBridgeTxns(t *testing.T) {
	across := newAcross(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/suggested-fees", r.URL.Path)
		assert.Equal(t, "42161", r.URL.Query().Get("originChainId"))
		assert.Equal(t, "8453", r.URL.Query().Get("destinationChainId"))
		_, _ = w.Write([]byte(`{"totalRelayFee": {"pct": "3000000000000000", "total": "1500000"}, "timestamp": "1699999990"}`))
	})
	rec := progress.NewRecorder()
	req := bridgeRequest(t, rec.Sink())

	txs, err := across.BridgeTxns(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	spokePool := common.HexToAddress("0xe35e9842fceaCA96570B734083f4a58e8F7C5f2A")
	assert.Equal(t, req.From.Address, txs[0].To)
	wantApprove, err := chain.Pack(chain.ERC20, "approve", spokePool, big.NewInt(500_000_000))
	require.NoError(t, err)
	assert.Equal(t, wantApprove, []byte(txs[0].Data))

	assert.Equal(t, spokePool, txs[1].To)
	assert.Equal(t, uint64(DepositExtraGas), txs[1].ExtraGas)
	wantDeposit, err := chain.Pack(chain.AcrossSpokePool, "depositV3",
		owner, owner, req.From.Address, req.To.Address,
		big.NewInt(500_000_000), big.NewInt(498_500_000), big.NewInt(8453),
		common.Address{}, uint32(1699999990), uint32(1_700_018_000), uint32(0), []byte{})
	require.NoError(t, err)
	assert.Equal(t, wantDeposit, []byte(txs[1].Data))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "bridge-42161-8453", events[0].Key)
	assert.InDelta(t, -1.5, events[0].DeltaUSD, 1e-9)
}

type failingBridge struct{}

func (failingBridge) Name() string { return "broken" }

func (failingBridge) BridgeTxns(context.Context, Request) ([]model.Transaction, error) {
	return []model.Transaction{{To: owner}}, errors.New("relay down")
}

func TestTransactionsReturnsEmptyOnError(t *testing.T) {
	tests := []struct {
		name   string
		bridge Bridge
		mutate func(*Request)
	}{
		{"bridge error discards partial output", failingBridge{}, func(*Request) {}},
		{
			"api failure",
			newAcross(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) }),
			func(*Request) {},
		},
		{
			"fee above amount",
			newAcross(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"totalRelayFee": {"total": "600000000"}, "timestamp": "1699999990"}`))
			}),
			func(*Request) {},
		},
		{
			"no spoke pool on origin",
			newAcross(t, func(w http.ResponseWriter, r *http.Request) {}),
			func(r *Request) { r.FromChain = types.ChainBSC },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bridgeRequest(t, nil)
			tt.mutate(&req)
			txs := Transactions(context.Background(), tt.bridge, req)
			assert.NotNil(t, txs)
			assert.Empty(t, txs)
		})
	}
}
