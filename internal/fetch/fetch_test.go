package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/types"
)

func TestNewRetryClient(t *testing.T) {
	c := NewRetryClient()
	assert.Equal(t, 3, c.RetryMax)
	assert.Equal(t, 500*time.Millisecond, c.RetryWaitMin)
	assert.Equal(t, 3*time.Second, c.RetryWaitMax)
	assert.NotNil(t, StandardClient(c))
}

func TestGetJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "nope")
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := GetJSON(context.Background(), srv.Client(), srv.URL, nil, &out)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, "nope", se.Body)
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := PostJSON(context.Background(), srv.Client(), srv.URL, map[string]string{"X-Key": "secret"}, map[string]int{"a": 1}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestPendleClient(t *testing.T) {
	market := common.HexToAddress("0x1111111111111111111111111111111111111111")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/add-liquidity"):
			assert.Contains(t, r.URL.Path, "/v1/sdk/42161/markets/")
			assert.Equal(t, "0.005", r.URL.Query().Get("slippage"))
			assert.Equal(t, "1000", r.URL.Query().Get("amountIn"))
			fmt.Fprint(w, `{"tx":{"to":"0x888888888889758F76e7103c6CbF23ABbF58F946","data":"0xdeadbeef"},"data":{"amountLpOut":"990"}}`)
		case strings.HasSuffix(r.URL.Path, "/remove-liquidity"):
			fmt.Fprint(w, `{"tx":{"to":"0x888888888889758F76e7103c6CbF23ABbF58F946","data":"0xabcd"},"data":{"amountOut":"500"},
				"contractCallParams":["0x0","0x0","1",{"tokenOut":"0x0","minTokenOut":"495"}]}`)
		case strings.Contains(r.URL.Path, "/prices/assets/addresses"):
			fmt.Fprint(w, `{"pricesUsd":[2.5e18]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewPendleClient(srv.URL, srv.Client())
	ctx := context.Background()
	req := PendleLiquidityRequest{Amount: big.NewInt(1000), Slippage: 0.5}

	add, err := c.AddLiquidity(ctx, types.ChainArbitrum, market, req)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, add.Data)
	assert.Equal(t, int64(990), add.AmountOut.Int64())
	assert.Nil(t, add.MinOut)

	remove, err := c.RemoveLiquidity(ctx, types.ChainArbitrum, market, req)
	require.NoError(t, err)
	assert.Equal(t, int64(500), remove.AmountOut.Int64())
	require.NotNil(t, remove.MinOut)
	assert.Equal(t, int64(495), remove.MinOut.Int64())

	price, err := c.AssetPrice(ctx, types.ChainArbitrum, market)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, price, 1e-9)
}

func TestCamelotCampaignRewards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/campaigns/rewards", r.URL.Path)
		assert.Equal(t, "42161", r.URL.Query().Get("chainId"))
		fmt.Fprint(w, `{"data":{"rewards":[
			{"tokenAddress":"0x3CAaE25Ee616f2C8E13C74dA0813402eae3F496b","poolAddress":"0x0000000000000000000000000000000000000001",
			 "rewards":"1000","claimed":"400","positionIdentifier":"0x0000000000000000000000000000000000000000000000000000000000000007",
			 "positionIdentifierDecoded":"7","proof":[]},
			{"tokenAddress":"0x3d9907F9a368ad0a51Be60f7Da3b97cf940982D8","rewards":5,"claimed":9}
		]}}`)
	}))
	defer srv.Close()

	c := NewCamelotClient(srv.URL, srv.Client())
	rewards, err := c.CampaignRewards(context.Background(), types.ChainArbitrum, common.HexToAddress("0x01"))
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, int64(600), rewards[0].Claimable().Int64())
	assert.Equal(t, "7", rewards[0].PositionID)
	assert.Equal(t, int64(0), rewards[1].Claimable().Int64())
}

func TestDeBankTotalBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("AccessKey"))
		fmt.Fprint(w, `{"total_usd_value": 1234.5}`)
	}))
	defer srv.Close()

	c := NewDeBankClient(srv.URL, "key", srv.Client())
	total, err := c.TotalBalance(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Equal(t, 1234.5, total)
}

func TestPriceFeedCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		fmt.Fprint(w, `{"ethereum":{"usd":3000},"usd-coin":{"usd":1}}`)
	}))
	defer srv.Close()

	feed, err := NewPriceFeed(srv.URL, "", time.Minute, srv.Client())
	require.NoError(t, err)
	defer feed.Close()

	tokens := []model.TokenMetadata{
		{Symbol: "WETH", PriceID: "ethereum"},
		{Symbol: "USDC", PriceID: "usd-coin"},
		{Symbol: "USDC.e", PriceID: "usd-coin"},
		{Symbol: "XYZ"},
	}
	table, err := feed.Prices(context.Background(), tokens)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, table["weth"])
	assert.Equal(t, 1.0, table["usdc.e"])
	_, ok := table["xyz"]
	assert.False(t, ok)

	_, err = feed.Prices(context.Background(), tokens[:2])
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
