package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/circuitbreaker"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/types"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	usdc  = model.TokenMetadata{Symbol: "usdc", Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), Decimals: 6}
	weth  = model.TokenMetadata{Symbol: "weth", Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), Decimals: 18}
)

type fakeProvider struct {
	name  string
	quote model.SwapQuote
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Quote(context.Context, QuoteRequest) (model.SwapQuote, error) {
	f.calls++
	return f.quote, f.err
}

// wethQuote quotes usdWorth of WETH at 2000 USD
func wethQuote(name string, usdWorth int64, toUSD float64, spender string) model.SwapQuote {
	amount := new(big.Int).Mul(big.NewInt(usdWorth), big.NewInt(5e14))
	return model.SwapQuote{
		ToAmount:    amount,
		MinToAmount: new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(99)), big.NewInt(100)),
		ToUSD:       toUSD,
		ApproveTo:   common.HexToAddress(spender),
		Transactions: []model.Transaction{
			{ChainID: types.ChainArbitrum, To: common.HexToAddress(spender), Data: []byte(name)},
		},
	}
}

func request(sink progress.Sink) Request {
	return Request{
		QuoteRequest: QuoteRequest{
			Chain:    types.ChainArbitrum,
			Owner:    owner,
			From:     usdc,
			To:       weth,
			Amount:   big.NewInt(1_000_000_000),
			Slippage: 1,
			Prices:   model.PriceTable{"usdc": 1, "weth": 2000},
		},
		UniqueID: "arbitrum/yearn/v3/weth",
		Sink:     sink,
	}
}

func TestSwapPriceImpact(t *testing.T) {
	tests := []struct {
		name     string
		usdWorth int64
		testMode bool
		prices   model.PriceTable
		wantErr  error
		wantMsg  string
	}{
		{name: "15% impact fails", usdWorth: 850, wantErr: ErrPriceImpact, wantMsg: "Price impact: 15.00%, Max allowed: 10%"},
		{name: "8% impact succeeds", usdWorth: 920},
		{name: "test mode bypasses the check", usdWorth: 850, testMode: true},
		{name: "missing input price fails", usdWorth: 920, prices: model.PriceTable{"weth": 2000}, wantErr: ErrPriceImpact, wantMsg: "no USD price for usdc"},
		{name: "worthless output without input price fails", usdWorth: 1, prices: model.PriceTable{"weth": 2000}, wantErr: ErrPriceImpact, wantMsg: "no USD price for usdc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing1 := &fakeProvider{name: OneInch, err: errors.New("status 500")}
			failing2 := &fakeProvider{name: ZeroX, err: errors.New("no liquidity")}
			good := &fakeProvider{name: ParaSwap, quote: wethQuote("paraswap", tt.usdWorth, float64(tt.usdWorth), "0x216b4b4ba9f3e719726886d34a177484278bfcae")}
			rec := progress.NewRecorder()

			req := request(rec.Sink())
			if tt.prices != nil {
				req.Prices = tt.prices
			}
			res, err := NewRouter(failing1, failing2, good).WithTestMode(tt.testMode).Swap(context.Background(), req)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Contains(t, err.Error(), tt.wantMsg)
				assert.Empty(t, res.Transactions)
				assert.Empty(t, rec.Events())
				return
			}
			require.NoError(t, err)
			require.Len(t, res.Transactions, 2)
			wantApprove, err := chain.Pack(chain.ERC20, "approve", common.HexToAddress("0x216b4b4ba9f3e719726886d34a177484278bfcae"), big.NewInt(1_000_000_000))
			require.NoError(t, err)
			assert.Equal(t, usdc.Address, res.Transactions[0].To)
			assert.Equal(t, wantApprove, []byte(res.Transactions[0].Data))
			assert.Equal(t, []byte("paraswap"), []byte(res.Transactions[1].Data))
			assert.Equal(t, ParaSwap, res.Quote.Provider)

			events := rec.Events()
			require.Len(t, events, 1)
			assert.Equal(t, "arbitrum/yearn/v3/weth-usdc-weth-swap", events[0].Key)
			assert.InDelta(t, float64(tt.usdWorth)-1000, events[0].DeltaUSD, 1e-6)
		})
	}
}

func TestSwapMissingInputPriceInTestMode(t *testing.T) {
	good := &fakeProvider{name: ParaSwap, quote: wethQuote("paraswap", 920, 920, "0x216b4b4ba9f3e719726886d34a177484278bfcae")}
	req := request(nil)
	req.Prices = model.PriceTable{"weth": 2000}

	res, err := NewRouter(good).WithTestMode(true).Swap(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 2)
}

func TestSwapAllProvidersFail(t *testing.T) {
	p1 := &fakeProvider{name: OneInch, err: errors.New("boom")}
	p2 := &fakeProvider{name: ZeroX, err: errors.New("boom")}
	empty := &fakeProvider{name: ParaSwap}

	_, err := NewRouter(p1, p2, empty).Swap(context.Background(), request(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoQuotes))
	assert.Contains(t, err.Error(), "1000 usdc to weth")
}

func TestSwapSelection(t *testing.T) {
	tests := []struct {
		name   string
		quotes map[string]model.SwapQuote
		want   string
	}{
		{
			name: "highest usd wins when all have usd",
			quotes: map[string]model.SwapQuote{
				OneInch:  wethQuote("1inch", 990, 985, "0x1111111254eeb25477b68fb85ed929f73a960582"),
				ZeroX:    wethQuote("0x", 995, 970, "0x0000000000001ff3684f28c67538d4d072c22734"),
				ParaSwap: wethQuote("paraswap", 980, 980, "0x216b4b4ba9f3e719726886d34a177484278bfcae"),
			},
			want: OneInch,
		},
		{
			name: "min amount wins when a usd value is missing",
			quotes: map[string]model.SwapQuote{
				OneInch:  wethQuote("1inch", 990, 985, "0x1111111254eeb25477b68fb85ed929f73a960582"),
				ZeroX:    wethQuote("0x", 995, 0, "0x0000000000001ff3684f28c67538d4d072c22734"),
				ParaSwap: wethQuote("paraswap", 980, 980, "0x216b4b4ba9f3e719726886d34a177484278bfcae"),
			},
			want: ZeroX,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var providers []Provider
			for _, name := range []string{OneInch, ZeroX, ParaSwap} {
				providers = append(providers, &fakeProvider{name: name, quote: tt.quotes[name]})
			}
			res, err := NewRouter(providers...).Swap(context.Background(), request(nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Quote.Provider)
			assert.Equal(t, 0, res.MinToAmount().Cmp(tt.quotes[tt.want].MinToAmount))
		})
	}
}

func TestSwapSameToken(t *testing.T) {
	p := &fakeProvider{name: OneInch}
	req := request(nil)
	req.To = usdc

	res, err := NewRouter(p).Swap(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.Zero(t, p.calls)
}

func TestSwapSkipsOpenBreaker(t *testing.T) {
	flaky := &fakeProvider{name: OneInch, err: errors.New("boom")}
	good := &fakeProvider{name: ParaSwap, quote: wethQuote("paraswap", 990, 990, "0x216b4b4ba9f3e719726886d34a177484278bfcae")}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_swap_provider_errors_total"}, []string{"provider"})
	group := circuitbreaker.NewGroup(func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.New(name, circuitbreaker.Thresholds{MaxConsecutiveFailures: 2})
	})
	router := NewRouter(flaky, good).WithBreakers(group).WithErrorCounter(counter)

	for i := 0; i < 3; i++ {
		_, err := router.Swap(context.Background(), request(nil))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, flaky.calls, "third swap skips the open breaker")
	assert.Equal(t, circuitbreaker.StateOpen, router.Breakers().States()[OneInch])
	assert.Equal(t, 2.0, testutil.ToFloat64(counter.WithLabelValues(OneInch)))
}
