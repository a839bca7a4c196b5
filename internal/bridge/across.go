package bridge

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/erc20"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/tracing"
)

const (
	// DefaultAcrossURL is the Across app API
	DefaultAcrossURL = "https://app.across.to/api"
	// FillDeadlineBuffer bounds how long relayers may take to fill
	FillDeadlineBuffer = 18000 * time.Second
	// DepositExtraGas is added to the deposit's gas estimate
	DepositExtraGas = 150000
)

// Across bridges through the Across spoke pools
type Across struct {
	baseURL    string
	httpClient *http.Client
	registry   *registry.Registry
	now        func() time.Time
}

// NewAcross creates an Across bridge. Spoke pools are resolved from reg per origin chain.
func NewAcross(baseURL string, httpClient *http.Client, reg *registry.Registry) *Across {
	if baseURL == "" {
		baseURL = DefaultAcrossURL
	}
	if httpClient == nil {
		httpClient = fetch.DefaultHTTPClient()
	}
	return &Across{baseURL: baseURL, httpClient: httpClient, registry: reg, now: time.Now}
}

// WithClock replaces time.Now
func (a *Across) WithClock(now func() time.Time) *Across {
	a.now = now
	return a
}

// Name implements Bridge
func (a *Across) Name() string { return "across" }

type suggestedFees struct {
	TotalRelayFee struct {
		Pct   string `json:"pct"`
		Total string `json:"total"`
	} `json:"totalRelayFee"`
	Timestamp      string `json:"timestamp"`
	IsAmountTooLow bool   `json:"isAmountTooLow"`
}

// SuggestedFee returns the relay fee in input token units and the quote timestamp
func (a *Across) SuggestedFee(ctx context.Context, req Request) (*big.Int, uint32, error) {
	q := url.Values{}
	q.Set("inputToken", req.From.Address.Hex())
	q.Set("outputToken", req.To.Address.Hex())
	q.Set("originChainId", strconv.FormatUint(uint64(req.FromChain), 10))
	q.Set("destinationChainId", strconv.FormatUint(uint64(req.ToChain), 10))
	q.Set("amount", req.Amount.String())

	var resp suggestedFees
	if err := fetch.GetJSON(ctx, a.httpClient, a.baseURL+"/suggested-fees?"+q.Encode(), nil, &resp); err != nil {
		return nil, 0, fmt.Errorf("across suggested-fees: %w", err)
	}
	if resp.IsAmountTooLow {
		return nil, 0, fmt.Errorf("across: amount %s %s is below the minimum", req.Amount, req.From.Symbol)
	}
	fee, ok := new(big.Int).SetString(resp.TotalRelayFee.Total, 10)
	if !ok || fee.Sign() < 0 {
		return nil, 0, fmt.Errorf("across: invalid relay fee %q", resp.TotalRelayFee.Total)
	}
	ts, err := strconv.ParseUint(resp.Timestamp, 10, 32)
	if err != nil {
		return nil, 0, fmt.Errorf("across: invalid quote timestamp %q", resp.Timestamp)
	}
	return fee, uint32(ts), nil
}

// BridgeTxns implements Bridge: approve the spoke pool, then depositV3
func (a *Across) BridgeTxns(ctx context.Context, req Request) ([]model.Transaction, error) {
	ctx, span := tracing.Start(ctx, "bridge.Across", "from", req.FromChain.String(), "to", req.ToChain.String())
	defer span.End()

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("across: amount must be positive")
	}
	spokePool, err := a.registry.Contract(req.FromChain, registry.AcrossSpokePool)
	if err != nil {
		return nil, fmt.Errorf("across: %w", err)
	}
	fee, quoteTimestamp, err := a.SuggestedFee(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if fee.Cmp(req.Amount) >= 0 {
		return nil, fmt.Errorf("across: relay fee %s exceeds amount %s", fee, req.Amount)
	}

	fillDeadline := uint32(a.now().Add(FillDeadlineBuffer).Unix())
	deposit, err := chain.Build(req.FromChain, spokePool, chain.AcrossSpokePool, "depositV3",
		req.Owner,
		req.Owner,
		req.From.Address,
		req.To.Address,
		req.Amount,
		new(big.Int).Sub(req.Amount, fee),
		new(big.Int).SetUint64(uint64(req.ToChain)),
		common.Address{},
		quoteTimestamp,
		fillDeadline,
		uint32(0),
		[]byte{},
	)
	if err != nil {
		return nil, err
	}
	approve, err := erc20.Approve(req.FromChain, req.From.Address, spokePool, req.Amount)
	if err != nil {
		return nil, err
	}

	feeUSD := model.UnitsToUSD(fee, req.From.Decimals, req.Prices.PriceOrZero(req.From.Symbol))
	progress.Or(req.Sink)(fmt.Sprintf("bridge-%d-%d", uint64(req.FromChain), uint64(req.ToChain)), -feeUSD)
	return []model.Transaction{approve, chain.WithExtraGas(deposit, DepositExtraGas)}, nil
}
