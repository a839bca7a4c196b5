package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/circuitbreaker"
	"github.com/yourorg/vault-bff/internal/erc20"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/tracing"
	"github.com/yourorg/vault-bff/internal/validation"
)

// DefaultMaxPriceImpact is the largest accepted price impact in percent.
// Price tables lag the market, so the bound is loose.
const DefaultMaxPriceImpact = 10.0

var (
	// ErrNoQuotes is returned when no provider produced a usable quote
	ErrNoQuotes = errors.New("no valid swap data found from any provider")
	// ErrPriceImpact is returned when the best quote loses too much value
	ErrPriceImpact = errors.New("price impact is too high")
)

// Request is one conversion leg
type Request struct {
	QuoteRequest
	// UniqueID prefixes the progress key, usually the adapter the leg feeds
	UniqueID string
	Sink     progress.Sink
}

// Result is the winning quote with its approval prepended
type Result struct {
	Transactions []model.Transaction
	Quote        model.SwapQuote
	// TradingLoss is output USD minus input USD at table prices
	TradingLoss float64
}

// MinToAmount is the minimum output of the winning quote
func (r Result) MinToAmount() *big.Int {
	if r.Quote.MinToAmount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(r.Quote.MinToAmount)
}

// Router fans a swap out to every provider and keeps the best quote
type Router struct {
	providers      []Provider
	breakers       *circuitbreaker.Group
	maxPriceImpact float64
	testMode       bool
	errorCounter   *prometheus.CounterVec
}

// NewRouter creates a router over providers. Each provider gets its own circuit breaker.
func NewRouter(providers ...Provider) *Router {
	return &Router{
		providers: providers,
		breakers: circuitbreaker.NewGroup(func(name string) *circuitbreaker.CircuitBreaker {
			return circuitbreaker.New(name, circuitbreaker.Thresholds{MaxConsecutiveFailures: 5})
		}),
		maxPriceImpact: DefaultMaxPriceImpact,
	}
}

// WithBreakers replaces the circuit breaker group
func (r *Router) WithBreakers(g *circuitbreaker.Group) *Router {
	r.breakers = g
	return r
}

// WithTestMode disables the price impact check
func (r *Router) WithTestMode(enabled bool) *Router {
	r.testMode = enabled
	return r
}

// WithMaxPriceImpact sets the price impact bound in percent
func (r *Router) WithMaxPriceImpact(percent float64) *Router {
	r.maxPriceImpact = percent
	return r
}

// WithErrorCounter counts provider failures by provider label
func (r *Router) WithErrorCounter(c *prometheus.CounterVec) *Router {
	r.errorCounter = c
	return r
}

// Breakers exposes the per-provider breaker states
func (r *Router) Breakers() *circuitbreaker.Group {
	return r.breakers
}

// Swap returns the approval and swap transactions of the best quote.
// Swapping a token into itself returns an empty result.
func (r *Router) Swap(ctx context.Context, req Request) (Result, error) {
	if req.From.SameToken(req.To) {
		return Result{}, nil
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return Result{}, fmt.Errorf("swap %s to %s: amount must be positive", req.From.Symbol, req.To.Symbol)
	}
	ctx, span := tracing.Start(ctx, "swap.Swap", "from", req.From.Symbol, "to", req.To.Symbol)
	defer span.End()

	quotes := validation.FilterInvalidQuotes(r.collect(ctx, req.QuoteRequest))
	if len(quotes) == 0 {
		err := fmt.Errorf("%w to swap %s %s to %s", ErrNoQuotes,
			model.ToDecimal(req.Amount, req.From.Decimals).String(), req.From.Symbol, req.To.Symbol)
		tracing.RecordError(ctx, err)
		return Result{}, err
	}
	best := selectBest(quotes)

	inputUSD := model.UnitsToUSD(req.Amount, req.From.Decimals, req.Prices.PriceOrZero(req.From.Symbol))
	outputUSD := model.UnitsToUSD(best.ToAmount, req.To.Decimals, req.Prices.PriceOrZero(req.To.Symbol))
	logrus.WithFields(logrus.Fields{
		"provider":   best.Provider,
		"from":       req.From.Symbol,
		"to":         req.To.Symbol,
		"input_usd":  inputUSD,
		"output_usd": outputUSD,
	}).Info("Selected swap quote")

	if err := r.checkPriceImpact(req, inputUSD, outputUSD); err != nil {
		tracing.RecordError(ctx, err)
		return Result{}, err
	}

	approve, err := erc20.Approve(req.Chain, req.From.Address, best.ApproveTo, req.Amount)
	if err != nil {
		return Result{}, err
	}
	txs := make([]model.Transaction, 0, len(best.Transactions)+1)
	txs = append(txs, approve)
	txs = append(txs, best.Transactions...)

	loss := outputUSD - inputUSD
	progress.Or(req.Sink)(fmt.Sprintf("%s-%s-%s-swap", req.UniqueID, req.From.Symbol, req.To.Symbol), loss)
	return Result{Transactions: txs, Quote: best, TradingLoss: loss}, nil
}

func (r *Router) checkPriceImpact(req Request, inputUSD, outputUSD float64) error {
	if r.testMode {
		return nil
	}
	if inputUSD <= 0 {
		return fmt.Errorf("%w to swap %s to %s: no USD price for %s",
			ErrPriceImpact, req.From.Symbol, req.To.Symbol, req.From.Symbol)
	}
	impact := (1 - outputUSD/inputUSD) * 100
	if impact > r.maxPriceImpact {
		return fmt.Errorf("%w to swap %s to %s. Price impact: %.2f%%, Max allowed: %.0f%%",
			ErrPriceImpact, req.From.Symbol, req.To.Symbol, impact, r.maxPriceImpact)
	}
	return nil
}

// collect queries every provider concurrently. Failures are logged and skipped.
func (r *Router) collect(ctx context.Context, req QuoteRequest) []model.SwapQuote {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		quotes []model.SwapQuote
	)
	for _, p := range r.providers {
		breaker := r.breakers.Get(p.Name())
		if err := breaker.Allow(); err != nil {
			logrus.WithFields(logrus.Fields{"provider": p.Name()}).Debug("Skipping provider with open circuit")
			continue
		}
		wg.Add(1)
		go func(p Provider, breaker *circuitbreaker.CircuitBreaker) {
			defer wg.Done()
			q, err := p.Quote(ctx, req)
			if err != nil {
				breaker.RecordFailure(err.Error())
				if r.errorCounter != nil {
					r.errorCounter.WithLabelValues(p.Name()).Inc()
				}
				logrus.WithFields(logrus.Fields{
					"provider": p.Name(),
					"from":     req.From.Symbol,
					"to":       req.To.Symbol,
				}).WithError(err).Warn("Swap provider failed")
				return
			}
			breaker.RecordSuccess()
			q.Provider = p.Name()
			mu.Lock()
			quotes = append(quotes, q)
			mu.Unlock()
		}(p, breaker)
	}
	wg.Wait()
	return quotes
}

// selectBest prefers the highest USD output when every quote carries one and
// falls back to the highest minimum output otherwise
func selectBest(quotes []model.SwapQuote) model.SwapQuote {
	allUSD := true
	for _, q := range quotes {
		if q.ToUSD <= 0 {
			allUSD = false
			break
		}
	}
	sorted := append([]model.SwapQuote(nil), quotes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if allUSD {
			return sorted[i].ToUSD > sorted[j].ToUSD
		}
		return sorted[i].MinToAmount.Cmp(sorted[j].MinToAmount) > 0
	})
	return sorted[0]
}
