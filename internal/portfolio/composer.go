// Package portfolio composes weighted multi-venue deposits, withdrawals and
// claims into ordered transaction batches.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourorg/vault-bff/internal/bridge"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/swap"
	"github.com/yourorg/vault-bff/internal/types"
)

// WeightTolerance is the allowed deviation of a weight sum from 1
const WeightTolerance = 1e-6

var (
	// ErrInvalidWeights is returned when a weight set does not sum to 1
	ErrInvalidWeights = errors.New("weights must sum to 1")
	// ErrUnknownPortfolio is returned for names missing from the catalog
	ErrUnknownPortfolio = errors.New("unknown portfolio")
)

// Entry is one adapter and its weight within a category
type Entry struct {
	Adapter protocol.Adapter
	Weight  float64
}

// Allocation maps category to chain to an ordered adapter list
type Allocation map[string]map[types.ChainID][]Entry

// Swapper converts one token into another
type Swapper interface {
	Swap(ctx context.Context, req swap.Request) (swap.Result, error)
}

// Composer fans portfolio operations out to its adapters
type Composer struct {
	name            string
	allocation      Allocation
	categoryWeights map[string]float64
	swapper         Swapper
	bridge          bridge.Bridge
	tokens          TokenLookup
}

// TokenLookup resolves tokens for bridge destinations and reward swaps
type TokenLookup interface {
	Token(chain types.ChainID, symbolOrAddress string) (model.TokenMetadata, error)
}

// New validates both weight sets and returns a composer without swap or bridge support
func New(name string, allocation Allocation, categoryWeights map[string]float64) (*Composer, error) {
	if err := validateWeights(allocation, categoryWeights); err != nil {
		return nil, fmt.Errorf("portfolio %q: %w", name, err)
	}
	return &Composer{
		name:            name,
		allocation:      allocation,
		categoryWeights: categoryWeights,
	}, nil
}

// WithSwapper sets the router used for conversion legs
func (c *Composer) WithSwapper(s Swapper) *Composer {
	c.swapper = s
	return c
}

// WithBridge sets the bridge used for legs on other chains
func (c *Composer) WithBridge(b bridge.Bridge, tokens TokenLookup) *Composer {
	c.bridge = b
	c.tokens = tokens
	return c
}

// Name returns the portfolio name
func (c *Composer) Name() string { return c.name }

func validateWeights(allocation Allocation, categoryWeights map[string]float64) error {
	if len(categoryWeights) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidWeights)
	}
	var total float64
	for category, w := range categoryWeights {
		if w < 0 {
			return fmt.Errorf("%w: category %s has negative weight %v", ErrInvalidWeights, category, w)
		}
		total += w
	}
	if math.Abs(total-1) > WeightTolerance {
		return fmt.Errorf("%w: category weights sum to %v", ErrInvalidWeights, total)
	}
	for category := range categoryWeights {
		chains, ok := allocation[category]
		if !ok {
			return fmt.Errorf("%w: category %s has no adapters", ErrInvalidWeights, category)
		}
		var sum float64
		for _, entries := range chains {
			for _, e := range entries {
				if e.Adapter == nil {
					return fmt.Errorf("category %s has a nil adapter", category)
				}
				sum += e.Weight
			}
		}
		if math.Abs(sum-1) > WeightTolerance {
			return fmt.Errorf("%w: category %s adapter weights sum to %v", ErrInvalidWeights, category, sum)
		}
	}
	for category := range allocation {
		if _, ok := categoryWeights[category]; !ok {
			return fmt.Errorf("%w: category %s has no weight", ErrInvalidWeights, category)
		}
	}
	return nil
}

// placement is an adapter with its share of the whole portfolio
type placement struct {
	category string
	chain    types.ChainID
	adapter  protocol.Adapter
	weight   float64
}

// placements lists adapters in a stable order: categories and chains sorted,
// adapters in allocation order
func (c *Composer) placements() []placement {
	categories := make([]string, 0, len(c.allocation))
	for category := range c.allocation {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var out []placement
	for _, category := range categories {
		chains := make([]types.ChainID, 0, len(c.allocation[category]))
		for ch := range c.allocation[category] {
			chains = append(chains, ch)
		}
		sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
		for _, ch := range chains {
			for _, e := range c.allocation[category][ch] {
				out = append(out, placement{
					category: category,
					chain:    ch,
					adapter:  e.Adapter,
					weight:   c.categoryWeights[category] * e.Weight,
				})
			}
		}
	}
	return out
}

// Adapters returns every adapter in composition order
func (c *Composer) Adapters() []protocol.Adapter {
	ps := c.placements()
	out := make([]protocol.Adapter, len(ps))
	for i, p := range ps {
		out[i] = p.adapter
	}
	return out
}

// Chains returns the chains the portfolio deploys to
func (c *Composer) Chains() []types.ChainID {
	seen := map[types.ChainID]bool{}
	var out []types.ChainID
	for _, p := range c.placements() {
		if !seen[p.chain] {
			seen[p.chain] = true
			out = append(out, p.chain)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Weights returns each adapter's share of the portfolio keyed by unique id
func (c *Composer) Weights() map[string]float64 {
	out := map[string]float64{}
	for _, p := range c.placements() {
		out[p.adapter.UniqueID()] += p.weight
	}
	return out
}

// LockUpPeriod is the longest lock-up of any adapter
func (c *Composer) LockUpPeriod(ctx context.Context, owner common.Address) (time.Duration, error) {
	var longest time.Duration
	for _, a := range c.Adapters() {
		d, err := a.LockUpPeriod(ctx, owner)
		if err != nil {
			return 0, fmt.Errorf("%s lock-up: %w", a.UniqueID(), err)
		}
		if d > longest {
			longest = d
		}
	}
	return longest, nil
}

func (c *Composer) swap(ctx context.Context, req swap.Request) (swap.Result, error) {
	if req.From.SameToken(req.To) {
		return swap.Result{}, nil
	}
	if c.swapper == nil {
		return swap.Result{}, fmt.Errorf("portfolio %q: no swap router to convert %s to %s", c.name, req.From.Symbol, req.To.Symbol)
	}
	return c.swapper.Swap(ctx, req)
}

func nonZero(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
