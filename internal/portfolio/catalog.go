package portfolio

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/bridge"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/protocol/camelot"
	"github.com/yourorg/vault-bff/internal/protocol/convex"
	"github.com/yourorg/vault-bff/internal/protocol/equilibria"
	"github.com/yourorg/vault-bff/internal/protocol/velodrome"
	"github.com/yourorg/vault-bff/internal/protocol/yearn"
	"github.com/yourorg/vault-bff/internal/types"
	"gopkg.in/yaml.v3"
)

//go:embed portfolios.yaml
var defaultPortfolios []byte

// Factory builds adapters from venue names and their YAML parameters
type Factory struct {
	Deps      protocol.Deps
	Pendle    equilibria.PendleAPI
	Campaigns camelot.CampaignSource
}

// Build decodes params for venue and constructs its adapter on chain
func (f Factory) Build(venue string, chain types.ChainID, params yaml.Node) (protocol.Adapter, error) {
	switch venue {
	case "convex":
		var p convex.Params
		if err := decodeParams(venue, params, &p); err != nil {
			return nil, err
		}
		return convex.New(f.Deps, chain, p)
	case "velodrome", "aerodrome":
		var p velodrome.Params
		if err := decodeParams(venue, params, &p); err != nil {
			return nil, err
		}
		if p.Protocol == "" {
			p.Protocol = venue
		}
		return velodrome.New(f.Deps, chain, p)
	case "camelot":
		var p camelot.Params
		if err := decodeParams(venue, params, &p); err != nil {
			return nil, err
		}
		return camelot.New(f.Deps, chain, p, f.Campaigns)
	case "equilibria":
		var p equilibria.Params
		if err := decodeParams(venue, params, &p); err != nil {
			return nil, err
		}
		return equilibria.New(f.Deps, chain, p, f.Pendle)
	case "yearn":
		var p yearn.Params
		if err := decodeParams(venue, params, &p); err != nil {
			return nil, err
		}
		return yearn.New(f.Deps, chain, p)
	}
	return nil, fmt.Errorf("unsupported venue %q", venue)
}

func decodeParams(venue string, params yaml.Node, out interface{}) error {
	if params.IsZero() {
		return nil
	}
	if err := params.Decode(out); err != nil {
		return fmt.Errorf("decode %s params: %w", venue, err)
	}
	return nil
}

type catalogFile struct {
	Portfolios []struct {
		Name       string `yaml:"name"`
		Categories map[string]struct {
			Weight float64 `yaml:"weight"`
			Chains map[string][]struct {
				Venue  string    `yaml:"venue"`
				Weight float64   `yaml:"weight"`
				Params yaml.Node `yaml:"params"`
			} `yaml:"chains"`
		} `yaml:"categories"`
	} `yaml:"portfolios"`
}

// Catalog holds the named portfolios. It is read-only once built.
type Catalog struct {
	composers map[string]*Composer
}

// Options are applied to every composer in a catalog
type Options struct {
	Swapper Swapper
	Bridge  bridge.Bridge
	Tokens  TokenLookup
}

// DefaultCatalog builds the portfolios compiled into the binary
func DefaultCatalog(f Factory, opts Options) (*Catalog, error) {
	return ParseCatalog(defaultPortfolios, f, opts)
}

// LoadCatalog reads portfolios from path, falling back to the embedded set when path is empty
func LoadCatalog(path string, f Factory, opts Options) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(f, opts)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open portfolio catalog: %w", err)
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read portfolio catalog: %w", err)
	}
	return ParseCatalog(raw, f, opts)
}

// ParseCatalog decodes a catalog document and builds every adapter
func ParseCatalog(raw []byte, f Factory, opts Options) (*Catalog, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode portfolio catalog: %w", err)
	}

	cat := &Catalog{composers: make(map[string]*Composer, len(doc.Portfolios))}
	for _, def := range doc.Portfolios {
		if def.Name == "" {
			return nil, fmt.Errorf("portfolio entry is missing a name")
		}
		if _, dup := cat.composers[def.Name]; dup {
			return nil, fmt.Errorf("portfolio %q defined twice", def.Name)
		}
		allocation := Allocation{}
		weights := map[string]float64{}
		for category, cdef := range def.Categories {
			weights[category] = cdef.Weight
			allocation[category] = map[types.ChainID][]Entry{}
			for chainName, entries := range cdef.Chains {
				chainID, err := types.ChainByName(chainName)
				if err != nil {
					return nil, fmt.Errorf("portfolio %q: %w", def.Name, err)
				}
				for _, e := range entries {
					adapter, err := f.Build(e.Venue, chainID, e.Params)
					if err != nil {
						return nil, fmt.Errorf("portfolio %q: %w", def.Name, err)
					}
					allocation[category][chainID] = append(allocation[category][chainID], Entry{Adapter: adapter, Weight: e.Weight})
				}
			}
		}
		composer, err := New(def.Name, allocation, weights)
		if err != nil {
			return nil, err
		}
		if opts.Swapper != nil {
			composer.WithSwapper(opts.Swapper)
		}
		if opts.Bridge != nil {
			composer.WithBridge(opts.Bridge, opts.Tokens)
		} else if opts.Tokens != nil {
			composer.tokens = opts.Tokens
		}
		cat.composers[def.Name] = composer
	}

	logrus.WithFields(logrus.Fields{
		"portfolios": len(cat.composers),
	}).Debug("Portfolio catalog loaded")
	return cat, nil
}

// Get returns the named composer
func (c *Catalog) Get(name string) (*Composer, error) {
	if comp, ok := c.composers[name]; ok {
		return comp, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPortfolio, name)
}

// Names lists the catalog's portfolio names in order
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.composers))
	for name := range c.composers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
