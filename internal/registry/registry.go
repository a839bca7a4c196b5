// Package registry resolves token metadata and well-known contract addresses per chain.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/types"
	"gopkg.in/yaml.v3"
)

//go:embed tokens.yaml
var defaultTokens []byte

// Well-known contract names
const (
	ConvexBooster     = "convex_booster"
	EquilibriaBooster = "equilibria_booster"
	PendleRouter      = "pendle_router"
	EqbZap            = "eqb_zap"
	CamelotNFTManager = "camelot_nft_manager"
	AerodromeRouter   = "aerodrome_router"
	VelodromeRouter   = "velodrome_router"
	AcrossSpokePool   = "across_spoke_pool"
)

var (
	ErrUnknownToken    = errors.New("unknown token")
	ErrUnknownContract = errors.New("unknown contract")
)

type fileFormat struct {
	Chains map[string]struct {
		Tokens    []model.TokenMetadata `yaml:"tokens"`
		Contracts map[string]string     `yaml:"contracts"`
	} `yaml:"chains"`
}

// Registry is read-only after Load and safe for concurrent use
type Registry struct {
	bySymbol  map[types.ChainID]map[string]model.TokenMetadata
	byAddress map[types.ChainID]map[common.Address]model.TokenMetadata
	contracts map[types.ChainID]map[string]common.Address
}

// Default returns the registry compiled into the binary
func Default() (*Registry, error) {
	return Parse(defaultTokens)
}

// LoadFile reads a registry from a YAML file, falling back to the embedded one when path is empty
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token registry: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a registry document from r
func Load(r io.Reader) (*Registry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read token registry: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a registry document
func Parse(raw []byte) (*Registry, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode token registry: %w", err)
	}

	reg := &Registry{
		bySymbol:  make(map[types.ChainID]map[string]model.TokenMetadata),
		byAddress: make(map[types.ChainID]map[common.Address]model.TokenMetadata),
		contracts: make(map[types.ChainID]map[string]common.Address),
	}
	for name, entry := range doc.Chains {
		chain, err := types.ChainByName(name)
		if err != nil {
			return nil, err
		}
		reg.bySymbol[chain] = make(map[string]model.TokenMetadata, len(entry.Tokens))
		reg.byAddress[chain] = make(map[common.Address]model.TokenMetadata, len(entry.Tokens))
		for _, tok := range entry.Tokens {
			if tok.Symbol == "" || tok.Address == (common.Address{}) {
				return nil, fmt.Errorf("token entry on %s is missing symbol or address", chain)
			}
			tok.Chain = chain
			reg.bySymbol[chain][tok.Key()] = tok
			reg.byAddress[chain][tok.Address] = tok
		}
		reg.contracts[chain] = make(map[string]common.Address, len(entry.Contracts))
		for cname, addr := range entry.Contracts {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("contract %s on %s has invalid address %q", cname, chain, addr)
			}
			reg.contracts[chain][strings.ToLower(cname)] = common.HexToAddress(addr)
		}
	}

	logrus.WithFields(logrus.Fields{
		"chains": len(reg.bySymbol),
	}).Debug("Token registry loaded")
	return reg, nil
}

// Token looks up a token by symbol or hex address, case-insensitively
func (r *Registry) Token(chain types.ChainID, symbolOrAddress string) (model.TokenMetadata, error) {
	key := strings.TrimSpace(symbolOrAddress)
	if common.IsHexAddress(key) {
		if tok, ok := r.byAddress[chain][common.HexToAddress(key)]; ok {
			return tok, nil
		}
	} else if tok, ok := r.bySymbol[chain][strings.ToLower(key)]; ok {
		return tok, nil
	}
	return model.TokenMetadata{}, fmt.Errorf("%w: %s on %s", ErrUnknownToken, symbolOrAddress, chain)
}

// TokenByAddress looks up a token by address
func (r *Registry) TokenByAddress(chain types.ChainID, addr common.Address) (model.TokenMetadata, error) {
	if tok, ok := r.byAddress[chain][addr]; ok {
		return tok, nil
	}
	return model.TokenMetadata{}, fmt.Errorf("%w: %s on %s", ErrUnknownToken, addr.Hex(), chain)
}

// Tokens lists every token registered on chain ordered by symbol
func (r *Registry) Tokens(chain types.ChainID) []model.TokenMetadata {
	out := make([]model.TokenMetadata, 0, len(r.bySymbol[chain]))
	for _, tok := range r.bySymbol[chain] {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Contract returns a well-known contract address
func (r *Registry) Contract(chain types.ChainID, name string) (common.Address, error) {
	if addr, ok := r.contracts[chain][strings.ToLower(name)]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("%w: %s on %s", ErrUnknownContract, name, chain)
}

// Chains returns the chains with at least one registered token or contract
func (r *Registry) Chains() []types.ChainID {
	seen := make(map[types.ChainID]struct{})
	for c := range r.bySymbol {
		seen[c] = struct{}{}
	}
	for c := range r.contracts {
		seen[c] = struct{}{}
	}
	out := make([]types.ChainID, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
