// Package chain packs and unpacks contract calls and builds unsigned transactions.
package chain

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/*.json
var abiFS embed.FS

// ABI names, one per embedded abi/<name>.json
const (
	ERC20                = "erc20"
	ERC4626              = "erc4626"
	CurvePool            = "curve_pool"
	ConvexBooster        = "convex_booster"
	ConvexRewardPool     = "convex_reward_pool"
	VelodromeRouter      = "velodrome_router"
	VelodromePool        = "velodrome_pool"
	VelodromeGauge       = "velodrome_gauge"
	CamelotNFTManager    = "camelot_nft_manager"
	AlgebraPool          = "algebra_pool"
	CamelotDistributor   = "camelot_distributor"
	XGrail               = "xgrail"
	EquilibriaBooster    = "equilibria_booster"
	EquilibriaRewardPool = "equilibria_reward_pool"
	EqbMinter            = "eqb_minter"
	EqbZap               = "eqb_zap"
	XEqb                 = "xeqb"
	AcrossSpokePool      = "across_spoke_pool"
)

var abis = mustLoadABIs()

func mustLoadABIs() map[string]abi.ABI {
	entries, err := abiFS.ReadDir("abi")
	if err != nil {
		panic(err)
	}
	out := make(map[string]abi.ABI, len(entries))
	for _, e := range entries {
		raw, err := abiFS.ReadFile(path.Join("abi", e.Name()))
		if err != nil {
			panic(err)
		}
		parsed, err := abi.JSON(bytes.NewReader(raw))
		if err != nil {
			panic(fmt.Sprintf("parse abi %s: %v", e.Name(), err))
		}
		out[strings.TrimSuffix(e.Name(), ".json")] = parsed
	}
	return out
}

// ABI returns a parsed contract ABI by name
func ABI(name string) (abi.ABI, error) {
	a, ok := abis[name]
	if !ok {
		return abi.ABI{}, fmt.Errorf("unknown abi %q", name)
	}
	return a, nil
}

// Pack encodes a method call for the named ABI
func Pack(abiName, method string, args ...interface{}) ([]byte, error) {
	a, err := ABI(abiName)
	if err != nil {
		return nil, err
	}
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", abiName, method, err)
	}
	return data, nil
}

// Unpack decodes return data of a method call
func Unpack(abiName, method string, data []byte) (Result, error) {
	a, err := ABI(abiName)
	if err != nil {
		return nil, err
	}
	vals, err := a.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s.%s: %w", abiName, method, err)
	}
	return Result(vals), nil
}
