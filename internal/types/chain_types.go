// Package types contains shared type definitions used across multiple packages
package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ChainID identifies an EVM network
type ChainID uint64

// Supported EVM networks
const (
	ChainEthereum ChainID = 1
	ChainOptimism ChainID = 10
	ChainBSC      ChainID = 56
	ChainPolygon  ChainID = 137
	ChainBase     ChainID = 8453
	ChainArbitrum ChainID = 42161
	ChainLinea    ChainID = 59144
)

var chainNames = map[ChainID]string{
	ChainEthereum: "ethereum",
	ChainOptimism: "optimism",
	ChainBSC:      "bsc",
	ChainPolygon:  "polygon",
	ChainBase:     "base",
	ChainArbitrum: "arbitrum",
	ChainLinea:    "linea",
}

// aliases seen in wallet and bridge metadata
var chainAliases = map[string]ChainID{
	"arbitrum one": ChainArbitrum,
	"arb":          ChainArbitrum,
	"op":           ChainOptimism,
	"op mainnet":   ChainOptimism,
	"eth":          ChainEthereum,
	"mainnet":      ChainEthereum,
	"binance":      ChainBSC,
}

// String returns the canonical lower-case network name
func (c ChainID) String() string {
	if name, ok := chainNames[c]; ok {
		return name
	}
	return strconv.FormatUint(uint64(c), 10)
}

// Known reports whether the chain is one of the supported networks
func (c ChainID) Known() bool {
	_, ok := chainNames[c]
	return ok
}

// ChainByName resolves a network name, alias or numeric id
func ChainByName(name string) (ChainID, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for id, n := range chainNames {
		if n == key {
			return id, nil
		}
	}
	if id, ok := chainAliases[key]; ok {
		return id, nil
	}
	if n, err := strconv.ParseUint(key, 10, 64); err == nil && ChainID(n).Known() {
		return ChainID(n), nil
	}
	return 0, fmt.Errorf("unsupported chain %q", name)
}

// UnmarshalYAML accepts either a chain name or its numeric id
func (c *ChainID) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	id, err := ChainByName(raw)
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// SupportedChains lists the supported networks in id order
func SupportedChains() []ChainID {
	out := make([]ChainID, 0, len(chainNames))
	for id := range chainNames {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ChainConfig holds connection settings for a specific network
type ChainConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	RPCEndpoint string `json:"rpc_endpoint" yaml:"rpc_endpoint"`
}
