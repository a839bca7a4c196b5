package portfolio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/vault-bff/internal/chain/chaintest"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/types"
	"gopkg.in/yaml.v3"
)

func factory(t *testing.T) Factory {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return Factory{
		Deps:   protocol.Deps{Reader: chaintest.New(), Registry: reg},
		Pendle: fetch.NewPendleClient("http://127.0.0.1:1", fetch.DefaultHTTPClient()),
	}
}

func TestDefaultCatalog(t *testing.T) {
	cat, err := DefaultCatalog(factory(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Aerodrome Vault",
		"Camelot Vault",
		"Convex Stablecoin Vault",
		"Equilibria ETH Vault",
		"Yearn Vault",
	}, cat.Names())

	tests := []struct {
		name     string
		uniqueID string
		chain    types.ChainID
	}{
		{name: "Yearn Vault", uniqueID: "arbitrum/yearn/v3/eth", chain: types.ChainArbitrum},
		{name: "Convex Stablecoin Vault", uniqueID: "arbitrum/convex/0/usdc-usdt", chain: types.ChainArbitrum},
		{name: "Equilibria ETH Vault", uniqueID: "arbitrum/equilibria/0/eeth", chain: types.ChainArbitrum},
		{name: "Camelot Vault", uniqueID: "arbitrum/camelot/v3/weth-usdc", chain: types.ChainArbitrum},
		{name: "Aerodrome Vault", uniqueID: "base/aerodrome/v2/weth-usdc", chain: types.ChainBase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := cat.Get(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, comp.Name())
			require.Len(t, comp.Adapters(), 1)
			assert.Equal(t, tt.uniqueID, comp.Adapters()[0].UniqueID())
			assert.Equal(t, []types.ChainID{tt.chain}, comp.Chains())
		})
	}

	_, err = cat.Get("Deprecated Vault")
	assert.True(t, errors.Is(err, ErrUnknownPortfolio))
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown venue",
			doc: `
portfolios:
  - name: Bad
    categories:
      gold:
        weight: 1
        chains:
          arbitrum:
            - {venue: moonwell, weight: 1}
`,
		},
		{
			name: "weights off",
			doc: `
portfolios:
  - name: Bad
    categories:
      gold:
        weight: 0.9
        chains:
          arbitrum:
            - venue: yearn
              weight: 1
              params: {vault: "0x0000000000000000000000000000000000007a01", asset: weth}
`,
		},
		{
			name: "unknown chain",
			doc: `
portfolios:
  - name: Bad
    categories:
      gold:
        weight: 1
        chains:
          solana:
            - {venue: yearn, weight: 1}
`,
		},
		{
			name: "missing params",
			doc: `
portfolios:
  - name: Bad
    categories:
      gold:
        weight: 1
        chains:
          arbitrum:
            - {venue: convex, weight: 1}
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc), factory(t), Options{})
			assert.Error(t, err)
		})
	}
}

func TestFactoryAerodromeDefaultsProtocol(t *testing.T) {
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`
pool: "0xcdac0d6c6c59727a65f871236188350531885c43"
gauge: "0x519bbd1dd8c6a94c46080e24f316c14ee758c025"
lp_tokens: [weth, usdc]
`), &node))
	a, err := factory(t).Build("aerodrome", types.ChainBase, *node.Content[0])
	require.NoError(t, err)
	assert.Equal(t, "aerodrome", a.Name())
}
