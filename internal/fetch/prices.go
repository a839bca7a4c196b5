package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/model"
)

// DefaultPriceURL is the CoinGecko simple price API
const DefaultPriceURL = "https://api.coingecko.com/api/v3"

// PriceFeed builds per-request price tables from CoinGecko ids, caching each
// price for a short TTL.
type PriceFeed struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *ristretto.Cache
	ttl        time.Duration
}

// NewPriceFeed creates a price feed. A zero ttl defaults to one minute.
func NewPriceFeed(baseURL, apiKey string, ttl time.Duration, httpClient *http.Client) (*PriceFeed, error) {
	if baseURL == "" {
		baseURL = DefaultPriceURL
	}
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating price cache: %w", err)
	}
	return &PriceFeed{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		cache:      cache,
		ttl:        ttl,
	}, nil
}

// Close releases the cache
func (f *PriceFeed) Close() {
	f.cache.Close()
}

// Prices returns a table keyed by lower-case token symbol. Tokens without a
// price id are skipped; ids the API does not know are left out.
func (f *PriceFeed) Prices(ctx context.Context, tokens []model.TokenMetadata) (model.PriceTable, error) {
	table := model.PriceTable{}
	bySymbol := map[string]string{}
	var missing []string
	seen := map[string]bool{}

	for _, tok := range tokens {
		if tok.PriceID == "" {
			continue
		}
		bySymbol[tok.Key()] = tok.PriceID
		if v, ok := f.cache.Get(tok.PriceID); ok {
			table[tok.Key()] = v.(float64)
			continue
		}
		if !seen[tok.PriceID] {
			seen[tok.PriceID] = true
			missing = append(missing, tok.PriceID)
		}
	}

	if len(missing) > 0 {
		fetched, err := f.fetch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, price := range fetched {
			f.cache.SetWithTTL(id, price, 1, f.ttl)
		}
		f.cache.Wait()
		for symbol, id := range bySymbol {
			if price, ok := fetched[id]; ok {
				table[symbol] = price
			}
		}
		logrus.WithFields(logrus.Fields{
			"requested": len(missing),
			"received":  len(fetched),
		}).Debug("Refreshed token prices")
	}
	return table, nil
}

func (f *PriceFeed) fetch(ctx context.Context, ids []string) (map[string]float64, error) {
	sort.Strings(ids)
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")

	headers := map[string]string{}
	if f.apiKey != "" {
		headers["x-cg-pro-api-key"] = f.apiKey
	}

	var resp map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := GetJSON(ctx, f.httpClient, f.baseURL+"/simple/price?"+q.Encode(), headers, &resp); err != nil {
		return nil, fmt.Errorf("fetching prices: %w", err)
	}
	out := make(map[string]float64, len(resp))
	for id, v := range resp {
		out[id] = v.USD
	}
	return out, nil
}
