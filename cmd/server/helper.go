package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/api"
	"github.com/yourorg/vault-bff/internal/bridge"
	"github.com/yourorg/vault-bff/internal/cache"
	"github.com/yourorg/vault-bff/internal/chain"
	"github.com/yourorg/vault-bff/internal/circuitbreaker"
	"github.com/yourorg/vault-bff/internal/config"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/portfolio"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/security"
	"github.com/yourorg/vault-bff/internal/store"
	"github.com/yourorg/vault-bff/internal/swap"
	"github.com/yourorg/vault-bff/internal/telemetry"
	"golang.org/x/time/rate"
)

// buildServer wires every collaborator. The returned func releases them in reverse order.
func buildServer(ctx context.Context, cfg config.Config, metrics *api.Metrics) (*api.Server, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*api.Server, func(), error) {
		cleanup()
		return nil, nil, err
	}

	reg, err := registry.LoadFile(cfg.TokenRegistry)
	if err != nil {
		return fail(err)
	}

	endpoints := cfg.RPCEndpoints()
	if len(endpoints) == 0 {
		logrus.Warn("No RPC_URL_<CHAIN> configured; on-chain reads will fail")
	}
	reader, closeRPC, err := chain.Dial(ctx, endpoints)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeRPC)

	httpClient := fetch.DefaultHTTPClient()
	breakers := newBreakers(cfg)
	router := newSwapRouter(cfg, httpClient, breakers, metrics)

	factory := portfolio.Factory{
		Deps:      protocol.Deps{Reader: reader, Registry: reg},
		Pendle:    fetch.NewPendleClient(cfg.PendleURL, httpClient),
		Campaigns: fetch.NewCamelotClient(cfg.CamelotURL, httpClient),
	}
	catalog, err := portfolio.LoadCatalog(cfg.PortfolioConfig, factory, portfolio.Options{
		Swapper: router,
		Bridge:  bridge.NewAcross(cfg.AcrossURL, httpClient, reg),
		Tokens:  reg,
	})
	if err != nil {
		return fail(err)
	}

	prices, err := fetch.NewPriceFeed(cfg.PriceURL, cfg.PriceAPIKey, cfg.PriceTTL, httpClient)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, prices.Close)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() {
		if err := st.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close store")
		}
	})

	objects, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeCache)

	signer, err := security.NewSigner(cfg.SigningKey, cfg.SignatureValidity)
	if err != nil {
		return fail(err)
	}

	exporter := telemetry.NewExporter(telemetry.Config{
		Enabled:        cfg.TelemetryURL != "",
		BatchSize:      cfg.TelemetryBatch,
		ExportInterval: cfg.TelemetryInterval,
		WebhookURL:     cfg.TelemetryURL,
		WebhookAPIKey:  cfg.TelemetryAPIKey,
	}, httpClient)
	closers = append(closers, exporter.Stop)

	server := api.New(api.Deps{
		Portfolios: catalog,
		Tokens:     reg,
		Prices:     prices,
		Balances:   fetch.NewDeBankClient(cfg.DeBankURL, cfg.DeBankAccessKey, httpClient),
		Store:      st,
		Cache:      objects,
		Signer:     signer,
		Telemetry:  exporter,
		Breakers:   router.Breakers(),
		Limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		Metrics:    metrics,
		Timeout:    cfg.RequestTimeout,
	})
	return server, cleanup, nil
}

// newBreakers builds one breaker per swap provider with the configured thresholds
func newBreakers(cfg config.Config) *circuitbreaker.Group {
	return circuitbreaker.NewGroup(func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.New(name, circuitbreaker.Thresholds{
			MaxConsecutiveFailures: cfg.MaxProviderFailures,
		}).
			WithResetDelay(cfg.CircuitResetDelay).
			WithTripCallback(func(name, reason string) {
				logrus.WithFields(logrus.Fields{
					"provider": name,
					"reason":   reason,
				}).Warn("Circuit breaker tripped")
			})
	})
}

// newSwapRouter enables 1inch and 0x when their API keys are set; ParaSwap needs none
func newSwapRouter(cfg config.Config, httpClient *http.Client, breakers *circuitbreaker.Group, metrics *api.Metrics) *swap.Router {
	var providers []swap.Provider
	if cfg.OneInchAPIKey != "" {
		providers = append(providers, swap.NewOneInchClient(cfg.OneInchURL, cfg.OneInchAPIKey, httpClient))
	}
	if cfg.ZeroXAPIKey != "" {
		providers = append(providers, swap.NewZeroXClient(cfg.ZeroXURL, cfg.ZeroXAPIKey, httpClient))
	}
	providers = append(providers, swap.NewParaSwapClient(cfg.ParaSwapURL, httpClient))

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logrus.WithFields(logrus.Fields{"providers": names}).Info("Swap router configured")

	return swap.NewRouter(providers...).
		WithBreakers(breakers).
		WithTestMode(cfg.TestMode).
		WithMaxPriceImpact(cfg.MaxPriceImpact).
		WithErrorCounter(metrics.ProviderErrs)
}

// openStore uses Postgres when DATABASE_URL is set and an in-process store otherwise
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logrus.Warn("DATABASE_URL not set; subscriptions and snapshots are kept in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return pg, nil
}

func openCache(ctx context.Context, cfg config.Config) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case "gcs":
		gcs, err := cache.NewGCS(ctx, cfg.CacheBucket, cfg.CacheCredentials)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() {
			if err := gcs.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close cache client")
			}
		}, nil
	case "memory", "":
		return cache.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported CACHE_BACKEND %q", cfg.CacheBackend)
}
