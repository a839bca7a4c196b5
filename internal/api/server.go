// Package api exposes the portfolio composer, account bookkeeping and the
// portfolio cache over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/cache"
	"github.com/yourorg/vault-bff/internal/circuitbreaker"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/portfolio"
	"github.com/yourorg/vault-bff/internal/security"
	"github.com/yourorg/vault-bff/internal/store"
	"github.com/yourorg/vault-bff/internal/telemetry"
	"github.com/yourorg/vault-bff/internal/types"
	"golang.org/x/time/rate"
)

// Version is reported by /health and /status
const Version = "1.0.0"

// Portfolios resolves named composers
type Portfolios interface {
	Get(name string) (*portfolio.Composer, error)
	Names() []string
}

// Tokens resolves registry tokens
type Tokens interface {
	Token(chain types.ChainID, symbolOrAddress string) (model.TokenMetadata, error)
	Tokens(chain types.ChainID) []model.TokenMetadata
}

// PriceSource builds a price table for a token list
type PriceSource interface {
	Prices(ctx context.Context, tokens []model.TokenMetadata) (model.PriceTable, error)
}

// BalanceSource reports an address's total USD balance across chains
type BalanceSource interface {
	TotalBalance(ctx context.Context, address common.Address) (float64, error)
}

// Deps are the collaborators of a Server. Signer, Telemetry, Breakers,
// Limiter and Metrics are optional.
type Deps struct {
	Portfolios Portfolios
	Tokens     Tokens
	Prices     PriceSource
	Balances   BalanceSource
	Store      store.Store
	Cache      cache.Store
	Signer     *security.Signer
	Telemetry  *telemetry.Exporter
	Breakers   *circuitbreaker.Group
	Limiter    *rate.Limiter
	Metrics    *Metrics
	Gatherer   prometheus.Gatherer
	Timeout    time.Duration
	Now        func() time.Time
}

// Server handles API requests
type Server struct {
	deps    Deps
	router  *mux.Router
	started time.Time
}

// New builds the router. A zero Timeout defaults to 30 seconds.
func New(deps Deps) *Server {
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{deps: deps, router: mux.NewRouter(), started: deps.Now()}
	s.setupRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/circuit", s.handleCircuit).Methods("GET", "POST")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/portfolios", s.handleListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/{name}", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{name}/zap-in", s.handleZapIn).Methods("POST")
	api.HandleFunc("/portfolios/{name}/zap-out", s.handleZapOut).Methods("POST")
	api.HandleFunc("/portfolios/{name}/claim", s.handleClaim).Methods("POST")
	api.HandleFunc("/portfolios/{name}/rewards", s.handleRewards).Methods("GET")
	api.HandleFunc("/portfolios/{name}/balance", s.handleBalance).Methods("GET")
	api.HandleFunc("/portfolios/{name}/lockup", s.handleLockUp).Methods("GET")

	api.HandleFunc("/subscriptions", s.handleSubscribe).Methods("POST")
	api.HandleFunc("/subscriptions", s.handleSubscribed).Methods("GET")
	api.HandleFunc("/referrals", s.handleRefer).Methods("POST")
	api.HandleFunc("/referrals/{address}", s.handleReferrals).Methods("GET")
	api.HandleFunc("/balances/{address}", s.handleSnapshots).Methods("GET")
	api.HandleFunc("/balances/{address}/snapshot", s.handleSnapshot).Methods("POST")
	api.HandleFunc("/balances/{address}/pnl", s.handlePnL).Methods("GET")

	api.HandleFunc("/portfolio-cache", s.handlePutCache).Methods("POST")
	api.HandleFunc("/portfolio-cache/{key}", s.handleGetCache).Methods("GET")
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.deps.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("Server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   Version,
		"timestamp": s.deps.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "operational",
		"uptime":    s.deps.Now().Sub(s.started).String(),
		"version":   Version,
		"telemetry": s.deps.Telemetry.Status(),
	}
	if s.deps.Portfolios != nil {
		status["portfolios"] = len(s.deps.Portfolios.Names())
	}
	if s.deps.Signer != nil {
		status["signer"] = s.deps.Signer.Address().Hex()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCircuit lists swap provider breakers. POST ?provider=<name>&action=reset closes one.
func (s *Server) handleCircuit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Breakers == nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "Circuit breaker not enabled")
		return
	}
	response := map[string]interface{}{}
	if r.Method == http.MethodPost {
		provider := r.URL.Query().Get("provider")
		if provider == "" || r.URL.Query().Get("action") != "reset" {
			s.errorResponse(w, r, http.StatusBadRequest, "provider and action=reset are required")
			return
		}
		s.deps.Breakers.Get(provider).Reset()
		response["message"] = "Circuit breaker reset: " + provider
	}
	states := map[string]string{}
	for name, st := range s.deps.Breakers.States() {
		states[name] = st.String()
	}
	response["providers"] = states
	writeJSON(w, http.StatusOK, response)
}
