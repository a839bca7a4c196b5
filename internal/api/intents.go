package api

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/aggregate"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/portfolio"
	"github.com/yourorg/vault-bff/internal/progress"
	"github.com/yourorg/vault-bff/internal/types"
	"github.com/yourorg/vault-bff/internal/validation"
)

// PortfolioView describes a catalog entry
type PortfolioView struct {
	Name     string             `json:"name"`
	Weights  map[string]float64 `json:"weights"`
	Chains   []string           `json:"chains"`
	Adapters []string           `json:"adapters"`
}

func viewOf(c *portfolio.Composer) PortfolioView {
	v := PortfolioView{Name: c.Name(), Weights: c.Weights()}
	for _, chain := range c.Chains() {
		v.Chains = append(v.Chains, chain.String())
	}
	for _, a := range c.Adapters() {
		v.Adapters = append(v.Adapters, a.UniqueID())
	}
	return v
}

// ZapInBody is the zap-in request document. Prices overrides the price feed when set.
type ZapInBody struct {
	Owner         string             `json:"owner"`
	Chain         string             `json:"chain"`
	Token         string             `json:"token"`
	Amount        string             `json:"amount"`
	Slippage      float64            `json:"slippage"`
	OnlyThisChain bool               `json:"onlyThisChain"`
	Prices        map[string]float64 `json:"prices,omitempty"`
}

// ZapOutBody is the zap-out request document
type ZapOutBody struct {
	Owner      string             `json:"owner"`
	Chain      string             `json:"chain"`
	Percentage float64            `json:"percentage"`
	Token      string             `json:"token"`
	Slippage   float64            `json:"slippage"`
	Prices     map[string]float64 `json:"prices,omitempty"`
}

// ClaimBody is the claim request document. Rewards are swapped into Token when it is set.
type ClaimBody struct {
	Owner    string             `json:"owner"`
	Chain    string             `json:"chain"`
	Token    string             `json:"token,omitempty"`
	Slippage float64            `json:"slippage"`
	Prices   map[string]float64 `json:"prices,omitempty"`
}

// IntentResponse is the signed payload of every composed intent
type IntentResponse struct {
	RequestID      string              `json:"requestId"`
	Portfolio      string              `json:"portfolio"`
	Intent         string              `json:"intent"`
	Chain          types.ChainID       `json:"chainId"`
	Transactions   []model.Transaction `json:"transactions"`
	TradingLossUSD float64             `json:"tradingLossUsd"`
	Steps          []progress.Event    `json:"steps"`
	Rewards        model.Rewards       `json:"rewards,omitempty"`
}

func parseChain(raw string) (types.ChainID, error) {
	id, err := types.ChainByName(raw)
	if err != nil {
		return 0, badRequest("%v", err)
	}
	return id, nil
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q is not a positive integer amount", validation.ErrInvalidAmount, raw)
	}
	return v, nil
}

func (s *Server) composer(r *http.Request) (*portfolio.Composer, error) {
	return s.deps.Portfolios.Get(mux.Vars(r)["name"])
}

func (s *Server) owner(r *http.Request) (common.Address, error) {
	return validation.Address(r.URL.Query().Get("owner"))
}

// priceTable uses the caller's prices when given, otherwise queries the feed
// for every registry token on the portfolio's chains and the request chain
func (s *Server) priceTable(ctx context.Context, c *portfolio.Composer, chain types.ChainID, override map[string]float64) (model.PriceTable, error) {
	if len(override) > 0 {
		table := make(model.PriceTable, len(override))
		for sym, v := range override {
			table[strings.ToLower(sym)] = v
		}
		return table, nil
	}
	if s.deps.Prices == nil {
		return nil, fmt.Errorf("no price source configured")
	}
	seen := map[types.ChainID]bool{}
	var tokens []model.TokenMetadata
	for _, id := range append(c.Chains(), chain) {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		tokens = append(tokens, s.deps.Tokens.Tokens(id)...)
	}
	prices, err := s.deps.Prices.Prices(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	return prices, nil
}

// progressSink records steps for the response and forwards them to telemetry
func (s *Server) progressSink(r *http.Request, c *portfolio.Composer) (*progress.Recorder, progress.Sink) {
	rec := progress.NewRecorder()
	return rec, progress.Tee(rec.Sink(), s.deps.Telemetry.Sink(RequestID(r.Context()), c.Name()))
}

func (s *Server) respondIntent(w http.ResponseWriter, r *http.Request, resp IntentResponse, rec *progress.Recorder) {
	resp.RequestID = RequestID(r.Context())
	resp.TradingLossUSD = rec.Total()
	resp.Steps = rec.Events()
	if resp.Transactions == nil {
		resp.Transactions = []model.Transaction{}
	}
	if m := s.deps.Metrics; m != nil {
		m.IntentTxCount.WithLabelValues(resp.Intent).Observe(float64(len(resp.Transactions)))
	}
	signed, err := s.deps.Signer.Sign(resp)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"portfolio":    resp.Portfolio,
		"intent":       resp.Intent,
		"transactions": len(resp.Transactions),
		"request_id":   resp.RequestID,
		"signed":       signed.Signature != nil,
	}).Info("Intent composed")
	writeJSON(w, http.StatusOK, signed)
}

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	views := []PortfolioView{}
	for _, name := range s.deps.Portfolios.Names() {
		c, err := s.deps.Portfolios.Get(name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		views = append(views, viewOf(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	c, err := s.composer(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) handleZapIn(w http.ResponseWriter, r *http.Request) {
	c, err := s.composer(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body ZapInBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := s.zapInRequest(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()
	if req.Prices, err = s.priceTable(ctx, c, req.Chain, body.Prices); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, sink := s.progressSink(r, c)
	req.Sink = sink

	txs, err := c.ZapIn(ctx, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondIntent(w, r, IntentResponse{Portfolio: c.Name(), Intent: "zapIn", Chain: req.Chain, Transactions: txs}, rec)
}

func (s *Server) zapInRequest(body ZapInBody) (portfolio.ZapInRequest, error) {
	owner, err := validation.Address(body.Owner)
	if err != nil {
		return portfolio.ZapInRequest{}, err
	}
	chainID, err := parseChain(body.Chain)
	if err != nil {
		return portfolio.ZapInRequest{}, err
	}
	if err := validation.Slippage(body.Slippage); err != nil {
		return portfolio.ZapInRequest{}, err
	}
	input, err := s.deps.Tokens.Token(chainID, body.Token)
	if err != nil {
		return portfolio.ZapInRequest{}, err
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		return portfolio.ZapInRequest{}, err
	}
	return portfolio.ZapInRequest{
		Owner:         owner,
		Chain:         chainID,
		Input:         input,
		Amount:        amount,
		Slippage:      body.Slippage,
		OnlyThisChain: body.OnlyThisChain,
	}, nil
}

func (s *Server) handleZapOut(w http.ResponseWriter, r *http.Request) {
	c, err := s.composer(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body ZapOutBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := validation.Address(body.Owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	chainID, err := parseChain(body.Chain)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validation.Percentage(body.Percentage); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validation.Slippage(body.Slippage); err != nil {
		s.fail(w, r, err)
		return
	}
	output, err := s.deps.Tokens.Token(chainID, body.Token)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()
	prices, err := s.priceTable(ctx, c, chainID, body.Prices)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, sink := s.progressSink(r, c)
	txs, err := c.ZapOut(ctx, portfolio.ZapOutRequest{
		Owner:      owner,
		Chain:      chainID,
		Percentage: body.Percentage,
		Output:     output,
		Prices:     prices,
		Slippage:   body.Slippage,
		Sink:       sink,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondIntent(w, r, IntentResponse{Portfolio: c.Name(), Intent: "zapOut", Chain: chainID, Transactions: txs}, rec)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	c, err := s.composer(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body ClaimBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := validation.Address(body.Owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	chainID, err := parseChain(body.Chain)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validation.Slippage(body.Slippage); err != nil {
		s.fail(w, r, err)
		return
	}
	var output *model.TokenMetadata
	if body.Token != "" {
		tok, err := s.deps.Tokens.Token(chainID, body.Token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		output = &tok
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()
	prices, err := s.priceTable(ctx, c, chainID, body.Prices)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, sink := s.progressSink(r, c)
	res, err := c.Claim(ctx, portfolio.ClaimRequest{
		Owner:    owner,
		Chain:    chainID,
		Prices:   prices,
		Slippage: body.Slippage,
		Output:   output,
		Sink:     sink,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondIntent(w, r, IntentResponse{
		Portfolio:    c.Name(),
		Intent:       "claim",
		Chain:        chainID,
		Transactions: res.Transactions,
		Rewards:      res.Rewards,
	}, rec)
}

// RewardsResponse lists pending rewards with their USD summary
type RewardsResponse struct {
	Rewards model.Rewards           `json:"rewards"`
	Summary aggregate.RewardSummary `json:"summary"`
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	c, err := s.composer(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := s.owner(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()
	prices, err := s.priceTable(ctx, c, 0, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rewards, err := c.PendingRewards(ctx, owner, prices, s.deps.Telemetry.Sink(RequestID(r.Context()), c.Name()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RewardsResponse{Rewards: rewards, Summary: aggregate.Summarize(rewards)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	c, err := s.composer(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := s.owner(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()
	prices, err := s.priceTable(ctx, c, 0, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	balance, err := c.USDBalance(ctx, owner, prices)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleLockUp(w http.ResponseWriter, r *http.Request) {
	c, err := s.composer(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := s.owner(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()
	lock, err := c.LockUpPeriod(ctx, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lockUpSeconds": int64(lock.Seconds()),
		"lockUp":        lock.String(),
	})
}
