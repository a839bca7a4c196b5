package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/aggregate"
	"github.com/yourorg/vault-bff/internal/model"
	"github.com/yourorg/vault-bff/internal/store"
	"github.com/yourorg/vault-bff/internal/validation"
)

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body store.Subscription
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := validation.Address(body.Address); err != nil {
		s.fail(w, r, err)
		return
	}
	if !strings.Contains(body.Email, "@") {
		s.fail(w, r, badRequest("invalid email %q", body.Email))
		return
	}
	if err := s.deps.Store.Subscribe(r.Context(), body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "Subscribed"})
}

func (s *Server) handleSubscribed(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if _, err := validation.Address(address); err != nil {
		s.fail(w, r, err)
		return
	}
	ok, err := s.deps.Store.Subscribed(r.Context(), address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"subscribed": ok})
}

func (s *Server) handleRefer(w http.ResponseWriter, r *http.Request) {
	var body store.Referral
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	for _, addr := range []string{body.Referrer, body.Referee} {
		if _, err := validation.Address(addr); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if err := s.deps.Store.Refer(r.Context(), body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "Referral recorded"})
}

func (s *Server) handleReferrals(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if _, err := validation.Address(address); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.deps.Store.Referrals(r.Context(), address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list.Referees == nil {
		list.Referees = []store.Referral{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleSnapshot records the address's current DeBank balance
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	address, err := validation.Address(mux.Vars(r)["address"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.deps.Balances == nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "Balance source not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Timeout)
	defer cancel()
	usd, err := s.deps.Balances.TotalBalance(ctx, address)
	if err != nil {
		s.fail(w, r, fmt.Errorf("fetch balance: %w", err))
		return
	}
	snap := model.BalanceSnapshot{
		Address:  strings.ToLower(address.Hex()),
		USDValue: usd,
		TakenAt:  s.deps.Now().UTC(),
	}
	if err := s.deps.Store.AddSnapshot(ctx, snap); err != nil {
		s.fail(w, r, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"address": snap.Address,
		"usd":     usd,
	}).Info("Balance snapshot stored")
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) snapshots(r *http.Request) (string, []model.BalanceSnapshot, error) {
	address := mux.Vars(r)["address"]
	if _, err := validation.Address(address); err != nil {
		return "", nil, err
	}
	snaps, err := s.deps.Store.Snapshots(r.Context(), address)
	if err != nil {
		return "", nil, err
	}
	return address, snaps, nil
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	address, snaps, err := s.snapshots(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := aggregate.Newest(snaps, address)
	if out == nil {
		out = []model.BalanceSnapshot{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	address, snaps, err := s.snapshots(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := aggregate.PnL(snaps, address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
