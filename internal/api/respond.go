package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/aggregate"
	"github.com/yourorg/vault-bff/internal/cache"
	"github.com/yourorg/vault-bff/internal/portfolio"
	"github.com/yourorg/vault-bff/internal/protocol"
	"github.com/yourorg/vault-bff/internal/registry"
	"github.com/yourorg/vault-bff/internal/store"
	"github.com/yourorg/vault-bff/internal/swap"
	"github.com/yourorg/vault-bff/internal/validation"
)

// maxBodyBytes bounds request bodies, portfolio cache documents included
const maxBodyBytes = 4 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, statusCode int, msg string) {
	logrus.WithFields(logrus.Fields{
		"status":     statusCode,
		"path":       r.URL.Path,
		"request_id": RequestID(r.Context()),
	}).Warn(msg)
	writeJSON(w, statusCode, ErrorResponse{Status: "error", Error: msg, RequestID: RequestID(r.Context())})
}

// fail maps err onto a status code and writes it
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.errorResponse(w, r, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, portfolio.ErrInvalidWeights),
		errors.Is(err, registry.ErrUnknownToken),
		errors.Is(err, protocol.ErrInvalidPercentage),
		errors.Is(err, validation.ErrInvalidAddress),
		errors.Is(err, validation.ErrInvalidSlippage),
		errors.Is(err, validation.ErrInvalidPercentage),
		errors.Is(err, validation.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidReferral):
		return http.StatusBadRequest
	case errors.Is(err, portfolio.ErrUnknownPortfolio),
		errors.Is(err, cache.ErrNotFound),
		errors.Is(err, aggregate.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, swap.ErrPriceImpact):
		return http.StatusUnprocessableEntity
	case errors.Is(err, swap.ErrNoQuotes):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return badRequest("Invalid request body: %v", err)
	}
	return nil
}
