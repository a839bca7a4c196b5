package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/yourorg/vault-bff/internal/cache"
)

// CacheBody is a portfolio cache write. A zero Timestamp is set to now.
type CacheBody struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func (s *Server) handlePutCache(w http.ResponseWriter, r *http.Request) {
	var body CacheBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Key == "" || len(body.Data) == 0 || string(body.Data) == "null" {
		s.fail(w, r, badRequest("Missing key or data"))
		return
	}
	if !cache.ValidKey(body.Key) {
		s.fail(w, r, badRequest("invalid cache key %q", body.Key))
		return
	}
	if body.Timestamp == 0 {
		body.Timestamp = s.deps.Now().Unix()
	}
	if err := s.deps.Cache.Put(r.Context(), body.Key, cache.Entry{Data: body.Data, Timestamp: body.Timestamp}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Cache written successfully",
		"object":  cache.ObjectName(body.Key, body.Timestamp),
	})
}

func (s *Server) handleGetCache(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !cache.ValidKey(key) {
		s.fail(w, r, badRequest("invalid cache key %q", key))
		return
	}
	entry, err := s.deps.Cache.Latest(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
