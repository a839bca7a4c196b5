// Package cache stores client portfolio snapshots as timestamped JSON objects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Folder is the object prefix every entry lives under
const Folder = "portfolio-cache"

// ErrNotFound is returned when a key has no entries
var ErrNotFound = errors.New("cache not found")

// Entry is the stored document
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Store keeps every write and returns the newest one per key
type Store interface {
	Put(ctx context.Context, key string, e Entry) error
	Latest(ctx context.Context, key string) (Entry, error)
}

// ObjectName is "portfolio-cache/<key>-<timestamp>.json"
func ObjectName(key string, ts int64) string {
	return fmt.Sprintf("%s/%s-%d.json", Folder, key, ts)
}

func prefix(key string) string {
	return Folder + "/" + key + "-"
}

// timestampOf parses the timestamp from an object name written for key
func timestampOf(key, name string) (int64, bool) {
	rest := strings.TrimPrefix(name, prefix(key))
	if rest == name || !strings.HasSuffix(rest, ".json") {
		return 0, false
	}
	ts, err := strconv.ParseInt(strings.TrimSuffix(rest, ".json"), 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// newest picks the object with the highest timestamp for key
func newest(key string, names []string) (string, bool) {
	var (
		best   string
		bestTS int64
		found  bool
	)
	for _, name := range names {
		ts, ok := timestampOf(key, name)
		if !ok {
			continue
		}
		if !found || ts > bestTS {
			best, bestTS, found = name, ts, true
		}
	}
	return best, found
}

// ValidKey rejects keys that would escape the cache folder
func ValidKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, "/\\") && key != "." && key != ".."
}

// Memory is an in-process Store for tests and local runs
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty store
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

// Put stores e under its timestamped name
func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[ObjectName(key, e.Timestamp)] = raw
	return nil
}

// Latest returns the newest entry for key
func (m *Memory) Latest(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	name, ok := newest(key, names)
	if !ok {
		return Entry{}, ErrNotFound
	}
	var e Entry
	if err := json.Unmarshal(m.objects[name], &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, nil
}
