package protocol

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/progress"
)

// PositionCache memoizes a position identifier per owner.
// A cached id that no longer resolves must be dropped with Invalidate.
type PositionCache struct {
	mu  sync.RWMutex
	ids map[common.Address]*big.Int
}

// NewPositionCache returns an empty cache
func NewPositionCache() *PositionCache {
	return &PositionCache{ids: make(map[common.Address]*big.Int)}
}

// Get returns the cached id for owner
func (c *PositionCache) Get(owner common.Address) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[owner]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(id), true
}

// Set stores id for owner. Zero or nil ids are not cached.
func (c *PositionCache) Set(owner common.Address, id *big.Int) {
	if id == nil || id.Sign() == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[owner] = new(big.Int).Set(id)
}

// Invalidate drops the cached id for owner
func (c *PositionCache) Invalidate(owner common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, owner)
}

// ReportTradingLoss sends a step's USD delta to sink
func ReportTradingLoss(sink progress.Sink, key string, deltaUSD float64) {
	logrus.WithFields(logrus.Fields{
		"step":      key,
		"delta_usd": deltaUSD,
	}).Debug("Trading loss reported")
	progress.Or(sink)(key, deltaUSD)
}
