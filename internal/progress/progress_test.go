package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderAndTee(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	sink := Tee(a.Sink(), nil, b.Sink())

	sink("convex-arbitrum-deposit", 0)
	sink("convex-arbitrum-usdc-crvusd-swap", -1.5)

	assert.Len(t, a.Events(), 2)
	assert.Equal(t, "convex-arbitrum-usdc-crvusd-swap", b.Events()[1].Key)
	assert.InDelta(t, -1.5, a.Total(), 1e-9)
}

func TestRecorderConcurrent(t *testing.T) {
	r := NewRecorder()
	sink := r.Sink()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink("step", 1)
		}()
	}
	wg.Wait()
	assert.Len(t, r.Events(), 50)
}

func TestOr(t *testing.T) {
	assert.NotPanics(t, func() { Or(nil)("k", 1) })
}
