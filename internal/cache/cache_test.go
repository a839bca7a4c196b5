package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampOf(t *testing.T) {
	tests := []struct {
		name   string
		object string
		want   int64
		ok     bool
	}{
		{name: "match", object: "portfolio-cache/0xabc-1700000000.json", want: 1700000000, ok: true},
		{name: "other key sharing the prefix", object: "portfolio-cache/0xabc-def-1700000000.json"},
		{name: "other key", object: "portfolio-cache/0xdef-1.json"},
		{name: "not json", object: "portfolio-cache/0xabc-1.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := timestampOf("0xabc", tt.object)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewest(t *testing.T) {
	name, ok := newest("k", []string{
		"portfolio-cache/k-9.json",
		"portfolio-cache/k-10.json",
		"portfolio-cache/k-2.json",
	})
	require.True(t, ok)
	assert.Equal(t, "portfolio-cache/k-10.json", name)

	_, ok = newest("k", nil)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Latest(ctx, "0xabc")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, m.Put(ctx, "0xabc", Entry{Data: json.RawMessage(`{"v":1}`), Timestamp: 100}))
	require.NoError(t, m.Put(ctx, "0xabc", Entry{Data: json.RawMessage(`{"v":2}`), Timestamp: 200}))
	require.NoError(t, m.Put(ctx, "0xabc", Entry{Data: json.RawMessage(`{"v":0}`), Timestamp: 50}))

	e, err := m.Latest(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(200), e.Timestamp)
	assert.JSONEq(t, `{"v":2}`, string(e.Data))

	assert.Error(t, m.Put(ctx, "../escape", Entry{Timestamp: 1}))
}
