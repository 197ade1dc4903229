package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_CountsDropped(t *testing.T) {
	l := NewLimiter(0.001, 2)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.False(t, l.Allow())

	assert.Equal(t, 2, l.TakeDropped())
	assert.Equal(t, 0, l.TakeDropped())
}

func TestLimiter_Refills(t *testing.T) {
	l := NewLimiter(100, 1)
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Allow())
}

func TestLimiterRegistry_PerKey(t *testing.T) {
	reg := NewLimiterRegistry(0.001, 1, time.Minute)

	refs := reg.Get("textDocument/references")
	rename := reg.Get("textDocument/rename")
	assert.NotSame(t, refs, rename)
	assert.Same(t, refs, reg.Get("textDocument/references"))

	assert.True(t, refs.Allow())
	assert.False(t, refs.Allow())
	assert.True(t, rename.Allow())
}

func TestLimiterRegistry_EvictsIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	reg := NewLimiterRegistry(1, 1, time.Minute)
	reg.now = func() time.Time { return now }

	first := reg.Get("a")
	reg.Get("b")
	require.Equal(t, 2, reg.Len())

	now = now.Add(30 * time.Second)
	assert.Same(t, first, reg.Get("a"))

	now = now.Add(90 * time.Second)
	reg.Get("a")
	assert.Equal(t, 1, reg.Len())
	assert.NotSame(t, first, reg.Get("a"))
}
