package module

import (
	"scriptls/internal/engine/loop"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkInvariant(t *testing.T, m *Module) {
	t.Helper()
	if m.Resolved() {
		require.True(t, m.TypesPostProcessed(), "resolved without types post-processed")
	}
	if m.TypesPostProcessed() {
		require.True(t, m.Parsed(), "types post-processed without parse")
	}
	if m.Parsed() {
		require.True(t, m.Loaded(), "parsed without load")
	}
}

func advance(t *testing.T, m *Module) {
	t.Helper()
	require.True(t, m.MarkParsed(nil, []string{"B", "A", "A", m.Name}))
	require.True(t, m.MarkTypesPostProcessed())
	require.True(t, m.MarkResolved(nil))
	checkInvariant(t, m)
}

func TestModule_StagesCannotBeSkipped(t *testing.T) {
	m := &Module{Name: "Game.Player"}
	assert.Equal(t, StateUnloaded, m.State())

	assert.False(t, m.MarkParsed(nil, nil))
	assert.False(t, m.MarkTypesPostProcessed())
	assert.False(t, m.MarkResolved(nil))
	checkInvariant(t, m)

	m.SetContent("class Player {}")
	assert.Equal(t, StateLoaded, m.State())
	assert.False(t, m.MarkTypesPostProcessed())
	checkInvariant(t, m)

	advance(t, m)
	assert.Equal(t, StateResolved, m.State())
	assert.Equal(t, []string{"A", "B"}, m.Dependencies)
	assert.True(t, m.DependsOn("A"))
	assert.False(t, m.DependsOn("Game.Player"))
}

func TestModule_ContentChangeCascades(t *testing.T) {
	m := &Module{Name: "Game.Player"}
	m.SetContent("v1")
	advance(t, m)

	m.SetContent("v2")
	assert.True(t, m.Loaded())
	assert.False(t, m.Parsed())
	assert.False(t, m.TypesPostProcessed())
	assert.False(t, m.Resolved())
	assert.Equal(t, 2, m.Version)
	checkInvariant(t, m)
}

func TestModule_ResetToResolvedOnlyClearsResolved(t *testing.T) {
	m := &Module{Name: "Game.Player"}
	m.SetContent("v1")
	advance(t, m)

	m.ResetTo(StateTypesPostProcessed)
	assert.Equal(t, StateTypesPostProcessed, m.State())
	assert.True(t, m.Parsed())
	checkInvariant(t, m)
}

func TestModule_MarkDeleted(t *testing.T) {
	m := &Module{Name: "Game.Player"}
	m.SetContent("class Player {}")
	advance(t, m)

	m.MarkDeleted()
	assert.False(t, m.Exists)
	assert.Empty(t, m.Content)
	assert.Equal(t, StateLoaded, m.State())
}

func TestModule_ReplaceDebounceStopsPrevious(t *testing.T) {
	l := loop.NewVirtual(time.Unix(0, 0))
	m := &Module{Name: "Game.Player"}
	fired := 0

	m.ReplaceDebounce(l.AfterFunc(10*time.Millisecond, func() { fired++ }))
	m.ReplaceDebounce(l.AfterFunc(10*time.Millisecond, func() { fired += 10 }))
	assert.True(t, m.HasPendingDebounce())

	l.Advance(20 * time.Millisecond)
	assert.Equal(t, 10, fired)
	assert.False(t, m.HasPendingDebounce())
}
