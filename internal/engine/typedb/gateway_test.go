package typedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_PartialsAreNotAuthoritative(t *testing.T) {
	g := NewGateway()
	n, err := g.AddPartial([]byte(`{"AActor":{"super":"UObject"},"UObject":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, g.HasTypes())
	assert.True(t, g.Receiving())

	info, ok := g.Lookup("AActor")
	require.True(t, ok)
	assert.Equal(t, "UObject", info.Super)
}

func TestGateway_FinishAddsPrimitives(t *testing.T) {
	g := NewGateway()
	g.SetSettings(ScriptSettings{FloatIsFloat64: true})
	_, err := g.AddPartial([]byte(`{"APawn":{"superType":"AActor"}}`))
	require.NoError(t, err)

	g.Finish()
	assert.True(t, g.HasTypes())
	assert.False(t, g.Receiving())
	assert.True(t, g.HasType("int"))

	float, ok := g.Lookup("float")
	require.True(t, ok)
	assert.Equal(t, "float64", float.Super)

	pawn, _ := g.Lookup("APawn")
	assert.Equal(t, "AActor", pawn.Super)
}

func TestGateway_LaterPartialOverrides(t *testing.T) {
	g := NewGateway()
	_, _ = g.AddPartial([]byte(`{"A":{"super":"X"}}`))
	_, _ = g.AddPartial([]byte(`{"A":{"super":"Y"},"B":{}}`))
	info, _ := g.Lookup("A")
	assert.Equal(t, "Y", info.Super)
	assert.Equal(t, []string{"A", "B"}, g.TypeNames(""))
}

func TestGateway_MalformedPartial(t *testing.T) {
	g := NewGateway()
	_, err := g.AddPartial([]byte(`not json`))
	require.Error(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestGateway_Invalidate(t *testing.T) {
	g := NewGateway()
	_, _ = g.AddPartial([]byte(`{"A":{}}`))
	g.Finish()
	gen := g.Generation()

	g.Invalidate()
	assert.False(t, g.HasTypes())
	assert.Equal(t, 0, g.Len())
	assert.Greater(t, g.Generation(), gen)
}
