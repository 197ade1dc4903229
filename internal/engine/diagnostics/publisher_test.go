package diagnostics

import (
	"scriptls/internal/engine/module"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	calls []string
	last  map[string][]module.Diagnostic
}

func (s *recordingSink) Publish(uri string, diags []module.Diagnostic) {
	if s.last == nil {
		s.last = make(map[string][]module.Diagnostic)
	}
	s.calls = append(s.calls, uri)
	s.last[uri] = diags
}

type namingStub struct{}

func (namingStub) NamingDiagnostics(m *module.Module) []module.Diagnostic {
	return []module.Diagnostic{{Message: "bad name", Severity: module.SeverityWarning}}
}

func resolvedModule(t *testing.T, uri string, diags []module.Diagnostic) *module.Module {
	t.Helper()
	m := &module.Module{Name: "Game.A", URI: uri}
	m.SetContent("class A {}")
	require.True(t, m.MarkParsed(nil, nil))
	require.True(t, m.MarkTypesPostProcessed())
	require.True(t, m.MarkResolved(diags))
	return m
}

func TestPublisher_SendsOnlyChanges(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, nil)
	m := resolvedModule(t, "file:///a.as", []module.Diagnostic{{Message: "oops"}})

	p.PublishModule(m)
	p.PublishModule(m)
	assert.Len(t, sink.calls, 1)

	p.PublishModuleAlways(m)
	assert.Len(t, sink.calls, 2)

	m.Diagnostics = nil
	p.PublishModule(m)
	assert.Len(t, sink.calls, 3)
	assert.Empty(t, sink.last["file:///a.as"])
}

func TestPublisher_CleanModuleFirstPublishIsSilent(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, nil)
	p.PublishModule(resolvedModule(t, "file:///a.as", nil))
	assert.Empty(t, sink.calls)
}

func TestPublisher_MergesCompileAndScript(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, nil)
	uri := "file:///a.as"

	p.UpdateCompileDiagnostics(uri, []module.Diagnostic{{Message: "compile"}})
	p.PublishModule(resolvedModule(t, uri, []module.Diagnostic{{Message: "script"}}))

	got := sink.last[uri]
	require.Len(t, got, 2)
	assert.Equal(t, "compile", got[0].Message)
	assert.Equal(t, "script", got[1].Message)
	assert.Equal(t, got, p.Current(uri))
	assert.Equal(t, 2, p.Counts()[module.Severity(0)])
}

func TestPublisher_DeletedModuleClearsScriptDiagnostics(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, nil)
	m := resolvedModule(t, "file:///a.as", []module.Diagnostic{{Message: "x"}})
	p.PublishModule(m)

	m.MarkDeleted()
	p.PublishModuleAlways(m)
	assert.Empty(t, sink.last["file:///a.as"])
}

func TestPublisher_NamingSettings(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, namingStub{})
	m := resolvedModule(t, "file:///a.as", nil)

	p.PublishModule(m)
	assert.Empty(t, sink.calls)

	assert.True(t, p.SetSettings(Settings{NamingConvention: true}))
	assert.False(t, p.SetSettings(Settings{NamingConvention: true}))
	p.PublishModule(m)
	require.Len(t, sink.last["file:///a.as"], 1)
	assert.Equal(t, "bad name", sink.last["file:///a.as"][0].Message)
}

func TestFromCompile(t *testing.T) {
	got := FromCompile([]CompileEntry{
		{Message: "orphan info", Line: 3, IsInfo: true},
		{Message: "error", Line: 3, IsError: true},
		{Message: "attached info", Line: 3, IsInfo: true},
		{Message: "warning at zero", Line: 0},
		{Message: "info elsewhere", Line: 9, IsInfo: true},
	})
	require.Len(t, got, 3)

	assert.Equal(t, "error", got[0].Message)
	assert.Equal(t, module.SeverityError, got[0].Severity)
	assert.Equal(t, module.Range{
		Start: module.Position{Line: 2, Character: 0},
		End:   module.Position{Line: 2, Character: 10000},
	}, got[0].Range)

	assert.Equal(t, "attached info", got[1].Message)
	assert.Equal(t, module.SeverityInformation, got[1].Severity)

	assert.Equal(t, "warning at zero", got[2].Message)
	assert.Equal(t, module.SeverityWarning, got[2].Severity)
	assert.Equal(t, 0, got[2].Range.Start.Line)
	assert.Equal(t, "as", got[2].Source)
}
