package diagstore

import (
	"context"
	"path/filepath"
	"scriptls/internal/core/ports"
	"scriptls/internal/engine/module"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diag(msg string, sev module.Severity) module.Diagnostic {
	return module.Diagnostic{
		Range:    module.Range{Start: module.Position{Line: 1}, End: module.Position{Line: 1, Character: 4}},
		Severity: sev,
		Message:  msg,
		Source:   "as",
	}
}

func openTemp(t *testing.T, workspace string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "diagnostics.db")
	s, err := Open(path, workspace)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpen_RejectsBadPaths(t *testing.T) {
	_, err := Open("  ", "ws")
	require.Error(t, err)

	_, err = Open(t.TempDir(), "ws")
	require.Error(t, err)
}

func TestStore_SaveLoadReplace(t *testing.T) {
	s, _ := openTemp(t, "ws")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "file:///a.as", []module.Diagnostic{diag("first", module.SeverityError)}))
	got, err := s.Load(ctx, "file:///a.as")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, 1, got[0].Range.Start.Line)

	require.NoError(t, s.Save(ctx, "file:///a.as", []module.Diagnostic{
		diag("second", module.SeverityWarning),
		diag("third", module.SeverityError),
	}))
	got, err = s.Load(ctx, "file:///a.as")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	missing, err := s.Load(ctx, "file:///missing.as")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_EmptySaveDeletes(t *testing.T) {
	s, _ := openTemp(t, "ws")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "file:///a.as", []module.Diagnostic{diag("x", module.SeverityError)}))
	require.NoError(t, s.Save(ctx, "file:///a.as", nil))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_BatchAndSummary(t *testing.T) {
	s, _ := openTemp(t, "ws")
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, []ports.DiagnosticsWrite{
		{URI: "file:///a.as", Diagnostics: []module.Diagnostic{diag("a", module.SeverityError)}},
		{URI: "file:///b.as", Diagnostics: []module.Diagnostic{diag("b1", module.SeverityWarning), diag("b2", module.SeverityError)}},
	}))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, all["file:///b.as"], 2)

	docs, errs, total, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, docs)
	assert.Equal(t, 2, errs)
	assert.Equal(t, 3, total)
}

func TestStore_WorkspacesAreIsolated(t *testing.T) {
	a, path := openTemp(t, "one")
	ctx := context.Background()
	require.NoError(t, a.Save(ctx, "file:///a.as", []module.Diagnostic{diag("a", module.SeverityError)}))
	require.NoError(t, a.Close())

	b, err := Open(path, "two")
	require.NoError(t, err)
	defer b.Close()
	all, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	c, err := Open(path, "one")
	require.NoError(t, err)
	defer c.Close()
	all, err = c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
