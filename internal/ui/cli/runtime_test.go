package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"scriptls/internal/core/app"
	"scriptls/internal/core/config"
	"scriptls/internal/engine/loop"
	"scriptls/internal/engine/module"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workspaceConfig = `version = 1

[workspace]
roots = ["Script"]

[host]
enabled = false

[diagnostics]
store_enabled = true
`

type runResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) runResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// newWorkspace creates a project with the given scripts below Script/ and
// makes it the working directory.
func newWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultFile), []byte(workspaceConfig), 0o644))
	for rel, content := range files {
		path := filepath.Join(root, "Script", filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	t.Chdir(root)
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })
	return root
}

func TestRun_Version(t *testing.T) {
	res := runCLI(t, "version")
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "scriptls v"+versionString+"\n", res.stdout)
}

func TestRun_UnknownCommand(t *testing.T) {
	res := runCLI(t, "frobnicate")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error:")
}

func TestCheck_ReportsErrors(t *testing.T) {
	newWorkspace(t, map[string]string{
		"Game/Base.as":  "class ABase {}",
		"Game/Child.as": "class AChild : UMissing {}",
	})

	res := runCLI(t, "check", "--no-host")
	require.Equal(t, 1, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Child.as:1:")
	assert.Contains(t, res.stdout, "error: unknown base class UMissing")
	assert.Contains(t, res.stdout, "1 errors, 0 warnings in 1 files")
	assert.NotContains(t, res.stdout, "Base.as")
}

func TestCheck_CleanWorkspace(t *testing.T) {
	newWorkspace(t, map[string]string{
		"Game/Base.as":  "class ABase {}",
		"Game/Child.as": "import Game.Base;\nclass AChild : ABase {}",
	})

	res := runCLI(t, "check", "--no-host")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "0 errors, 0 warnings in 0 files\n", res.stdout)
}

func TestCheck_JSONFormat(t *testing.T) {
	newWorkspace(t, map[string]string{
		"Game/Child.as": "import Game.Missing;\nclass AChild {}",
	})

	res := runCLI(t, "check", "--no-host", "--format", "json")
	require.Equal(t, 1, res.code, res.stderr)

	var report jsonReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.Equal(t, 1, report.Errors)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, "Script/Game/Child.as", report.Diagnostics[0].File)
	assert.Equal(t, 1, report.Diagnostics[0].Line)
	assert.Equal(t, "module Game.Missing not found", report.Diagnostics[0].Message)
}

func TestCheck_InvalidFormat(t *testing.T) {
	res := runCLI(t, "check", "--format", "xml")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "invalid --format")
}

func TestReport_ReadsPersistedDiagnostics(t *testing.T) {
	root := newWorkspace(t, map[string]string{
		"Game/Child.as": "class AChild : UMissing {}",
	})

	require.Equal(t, 1, runCLI(t, "check", "--no-host").code)
	_, err := os.Stat(filepath.Join(root, ".scriptls", "diagnostics.db"))
	require.NoError(t, err)

	res := runCLI(t, "report")
	assert.Equal(t, 1, res.code, res.stderr)
	assert.Contains(t, res.stdout, "unknown base class UMissing")
	assert.Contains(t, res.stdout, "1 errors")
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing default file yields defaults", func(t *testing.T) {
		dir := t.TempDir()
		cfg, path, err := loadConfig("", dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, config.DefaultFile), path)
		assert.Equal(t, []string{".as"}, cfg.Workspace.Extensions)
	})

	t.Run("explicit missing file fails", func(t *testing.T) {
		_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"), "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte("[log]\nlevel = \"info\"\n"), 0o644))
		t.Setenv("SCRIPTLS_LOG_LEVEL", "debug")

		cfg, _, err := loadConfig("", dir)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestFlatten_SortsByFileAndPosition(t *testing.T) {
	at := func(line, col int, msg string) module.Diagnostic {
		pos := module.Position{Line: line, Character: col}
		return module.Diagnostic{Range: module.Range{Start: pos, End: pos}, Severity: module.SeverityError, Message: msg}
	}
	diags := map[string][]module.Diagnostic{
		"file:///ws/b.as": {at(3, 0, "b3")},
		"file:///ws/a.as": {at(2, 4, "a2"), at(0, 1, "a0")},
	}

	flat := flatten("/ws", diags)
	require.Len(t, flat, 3)
	assert.Equal(t, "a0", flat[0].Message)
	assert.Equal(t, "a.as", flat[0].File)
	assert.Equal(t, 1, flat[0].Line)
	assert.Equal(t, 2, flat[0].Column)
	assert.Equal(t, "a2", flat[1].Message)
	assert.Equal(t, "b3", flat[2].Message)
}

func TestObservabilityHandler(t *testing.T) {
	cfg := config.Default()
	disabled := false
	cfg.Host.Enabled = &disabled

	l := loop.New()
	a, err := app.New(cfg, l)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		_ = a.Close(context.Background())
		cancel()
		<-done
	})

	t.Run("health", func(t *testing.T) {
		handler := NewObservabilityServer("", false, app.NewHealthService(a)).Handler()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var status app.HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "up", status.Status)
		assert.Equal(t, "ok", status.Components["loop"])
		assert.Equal(t, "disabled", status.Components["host"])
	})

	t.Run("metrics disabled", func(t *testing.T) {
		handler := NewObservabilityServer("", false, app.NewHealthService(a)).Handler()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("metrics enabled", func(t *testing.T) {
		handler := NewObservabilityServer("", true, app.NewHealthService(a)).Handler()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
