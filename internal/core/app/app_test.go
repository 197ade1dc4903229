package app

import (
	"context"
	"os"
	"path/filepath"
	"scriptls/internal/core/config"
	"scriptls/internal/engine/loop"
	"scriptls/internal/engine/module"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu        sync.Mutex
	published map[string][]module.Diagnostic
	calls     map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		published: make(map[string][]module.Diagnostic),
		calls:     make(map[string]int),
	}
}

func (s *recordingSink) Publish(uri string, diags []module.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published[uri] = append([]module.Diagnostic(nil), diags...)
	s.calls[uri]++
}

func (s *recordingSink) get(uri string) ([]module.Diagnostic, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[uri], s.calls[uri]
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	disabled := false
	cfg.Host.Enabled = &disabled
	cfg.Edits.Debounce = 20 * time.Millisecond
	cfg.Workspace.Exclude.Files = []string{"*.generated.as"}
	return cfg
}

type testEnv struct {
	app  *App
	root string
	sink *recordingSink
	ctx  context.Context
}

func (e *testEnv) uri(rel string) string {
	return module.PathToURI(filepath.Join(e.root, filepath.FromSlash(rel)))
}

func (e *testEnv) messages(t *testing.T, rel string) []string {
	t.Helper()
	report, err := e.app.Snapshot(e.ctx)
	require.NoError(t, err)
	var out []string
	for _, d := range report.Diagnostics[e.uri(rel)] {
		out = append(out, d.Message)
	}
	return out
}

func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.app.WaitSettled(ctx, 5*time.Millisecond))
}

func newTestEnv(t *testing.T, cfg *config.Config, files map[string]string) *testEnv {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, files)

	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	sink := newRecordingSink()
	a, err := NewWithDependencies(cfg, l, Dependencies{Editor: sink})
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer closeCancel()
		_ = a.Close(closeCtx)
		cancel()
		<-done
	})
	return &testEnv{app: a, root: root, sink: sink, ctx: ctx}
}

func TestNew_RequiresConfigAndLoop(t *testing.T) {
	_, err := New(nil, loop.New())
	require.Error(t, err)
	_, err = New(config.Default(), nil)
	require.Error(t, err)
}

func TestScanDirectories_HonoursExclusions(t *testing.T) {
	env := newTestEnv(t, testConfig(), map[string]string{
		"Game/A.as":                "class AThing {}",
		"Game/readme.txt":          "not a script",
		"Game/Skip.generated.as":   "class ASkip {}",
		"Intermediate/Build/X.as":  "class AX {}",
		"Game/Nested/Deeper/Z.as":  "struct FZ {}",
		".git/hooks/Something.as":  "class AHidden {}",
		"Game/Nested/Upper.AS":     "struct FUpper {}",
		"Game/Nested/noext":        "",
		"Saved/Autosave/Backup.as": "class ABackup {}",
	})

	files, err := env.app.ScanDirectories([]string{env.root, filepath.Join(env.root, "missing")})
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(env.root, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"Game/A.as", "Game/Nested/Deeper/Z.as", "Game/Nested/Upper.AS"}, rel)
}

func TestUniqueScanRoots(t *testing.T) {
	root := t.TempDir()
	got := uniqueScanRoots([]string{root, root + "/", filepath.Join(root, "a", "..")})
	assert.Equal(t, []string{root}, got)
}

func TestStart_PublishesDiagnostics(t *testing.T) {
	env := newTestEnv(t, testConfig(), map[string]string{
		"Game/Base.as":  "class ABase {}",
		"Game/Child.as": "import Game.Missing;\nclass AChild : ABase {}",
	})
	require.NoError(t, env.app.Start(env.ctx, []string{env.root}))
	env.settle(t)

	got := env.messages(t, "Game/Child.as")
	assert.Contains(t, got, "module Game.Missing not found")
	assert.Contains(t, got, "ABase is declared in module Game.Base which is not imported")
	assert.Empty(t, env.messages(t, "Game/Base.as"))

	published, calls := env.sink.get(env.uri("Game/Child.as"))
	assert.Positive(t, calls)
	assert.Len(t, published, len(got))
	_, calls = env.sink.get(env.uri("Game/Base.as"))
	assert.Zero(t, calls, "a clean module is not published the first time")

	counts, err := env.app.ModuleCounts(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[module.StateResolved])
}

func TestApplyConfig_NamingConventionRepublishes(t *testing.T) {
	env := newTestEnv(t, testConfig(), map[string]string{
		"Game/Stats.as": "struct Stats {}",
	})
	require.NoError(t, env.app.Start(env.ctx, []string{env.root}))
	env.settle(t)
	assert.Empty(t, env.messages(t, "Game/Stats.as"))

	next := testConfig()
	next.Diagnostics.NamingConvention = true
	env.app.ApplyConfig(next)

	require.Eventually(t, func() bool {
		return len(env.messages(t, "Game/Stats.as")) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClose_IsIdempotentWithoutStart(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	require.NoError(t, env.app.Close(context.Background()))
	require.NoError(t, env.app.Close(context.Background()))
}

func TestAwaitTypes_ContinuesWithoutHost(t *testing.T) {
	cfg := testConfig()
	enabled := true
	cfg.Host.Enabled = &enabled
	cfg.Host.Address = "127.0.0.1:1"
	cfg.Host.ConnectTimeout = 50 * time.Millisecond
	cfg.Host.ReconnectBackoff = time.Hour
	env := newTestEnv(t, cfg, map[string]string{
		"Game/Thing.as": "class AThing : UMissing {}",
	})
	require.NoError(t, env.app.Start(env.ctx, []string{env.root}))

	ctx, cancel := context.WithTimeout(env.ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, env.app.AwaitTypes(ctx, 5*time.Millisecond))
	env.settle(t)

	report, err := env.app.Snapshot(env.ctx)
	require.NoError(t, err)
	assert.True(t, report.TypesReady)
	assert.Equal(t, 1, report.Modules)
	assert.Equal(t, 1, report.Errors())
	assert.Equal(t, []string{"unknown base class UMissing"}, env.messages(t, "Game/Thing.as"))
}
