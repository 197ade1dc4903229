package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"scriptls/internal/core/config"
	"scriptls/internal/core/ports"
	"scriptls/internal/core/watcher"
	"scriptls/internal/data/queue"
	"scriptls/internal/engine/assets"
	"scriptls/internal/engine/diagnostics"
	"scriptls/internal/engine/loop"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/query"
	"scriptls/internal/engine/scheduler"
	"scriptls/internal/engine/script"
	"scriptls/internal/engine/typedb"
	"scriptls/internal/host"
	"sort"
	"time"
)

// Dependencies are the collaborators an App can be given instead of the
// defaults.
type Dependencies struct {
	// Editor receives published diagnostics. Nil discards them.
	Editor ports.DiagnosticsSink
	// Store persists published diagnostics. Nil disables persistence.
	Store ports.DiagnosticsStore
	// Loader reads script files. Defaults to the filesystem.
	Loader ports.Loader
}

// App owns every piece of analysis state. All of it is mutated on the
// loop goroutine; exported methods that take a context may be called from
// anywhere and hop onto the loop themselves.
type App struct {
	Config *config.Config

	loop      *loop.Loop
	filter    *watcher.Filter
	registry  *module.Registry
	types     *typedb.Gateway
	assets    *assets.Database
	analyzer  *script.Analyzer
	publisher *diagnostics.Publisher
	sched     *scheduler.Scheduler
	queries   *query.Engine
	sync      *host.Sync
	client    *host.Client

	editor ports.DiagnosticsSink
	roots  []string

	activeWatcher *watcher.Watcher

	store        ports.DiagnosticsStore
	writeQueue   *queue.MemoryQueue[ports.DiagnosticsWrite]
	workerCancel context.CancelFunc
	workerDone   chan struct{}

	waitInterval time.Duration
	waitTries    int
	startedAt    time.Time
}

func New(cfg *config.Config, l *loop.Loop) (*App, error) {
	return NewWithDependencies(cfg, l, Dependencies{})
}

func NewWithDependencies(cfg *config.Config, l *loop.Loop, deps Dependencies) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if l == nil {
		return nil, fmt.Errorf("loop is required")
	}
	filter, err := watcher.NewFilter(cfg.Workspace.Extensions, cfg.Workspace.Exclude.Dirs, cfg.Workspace.Exclude.Files)
	if err != nil {
		return nil, fmt.Errorf("workspace exclude patterns: %w", err)
	}

	a := &App{
		Config:       cfg,
		loop:         l,
		filter:       filter,
		registry:     module.NewRegistry(),
		types:        typedb.NewGateway(),
		assets:       assets.NewDatabase(),
		editor:       deps.Editor,
		store:        deps.Store,
		waitInterval: 100 * time.Millisecond,
		waitTries:    50,
		startedAt:    time.Now(),
	}
	if len(cfg.Workspace.Extensions) > 0 {
		a.registry.SetExtension(cfg.Workspace.Extensions[0])
	}

	loader := deps.Loader
	if loader == nil {
		loader = fileLoader{}
	}
	a.analyzer = script.NewAnalyzer(a.registry, a.types)
	a.publisher = diagnostics.NewPublisher(a, a.analyzer)
	a.publisher.SetSettings(diagnostics.Settings{NamingConvention: cfg.Diagnostics.NamingConvention})
	a.sched = scheduler.New(schedulerConfig(cfg), l, a.registry, a.types, a.analyzer, loader, a.publisher)
	a.queries = query.NewEngine(l, cfg.Queries.PollInterval)

	if cfg.Host.HostEnabled() {
		hostCfg := hostConfig(cfg)
		a.sync = host.NewSync(hostCfg, l, a.types, a.assets, a.registry, a.sched, a.publisher)
		a.client = host.NewClient(hostCfg, l, a.sync)
	}

	if err := a.initWriteQueue(); err != nil {
		return nil, err
	}
	return a, nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		LoadBatch:        cfg.Scheduler.LoadBatch,
		ParseBatch:       cfg.Scheduler.ParseBatch,
		PostProcessBatch: cfg.Scheduler.PostProcessBatch,
		ResolveBatch:     cfg.Scheduler.ResolveBatch,
		TickInterval:     cfg.Scheduler.TickInterval,
		SweepBatch:       cfg.Scheduler.SweepBatch,
		SweepInterval:    cfg.Scheduler.SweepInterval,
		Debounce:         cfg.Edits.Debounce,
		Dedupe:           cfg.Scheduler.DedupeEnabled(),
	}
}

func hostConfig(cfg *config.Config) host.Config {
	return host.Config{
		Address:          cfg.Host.Address,
		RequestDelay:     cfg.Host.RequestDelay,
		StallTimeout:     cfg.Host.StallTimeout,
		ConnectTimeout:   cfg.Host.ConnectTimeout,
		ReconnectBackoff: cfg.Host.ReconnectBackoff,
		DialTimeout:      cfg.Host.DialTimeout,
	}
}

// Start discovers every script under roots, queues them for loading and
// connects to the host. Without a host the type catalogue is finalized
// empty so script-level analysis can still run.
func (a *App) Start(ctx context.Context, roots []string) error {
	roots = uniqueScanRoots(roots)
	files, err := a.ScanDirectories(roots)
	if err != nil {
		return err
	}
	slog.Info("workspace discovered", "roots", len(roots), "files", len(files))

	return a.loop.Call(ctx, func() {
		a.roots = roots
		rootURIs := make([]string, 0, len(roots))
		for _, r := range roots {
			rootURIs = append(rootURIs, module.PathToURI(r))
		}
		a.registry.SetRoots(rootURIs)

		for _, path := range files {
			a.sched.Enqueue(scheduler.StageLoad, a.registry.GetOrCreateForURI(module.PathToURI(path)))
		}

		if a.client == nil {
			a.types.Finish()
			slog.Info("host disabled, analysing without engine types")
		} else {
			a.sync.Start()
			a.client.Start(ctx)
		}
		if a.Config.Watch.Enabled {
			if err := a.StartWatcher(); err != nil {
				slog.Warn("failed to start file watcher", "error", err)
			}
		}
	})
}

func uniqueScanRoots(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		normalized := filepath.Clean(p)
		if abs, err := filepath.Abs(normalized); err == nil {
			normalized = filepath.Clean(abs)
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		roots = append(roots, normalized)
	}
	sort.Strings(roots)
	return roots
}

// ScanDirectories returns every accepted script file below paths, sorted.
// Missing roots are skipped.
func (a *App) ScanDirectories(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == root {
					slog.Warn("workspace root does not exist", "root", root)
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() {
				if path != root && a.filter.SkipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if a.filter.Accept(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Publish implements ports.DiagnosticsSink: forward to the editor and queue
// the set for persistence.
func (a *App) Publish(uri string, diags []module.Diagnostic) {
	if a.editor != nil {
		a.editor.Publish(uri, diags)
	}
	a.enqueueDiagnosticsWrite(ports.DiagnosticsWrite{URI: uri, Diagnostics: diags})
}

// ApplyConfig takes over the settings that can change while running.
func (a *App) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.loop.Post(func() {
		a.Config.Edits.Debounce = cfg.Edits.Debounce
		a.Config.Diagnostics.NamingConvention = cfg.Diagnostics.NamingConvention
		a.Config.Watch.Debounce = cfg.Watch.Debounce
		a.sched.SetDebounce(cfg.Edits.Debounce)
		if a.activeWatcher != nil {
			a.activeWatcher.SetDebounce(cfg.Watch.Debounce)
		}
		if a.publisher.SetSettings(diagnostics.Settings{NamingConvention: cfg.Diagnostics.NamingConvention}) {
			slog.Info("diagnostics settings changed", "naming_convention", cfg.Diagnostics.NamingConvention)
			a.sched.DirtyAllDiagnostics()
		}
	})
}

// Close disconnects from the host, stops watching and flushes persisted
// diagnostics.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	drainTimeout := a.Config.Diagnostics.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, drainTimeout)
		defer cancel()
	}

	if err := a.loop.Call(ctx, func() {
		if a.activeWatcher != nil {
			_ = a.activeWatcher.Close()
			a.activeWatcher = nil
		}
		if a.client != nil {
			a.client.Close()
			a.sync.Stop()
		}
		a.queries.CancelAll()
	}); err != nil {
		slog.Debug("loop unavailable during close", "error", err)
	}

	if err := a.stopWriteWorker(ctx); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			return err
		}
		a.store = nil
	}
	return nil
}

// fileLoader reads modules from disk.
type fileLoader struct{}

func (fileLoader) Load(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
