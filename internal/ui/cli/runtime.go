package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"scriptls/internal/core/config"
	"scriptls/internal/data/diagstore"
	"scriptls/internal/engine/loop"
	"strings"
	"time"
)

// runtimeEnv is what every subcommand needs before it can do its work.
type runtimeEnv struct {
	cfg     *config.Config
	cfgPath string
	paths   config.ResolvedPaths
}

func prepare(opts *cliOptions) (*runtimeEnv, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("detect working directory: %w", err)
	}
	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	configureLogging(opts.stderr, cfg.Log.Level, opts.verbose)

	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve runtime paths: %w", err)
	}
	if opts.noHost {
		disabled := false
		cfg.Host.Enabled = &disabled
	}
	return &runtimeEnv{cfg: cfg, cfgPath: cfgPath, paths: paths}, nil
}

// loadConfig reads path, or ./scriptls.toml when path is empty. A missing
// default file yields the defaults. Environment overrides apply last.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	var (
		cfg *config.Config
		err error
	)
	if strings.TrimSpace(path) != "" {
		cfg, err = config.Load(path)
	} else {
		path = filepath.Join(cwd, config.DefaultFile)
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, "", err
	}

	config.ApplyEnvOverrides(cfg)
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, "", errors.Join(errs...)
	}
	return cfg, path, nil
}

// configureLogging routes logs to w. Stdout carries the protocol, so logs
// never go there.
func configureLogging(w io.Writer, level string, verbose bool) {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openStore(env *runtimeEnv) (*diagstore.Store, error) {
	if !env.cfg.Diagnostics.StoreEnabled {
		return nil, nil
	}
	store, err := diagstore.Open(env.paths.StorePath, env.paths.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics store: %w", err)
	}
	return store, nil
}

// startLoop runs l until the returned stop is called.
func startLoop(l *loop.Loop) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("event loop stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

type closer interface {
	Close(ctx context.Context) error
}

func closeWithTimeout(c closer, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
}
