package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"scriptls/internal/core/app"
	"scriptls/internal/core/config"
	"scriptls/internal/engine/loop"
	"scriptls/internal/lsp"
	"scriptls/internal/shared/observability"
	"time"
)

func runServe(ctx context.Context, opts *cliOptions) error {
	env, err := prepare(opts)
	if err != nil {
		return err
	}
	cfg := env.cfg

	store, err := openStore(env)
	if err != nil {
		return err
	}
	deps := app.Dependencies{}
	if store != nil {
		deps.Store = store
	}

	l := loop.New()
	srv := lsp.NewServer(opts.stdin, opts.stdout, lsp.Options{
		Version:      versionString,
		Commands:     app.Commands(),
		DefaultRoots: env.paths.Roots,
		RequestRate:  cfg.Queries.RequestRate,
		RequestBurst: cfg.Queries.RequestBurst,
	})
	deps.Editor = srv

	a, err := app.NewWithDependencies(cfg, l, deps)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("init app: %w", err)
	}
	stopLoop := startLoop(l)
	defer stopLoop()
	defer closeWithTimeout(a, cfg.Diagnostics.DrainTimeout+time.Second)

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName:    "scriptls",
			ServiceVersion: versionString,
			Endpoint:       cfg.Observability.OTLPEndpoint,
			Insecure:       cfg.Observability.OTLPInsecure,
		})
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	if cfg.Observability.Enabled {
		obs := NewObservabilityServer(cfg.Observability.Address, cfg.Observability.EnableMetrics, app.NewHealthService(a))
		if err := obs.Start(ctx); err != nil {
			slog.Warn("observability server disabled", "error", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = obs.Stop(sctx)
			}()
		}
	}

	watcher := config.NewWatcher(env.cfgPath, a.ApplyConfig)
	if err := watcher.Start(ctx); err != nil {
		slog.Debug("config hot reload disabled", "path", env.cfgPath, "error", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("language server starting", "version", versionString, "roots", len(env.paths.Roots))
	err = srv.Serve(ctx, a)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, lsp.ErrExitWithoutShutdown) {
		return exitCode(1)
	}
	return err
}
