package cli

import (
	"context"
	"fmt"
	"log/slog"
	"scriptls/internal/data/diagstore"
)

// runReport prints what the last run persisted, without analysing anything.
func runReport(ctx context.Context, opts *cliOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}
	env, err := prepare(opts)
	if err != nil {
		return err
	}

	store, err := diagstore.Open(env.paths.StorePath, env.paths.ProjectRoot)
	if err != nil {
		return fmt.Errorf("open diagnostics store: %w", err)
	}
	defer store.Close()

	diags, err := store.List(ctx)
	if err != nil {
		return err
	}
	docs, errs, total, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	slog.Debug("diagnostics store summary", "documents", docs, "errors", errs, "total", total)

	if err := writeDiagnostics(opts.stdout, opts.format, env.paths.ProjectRoot, 0, diags); err != nil {
		return err
	}
	if errs > 0 {
		return exitCode(1)
	}
	return nil
}
