package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"scriptls/internal/core/app"
	"scriptls/internal/engine/loop"
	"scriptls/internal/engine/module"
	"scriptls/internal/shared/util"
	"sort"
	"strings"
	"time"
)

func runCheck(ctx context.Context, opts *cliOptions, args []string) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}
	env, err := prepare(opts)
	if err != nil {
		return err
	}
	// Check mode never edits, so there is nothing to watch.
	env.cfg.Watch.Enabled = false

	store, err := openStore(env)
	if err != nil {
		return err
	}
	deps := app.Dependencies{}
	if store != nil {
		deps.Store = store
	}

	l := loop.New()
	a, err := app.NewWithDependencies(env.cfg, l, deps)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("init app: %w", err)
	}
	stopLoop := startLoop(l)
	defer stopLoop()
	defer closeWithTimeout(a, env.cfg.Diagnostics.DrainTimeout+time.Second)

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	roots := args
	if len(roots) == 0 {
		roots = env.paths.Roots
	}
	started := time.Now()
	if err := a.Start(ctx, roots); err != nil {
		return fmt.Errorf("start analysis: %w", err)
	}
	if err := a.AwaitTypes(ctx, 0); err != nil {
		return fmt.Errorf("waiting for engine types: %w", err)
	}
	if err := a.WaitSettled(ctx, 0); err != nil {
		return fmt.Errorf("waiting for analysis: %w", err)
	}
	report, err := a.Snapshot(ctx)
	if err != nil {
		return err
	}
	slog.Info("analysis settled", "modules", report.Modules, "duration", time.Since(started).Round(time.Millisecond))

	if err := writeDiagnostics(opts.stdout, opts.format, env.paths.ProjectRoot, report.Modules, report.Diagnostics); err != nil {
		return err
	}
	if report.Errors() > 0 {
		return exitCode(1)
	}
	return nil
}

type jsonDiagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type jsonReport struct {
	Modules     int              `json:"modules,omitempty"`
	Errors      int              `json:"errors"`
	Warnings    int              `json:"warnings"`
	Diagnostics []jsonDiagnostic `json:"diagnostics"`
}

// flatten orders diagnostics by file, then position. Lines and columns are
// one-based.
func flatten(root string, diags map[string][]module.Diagnostic) []jsonDiagnostic {
	out := make([]jsonDiagnostic, 0)
	for _, uri := range util.SortedStringKeys(diags) {
		file := displayPath(root, uri)
		list := append([]module.Diagnostic(nil), diags[uri]...)
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i].Range.Start, list[j].Range.Start
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.Character < b.Character
		})
		for _, d := range list {
			out = append(out, jsonDiagnostic{
				File:     file,
				Line:     d.Range.Start.Line + 1,
				Column:   d.Range.Start.Character + 1,
				Severity: d.Severity.String(),
				Message:  d.Message,
			})
		}
	}
	return out
}

func displayPath(root, uri string) string {
	path := module.URIToPath(uri)
	if root == "" {
		return path
	}
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func writeDiagnostics(w io.Writer, format, root string, modules int, diags map[string][]module.Diagnostic) error {
	flat := flatten(root, diags)
	var errs, warns int
	for _, d := range flat {
		switch d.Severity {
		case module.SeverityError.String():
			errs++
		case module.SeverityWarning.String():
			warns++
		}
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonReport{Modules: modules, Errors: errs, Warnings: warns, Diagnostics: flat})
	}

	for _, d := range flat {
		if _, err := fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", d.File, d.Line, d.Column, d.Severity, d.Message); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d errors, %d warnings in %d files\n", errs, warns, len(diags))
	return err
}
