package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"scriptls/internal/core/errors"
	"scriptls/internal/core/watcher"
	"scriptls/internal/engine/diagnostics"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/query"
	"scriptls/internal/engine/scheduler"
	"scriptls/internal/engine/script"
	"scriptls/internal/host"
	"scriptls/internal/shared/observability"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Editor commands forwarded to the host.
const (
	CommandOpenAssets      = "angelscript.openAssets"
	CommandEditAsset       = "angelscript.editAsset"
	CommandCreateBlueprint = "angelscript.createBlueprint"
)

// Commands lists the commands ExecuteCommand understands.
func Commands() []string {
	return []string{CommandOpenAssets, CommandEditAsset, CommandCreateBlueprint}
}

// DidOpen takes over the editor's copy of a document and analyses it right
// away as far as readiness allows.
func (a *App) DidOpen(uri, text string) {
	a.loop.Post(func() {
		m := a.registry.GetOrCreateForURI(uri)
		m.IsOpened = true
		m.SetContent(text)
		if !a.sched.Promote(m) {
			a.sched.Enqueue(scheduler.StagePostProcessTypes, m)
		}
	})
}

func (a *App) DidChange(uri, text string) {
	a.loop.Post(func() {
		a.sched.ContentChanged(a.registry.GetOrCreateForURI(uri), text)
	})
}

// DidClose hands the document back to the filesystem. Its content stays
// until the next change on disk.
func (a *App) DidClose(uri string) {
	a.loop.Post(func() {
		if m := a.registry.ByURI(uri); m != nil {
			m.IsOpened = false
		}
	})
}

// FilesChanged applies changes made on disk outside the editor.
func (a *App) FilesChanged(changes []watcher.Change) {
	if len(changes) == 0 {
		return
	}
	a.loop.Post(func() {
		for _, c := range changes {
			if !a.filter.Accept(c.Path) {
				continue
			}
			a.fileChanged(c)
		}
	})
}

func (a *App) fileChanged(c watcher.Change) {
	uri := module.PathToURI(c.Path)
	m := a.registry.GetOrCreateForURI(uri)
	if m.IsOpened {
		return
	}
	slog.Debug("file changed on disk", "module", m.Name, "kind", c.Kind.String())
	a.sched.Reload(m)
	if c.Kind == watcher.Changed {
		return
	}
	// Created and deleted files change what their importers can see.
	if m.Resolved() {
		a.publisher.PublishModuleAlways(m)
	}
	for _, dependent := range a.registry.Dependents(m.Name) {
		if dependent.Resolved() {
			dependent.ResetTo(module.StateTypesPostProcessed)
		}
		a.sched.Enqueue(scheduler.StageResolve, dependent)
	}
}

// ConfigurationChanged applies editor-side diagnostics settings.
func (a *App) ConfigurationChanged(settings diagnostics.Settings) {
	a.loop.Post(func() {
		if a.publisher.SetSettings(settings) {
			a.sched.DirtyAllDiagnostics()
		}
	})
}

// WaitFor polls cond on the loop every wait interval until it holds. It
// gives up after the configured number of tries and reports false.
func (a *App) WaitFor(ctx context.Context, cond func() bool) bool {
	for i := 0; i < a.waitTries; i++ {
		var ok bool
		if err := a.loop.Call(ctx, func() { ok = cond() }); err != nil {
			return false
		}
		if ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(a.waitInterval):
		}
	}
	return false
}

// onModule runs fn on the loop with the module for uri.
func (a *App) onModule(ctx context.Context, uri string, fn func(m *module.Module)) error {
	return a.loop.Call(ctx, func() {
		fn(a.registry.GetOrCreateForURI(uri))
	})
}

// Completion answers at once. Until engine types arrive it offers members
// of the document and keywords only.
func (a *App) Completion(ctx context.Context, uri string, pos module.Position) ([]script.CompletionItem, error) {
	var items []script.CompletionItem
	err := a.onModule(ctx, uri, func(m *module.Module) {
		a.sched.Promote(m)
		items = a.analyzer.Complete(m, pos)
	})
	return items, err
}

// Hover reports ok=false when there is nothing to show or the module cannot
// be resolved yet.
func (a *App) Hover(ctx context.Context, uri string, pos module.Position) (string, module.Range, bool, error) {
	var (
		text string
		r    module.Range
		ok   bool
	)
	err := a.onModule(ctx, uri, func(m *module.Module) {
		if !a.sched.Promote(m) {
			return
		}
		text, r, ok = a.analyzer.Hover(m, pos)
	})
	return text, r, ok, err
}

// Definition returns nil until the module is resolved.
func (a *App) Definition(ctx context.Context, uri string, pos module.Position) ([]module.Location, error) {
	var locs []module.Location
	err := a.onModule(ctx, uri, func(m *module.Module) {
		if !a.sched.Promote(m) {
			return
		}
		locs = a.analyzer.Definition(m, pos)
	})
	return locs, err
}

// DocumentSymbols only needs syntax, but waits for the initial parse so
// imported modules are known.
func (a *App) DocumentSymbols(ctx context.Context, uri string) ([]script.SymbolInfo, error) {
	a.WaitFor(ctx, a.sched.InitialParseDone)
	var syms []script.SymbolInfo
	err := a.onModule(ctx, uri, func(m *module.Module) {
		a.sched.PromoteParsed(m)
		syms = a.analyzer.DocumentSymbols(m)
	})
	return syms, err
}

func (a *App) modulesPerStep() int {
	if a.Config.Queries.ModulesPerStep <= 0 {
		return 10
	}
	return a.Config.Queries.ModulesPerStep
}

// References returns nil until every module is loaded and types are ready.
// Modules still waiting to be parsed are parsed as the scan reaches them.
func (a *App) References(ctx context.Context, uri string, pos module.Position) ([]module.Location, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.References", trace.WithAttributes(attribute.String("uri", uri)))
	defer span.End()

	var future *query.Future[[]module.Location]
	err := a.onModule(ctx, uri, func(m *module.Module) {
		if !a.sched.CanResolve() || !a.sched.Promote(m) {
			return
		}
		task, ok := a.analyzer.References(m, pos, a.modulesPerStep(), a.sched.PromoteParsed)
		if !ok {
			return
		}
		future = query.Run(a.queries, "references", task)
	})
	if err != nil || future == nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("query_id", future.ID))
	return waitQuery(ctx, future)
}

// PrepareRename returns a nil range when renaming is not possible yet.
func (a *App) PrepareRename(ctx context.Context, uri string, pos module.Position) (*module.Range, string, error) {
	var (
		r       *module.Range
		name    string
		nameErr error
	)
	err := a.onModule(ctx, uri, func(m *module.Module) {
		if !a.sched.CanResolve() || !a.sched.Promote(m) {
			return
		}
		got, n, err := a.analyzer.PrepareRename(m, pos)
		if err != nil {
			nameErr = err
			return
		}
		r, name = &got, n
	})
	if err != nil {
		return nil, "", err
	}
	return r, name, nameErr
}

// Rename returns nil edits until the workspace is ready.
func (a *App) Rename(ctx context.Context, uri string, pos module.Position, newName string) (map[string][]module.TextEdit, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Rename", trace.WithAttributes(attribute.String("uri", uri)))
	defer span.End()

	var (
		future  *query.Future[map[string][]module.TextEdit]
		taskErr error
	)
	err := a.onModule(ctx, uri, func(m *module.Module) {
		if !a.sched.CanResolve() || !a.sched.Promote(m) {
			return
		}
		task, err := a.analyzer.Rename(m, pos, newName, a.modulesPerStep(), a.sched.PromoteParsed)
		if err != nil {
			taskErr = err
			return
		}
		future = query.Run(a.queries, "rename", task)
	})
	if err != nil {
		return nil, err
	}
	if taskErr != nil || future == nil {
		return nil, taskErr
	}
	return waitQuery(ctx, future)
}

func waitQuery[T any](ctx context.Context, f *query.Future[T]) (T, error) {
	v, err := f.Wait(ctx)
	if err != nil {
		f.Cancel()
		var zero T
		return zero, err
	}
	return v, nil
}

// ExecuteCommand forwards an editor command to the host.
func (a *App) ExecuteCommand(ctx context.Context, command string, args []json.RawMessage) error {
	var arg string
	if len(args) > 0 {
		if err := json.Unmarshal(args[0], &arg); err != nil {
			return errors.Wrap(err, errors.CodeValidationError, fmt.Sprintf("%s expects a string argument", command))
		}
	}
	if arg == "" {
		return errors.AddContext(
			errors.New(errors.CodeValidationError, fmt.Sprintf("%s expects a string argument", command)),
			errors.CtxOperation, command)
	}

	var cmdErr error
	err := a.loop.Call(ctx, func() {
		if a.client == nil || !a.client.Connected() {
			cmdErr = errors.New(errors.CodeUnavailable, "not connected to the editor host")
			return
		}
		switch command {
		case CommandOpenAssets:
			cmdErr = a.client.Send(host.EncodeFindAssets(a.assets.AssetsImplementing(arg), arg))
		case CommandEditAsset:
			cmdErr = a.client.Send(host.EncodeFindAssets([]string{arg}, ""))
		case CommandCreateBlueprint:
			if !a.types.Settings().EngineSupportsCreateBlueprint {
				cmdErr = errors.New(errors.CodeNotSupported, "the connected editor cannot create blueprints")
				return
			}
			cmdErr = a.client.Send(host.EncodeCreateBlueprint(arg))
		default:
			cmdErr = errors.New(errors.CodeNotSupported, fmt.Sprintf("unknown command %q", command))
		}
	})
	if err != nil {
		return err
	}
	if cmdErr != nil {
		return errors.AddContext(cmdErr, errors.CtxOperation, command)
	}
	return nil
}
