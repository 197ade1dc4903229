package ports

import (
	"context"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/typedb"
)

// Loader abstracts reading script files from disk. A missing file is not an
// error: it reports exists=false and empty content.
type Loader interface {
	Load(path string) (content string, exists bool, err error)
}

// ParseResult is what an analyzer returns from the parse stage.
type ParseResult struct {
	Syntax       any
	Dependencies []string
}

// Analyzer performs the per-module analysis stages. Implementations are only
// called on the loop goroutine and may keep state between calls.
type Analyzer interface {
	Parse(m *module.Module) (ParseResult, error)
	PostProcessTypes(m *module.Module) error
	Resolve(m *module.Module) ([]module.Diagnostic, error)
}

// TypeDatabase is the read side of the host type catalogue as seen by
// analyzers and feature handlers.
type TypeDatabase interface {
	HasTypes() bool
	HasType(name string) bool
	Lookup(name string) (typedb.TypeInfo, bool)
	TypeNames(prefix string) []string
	Settings() typedb.ScriptSettings
}

// DiagnosticsSink receives the merged diagnostics for one document.
type DiagnosticsSink interface {
	Publish(uri string, diags []module.Diagnostic)
}

// DiagnosticsStore persists the last published diagnostics per document.
type DiagnosticsStore interface {
	Save(ctx context.Context, uri string, diags []module.Diagnostic) error
	SaveBatch(ctx context.Context, writes []DiagnosticsWrite) error
	Load(ctx context.Context, uri string) ([]module.Diagnostic, error)
	List(ctx context.Context) (map[string][]module.Diagnostic, error)
	Close() error
}

// DiagnosticsWrite is one queued persistence request.
type DiagnosticsWrite struct {
	URI         string
	Diagnostics []module.Diagnostic
}
