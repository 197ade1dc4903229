// Package diagnostics merges compile diagnostics reported by the host with
// the analyzer's script diagnostics and forwards the result to the editor
// only when it changed.
package diagnostics

import (
	"scriptls/internal/core/ports"
	"scriptls/internal/engine/module"
	"scriptls/internal/shared/observability"
)

// Settings toggles optional diagnostics.
type Settings struct {
	NamingConvention bool
}

// NamingChecker produces naming-convention warnings for a module.
type NamingChecker interface {
	NamingDiagnostics(m *module.Module) []module.Diagnostic
}

type Publisher struct {
	sink     ports.DiagnosticsSink
	naming   NamingChecker
	settings Settings

	compile map[string][]module.Diagnostic
	script  map[string][]module.Diagnostic
	sent    map[string][]module.Diagnostic
}

func NewPublisher(sink ports.DiagnosticsSink, naming NamingChecker) *Publisher {
	return &Publisher{
		sink:    sink,
		naming:  naming,
		compile: make(map[string][]module.Diagnostic),
		script:  make(map[string][]module.Diagnostic),
		sent:    make(map[string][]module.Diagnostic),
	}
}

func (p *Publisher) Settings() Settings {
	return p.settings
}

// SetSettings reports whether anything changed, in which case every
// module's diagnostics need recomputing.
func (p *Publisher) SetSettings(s Settings) bool {
	if s == p.settings {
		return false
	}
	p.settings = s
	return true
}

// PublishModule recomputes m's script diagnostics and sends the merged set
// if it differs from what the editor last received.
func (p *Publisher) PublishModule(m *module.Module) {
	p.update(m, false)
}

// PublishModuleAlways sends m's diagnostics even when unchanged.
func (p *Publisher) PublishModuleAlways(m *module.Module) {
	p.update(m, true)
}

func (p *Publisher) update(m *module.Module, always bool) {
	if m == nil || m.URI == "" {
		return
	}
	var script []module.Diagnostic
	if m.Exists {
		script = append(script, m.StageFailures()...)
		script = append(script, m.Diagnostics...)
		if p.settings.NamingConvention && p.naming != nil {
			script = append(script, p.naming.NamingDiagnostics(m)...)
		}
	}
	p.script[m.URI] = script
	p.send(m.URI, always)
}

// UpdateCompileDiagnostics replaces the host-reported diagnostics for uri.
func (p *Publisher) UpdateCompileDiagnostics(uri string, diags []module.Diagnostic) {
	if uri == "" {
		return
	}
	p.compile[uri] = diags
	p.send(uri, false)
}

// Current returns the last merged set sent for uri.
func (p *Publisher) Current(uri string) []module.Diagnostic {
	return append([]module.Diagnostic(nil), p.sent[uri]...)
}

// Counts tallies the last sent diagnostics by severity across documents.
func (p *Publisher) Counts() map[module.Severity]int {
	out := make(map[module.Severity]int)
	for _, diags := range p.sent {
		for _, d := range diags {
			out[d.Severity]++
		}
	}
	return out
}

func (p *Publisher) send(uri string, always bool) {
	merged := make([]module.Diagnostic, 0, len(p.compile[uri])+len(p.script[uri]))
	merged = append(merged, p.compile[uri]...)
	merged = append(merged, p.script[uri]...)

	prev, seen := p.sent[uri]
	if !always && seen && equal(prev, merged) {
		return
	}
	if !always && !seen && len(merged) == 0 {
		p.sent[uri] = merged
		return
	}
	p.sent[uri] = merged
	observability.DiagnosticsPublishedTotal.Inc()
	if p.sink != nil {
		p.sink.Publish(uri, merged)
	}
}

func equal(a, b []module.Diagnostic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
