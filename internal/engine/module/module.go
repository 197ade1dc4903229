package module

import (
	"scriptls/internal/engine/loop"
	"sort"
)

// State is the furthest analysis stage a module has completed.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateParsed
	StateTypesPostProcessed
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateParsed:
		return "parsed"
	case StateTypesPostProcessed:
		return "types_post_processed"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Module is the in-memory analysis record of one script file.
//
// The stage flags only move forward through the Mark* methods, each of which
// refuses to skip a stage, and move backward through ResetTo, which clears
// every later stage with it.
type Module struct {
	Name string
	URI  string
	Path string

	Content  string
	Version  int
	Exists   bool
	IsOpened bool

	// Syntax is the analyzer's parse payload; Dependencies is derived from it.
	Syntax       any
	Dependencies []string

	// Diagnostics produced by the last resolve.
	Diagnostics []Diagnostic

	failures map[State]Diagnostic

	loaded             bool
	parsed             bool
	typesPostProcessed bool
	resolved           bool

	debounce *loop.Timer
}

func (m *Module) Loaded() bool             { return m.loaded }
func (m *Module) Parsed() bool             { return m.parsed }
func (m *Module) TypesPostProcessed() bool { return m.typesPostProcessed }
func (m *Module) Resolved() bool           { return m.resolved }

func (m *Module) State() State {
	switch {
	case m.resolved:
		return StateResolved
	case m.typesPostProcessed:
		return StateTypesPostProcessed
	case m.parsed:
		return StateParsed
	case m.loaded:
		return StateLoaded
	default:
		return StateUnloaded
	}
}

// SetContent replaces the text and drops the module back to Loaded.
func (m *Module) SetContent(text string) {
	m.Content = text
	m.Exists = true
	m.Version++
	m.loaded = true
	m.failures = nil
	m.ResetTo(StateLoaded)
}

// MarkDeleted models a file that disappeared from disk: empty, absent, and
// pending re-analysis so dependents see it go away.
func (m *Module) MarkDeleted() {
	m.Content = ""
	m.Exists = false
	m.Version++
	m.loaded = true
	m.failures = nil
	m.ResetTo(StateLoaded)
}

func (m *Module) MarkParsed(syntax any, deps []string) bool {
	if !m.loaded {
		return false
	}
	m.Syntax = syntax
	m.Dependencies = normalizeDeps(deps, m.Name)
	m.parsed = true
	return true
}

func (m *Module) MarkTypesPostProcessed() bool {
	if !m.parsed {
		return false
	}
	m.typesPostProcessed = true
	return true
}

func (m *Module) MarkResolved(diags []Diagnostic) bool {
	if !m.typesPostProcessed {
		return false
	}
	m.Diagnostics = diags
	m.resolved = true
	return true
}

// ResetTo clears every stage after s. Stages at or before s keep their value.
func (m *Module) ResetTo(s State) {
	if s < StateResolved {
		m.resolved = false
	}
	if s < StateTypesPostProcessed {
		m.typesPostProcessed = false
	}
	if s < StateParsed {
		m.parsed = false
		m.Syntax = nil
	}
	if s < StateLoaded {
		m.loaded = false
	}
	for stage := range m.failures {
		if stage > s {
			delete(m.failures, stage)
		}
	}
}

// SetStageFailure records that the analyzer failed while completing stage.
// The record is dropped once the stage is cleared again.
func (m *Module) SetStageFailure(stage State, d Diagnostic) {
	if m.failures == nil {
		m.failures = make(map[State]Diagnostic)
	}
	m.failures[stage] = d
}

// StageFailures returns recorded analyzer failures in stage order.
func (m *Module) StageFailures() []Diagnostic {
	if len(m.failures) == 0 {
		return nil
	}
	out := make([]Diagnostic, 0, len(m.failures))
	for stage := StateLoaded; stage <= StateResolved; stage++ {
		if d, ok := m.failures[stage]; ok {
			out = append(out, d)
		}
	}
	return out
}

// ReplaceDebounce installs t as the pending debounce timer, stopping any
// previous one.
func (m *Module) ReplaceDebounce(t *loop.Timer) {
	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.debounce = t
}

// ClearDebounce forgets the pending timer without stopping it; used by the
// timer's own callback.
func (m *Module) ClearDebounce() {
	m.debounce = nil
}

func (m *Module) HasPendingDebounce() bool {
	return m.debounce != nil && m.debounce.Active()
}

func (m *Module) DependsOn(name string) bool {
	i := sort.SearchStrings(m.Dependencies, name)
	return i < len(m.Dependencies) && m.Dependencies[i] == name
}

func normalizeDeps(deps []string, self string) []string {
	if len(deps) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(deps))
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep == "" || dep == self {
			continue
		}
		if _, ok := seen[dep]; ok {
			continue
		}
		seen[dep] = struct{}{}
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}
