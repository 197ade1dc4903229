package script

import (
	"fmt"
	"scriptls/internal/core/errors"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/query"
)

// ParseFunc makes sure a module has been parsed before it is scanned.
type ParseFunc func(m *module.Module)

// scan walks a registry snapshot a few modules per step, collecting every
// occurrence of name.
type scan struct {
	name     string
	modules  []*module.Module
	index    int
	perStep  int
	ensure   ParseFunc
	location []module.Location
}

func (s *scan) step() bool {
	for i := 0; i < s.perStep; i++ {
		if s.index >= len(s.modules) {
			return true
		}
		m := s.modules[s.index]
		s.index++
		if !m.Loaded() && m.Path == "" {
			continue
		}
		if s.ensure != nil {
			s.ensure(m)
		}
		file := fileOf(m)
		if file == nil {
			continue
		}
		for _, id := range file.Idents {
			if id.Name == s.name {
				s.location = append(s.location, module.Location{URI: m.URI, Range: id.Range})
			}
		}
	}
	return s.index >= len(s.modules)
}

func (a *Analyzer) newScan(name string, perStep int, ensure ParseFunc) *scan {
	if perStep <= 0 {
		perStep = 1
	}
	return &scan{name: name, modules: a.registry.All(), perStep: perStep, ensure: ensure}
}

// References returns a task collecting every occurrence of the identifier
// under pos across the workspace. ok is false when there is no identifier.
func (a *Analyzer) References(m *module.Module, pos module.Position, perStep int, ensure ParseFunc) (query.Task[[]module.Location], bool) {
	file := fileOf(m)
	if file == nil {
		return nil, false
	}
	id, found := file.IdentAt(pos)
	if !found {
		return nil, false
	}
	s := a.newScan(id.Name, perStep, ensure)
	return query.StepFunc[[]module.Location](func() ([]module.Location, bool) {
		if !s.step() {
			return nil, false
		}
		return s.location, true
	}), true
}

// Rename returns a task producing the edits, keyed by document URI, that
// rename the symbol under pos to newName.
func (a *Analyzer) Rename(m *module.Module, pos module.Position, newName string, perStep int, ensure ParseFunc) (query.Task[map[string][]module.TextEdit], error) {
	if !isIdentifier(newName) {
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("%q is not a valid identifier", newName))
	}
	_, oldName, err := a.PrepareRename(m, pos)
	if err != nil {
		return nil, err
	}
	s := a.newScan(oldName, perStep, ensure)
	return query.StepFunc[map[string][]module.TextEdit](func() (map[string][]module.TextEdit, bool) {
		if !s.step() {
			return nil, false
		}
		edits := make(map[string][]module.TextEdit)
		for _, loc := range s.location {
			edits[loc.URI] = append(edits[loc.URI], module.TextEdit{Range: loc.Range, NewText: newName})
		}
		return edits, true
	}), nil
}
