// Package script is the default analyzer for .as script modules. It builds
// a shallow outline of each file (imports, type declarations, members,
// identifier occurrences) and checks it against the other modules and the
// host type database.
package script

import (
	"fmt"
	"scriptls/internal/core/ports"
	"scriptls/internal/engine/module"
)

const diagnosticSource = "as"

// Analyzer implements ports.Analyzer over the script outline.
type Analyzer struct {
	registry *module.Registry
	types    ports.TypeDatabase
	index    *Index
}

var _ ports.Analyzer = (*Analyzer)(nil)

func NewAnalyzer(registry *module.Registry, types ports.TypeDatabase) *Analyzer {
	return &Analyzer{registry: registry, types: types, index: NewIndex()}
}

func (a *Analyzer) Index() *Index {
	return a.index
}

func (a *Analyzer) Parse(m *module.Module) (ports.ParseResult, error) {
	file := Parse(m.Content)
	deps := make([]string, 0, len(file.Imports))
	for _, imp := range file.Imports {
		deps = append(deps, imp.Module)
	}
	return ports.ParseResult{Syntax: file, Dependencies: deps}, nil
}

// PostProcessTypes registers the module's declarations in the index.
func (a *Analyzer) PostProcessTypes(m *module.Module) error {
	file, ok := m.Syntax.(*File)
	if !ok {
		a.index.Remove(m.Name)
		return nil
	}
	if !m.Exists {
		a.index.Remove(m.Name)
		return nil
	}
	a.index.Register(m.Name, m.URI, file.Decls)
	return nil
}

func (a *Analyzer) Resolve(m *module.Module) ([]module.Diagnostic, error) {
	file, ok := m.Syntax.(*File)
	if !ok {
		return nil, nil
	}
	var diags []module.Diagnostic
	for _, e := range file.Errors {
		diags = append(diags, diagnostic(e.Range, module.SeverityError, e.Message))
	}
	diags = append(diags, a.checkImports(m, file)...)
	diags = append(diags, a.checkDeclarations(m, file)...)
	return diags, nil
}

func (a *Analyzer) checkImports(m *module.Module, file *File) []module.Diagnostic {
	var diags []module.Diagnostic
	for _, imp := range file.Imports {
		if imp.Module == m.Name {
			diags = append(diags, diagnostic(imp.Range, module.SeverityWarning, "module imports itself"))
			continue
		}
		dep := a.registry.ByName(imp.Module)
		if dep == nil || (dep.Loaded() && !dep.Exists) {
			diags = append(diags, diagnostic(imp.Range, module.SeverityError,
				fmt.Sprintf("module %s not found", imp.Module)))
		}
	}
	return diags
}

func (a *Analyzer) checkDeclarations(m *module.Module, file *File) []module.Diagnostic {
	var diags []module.Diagnostic
	settings := a.types.Settings()
	for _, d := range file.TypeDecls() {
		for _, other := range a.index.LookupType(d.Name) {
			if other.Module != m.Name {
				diags = append(diags, diagnostic(d.NameRange, module.SeverityError,
					fmt.Sprintf("%s %s is also declared in module %s", d.Kind, d.Name, other.Module)))
				break
			}
		}

		if d.Super == "" {
			continue
		}
		scriptBases := a.index.LookupType(d.Super)
		switch {
		case len(scriptBases) > 0:
			if !settings.AutomaticImports && !m.DependsOn(scriptBases[0].Module) && scriptBases[0].Module != m.Name {
				diags = append(diags, diagnostic(d.SuperRange, module.SeverityError,
					fmt.Sprintf("%s is declared in module %s which is not imported", d.Super, scriptBases[0].Module)))
			}
		case a.types.HasType(d.Super):
			if info, ok := a.types.Lookup(d.Super); ok && info.Primitive {
				diags = append(diags, diagnostic(d.SuperRange, module.SeverityError,
					fmt.Sprintf("cannot derive from primitive type %s", d.Super)))
			}
		default:
			diags = append(diags, diagnostic(d.SuperRange, module.SeverityError,
				fmt.Sprintf("unknown base class %s", d.Super)))
		}
	}
	return diags
}

func diagnostic(r module.Range, sev module.Severity, msg string) module.Diagnostic {
	return module.Diagnostic{Range: r, Severity: sev, Message: msg, Source: diagnosticSource}
}

// fileOf returns the parsed outline of m, if any.
func fileOf(m *module.Module) *File {
	if m == nil {
		return nil
	}
	file, _ := m.Syntax.(*File)
	return file
}
