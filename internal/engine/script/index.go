package script

import (
	"sort"
	"strings"
)

// Symbol is a declaration registered by one module.
type Symbol struct {
	Module string
	URI    string
	Decl   *Decl
}

// Index maps declared names to the modules declaring them. Each module's
// entries are replaced wholesale when it is post-processed again.
type Index struct {
	byName   map[string][]Symbol
	byModule map[string][]string
}

func NewIndex() *Index {
	return &Index{
		byName:   make(map[string][]Symbol),
		byModule: make(map[string][]string),
	}
}

// Register replaces every symbol previously registered for moduleName.
func (x *Index) Register(moduleName, uri string, decls []*Decl) {
	x.Remove(moduleName)
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		if d.Kind == DeclNamespace {
			for _, inner := range d.Members {
				x.byName[inner.Name] = append(x.byName[inner.Name], Symbol{Module: moduleName, URI: uri, Decl: inner})
				names = append(names, inner.Name)
			}
			continue
		}
		x.byName[d.Name] = append(x.byName[d.Name], Symbol{Module: moduleName, URI: uri, Decl: d})
		names = append(names, d.Name)
	}
	x.byModule[moduleName] = names
}

func (x *Index) Remove(moduleName string) {
	for _, name := range x.byModule[moduleName] {
		syms := x.byName[name]
		kept := syms[:0]
		for _, s := range syms {
			if s.Module != moduleName {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(x.byName, name)
		} else {
			x.byName[name] = kept
		}
	}
	delete(x.byModule, moduleName)
}

func (x *Index) Lookup(name string) []Symbol {
	return append([]Symbol(nil), x.byName[name]...)
}

// LookupType returns the declarations of name that introduce a type.
func (x *Index) LookupType(name string) []Symbol {
	var out []Symbol
	for _, s := range x.byName[name] {
		if s.Decl.Kind.IsType() {
			out = append(out, s)
		}
	}
	return out
}

// Names returns declared names starting with prefix, sorted.
func (x *Index) Names(prefix string) []string {
	out := make([]string, 0)
	for name := range x.byName {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
