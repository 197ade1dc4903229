package module

import "strings"

const DefaultExtension = ".as"

// Registry maps canonical names and URIs to modules. Modules are created on
// first reference and live for the whole session.
type Registry struct {
	byName    map[string]*Module
	byURI     map[string]*Module
	order     []*Module
	roots     []string
	extension string
}

func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]*Module),
		byURI:     make(map[string]*Module),
		extension: DefaultExtension,
	}
}

// SetRoots records workspace root URIs used to derive module names.
func (r *Registry) SetRoots(rootURIs []string) {
	roots := make([]string, 0, len(rootURIs))
	for _, root := range rootURIs {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		roots = append(roots, root)
	}
	r.roots = roots
}

func (r *Registry) Roots() []string {
	return append([]string(nil), r.roots...)
}

func (r *Registry) SetExtension(ext string) {
	if strings.TrimSpace(ext) != "" {
		r.extension = ext
	}
}

func (r *Registry) NameForURI(uri string) string {
	return NameForURI(uri, r.roots, r.extension)
}

// GetOrCreate returns the module with the given name, creating it unloaded
// if this is the first reference.
func (r *Registry) GetOrCreate(name, path, uri string) *Module {
	if m, ok := r.byName[name]; ok {
		if m.URI == "" && uri != "" {
			m.URI = uri
			r.byURI[uri] = m
		}
		if m.Path == "" && path != "" {
			m.Path = path
		}
		return m
	}
	m := &Module{Name: name, Path: path, URI: uri}
	r.byName[name] = m
	if uri != "" {
		r.byURI[uri] = m
	}
	r.order = append(r.order, m)
	return m
}

// GetOrCreateForURI resolves name and path from the URI.
func (r *Registry) GetOrCreateForURI(uri string) *Module {
	if m, ok := r.byURI[uri]; ok {
		return m
	}
	return r.GetOrCreate(r.NameForURI(uri), URIToPath(uri), uri)
}

func (r *Registry) ByName(name string) *Module {
	return r.byName[name]
}

func (r *Registry) ByURI(uri string) *Module {
	return r.byURI[uri]
}

func (r *Registry) Len() int {
	return len(r.order)
}

// All returns a snapshot of every module in creation order.
func (r *Registry) All() []*Module {
	return append([]*Module(nil), r.order...)
}

// Dependents returns modules whose parsed dependencies include name.
func (r *Registry) Dependents(name string) []*Module {
	var out []*Module
	for _, m := range r.order {
		if m.parsed && m.DependsOn(name) {
			out = append(out, m)
		}
	}
	return out
}

// ClearAllResolved drops every module back from Resolved, leaving earlier
// stages untouched. It returns how many modules changed.
func (r *Registry) ClearAllResolved() int {
	n := 0
	for _, m := range r.order {
		if m.resolved {
			m.ResetTo(StateTypesPostProcessed)
			n++
		}
	}
	return n
}

// CountByState tallies modules per stage.
func (r *Registry) CountByState() map[State]int {
	out := make(map[State]int, 5)
	for _, m := range r.order {
		out[m.State()]++
	}
	return out
}
