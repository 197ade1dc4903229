// Package typedb holds the type catalogue streamed from the host process.
//
// The catalogue is filled by partial snapshots and only becomes
// authoritative once Finish is called, either because the host said it was
// done or because it went quiet for long enough. Until then HasTypes is false
// and type-dependent analysis stages stay gated.
package typedb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type TypeInfo struct {
	Name      string
	Super     string
	Primitive bool
	Raw       json.RawMessage
}

// ScriptSettings is the host's language settings snapshot.
type ScriptSettings struct {
	AutomaticImports              bool
	FloatIsFloat64                bool
	UseAngelscriptHaze            bool
	DeprecateStaticClass          bool
	DisallowStaticClass           bool
	ExposeGlobalFunctions         bool
	DeprecateActorGenerics        bool
	DisallowActorGenerics         bool
	EngineSupportsCreateBlueprint bool
}

type typeDefinition struct {
	Super     string `json:"super"`
	SuperType string `json:"superType"`
}

type Gateway struct {
	types      map[string]*TypeInfo
	finished   bool
	partials   int
	generation int
	settings   ScriptSettings
}

func NewGateway() *Gateway {
	return &Gateway{types: make(map[string]*TypeInfo)}
}

// AddPartial merges one snapshot chunk, a JSON object keyed by type name.
// Later chunks override earlier definitions of the same name.
func (g *Gateway) AddPartial(raw []byte) (int, error) {
	var chunk map[string]json.RawMessage
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return 0, fmt.Errorf("decode type snapshot: %w", err)
	}
	for name, body := range chunk {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		info := &TypeInfo{Name: name, Raw: append(json.RawMessage(nil), body...)}
		var def typeDefinition
		if err := json.Unmarshal(body, &def); err == nil {
			info.Super = def.Super
			if info.Super == "" {
				info.Super = def.SuperType
			}
		}
		g.types[name] = info
	}
	g.partials++
	return len(chunk), nil
}

// Finish marks the catalogue authoritative with whatever has arrived and
// adds the built-in primitive types.
func (g *Gateway) Finish() {
	g.addPrimitives()
	g.finished = true
	g.generation++
}

// Invalidate empties the catalogue and drops readiness until the next Finish.
func (g *Gateway) Invalidate() {
	g.types = make(map[string]*TypeInfo)
	g.finished = false
	g.partials = 0
	g.generation++
}

func (g *Gateway) HasTypes() bool {
	return g.finished
}

// Receiving reports whether partial snapshots have arrived since the last
// invalidation without a finish.
func (g *Gateway) Receiving() bool {
	return !g.finished && g.partials > 0
}

func (g *Gateway) Generation() int {
	return g.generation
}

func (g *Gateway) Len() int {
	return len(g.types)
}

func (g *Gateway) HasType(name string) bool {
	_, ok := g.types[name]
	return ok
}

func (g *Gateway) Lookup(name string) (TypeInfo, bool) {
	info, ok := g.types[name]
	if !ok {
		return TypeInfo{}, false
	}
	return *info, true
}

// TypeNames returns type names starting with prefix, sorted.
func (g *Gateway) TypeNames(prefix string) []string {
	out := make([]string, 0)
	for name := range g.types {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Gateway) Settings() ScriptSettings {
	return g.settings
}

func (g *Gateway) SetSettings(s ScriptSettings) {
	g.settings = s
}

var basePrimitives = []string{
	"bool", "int", "int8", "int16", "int32", "int64",
	"uint", "uint8", "uint16", "uint32", "uint64",
	"float32", "float64", "double", "void", "FString", "FName",
}

func (g *Gateway) addPrimitives() {
	for _, name := range basePrimitives {
		if _, ok := g.types[name]; !ok {
			g.types[name] = &TypeInfo{Name: name, Primitive: true}
		}
	}
	alias := "float32"
	if g.settings.FloatIsFloat64 {
		alias = "float64"
	}
	g.types["float"] = &TypeInfo{Name: "float", Super: alias, Primitive: true}
}
