package script

import (
	"fmt"
	"scriptls/internal/core/errors"
	"scriptls/internal/engine/module"
	"sort"
	"strings"
	"unicode"
)

const maxCompletionItems = 500

type CompletionKind int

const (
	CompletionKeyword CompletionKind = iota
	CompletionScriptType
	CompletionHostType
	CompletionFunction
	CompletionProperty
)

type CompletionItem struct {
	Label  string
	Kind   CompletionKind
	Detail string
}

// SymbolInfo is one entry of a document outline.
type SymbolInfo struct {
	Name           string
	Kind           DeclKind
	Detail         string
	Range          module.Range
	SelectionRange module.Range
	Children       []SymbolInfo
}

// Complete offers names matching the identifier being typed at pos.
func (a *Analyzer) Complete(m *module.Module, pos module.Position) []CompletionItem {
	prefix := identifierPrefix(m.Content, pos)
	seen := make(map[string]struct{})
	var items []CompletionItem
	add := func(label string, kind CompletionKind, detail string) {
		if _, ok := seen[label]; ok {
			return
		}
		seen[label] = struct{}{}
		items = append(items, CompletionItem{Label: label, Kind: kind, Detail: detail})
	}

	if file := fileOf(m); file != nil {
		for _, d := range file.Decls {
			for _, member := range d.Members {
				if strings.HasPrefix(member.Name, prefix) {
					add(member.Name, memberCompletionKind(member), d.Name)
				}
			}
		}
	}
	for _, name := range a.index.Names(prefix) {
		syms := a.index.Lookup(name)
		kind := CompletionFunction
		if len(syms) > 0 {
			if syms[0].Decl.Kind.IsType() {
				kind = CompletionScriptType
			} else {
				kind = memberCompletionKind(syms[0].Decl)
			}
		}
		detail := ""
		if len(syms) > 0 {
			detail = syms[0].Module
		}
		add(name, kind, detail)
	}
	if a.types.HasTypes() {
		for _, name := range a.types.TypeNames(prefix) {
			add(name, CompletionHostType, "")
		}
	}
	keywords := Keywords()
	sort.Strings(keywords)
	for _, kw := range keywords {
		if strings.HasPrefix(kw, prefix) {
			add(kw, CompletionKeyword, "")
		}
	}

	if len(items) > maxCompletionItems {
		items = items[:maxCompletionItems]
	}
	return items
}

func memberCompletionKind(d *Decl) CompletionKind {
	if d.Kind == DeclFunction {
		return CompletionFunction
	}
	return CompletionProperty
}

// Hover describes the symbol under pos.
func (a *Analyzer) Hover(m *module.Module, pos module.Position) (string, module.Range, bool) {
	file := fileOf(m)
	if file == nil {
		return "", module.Range{}, false
	}
	id, ok := file.IdentAt(pos)
	if !ok {
		return "", module.Range{}, false
	}
	if syms := a.index.Lookup(id.Name); len(syms) > 0 {
		d := syms[0].Decl
		text := fmt.Sprintf("%s %s", d.Kind, d.Name)
		if d.Super != "" {
			text += " : " + d.Super
		}
		return fmt.Sprintf("```as\n%s\n```\nDeclared in %s", text, syms[0].Module), id.Range, true
	}
	if info, ok := a.types.Lookup(id.Name); ok {
		text := "type " + info.Name
		if info.Super != "" {
			text += " : " + info.Super
		}
		return fmt.Sprintf("```as\n%s\n```", text), id.Range, true
	}
	return "", module.Range{}, false
}

// Definition returns the script declarations of the name under pos.
func (a *Analyzer) Definition(m *module.Module, pos module.Position) []module.Location {
	file := fileOf(m)
	if file == nil {
		return nil
	}
	id, ok := file.IdentAt(pos)
	if !ok {
		return nil
	}
	var out []module.Location
	for _, s := range a.index.Lookup(id.Name) {
		uri := s.URI
		if uri == "" {
			if mod := a.registry.ByName(s.Module); mod != nil {
				uri = mod.URI
			}
		}
		out = append(out, module.Location{URI: uri, Range: s.Decl.NameRange})
	}
	if len(out) == 0 {
		for _, d := range file.Decls {
			for _, member := range d.Members {
				if member.Name == id.Name {
					out = append(out, module.Location{URI: m.URI, Range: member.NameRange})
				}
			}
		}
	}
	return out
}

func (a *Analyzer) DocumentSymbols(m *module.Module) []SymbolInfo {
	file := fileOf(m)
	if file == nil {
		return nil
	}
	return symbolsOf(file.Decls)
}

func symbolsOf(decls []*Decl) []SymbolInfo {
	out := make([]SymbolInfo, 0, len(decls))
	for _, d := range decls {
		info := SymbolInfo{
			Name:           d.Name,
			Kind:           d.Kind,
			Detail:         d.Super,
			Range:          d.Range,
			SelectionRange: d.NameRange,
			Children:       symbolsOf(d.Members),
		}
		if info.Range == (module.Range{}) {
			info.Range = d.NameRange
		}
		out = append(out, info)
	}
	return out
}

// PrepareRename validates that the identifier under pos names a script
// declaration and returns its range and current text.
func (a *Analyzer) PrepareRename(m *module.Module, pos module.Position) (module.Range, string, error) {
	file := fileOf(m)
	if file == nil {
		return module.Range{}, "", errors.New(errors.CodeNotReady, "module not parsed")
	}
	id, ok := file.IdentAt(pos)
	if !ok {
		return module.Range{}, "", errors.New(errors.CodeValidationError, "no symbol at position")
	}
	if len(a.index.Lookup(id.Name)) == 0 && !a.declaredLocally(file, id.Name) {
		if a.types.HasType(id.Name) {
			return module.Range{}, "", errors.New(errors.CodeNotSupported, fmt.Sprintf("%s is declared by the engine and cannot be renamed", id.Name))
		}
		return module.Range{}, "", errors.New(errors.CodeNotFound, fmt.Sprintf("no declaration found for %s", id.Name))
	}
	return id.Range, id.Name, nil
}

func (a *Analyzer) declaredLocally(file *File, name string) bool {
	for _, d := range file.Decls {
		if d.Name == name {
			return true
		}
		for _, member := range d.Members {
			if member.Name == name {
				return true
			}
		}
	}
	return false
}

// identifierPrefix returns the identifier characters immediately before pos.
func identifierPrefix(content string, pos module.Position) string {
	lines := strings.Split(content, "\n")
	if pos.Line < 0 || pos.Line >= len(lines) {
		return ""
	}
	line := []rune(lines[pos.Line])
	end := pos.Character
	if end > len(line) {
		end = len(line)
	}
	start := end
	for start > 0 && (line[start-1] == '_' || unicode.IsLetter(line[start-1]) || unicode.IsDigit(line[start-1])) {
		start--
	}
	return string(line[start:end])
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return !isKeyword(s)
}
