package script

import (
	"fmt"
	"scriptls/internal/engine/module"
	"strings"
)

type DeclKind int

const (
	DeclClass DeclKind = iota
	DeclStruct
	DeclEnum
	DeclDelegate
	DeclEvent
	DeclFunction
	DeclProperty
	DeclNamespace
)

func (k DeclKind) String() string {
	switch k {
	case DeclClass:
		return "class"
	case DeclStruct:
		return "struct"
	case DeclEnum:
		return "enum"
	case DeclDelegate:
		return "delegate"
	case DeclEvent:
		return "event"
	case DeclFunction:
		return "function"
	case DeclProperty:
		return "property"
	case DeclNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// IsType reports whether declarations of this kind introduce a type name.
func (k DeclKind) IsType() bool {
	switch k {
	case DeclClass, DeclStruct, DeclEnum, DeclDelegate, DeclEvent:
		return true
	}
	return false
}

type Decl struct {
	Kind       DeclKind
	Name       string
	Super      string
	SuperRange module.Range
	NameRange  module.Range
	Range      module.Range
	Members    []*Decl
}

type Import struct {
	Module string
	Range  module.Range
}

type Ident struct {
	Name  string
	Range module.Range
}

type SyntaxError struct {
	Message string
	Range   module.Range
}

// File is the parse payload stored on a module.
type File struct {
	Imports []Import
	Decls   []*Decl
	Idents  []Ident
	Errors  []SyntaxError
}

// TypeDecls returns the top-level declarations that define types.
func (f *File) TypeDecls() []*Decl {
	var out []*Decl
	for _, d := range f.Decls {
		if d.Kind.IsType() {
			out = append(out, d)
		}
	}
	return out
}

// IdentAt returns the identifier covering pos.
func (f *File) IdentAt(pos module.Position) (Ident, bool) {
	for _, id := range f.Idents {
		if id.Range.Contains(pos) {
			return id, true
		}
		if id.Range.End == pos {
			return id, true
		}
	}
	return Ident{}, false
}

// Parse builds a shallow outline of src: imports, top-level declarations,
// class members and every identifier occurrence.
func Parse(src string) *File {
	p := &parser{toks: Scan(src), file: &File{}}
	p.parseFile()
	return p.file
}

type parser struct {
	toks []Token
	pos  int
	file *File
}

func (p *parser) peek(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() Token {
	tok := p.peek(0)
	if tok.Kind != TokenEOF {
		p.pos++
	}
	if tok.Kind == TokenIdent && !isKeyword(tok.Text) {
		p.file.Idents = append(p.file.Idents, Ident{Name: tok.Text, Range: tok.Range})
	}
	return tok
}

func (p *parser) is(text string) bool {
	tok := p.peek(0)
	return tok.Kind != TokenEOF && tok.Text == text
}

func (p *parser) errorf(r module.Range, format string, args ...any) {
	p.file.Errors = append(p.file.Errors, SyntaxError{Message: fmt.Sprintf(format, args...), Range: r})
}

func (p *parser) parseFile() {
	for p.peek(0).Kind != TokenEOF {
		p.parseTopLevel(&p.file.Decls)
	}
}

func (p *parser) parseTopLevel(into *[]*Decl) {
	tok := p.peek(0)
	switch tok.Text {
	case "import":
		p.parseImport()
	case "class", "struct":
		if d := p.parseClass(); d != nil {
			*into = append(*into, d)
		}
	case "enum":
		if d := p.parseEnum(); d != nil {
			*into = append(*into, d)
		}
	case "delegate", "event":
		if d := p.parseSignature(); d != nil {
			*into = append(*into, d)
		}
	case "namespace":
		p.parseNamespace(into)
	case "}":
		p.errorf(tok.Range, "unexpected '}'")
		p.next()
	case ";":
		p.next()
	default:
		if isSpecifierMacro(tok.Text) {
			p.next()
			p.skipParens()
			return
		}
		if d := p.parseMember(); d != nil {
			*into = append(*into, d)
		}
	}
}

func (p *parser) parseImport() {
	start := p.next()
	var parts []string
	first := p.peek(0)
	for p.peek(0).Kind == TokenIdent {
		parts = append(parts, p.next().Text)
		if !p.is(".") {
			break
		}
		p.next()
	}
	if len(parts) > 0 && p.is(";") {
		end := p.next()
		p.file.Imports = append(p.file.Imports, Import{
			Module: strings.Join(parts, "."),
			Range:  module.Range{Start: first.Range.Start, End: end.Range.Start},
		})
		return
	}
	// import <signature> from "Module";
	for p.peek(0).Kind != TokenEOF && !p.is(";") {
		if p.is("from") {
			p.next()
			if lit := p.peek(0); lit.Kind == TokenString {
				p.next()
				p.file.Imports = append(p.file.Imports, Import{Module: unquote(lit.Text), Range: lit.Range})
			}
			continue
		}
		p.next()
	}
	if !p.is(";") {
		p.errorf(start.Range, "expected ';' after import")
		return
	}
	p.next()
}

func (p *parser) parseClass() *Decl {
	kw := p.next()
	kind := DeclClass
	if kw.Text == "struct" {
		kind = DeclStruct
	}
	name := p.peek(0)
	if name.Kind != TokenIdent {
		p.errorf(kw.Range, "expected %s name", kw.Text)
		p.recover()
		return nil
	}
	p.next()
	d := &Decl{Kind: kind, Name: name.Text, NameRange: name.Range}
	if p.is(":") {
		p.next()
		if base := p.peek(0); base.Kind == TokenIdent {
			p.next()
			d.Super = base.Text
			d.SuperRange = base.Range
		} else {
			p.errorf(name.Range, "expected base class after ':'")
		}
		for p.is(",") {
			p.next()
			if p.peek(0).Kind == TokenIdent {
				p.next()
			}
		}
	}
	if !p.is("{") {
		p.errorf(name.Range, "expected '{' after %s %s", kw.Text, name.Text)
		p.recover()
		return d
	}
	p.next()
	for !p.is("}") && p.peek(0).Kind != TokenEOF {
		tok := p.peek(0)
		switch {
		case isSpecifierMacro(tok.Text):
			p.next()
			p.skipParens()
		case tok.Text == "default" || tok.Text == ";":
			p.skipStatement()
		case isAccessSpecifier(tok.Text):
			p.next()
			if p.is(":") {
				p.next()
			}
		default:
			if m := p.parseMember(); m != nil {
				d.Members = append(d.Members, m)
			}
		}
	}
	end := p.peek(0)
	if !p.is("}") {
		p.errorf(name.Range, "missing '}' for %s %s", kw.Text, name.Text)
	} else {
		p.next()
	}
	d.Range = module.Range{Start: kw.Range.Start, End: end.Range.End}
	return d
}

func (p *parser) parseEnum() *Decl {
	kw := p.next()
	name := p.peek(0)
	if name.Kind != TokenIdent {
		p.errorf(kw.Range, "expected enum name")
		p.recover()
		return nil
	}
	p.next()
	d := &Decl{Kind: DeclEnum, Name: name.Text, NameRange: name.Range}
	if !p.is("{") {
		p.errorf(name.Range, "expected '{' after enum %s", name.Text)
		p.recover()
		return d
	}
	p.next()
	expectValue := true
	for !p.is("}") && p.peek(0).Kind != TokenEOF {
		tok := p.next()
		switch {
		case tok.Text == ",":
			expectValue = true
		case expectValue && tok.Kind == TokenIdent:
			d.Members = append(d.Members, &Decl{Kind: DeclProperty, Name: tok.Text, NameRange: tok.Range, Range: tok.Range})
			expectValue = false
		}
	}
	end := p.peek(0)
	if !p.is("}") {
		p.errorf(name.Range, "missing '}' for enum %s", name.Text)
	} else {
		p.next()
	}
	d.Range = module.Range{Start: kw.Range.Start, End: end.Range.End}
	return d
}

// parseSignature handles `delegate Ret Name(args);` and `event Ret Name(args);`.
func (p *parser) parseSignature() *Decl {
	kw := p.next()
	kind := DeclDelegate
	if kw.Text == "event" {
		kind = DeclEvent
	}
	var name Token
	for p.peek(0).Kind != TokenEOF && !p.is("(") && !p.is(";") {
		tok := p.next()
		if tok.Kind == TokenIdent {
			name = tok
		}
	}
	if name.Text == "" || !p.is("(") {
		p.errorf(kw.Range, "malformed %s declaration", kw.Text)
		p.skipStatement()
		return nil
	}
	p.skipParens()
	end := p.peek(0)
	if p.is(";") {
		p.next()
	} else {
		p.errorf(name.Range, "expected ';' after %s %s", kw.Text, name.Text)
	}
	return &Decl{Kind: kind, Name: name.Text, NameRange: name.Range, Range: module.Range{Start: kw.Range.Start, End: end.Range.End}}
}

func (p *parser) parseNamespace(into *[]*Decl) {
	kw := p.next()
	name := p.peek(0)
	if name.Kind == TokenIdent {
		p.next()
	}
	if !p.is("{") {
		p.errorf(kw.Range, "expected '{' after namespace")
		p.recover()
		return
	}
	p.next()
	ns := &Decl{Kind: DeclNamespace, Name: name.Text, NameRange: name.Range}
	for !p.is("}") && p.peek(0).Kind != TokenEOF {
		p.parseTopLevel(&ns.Members)
	}
	end := p.peek(0)
	if p.is("}") {
		p.next()
	} else {
		p.errorf(kw.Range, "missing '}' for namespace")
	}
	ns.Range = module.Range{Start: kw.Range.Start, End: end.Range.End}
	*into = append(*into, ns)
}

// parseMember reads a function or variable declaration at class or file
// scope. Anything it does not recognise is skipped up to the next statement
// boundary.
func (p *parser) parseMember() *Decl {
	start := p.peek(0)
	var last Token
	for p.peek(0).Kind != TokenEOF {
		tok := p.peek(0)
		switch tok.Text {
		case "(":
			if last.Kind != TokenIdent {
				p.skipStatement()
				return nil
			}
			p.skipParens()
			for p.peek(0).Kind == TokenIdent {
				p.next()
			}
			d := &Decl{Kind: DeclFunction, Name: last.Text, NameRange: last.Range}
			end := p.peek(0)
			if p.is("{") {
				end = p.skipBlock()
			} else if p.is(";") {
				p.next()
			}
			d.Range = module.Range{Start: start.Range.Start, End: end.Range.End}
			return d
		case ";", "=":
			if last.Kind != TokenIdent {
				p.skipStatement()
				return nil
			}
			d := &Decl{Kind: DeclProperty, Name: last.Text, NameRange: last.Range}
			end := p.skipStatement()
			d.Range = module.Range{Start: start.Range.Start, End: end.Range.End}
			return d
		case "{", "}":
			if tok.Text == "{" {
				p.skipBlock()
			}
			return nil
		}
		last = p.next()
	}
	return nil
}

func (p *parser) skipParens() {
	if !p.is("(") {
		return
	}
	open := p.next()
	depth := 1
	for depth > 0 {
		tok := p.peek(0)
		if tok.Kind == TokenEOF {
			p.errorf(open.Range, "unbalanced '('")
			return
		}
		p.next()
		switch tok.Text {
		case "(":
			depth++
		case ")":
			depth--
		}
	}
}

// skipBlock consumes a balanced {...} and returns its closing token.
func (p *parser) skipBlock() Token {
	open := p.next()
	depth := 1
	for {
		tok := p.peek(0)
		if tok.Kind == TokenEOF {
			p.errorf(open.Range, "unbalanced '{'")
			return tok
		}
		p.next()
		switch tok.Text {
		case "{":
			depth++
		case "}":
			depth--
			if depth == 0 {
				return tok
			}
		}
	}
}

// skipStatement consumes up to and including the next ';' at this nesting
// level, stopping before a closing brace.
func (p *parser) skipStatement() Token {
	last := p.peek(0)
	for p.peek(0).Kind != TokenEOF {
		tok := p.peek(0)
		switch tok.Text {
		case ";":
			return p.next()
		case "}":
			return last
		case "{":
			last = p.skipBlock()
			continue
		case "(":
			p.skipParens()
			continue
		}
		last = p.next()
	}
	return last
}

func (p *parser) recover() {
	for p.peek(0).Kind != TokenEOF {
		if p.is(";") {
			p.next()
			return
		}
		if p.is("{") {
			p.skipBlock()
			return
		}
		if p.is("}") {
			return
		}
		p.next()
	}
}

var keywords = map[string]struct{}{
	"import": {}, "from": {}, "class": {}, "struct": {}, "enum": {}, "delegate": {},
	"event": {}, "namespace": {}, "if": {}, "else": {}, "for": {}, "while": {}, "do": {},
	"switch": {}, "case": {}, "break": {}, "continue": {}, "return": {}, "default": {},
	"const": {}, "void": {}, "true": {}, "false": {}, "nullptr": {}, "this": {}, "Super": {},
	"private": {}, "protected": {}, "public": {}, "access": {}, "override": {}, "final": {},
	"property": {}, "mixin": {}, "local": {}, "auto": {}, "in": {}, "out": {}, "inout": {},
	"fallthrough": {}, "cast": {}, "bool": {}, "int": {}, "float": {}, "double": {},
}

func isKeyword(s string) bool {
	_, ok := keywords[s]
	return ok
}

// Keywords returns the reserved words, used for completion.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	return out
}

func isSpecifierMacro(s string) bool {
	switch s {
	case "UCLASS", "USTRUCT", "UENUM", "UFUNCTION", "UPROPERTY", "UMETA", "UINTERFACE":
		return true
	}
	return false
}

func isAccessSpecifier(s string) bool {
	switch s {
	case "private", "protected", "public":
		return true
	}
	return false
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return strings.Trim(s, `"'`)
}
