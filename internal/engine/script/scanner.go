package script

import (
	"scriptls/internal/engine/module"
	"unicode"
)

type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenPunct
)

type Token struct {
	Kind  TokenKind
	Text  string
	Range module.Range
}

// Scan splits source into tokens, dropping whitespace and comments.
// Positions count runes, not bytes.
func Scan(src string) []Token {
	s := &scanner{src: []rune(src)}
	var out []Token
	for {
		tok := s.next()
		out = append(out, tok)
		if tok.Kind == TokenEOF {
			return out
		}
	}
}

type scanner struct {
	src  []rune
	off  int
	line int
	col  int
}

func (s *scanner) pos() module.Position {
	return module.Position{Line: s.line, Character: s.col}
}

func (s *scanner) peek(n int) rune {
	if s.off+n >= len(s.src) {
		return 0
	}
	return s.src[s.off+n]
}

func (s *scanner) advance() rune {
	r := s.src[s.off]
	s.off++
	if r == '\n' {
		s.line++
		s.col = 0
	} else {
		s.col++
	}
	return r
}

func (s *scanner) skipTrivia() {
	for s.off < len(s.src) {
		r := s.peek(0)
		switch {
		case unicode.IsSpace(r):
			s.advance()
		case r == '/' && s.peek(1) == '/':
			for s.off < len(s.src) && s.peek(0) != '\n' {
				s.advance()
			}
		case r == '/' && s.peek(1) == '*':
			s.advance()
			s.advance()
			for s.off < len(s.src) && !(s.peek(0) == '*' && s.peek(1) == '/') {
				s.advance()
			}
			if s.off < len(s.src) {
				s.advance()
				s.advance()
			}
		default:
			return
		}
	}
}

func (s *scanner) next() Token {
	s.skipTrivia()
	start := s.pos()
	if s.off >= len(s.src) {
		return Token{Kind: TokenEOF, Range: module.Range{Start: start, End: start}}
	}

	begin := s.off
	r := s.peek(0)
	kind := TokenPunct
	switch {
	case r == '_' || unicode.IsLetter(r):
		kind = TokenIdent
		for s.off < len(s.src) && (s.peek(0) == '_' || unicode.IsLetter(s.peek(0)) || unicode.IsDigit(s.peek(0))) {
			s.advance()
		}
	case unicode.IsDigit(r):
		kind = TokenNumber
		for s.off < len(s.src) && (unicode.IsDigit(s.peek(0)) || unicode.IsLetter(s.peek(0)) || s.peek(0) == '.') {
			s.advance()
		}
	case r == '"' || r == '\'':
		kind = TokenString
		quote := s.advance()
		for s.off < len(s.src) && s.peek(0) != quote && s.peek(0) != '\n' {
			if s.peek(0) == '\\' && s.off+1 < len(s.src) {
				s.advance()
			}
			s.advance()
		}
		if s.off < len(s.src) && s.peek(0) == quote {
			s.advance()
		}
	case r == ':' && s.peek(1) == ':':
		s.advance()
		s.advance()
	default:
		s.advance()
	}
	return Token{
		Kind:  kind,
		Text:  string(s.src[begin:s.off]),
		Range: module.Range{Start: start, End: s.pos()},
	}
}
