// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds3

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokEquals
	tokOpenParen
	tokCloseParen
	tokOpenBrace
	tokCloseBrace
	tokComma
)

type token struct {
	kind tokenKind
	text string // decoded text; for strings the content without quotes
	raw  string // original source text including quotes
	line int
	col  int
}

// scanner tokenizes ODL text. Comments are skipped, positions are
// tracked in lines and runes.
type scanner struct {
	file  string
	src   []rune
	pos   int
	line  int
	col   int
	saved *token
}

func newScanner(file, src string) *scanner {
	return &scanner{file: file, src: []rune(src), line: 1, col: 1}
}

func (s *scanner) advance() rune {
	r := s.src[s.pos]
	s.pos++
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peekRune() rune {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

// skipSpace consumes whitespace and /* ... */ comments.
func (s *scanner) skipSpace() error {
	for !s.eof() {
		r := s.peekRune()
		switch {
		case unicode.IsSpace(r):
			s.advance()
		case r == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			line, col := s.line, s.col
			s.advance()
			s.advance()
			closed := false
			for !s.eof() {
				if s.peekRune() == '*' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/' {
					s.advance()
					s.advance()
					closed = true
					break
				}
				s.advance()
			}
			if !closed {
				return parseErr(s.file, line, col, "/*", "unterminated comment")
			}
		default:
			return nil
		}
	}
	return nil
}

// unread pushes a token back; a single slot suffices for this grammar.
func (s *scanner) unread(t token) { s.saved = &t }

func (s *scanner) next() (token, error) {
	if s.saved != nil {
		t := *s.saved
		s.saved = nil
		return t, nil
	}
	if err := s.skipSpace(); err != nil {
		return token{}, err
	}
	if s.eof() {
		return token{kind: tokEOF, line: s.line, col: s.col}, nil
	}
	line, col := s.line, s.col
	r := s.peekRune()
	switch r {
	case '=':
		s.advance()
		return token{kind: tokEquals, text: "=", raw: "=", line: line, col: col}, nil
	case '(':
		s.advance()
		return token{kind: tokOpenParen, text: "(", raw: "(", line: line, col: col}, nil
	case ')':
		s.advance()
		return token{kind: tokCloseParen, text: ")", raw: ")", line: line, col: col}, nil
	case '{':
		s.advance()
		return token{kind: tokOpenBrace, text: "{", raw: "{", line: line, col: col}, nil
	case '}':
		s.advance()
		return token{kind: tokCloseBrace, text: "}", raw: "}", line: line, col: col}, nil
	case ',':
		s.advance()
		return token{kind: tokComma, text: ",", raw: ",", line: line, col: col}, nil
	case '"':
		return s.scanString(line, col)
	}
	return s.scanWord(line, col)
}

// scanString reads a quoted, possibly multi-line string literal.
func (s *scanner) scanString(line, col int) (token, error) {
	var content strings.Builder
	s.advance() // opening quote
	for {
		if s.eof() {
			return token{}, parseErr(s.file, line, col, "\"", "unterminated string")
		}
		r := s.advance()
		if r == '"' {
			text := content.String()
			return token{
				kind: tokString,
				text: text,
				raw:  `"` + text + `"`,
				line: line,
				col:  col,
			}, nil
		}
		content.WriteRune(r)
	}
}

func isWordRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '_', '-', '.', ':', '/', '+', '\'', '<', '>', '^', '*', '%', '#', '&', '@', '!', '?', ';':
		return true
	}
	return false
}

// scanWord reads a bareword: identifier, number, or date. The
// classification into number and date happens at the value layer.
func (s *scanner) scanWord(line, col int) (token, error) {
	var word strings.Builder
	for !s.eof() && isWordRune(s.peekRune()) {
		word.WriteRune(s.advance())
	}
	text := word.String()
	if text == "" {
		r := s.advance()
		return token{}, parseErr(s.file, line, col, string(r), "unexpected character")
	}
	kind := tokIdent
	if isNumeric(text) {
		kind = tokNumber
	}
	return token{kind: kind, text: text, raw: text, line: line, col: col}, nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
