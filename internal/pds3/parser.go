// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds3

// Block is one OBJECT ... END_OBJECT region with its properties and
// nested sub-blocks, in source order.
type Block struct {
	Name  string
	Line  int
	Props Properties
	Subs  []Block
}

// SubsNamed returns the sub-blocks with one of the given names.
func (b Block) SubsNamed(names ...string) []Block {
	var out []Block
	for _, sub := range b.Subs {
		for _, name := range names {
			if sub.Name == name {
				out = append(out, sub)
				break
			}
		}
	}
	return out
}

// Document is one parsed catalog file: the header properties
// (PDS_VERSION_ID and friends) and the top-level object blocks.
// Personnel and reference files carry many top-level blocks.
type Document struct {
	File   string
	Header Properties
	Blocks []Block
}

// Parse tokenizes and parses one catalog file. The file name is used
// only for error positions.
func Parse(file, src string) (*Document, error) {
	s := newScanner(file, src)
	doc := &Document{File: file}
	for {
		t, err := s.next()
		if err != nil {
			return nil, err
		}
		switch {
		case t.kind == tokEOF:
			if len(doc.Blocks) == 0 {
				return nil, parseErr(file, t.line, t.col, "", "no OBJECT block found")
			}
			return doc, nil
		case t.kind == tokIdent && t.text == "END":
			// END terminates the label; anything after is ignored.
			return finishDocument(doc, file, t)
		case t.kind == tokIdent && t.text == "OBJECT":
			block, err := parseBlock(s, file)
			if err != nil {
				return nil, err
			}
			doc.Blocks = append(doc.Blocks, *block)
		case t.kind == tokIdent:
			prop, err := parseProperty(s, file, t)
			if err != nil {
				return nil, err
			}
			doc.Header = append(doc.Header, prop)
		default:
			return nil, parseErr(file, t.line, t.col, t.raw, "expected keyword or OBJECT")
		}
	}
}

func finishDocument(doc *Document, file string, t token) (*Document, error) {
	if len(doc.Blocks) == 0 {
		return nil, parseErr(file, t.line, t.col, t.raw, "no OBJECT block found")
	}
	return doc, nil
}

// parseBlock parses the remainder of `OBJECT = NAME ... END_OBJECT`
// after the OBJECT keyword has been consumed.
func parseBlock(s *scanner, file string) (*Block, error) {
	eq, err := s.next()
	if err != nil {
		return nil, err
	}
	if eq.kind != tokEquals {
		return nil, parseErr(file, eq.line, eq.col, eq.raw, "expected = after OBJECT")
	}
	name, err := s.next()
	if err != nil {
		return nil, err
	}
	if name.kind != tokIdent {
		return nil, parseErr(file, name.line, name.col, name.raw, "expected object name")
	}
	block := &Block{Name: name.text, Line: name.line}
	for {
		t, err := s.next()
		if err != nil {
			return nil, err
		}
		switch {
		case t.kind == tokEOF:
			return nil, parseErr(file, t.line, t.col, "", "unclosed OBJECT = %s (started at line %d)", block.Name, block.Line)
		case t.kind == tokIdent && t.text == "OBJECT":
			sub, err := parseBlock(s, file)
			if err != nil {
				return nil, err
			}
			block.Subs = append(block.Subs, *sub)
		case t.kind == tokIdent && t.text == "END_OBJECT":
			// The closing name is optional; when present it must match.
			next, err := s.next()
			if err != nil {
				return nil, err
			}
			if next.kind != tokEquals {
				s.unread(next)
				return block, nil
			}
			closing, err := s.next()
			if err != nil {
				return nil, err
			}
			if closing.kind != tokIdent || closing.text != block.Name {
				return nil, parseErr(file, closing.line, closing.col, closing.raw,
					"END_OBJECT = %s does not close OBJECT = %s", closing.text, block.Name)
			}
			return block, nil
		case t.kind == tokIdent:
			prop, err := parseProperty(s, file, t)
			if err != nil {
				return nil, err
			}
			block.Props = append(block.Props, prop)
		default:
			return nil, parseErr(file, t.line, t.col, t.raw, "expected keyword inside OBJECT = %s", block.Name)
		}
	}
}

// parseProperty parses `key = value` with the key token already read.
func parseProperty(s *scanner, file string, key token) (Property, error) {
	eq, err := s.next()
	if err != nil {
		return Property{}, err
	}
	if eq.kind != tokEquals {
		return Property{}, parseErr(file, eq.line, eq.col, eq.raw, "expected = after %s", key.text)
	}
	value, err := parseValue(s, file)
	if err != nil {
		return Property{}, err
	}
	return Property{Key: key.text, Value: value, Line: key.line}, nil
}

// parseValue parses a scalar or a parenthesized/braced list.
func parseValue(s *scanner, file string) (Value, error) {
	t, err := s.next()
	if err != nil {
		return Value{}, err
	}
	switch t.kind {
	case tokOpenParen:
		return parseList(s, file, tokCloseParen, "(", ")")
	case tokOpenBrace:
		return parseList(s, file, tokCloseBrace, "{", "}")
	case tokIdent, tokString, tokNumber:
		return classify(t), nil
	default:
		return Value{}, parseErr(file, t.line, t.col, t.raw, "expected value")
	}
}

func parseList(s *scanner, file string, closer tokenKind, open, closing string) (Value, error) {
	list := Value{Kind: ValueList, Raw: open}
	expectElem := true
	for {
		t, err := s.next()
		if err != nil {
			return Value{}, err
		}
		switch {
		case t.kind == tokEOF:
			return Value{}, parseErr(file, t.line, t.col, "", "unterminated %s...%s list", open, closing)
		case t.kind == closer:
			return list, nil
		case t.kind == tokComma:
			expectElem = true
		case t.kind == tokIdent || t.kind == tokString || t.kind == tokNumber:
			if !expectElem {
				return Value{}, parseErr(file, t.line, t.col, t.raw, "expected , between list elements")
			}
			list.List = append(list.List, classify(t))
			expectElem = false
		default:
			return Value{}, parseErr(file, t.line, t.col, t.raw, "unexpected token in list")
		}
	}
}
