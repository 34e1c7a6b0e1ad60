// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds3

import (
	"strings"
)

// Print renders the document back to ODL text. Raw token text is
// preserved, so Parse(doc.Print()) reproduces the document.
func (doc *Document) Print() string {
	var b strings.Builder
	for _, prop := range doc.Header {
		writeProperty(&b, prop, 0)
	}
	for _, block := range doc.Blocks {
		writeBlock(&b, block, 0)
	}
	b.WriteString("END\n")
	return b.String()
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func writeProperty(b *strings.Builder, prop Property, depth int) {
	indent(b, depth)
	b.WriteString(prop.Key)
	b.WriteString(" = ")
	writeValue(b, prop.Value)
	b.WriteString("\n")
}

func writeValue(b *strings.Builder, v Value) {
	if v.Kind == ValueList {
		open, closing := "(", ")"
		if v.Raw == "{" {
			open, closing = "{", "}"
		}
		b.WriteString(open)
		for i, elem := range v.List {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, elem)
		}
		b.WriteString(closing)
		return
	}
	if v.Raw != "" {
		b.WriteString(v.Raw)
		return
	}
	b.WriteString("UNK")
}

func writeBlock(b *strings.Builder, block Block, depth int) {
	indent(b, depth)
	b.WriteString("OBJECT = ")
	b.WriteString(block.Name)
	b.WriteString("\n")
	for _, prop := range block.Props {
		writeProperty(b, prop, depth+1)
	}
	for _, sub := range block.Subs {
		writeBlock(b, sub, depth+1)
	}
	indent(b, depth)
	b.WriteString("END_OBJECT = ")
	b.WriteString(block.Name)
	b.WriteString("\n")
}
