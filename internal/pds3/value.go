// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds3

import (
	"strconv"
	"strings"
	"time"
)

// ValueKind discriminates the shapes a property value can take.
type ValueKind int

const (
	// ValueUnknown marks UNK, N/A, NULL and friends. The archive uses
	// these markers instead of omitting the keyword; they decode to an
	// explicit unknown, never to an absent value.
	ValueUnknown ValueKind = iota
	ValueText
	ValueSymbol
	ValueNumber
	ValueDate
	ValueList
)

// Value is one property value from a catalog file. Raw preserves the
// original token text so documents can be printed back verbatim.
type Value struct {
	Kind   ValueKind
	Raw    string
	Text   string
	Number float64
	Date   time.Time
	List   []Value
}

var unknownMarkers = map[string]bool{
	"UNK":     true,
	"N/A":     true,
	"NULL":    true,
	"UNKNOWN": true,
	"TBD":     true,
}

// IsUnknown reports whether the value is an explicit unknown marker.
func (v Value) IsUnknown() bool { return v.Kind == ValueUnknown }

// String returns the decoded textual form: quoted strings without
// quotes, everything else as written. Unknown values return "".
func (v Value) String() string {
	if v.Kind == ValueUnknown {
		return ""
	}
	return v.Text
}

// Strings flattens the value into a string slice: lists yield one entry
// per element, scalars yield a single entry, unknowns yield none.
func (v Value) Strings() []string {
	switch v.Kind {
	case ValueUnknown:
		return nil
	case ValueList:
		var out []string
		for _, elem := range v.List {
			out = append(out, elem.Strings()...)
		}
		return out
	default:
		return []string{v.Text}
	}
}

// dateLayouts covers the calendar, ordinal, and timestamp forms found
// in archive files.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05.999999999Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-002T15:04:05",
	"2006-002",
	"2006-01",
}

// parseDate attempts the supported date layouts, week dates included.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return ParseWeekDate(s)
}

// ParseWeekDate parses an ISO 8601 week date such as 2004-W28-2, which
// time.Parse has no layout for. The day defaults to Monday when
// omitted. Week numbers that do not exist in the given year are
// rejected.
func ParseWeekDate(s string) (time.Time, bool) {
	if len(s) != len("2006-W01") && len(s) != len("2006-W01-1") {
		return time.Time{}, false
	}
	if s[4] != '-' || s[5] != 'W' {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return time.Time{}, false
	}
	week, err := strconv.Atoi(s[6:8])
	if err != nil {
		return time.Time{}, false
	}
	day := 1
	if len(s) == len("2006-W01-1") {
		if s[8] != '-' {
			return time.Time{}, false
		}
		if day, err = strconv.Atoi(s[9:]); err != nil {
			return time.Time{}, false
		}
	}
	if week < 1 || week > 53 || day < 1 || day > 7 {
		return time.Time{}, false
	}
	// January 4 is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	t := jan4.AddDate(0, 0, (week-1)*7+day-weekday)
	if y, w := t.ISOWeek(); y != year || w != week {
		return time.Time{}, false
	}
	return t, true
}

// classify builds a Value from one scalar token.
func classify(t token) Value {
	switch t.kind {
	case tokString:
		text := t.text
		if unknownMarkers[strings.ToUpper(strings.TrimSpace(text))] {
			return Value{Kind: ValueUnknown, Raw: t.raw}
		}
		return Value{Kind: ValueText, Raw: t.raw, Text: text}
	case tokNumber:
		n, _ := strconv.ParseFloat(t.text, 64)
		return Value{Kind: ValueNumber, Raw: t.raw, Text: t.text, Number: n}
	default:
		if unknownMarkers[strings.ToUpper(t.text)] {
			return Value{Kind: ValueUnknown, Raw: t.raw}
		}
		if date, ok := parseDate(t.text); ok {
			return Value{Kind: ValueDate, Raw: t.raw, Text: t.text, Date: date}
		}
		return Value{Kind: ValueSymbol, Raw: t.raw, Text: t.text}
	}
}

// Property is one key = value line.
type Property struct {
	Key   string
	Value Value
	Line  int
}

// Properties is an ordered property list with keyed lookup.
type Properties []Property

// Get returns the first value for key.
func (p Properties) Get(key string) (Value, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return Value{}, false
}

// Text returns the decoded text for key, "" when absent or unknown.
func (p Properties) Text(key string) string {
	v, ok := p.Get(key)
	if !ok {
		return ""
	}
	return v.String()
}

// Strings returns the flattened string list for key.
func (p Properties) Strings(key string) []string {
	v, ok := p.Get(key)
	if !ok {
		return nil
	}
	return v.Strings()
}

// Date returns the date value for key when present and parseable.
func (p Properties) Date(key string) (time.Time, bool) {
	v, ok := p.Get(key)
	if !ok || v.Kind != ValueDate {
		return time.Time{}, false
	}
	return v.Date, true
}

// Has reports whether key is present, unknown markers included.
func (p Properties) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Without returns the properties whose keys are not in the given set.
// Used to retain unrecognized keywords on a variant.
func (p Properties) Without(known map[string]bool) Properties {
	var out Properties
	for _, prop := range p {
		if !known[prop.Key] {
			out = append(out, prop)
		}
	}
	return out
}
