// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds3

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// rootObjects maps a root OBJECT name to its catalog kind.
var rootObjects = map[string]Kind{
	"MISSION":                 KindMission,
	"INSTRUMENT_HOST":         KindInstrumentHost,
	"INSTRUMENT":              KindInstrument,
	"DATA_SET":                KindDataSet,
	"DATA_SET_MAP_PROJECTION": KindDataSetMapProjection,
	"PERSONNEL":               KindPersonnel,
	"REFERENCE":               KindReference,
	"VOLUME":                  KindVolumeDescriptor,
}

// nameHints are filename substrings tried in order; the order matters
// since "inst" is a prefix of "insthost" and "ds" of "dsmap".
var nameHints = []struct {
	substr string
	kind   Kind
}{
	{"voldesc", KindVolumeDescriptor},
	{"dsmap", KindDataSetMapProjection},
	{"insthost", KindInstrumentHost},
	{"instrument_host", KindInstrumentHost},
	{"inst", KindInstrument},
	{"mission", KindMission},
	{"person", KindPersonnel},
	{"ref", KindReference},
	{"dataset", KindDataSet},
	{"ds", KindDataSet},
}

// GuessKind applies the filename heuristic. KindUnknown means the
// caller should fall back to the root OBJECT name.
func GuessKind(filename string) Kind {
	base := strings.ToLower(filepath.Base(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	for _, hint := range nameHints {
		if strings.Contains(base, hint.substr) {
			return hint.kind
		}
	}
	return KindUnknown
}

// KindOf inspects a parsed document's first root object.
func KindOf(doc *Document) Kind {
	if len(doc.Blocks) == 0 {
		return KindUnknown
	}
	return rootObjects[doc.Blocks[0].Name]
}

// Build constructs the typed variant of the given kind from a parsed
// document.
func Build(kind Kind, doc *Document, log *zap.Logger) (Object, error) {
	switch kind {
	case KindMission:
		return BuildMission(doc, log)
	case KindInstrumentHost:
		return BuildInstrumentHost(doc, log)
	case KindInstrument:
		return BuildInstrument(doc, log)
	case KindDataSet:
		return BuildDataSet(doc, log)
	case KindDataSetMapProjection:
		return BuildDataSetMapProjection(doc, log)
	case KindPersonnel:
		return BuildPersonnel(doc, log)
	case KindReference:
		return BuildReference(doc, log)
	case KindVolumeDescriptor:
		return BuildVolumeDescriptor(doc, log)
	default:
		return nil, Error.New("no grammar for kind %v", kind)
	}
}

// candidateOrder is the fixed order tried when the filename heuristic
// and the root object name both fail to identify the grammar.
var candidateOrder = []Kind{
	KindVolumeDescriptor,
	KindMission,
	KindInstrumentHost,
	KindInstrument,
	KindDataSet,
	KindDataSetMapProjection,
	KindPersonnel,
	KindReference,
}

// ParseFile parses source text and builds the typed variant, resolving
// the grammar by filename heuristic, then by root object name, then by
// trying candidates in a fixed order.
func ParseFile(filename, src string, log *zap.Logger) (Object, error) {
	doc, err := Parse(filename, src)
	if err != nil {
		return nil, err
	}
	if kind := GuessKind(filename); kind != KindUnknown {
		if obj, err := Build(kind, doc, log); err == nil {
			return obj, nil
		}
	}
	if kind := KindOf(doc); kind != KindUnknown {
		return Build(kind, doc, log)
	}
	var firstErr error
	for _, kind := range candidateOrder {
		obj, err := Build(kind, doc, log)
		if err == nil {
			return obj, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
