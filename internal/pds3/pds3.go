// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

// Package pds3 parses PDS3 catalog files, a family of loosely specified
// ODL-like keyword/value documents, into typed variants. One grammar per
// catalog kind sits on a shared property sub-grammar; unknown keywords
// are retained and unknown sub-objects are preserved as opaque blocks.
package pds3

import (
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class of errors returned by this package.
var Error = errs.Class("pds3")

// Kind identifies one of the supported catalog classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindMission
	KindInstrumentHost
	KindInstrument
	KindDataSet
	KindDataSetMapProjection
	KindPersonnel
	KindReference
	KindVolumeDescriptor
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindMission:              "mission",
	KindInstrumentHost:       "instrument_host",
	KindInstrument:           "instrument",
	KindDataSet:              "data_set",
	KindDataSetMapProjection: "data_set_map_projection",
	KindPersonnel:            "personnel",
	KindReference:            "reference",
	KindVolumeDescriptor:     "volume_descriptor",
}

func (k Kind) String() string { return kindNames[k] }

// KindsByPrefix orders the kinds so that longer names come first. Used
// for prefix matching against stored file names, where instrument_host
// must be tried before instrument and data_set_map_projection before
// data_set.
var KindsByPrefix = []Kind{
	KindDataSetMapProjection,
	KindVolumeDescriptor,
	KindInstrumentHost,
	KindInstrument,
	KindDataSet,
	KindPersonnel,
	KindReference,
	KindMission,
}

// ParseError reports a grammar rejection with its position.
type ParseError struct {
	File   string
	Line   int
	Column int
	Token  string
	Msg    string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s:%d:%d: %s (near %q)", e.File, e.Line, e.Column, e.Msg, e.Token)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

func parseErr(file string, line, col int, token, format string, args ...interface{}) error {
	return Error.Wrap(&ParseError{
		File:   file,
		Line:   line,
		Column: col,
		Token:  token,
		Msg:    fmt.Sprintf(format, args...),
	})
}
