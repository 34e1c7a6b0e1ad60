// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

// Package pds holds the typed domain models shared by the extract and
// transform phases: collection fingerprints, ODE collection descriptors,
// and ODE product records with their STAC projections.
package pds

import (
	"path/filepath"
	"strings"

	"github.com/zeebo/errs"
)

// Error is the class of errors returned by this package.
var Error = errs.Class("pds")

// Fingerprint uniquely identifies a PDS data set. It is immutable once
// created and every storage key derives from it.
type Fingerprint struct {
	Target     string `json:"target"`
	Mission    string `json:"mission"`
	Host       string `json:"host"`
	Instrument string `json:"instrument"`
	DatasetID  string `json:"dataset_id"`
}

// segment makes one fingerprint element safe for use in paths and keys.
func segment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, string(filepath.Separator), "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// Valid reports whether all five elements are present.
func (f Fingerprint) Valid() bool {
	return f.Target != "" && f.Mission != "" && f.Host != "" &&
		f.Instrument != "" && f.DatasetID != ""
}

// Key returns the canonical registry key for the fingerprint.
func (f Fingerprint) Key() string {
	return strings.Join([]string{
		segment(f.Target),
		segment(f.Mission),
		segment(f.Host),
		segment(f.Instrument),
		segment(f.DatasetID),
	}, "/")
}

// Segments returns the relative directory elements for the collection,
// in the on-disk order target/mission/host/instrument/dataset_id.
func (f Fingerprint) Segments() []string {
	return []string{
		segment(f.Target),
		segment(f.Mission),
		segment(f.Host),
		segment(f.Instrument),
		segment(f.DatasetID),
	}
}

func (f Fingerprint) String() string { return f.Key() }
