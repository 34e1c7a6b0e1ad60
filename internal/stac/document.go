// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

// Package stac builds the on-disk SpatioTemporal Asset Catalog tree:
// root, mission, instrument-host and instrument catalogs, one
// collection per PDS data set, and one item per record.
package stac

import (
	"github.com/paulmach/orb/geojson"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	// Error is the class of errors returned by this package.
	Error = errs.Class("stac")

	mon = monkit.Package()
)

// Version is the STAC version every emitted document declares.
const Version = "1.0.0"

// SsysSchema is the solar system extension schema reference.
const SsysSchema = "https://raw.githubusercontent.com/thareUSGS/ssys/main/json-schema/schema.json"

// License applied to all emitted collections.
const License = "CC0-1.0"

// Link is one STAC link object.
type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Asset is one STAC asset object.
type Asset struct {
	Href        string   `json:"href"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Provider is one STAC provider object.
type Provider struct {
	Name  string   `json:"name"`
	URL   string   `json:"url,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Publication is one entry of the scientific citation extension.
type Publication struct {
	Citation string `json:"citation"`
	DOI      string `json:"doi,omitempty"`
}

// SpatialExtent is a set of bounding boxes, the first one covering all
// others.
type SpatialExtent struct {
	BBox [][]float64 `json:"bbox"`
}

// TemporalExtent is a set of [start, end] intervals; nil means open.
type TemporalExtent struct {
	Interval [][]*string `json:"interval"`
}

// Extent combines the spatial and temporal extents.
type Extent struct {
	Spatial  SpatialExtent  `json:"spatial"`
	Temporal TemporalExtent `json:"temporal"`
}

// Catalog is a STAC catalog document. Managed parent catalogs carry an
// extent summarizing their children, which plain STAC catalogs omit.
type Catalog struct {
	Type           string   `json:"type"`
	StacVersion    string   `json:"stac_version"`
	StacExtensions []string `json:"stac_extensions,omitempty"`
	ID             string   `json:"id"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description"`
	Extent         *Extent  `json:"extent,omitempty"`
	SsysTargets    []string `json:"ssys:targets,omitempty"`
	Links          []Link   `json:"links"`
}

// Collection is a STAC collection document.
type Collection struct {
	Type           string           `json:"type"`
	StacVersion    string           `json:"stac_version"`
	StacExtensions []string         `json:"stac_extensions,omitempty"`
	ID             string           `json:"id"`
	Title          string           `json:"title,omitempty"`
	Description    string           `json:"description"`
	Keywords       []string         `json:"keywords,omitempty"`
	License        string           `json:"license"`
	Providers      []Provider       `json:"providers,omitempty"`
	Extent         Extent           `json:"extent"`
	SsysTargets    []string         `json:"ssys:targets,omitempty"`
	Publications   []Publication    `json:"sci:publications,omitempty"`
	Links          []Link           `json:"links"`
	Assets         map[string]Asset `json:"assets,omitempty"`
}

// Item is a STAC item document.
type Item struct {
	Type           string                 `json:"type"`
	StacVersion    string                 `json:"stac_version"`
	StacExtensions []string               `json:"stac_extensions,omitempty"`
	ID             string                 `json:"id"`
	Geometry       *geojson.Geometry      `json:"geometry"`
	BBox           []float64              `json:"bbox,omitempty"`
	Properties     map[string]interface{} `json:"properties"`
	Collection     string                 `json:"collection,omitempty"`
	Links          []Link                 `json:"links"`
	Assets         map[string]Asset       `json:"assets"`
}

// NewCatalog returns a catalog shell with the fixed fields set.
func NewCatalog(id, title, description string) *Catalog {
	return &Catalog{
		Type:        "Catalog",
		StacVersion: Version,
		ID:          id,
		Title:       title,
		Description: description,
	}
}

// link returns the first link with the given rel, or nil.
func linkWithRel(links []Link, rel string) *Link {
	for i := range links {
		if links[i].Rel == rel {
			return &links[i]
		}
	}
	return nil
}

// childLinks returns the hrefs of all child links.
func childLinks(links []Link) []Link {
	var out []Link
	for _, l := range links {
		if l.Rel == "child" {
			out = append(out, l)
		}
	}
	return out
}
