// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package stac

import (
	"path/filepath"
	"time"

	"github.com/pdssp/pds-crawler/internal/pds"
)

// extentAccum unions spatial and temporal extents across items,
// collections, and descriptors.
type extentAccum struct {
	hasBox                   bool
	west, south, east, north float64

	hasTime     bool
	start, stop time.Time
}

func newExtentAccum() *extentAccum { return &extentAccum{} }

func (e *extentAccum) empty() bool { return !e.hasBox && !e.hasTime }

func (e *extentAccum) addBox(bbox []float64) {
	if len(bbox) != 4 {
		return
	}
	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if !e.hasBox {
		e.west, e.south, e.east, e.north = west, south, east, north
		e.hasBox = true
		return
	}
	if west < e.west {
		e.west = west
	}
	if south < e.south {
		e.south = south
	}
	if east > e.east {
		e.east = east
	}
	if north > e.north {
		e.north = north
	}
}

func (e *extentAccum) addTime(t time.Time) {
	if t.IsZero() {
		return
	}
	if !e.hasTime {
		e.start, e.stop = t, t
		e.hasTime = true
		return
	}
	if t.Before(e.start) {
		e.start = t
	}
	if t.After(e.stop) {
		e.stop = t
	}
}

func (e *extentAccum) addTimeString(s string) {
	if s == "" {
		return
	}
	if t, err := pds.ParseTime(s); err == nil {
		e.addTime(t)
	}
}

// addItem folds one item's bbox and time properties into the union.
func (e *extentAccum) addItem(item *Item) {
	e.addBox(item.BBox)
	for _, key := range []string{"datetime", "start_datetime", "end_datetime"} {
		if s, ok := item.Properties[key].(string); ok {
			e.addTimeString(s)
		}
	}
}

// addExtent folds a previously written extent into the union.
func (e *extentAccum) addExtent(extent Extent) {
	for _, bbox := range extent.Spatial.BBox {
		e.addBox(bbox)
	}
	for _, interval := range extent.Temporal.Interval {
		for _, endpoint := range interval {
			if endpoint != nil {
				e.addTimeString(*endpoint)
			}
		}
	}
}

// addDescriptor folds the ODE descriptor's observation window.
func (e *extentAccum) addDescriptor(desc *pds.Descriptor) {
	e.addTimeString(desc.MinObservationTime)
	e.addTimeString(desc.MaxObservationTime)
}

// extent renders the union in STAC form. An empty accumulator yields
// the whole-planet bbox with an open interval, so shallow collections
// stay valid.
func (e *extentAccum) extent() Extent {
	extent := Extent{
		Spatial:  SpatialExtent{BBox: [][]float64{{-180, -90, 180, 90}}},
		Temporal: TemporalExtent{Interval: [][]*string{{nil, nil}}},
	}
	if e.hasBox {
		extent.Spatial.BBox = [][]float64{{e.west, e.south, e.east, e.north}}
	}
	if e.hasTime {
		start := e.start.Format(time.RFC3339)
		stop := e.stop.Format(time.RFC3339)
		extent.Temporal.Interval = [][]*string{{&start, &stop}}
	}
	return extent
}

// resolveHref turns a relative href into a path, resolved against the
// document that carries the link.
func resolveHref(fromPath, href string) string {
	return filepath.Join(filepath.Dir(fromPath), filepath.FromSlash(href))
}
