// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds

import (
	"encoding/json"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/pdssp/pds-crawler/internal/pds3"
)

// ProductFile is one downloadable file belonging to a record.
type ProductFile struct {
	FileName     string `json:"FileName"`
	Type         string `json:"Type,omitempty"`
	URL          string `json:"URL,omitempty"`
	Description  string `json:"Description,omitempty"`
	KBytes       string `json:"KBytes,omitempty"`
	CreationDate string `json:"CreationDate,omitempty"`
}

// Record is one observational product as reported by the ODE records
// endpoint. Field names track the upstream JSON keys.
type Record struct {
	ODEID                string     `json:"ode_id"`
	PDSID                string     `json:"pdsid"`
	IHID                 string     `json:"ihid"`
	IID                  string     `json:"iid"`
	PT                   string     `json:"pt"`
	DataSetID            string     `json:"Data_Set_Id"`
	TargetName           string     `json:"Target_name"`
	LabelFileName        string     `json:"LabelFileName,omitempty"`
	PDSVolumeID          string     `json:"PDSVolume_Id,omitempty"`
	ProductCreationTime  string     `json:"Product_creation_time,omitempty"`
	ProductReleaseDate   string     `json:"Product_release_date,omitempty"`
	ObservationTime      string     `json:"Observation_time,omitempty"`
	UTCStartTime         string     `json:"UTC_start_time,omitempty"`
	UTCStopTime          string     `json:"UTC_stop_time,omitempty"`
	EasternmostLongitude float64    `json:"-"`
	MaximumLatitude      float64    `json:"-"`
	MinimumLatitude      float64    `json:"-"`
	WesternmostLongitude float64    `json:"-"`
	FootprintC0Geometry  string     `json:"Footprint_C0_geometry,omitempty"`
	FootprintGeometry    string     `json:"Footprint_geometry,omitempty"`
	LabelURL             string     `json:"LabelURL,omitempty"`
	ProductURL           string     `json:"ProductURL,omitempty"`
	FilesURL             string     `json:"FilesURL,omitempty"`
	BrowseURL            string     `json:"BrowseURL,omitempty"`
	ThumbnailURL         string     `json:"ThumbnailURL,omitempty"`
	ExternalURL          string     `json:"External_url,omitempty"`
	ProductFiles         productSet `json:"Product_files,omitempty"`
}

// recordAlias avoids recursion inside UnmarshalJSON.
type recordAlias Record

// recordWire adds the string-typed coordinate fields the service emits.
type recordWire struct {
	recordAlias
	EasternmostLongitude json.Number `json:"Easternmost_longitude"`
	MaximumLatitude      json.Number `json:"Maximum_latitude"`
	MinimumLatitude      json.Number `json:"Minimum_latitude"`
	WesternmostLongitude json.Number `json:"Westernmost_longitude"`
}

// UnmarshalJSON implements json.Unmarshaler, tolerating the service's
// habit of emitting numbers as strings.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Record(w.recordAlias)
	r.EasternmostLongitude, _ = w.EasternmostLongitude.Float64()
	r.MaximumLatitude, _ = w.MaximumLatitude.Float64()
	r.MinimumLatitude, _ = w.MinimumLatitude.Float64()
	r.WesternmostLongitude, _ = w.WesternmostLongitude.Float64()
	return nil
}

// MarshalJSON implements json.Marshaler, the inverse of UnmarshalJSON.
func (r Record) MarshalJSON() ([]byte, error) {
	w := recordWire{
		recordAlias:          recordAlias(r),
		EasternmostLongitude: floatNumber(r.EasternmostLongitude),
		MaximumLatitude:      floatNumber(r.MaximumLatitude),
		MinimumLatitude:      floatNumber(r.MinimumLatitude),
		WesternmostLongitude: floatNumber(r.WesternmostLongitude),
	}
	return json.Marshal(w)
}

func floatNumber(f float64) json.Number {
	b, _ := json.Marshal(f)
	return json.Number(b)
}

// productSet accepts the envelope {"Product_file": <object-or-list>}.
type productSet []ProductFile

func (p *productSet) UnmarshalJSON(data []byte) error {
	var env struct {
		ProductFile oneOrMany[ProductFile] `json:"Product_file"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*p = []ProductFile(env.ProductFile)
	return nil
}

func (p productSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductFile []ProductFile `json:"Product_file"`
	}{ProductFile: p})
}

// oneOrMany accepts a single JSON object where a list is expected.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []T
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*o = list
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}

// RecordsEnvelope mirrors the JSON envelope of the records endpoint.
type RecordsEnvelope struct {
	ODEResults struct {
		Count    string `json:"Count"`
		Products struct {
			Product oneOrMany[Record] `json:"Product"`
		} `json:"Products"`
	} `json:"ODEResults"`
}

// DecodeRecords parses one verbatim page body. A page with Count zero
// decodes to an empty slice.
func DecodeRecords(data []byte) ([]Record, error) {
	var env RecordsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Error.Wrap(err)
	}
	if env.ODEResults.Count == "0" {
		return nil, nil
	}
	return env.ODEResults.Products.Product, nil
}

// timeFormats are the datetime shapes the archive is known to emit.
var timeFormats = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05.999999999Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-002T15:04:05",
	"2006-002",
}

// ParseTime parses an archive datetime string, trying every supported
// layout including ordinal and week dates.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, ok := pds3.ParseWeekDate(s); ok {
		return t, nil
	}
	return time.Time{}, Error.New("unsupported datetime %q", s)
}

// Datetime returns the item timestamp with the documented fallback
// chain: observation time, then product creation time, then release
// date. Values with a zero year are treated as unknown.
func (r *Record) Datetime() (time.Time, error) {
	for _, candidate := range []string{
		r.ObservationTime,
		r.ProductCreationTime,
		r.ProductReleaseDate,
	} {
		if candidate == "" || strings.HasPrefix(candidate, "0000") {
			continue
		}
		return ParseTime(candidate)
	}
	return time.Time{}, Error.New("record %s has no usable datetime", r.ODEID)
}

// StartStop returns the acquisition window when both ends parse.
func (r *Record) StartStop() (start, stop time.Time, ok bool) {
	var err error
	if start, err = ParseTime(r.UTCStartTime); err != nil {
		return time.Time{}, time.Time{}, false
	}
	if stop, err = ParseTime(r.UTCStopTime); err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, stop, true
}

// BBox returns [west, south, east, north].
func (r *Record) BBox() []float64 {
	return []float64{
		r.WesternmostLongitude,
		r.MinimumLatitude,
		r.EasternmostLongitude,
		r.MaximumLatitude,
	}
}

// Geometry decodes the record's WKT footprint into GeoJSON.
func (r *Record) Geometry() (*geojson.Geometry, error) {
	if r.FootprintC0Geometry == "" {
		return nil, Error.New("record %s has no footprint", r.ODEID)
	}
	geom, err := wkt.Unmarshal(r.FootprintC0Geometry)
	if err != nil {
		return nil, Error.New("record %s: bad footprint: %v", r.ODEID, err)
	}
	return geojson.NewGeometry(geom), nil
}

// Bound returns the footprint's bounding box as an orb.Bound.
func (r *Record) Bound() (orb.Bound, error) {
	geom, err := wkt.Unmarshal(r.FootprintC0Geometry)
	if err != nil {
		return orb.Bound{}, Error.Wrap(err)
	}
	return geom.Bound(), nil
}

// AssetRef is a neutral asset projection consumed by the STAC layer.
type AssetRef struct {
	Name        string
	Href        string
	Title       string
	Description string
	MediaType   string
	Roles       []string
}

func urlAsset(href, description string, roles ...string) (AssetRef, bool) {
	if href == "" {
		return AssetRef{}, false
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return AssetRef{}, false
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		name = href
	}
	return AssetRef{
		Name:        name,
		Href:        href,
		Title:       name,
		Description: description,
		MediaType:   MediaTypeOf(name),
		Roles:       roles,
	}, true
}

// Assets projects the record's URLs and product files into asset
// references, one per distinct file name.
func (r *Record) Assets() []AssetRef {
	var out []AssetRef
	seen := map[string]bool{}
	add := func(a AssetRef, ok bool) {
		if !ok || seen[a.Name] {
			return
		}
		seen[a.Name] = true
		out = append(out, a)
	}
	add(urlAsset(r.ProductURL, "Product URL", "data"))
	add(urlAsset(r.LabelURL, "Product label", "metadata"))
	add(urlAsset(r.FilesURL, "Files URL", "metadata"))
	add(urlAsset(r.BrowseURL, "Browse image", "overview"))
	add(urlAsset(r.ThumbnailURL, "Thumbnail image", "thumbnail"))
	add(urlAsset(r.ExternalURL, "External URL", "metadata"))
	for _, pf := range r.ProductFiles {
		if pf.URL == "" {
			continue
		}
		name := pf.FileName
		if name == "" {
			name = path.Base(pf.URL)
		}
		add(AssetRef{
			Name:        name,
			Href:        pf.URL,
			Title:       name,
			Description: pf.Description,
			MediaType:   MediaTypeOf(name),
			Roles:       []string{"data"},
		}, true)
	}
	return out
}

// MediaTypeOf infers a media type from a file name extension.
func MediaTypeOf(name string) string {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".cat", ".lbl", ".txt", ".tab", ".asc", ".fmt":
		return "text/plain"
	case ".img", ".dat", ".b", ".raw":
		return "application/octet-stream"
	case ".json":
		return "application/json"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
