// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	cases := map[string]time.Time{
		"2006-06-21T23:55:55.000Z": time.Date(2006, 6, 21, 23, 55, 55, 0, time.UTC),
		"2006-06-21T23:55:55":      time.Date(2006, 6, 21, 23, 55, 55, 0, time.UTC),
		"2006-06-21":               time.Date(2006, 6, 21, 0, 0, 0, 0, time.UTC),
		"1997-030T11:20:15":        time.Date(1997, 1, 30, 11, 20, 15, 0, time.UTC),
		"1997-030":                 time.Date(1997, 1, 30, 0, 0, 0, 0, time.UTC),
		"2004-W28-2":               time.Date(2004, 7, 6, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseTime(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseTime("21/06/2006")
	require.Error(t, err)
}

func TestRecordDatetimeFallback(t *testing.T) {
	record := &Record{
		ODEID:               "r1",
		ObservationTime:     "2004-03-01T12:00:00",
		ProductCreationTime: "2005-01-01T00:00:00",
	}
	when, err := record.Datetime()
	require.NoError(t, err)
	require.Equal(t, 2004, when.Year())

	// Zero-year timestamps mean "unknown" upstream and must be skipped.
	record = &Record{
		ODEID:               "r2",
		ObservationTime:     "0000-00-00T00:00:00",
		ProductCreationTime: "2005-01-01T00:00:00",
	}
	when, err = record.Datetime()
	require.NoError(t, err)
	require.Equal(t, 2005, when.Year())

	record = &Record{
		ODEID:              "r3",
		ProductReleaseDate: "2007-06-01",
	}
	when, err = record.Datetime()
	require.NoError(t, err)
	require.Equal(t, 2007, when.Year())

	_, err = (&Record{ODEID: "r4"}).Datetime()
	require.Error(t, err)
}

func TestRecordGeometry(t *testing.T) {
	record := &Record{
		ODEID:                "r1",
		FootprintC0Geometry:  "POLYGON ((10 -5, 20 -5, 20 5, 10 5, 10 -5))",
		WesternmostLongitude: 10,
		EasternmostLongitude: 20,
		MinimumLatitude:      -5,
		MaximumLatitude:      5,
	}

	geom, err := record.Geometry()
	require.NoError(t, err)
	require.Equal(t, "Polygon", geom.Type)

	bound, err := record.Bound()
	require.NoError(t, err)
	require.Equal(t, 10.0, bound.Min[0])
	require.Equal(t, 20.0, bound.Max[0])

	require.Equal(t, []float64{10, -5, 20, 5}, record.BBox())

	_, err = (&Record{ODEID: "r2"}).Geometry()
	require.Error(t, err)

	_, err = (&Record{ODEID: "r3", FootprintC0Geometry: "POLYGON 12"}).Geometry()
	require.Error(t, err)
}

const recordsPage = `{
  "ODEResults": {
    "Count": "2",
    "Products": {
      "Product": [
        {
          "ode_id": "12345",
          "pdsid": "AB-1-C",
          "ihid": "MGS",
          "iid": "MOLA",
          "pt": "PEDR",
          "Data_Set_Id": "MGS-M-MOLA-3-PEDR-L1A-V1.0",
          "Target_name": "MARS",
          "PDSVolume_Id": "MGSL_21XX",
          "Observation_time": "1999-04-15T03:20:00",
          "UTC_start_time": "1999-04-15T03:19:00",
          "UTC_stop_time": "1999-04-15T03:21:00",
          "Easternmost_longitude": "181.5",
          "Westernmost_longitude": "178.25",
          "Minimum_latitude": "-12",
          "Maximum_latitude": "-10",
          "Footprint_C0_geometry": "POLYGON ((178.25 -12, 181.5 -12, 181.5 -10, 178.25 -10, 178.25 -12))",
          "LabelURL": "https://example.test/a.lbl",
          "ProductURL": "https://example.test/a.dat",
          "Product_files": {
            "Product_file": {
              "FileName": "A.DAT",
              "URL": "https://example.test/A.DAT",
              "Description": "raw data"
            }
          }
        },
        {
          "ode_id": "12346",
          "pdsid": "AB-1-D",
          "ihid": "MGS",
          "iid": "MOLA",
          "pt": "PEDR",
          "Data_Set_Id": "MGS-M-MOLA-3-PEDR-L1A-V1.0",
          "Target_name": "MARS"
        }
      ]
    }
  }
}`

func TestDecodeRecords(t *testing.T) {
	records, err := DecodeRecords([]byte(recordsPage))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	require.Equal(t, "12345", first.ODEID)
	require.Equal(t, 181.5, first.EasternmostLongitude)
	require.Equal(t, -12.0, first.MinimumLatitude)
	require.Equal(t, "MGSL_21XX", first.PDSVolumeID)
	require.Len(t, first.ProductFiles, 1)
	require.Equal(t, "A.DAT", first.ProductFiles[0].FileName)

	// A single product arrives as a lone object, not a list.
	single := `{"ODEResults":{"Count":"1","Products":{"Product":
		{"ode_id":"1","pdsid":"P","ihid":"H","iid":"I","pt":"T",
		 "Data_Set_Id":"D","Target_name":"MARS"}}}}`
	records, err = DecodeRecords([]byte(single))
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Count zero means an empty page, not an error.
	records, err = DecodeRecords([]byte(`{"ODEResults":{"Count":"0"}}`))
	require.NoError(t, err)
	require.Empty(t, records)

	_, err = DecodeRecords([]byte("<html>not json</html>"))
	require.Error(t, err)
}

func TestRecordJSONRoundTrip(t *testing.T) {
	records, err := DecodeRecords([]byte(recordsPage))
	require.NoError(t, err)

	data, err := json.Marshal(records[0])
	require.NoError(t, err)
	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	require.Empty(t, cmp.Diff(records[0], back))
}

func TestRecordAssets(t *testing.T) {
	record := &Record{
		ODEID:        "1",
		ProductURL:   "https://example.test/data/a.img",
		LabelURL:     "https://example.test/data/a.lbl",
		BrowseURL:    "https://example.test/browse/a.jpg",
		ThumbnailURL: "https://example.test/thumb/a.jpg",
		ProductFiles: productSet{{
			FileName: "a.img",
			URL:      "https://example.test/data/a.img",
		}},
	}
	assets := record.Assets()

	names := map[string][]string{}
	for _, a := range assets {
		names[a.Name] = a.Roles
	}
	require.Equal(t, []string{"data"}, names["a.img"])
	require.Equal(t, []string{"metadata"}, names["a.lbl"])
	// Browse and thumbnail share a base name; the first one wins.
	require.Equal(t, []string{"overview"}, names["a.jpg"])
	require.Len(t, assets, 3)
}

func TestMediaTypeOf(t *testing.T) {
	require.Equal(t, "text/plain", MediaTypeOf("MISSION.CAT"))
	require.Equal(t, "text/plain", MediaTypeOf("a.lbl"))
	require.Equal(t, "application/octet-stream", MediaTypeOf("a.img"))
	require.Equal(t, "application/json", MediaTypeOf("page_000.json"))
}

func TestDescriptorGeoreferenced(t *testing.T) {
	cases := []struct {
		footprints string
		products   int64
		want       bool
	}{
		{"T", 100, true},
		{"", 1, true},
		{"F", 100, false},
		{"T", 0, false},
		{"F", 0, false},
	}
	for _, tc := range cases {
		desc := &Descriptor{ValidFootprints: tc.footprints, NumberProducts: tc.products}
		require.Equal(t, tc.want, desc.Georeferenced(), "%+v", tc)
	}
}

func TestDescriptorPageCount(t *testing.T) {
	desc := &Descriptor{NumberProducts: 2500}
	require.Equal(t, 3, desc.PageCount(1000))
	require.Equal(t, 1, desc.PageCount(2500))
	require.Equal(t, 0, desc.PageCount(0))
	require.Equal(t, 0, (&Descriptor{}).PageCount(1000))
}

func TestDecodeDiscovery(t *testing.T) {
	many := `{"ODEResults":{"IIPTSets":{"IIPTSet":[
		{"ODEMetaDB":"Mars","IHID":"MGS","IHName":"Mars Global Surveyor",
		 "IID":"MOLA","IName":"Mars Orbiter Laser Altimeter","PT":"PEDR",
		 "PTName":"PEDR","DataSetId":"MGS-M-MOLA-3-PEDR-L1A-V1.0",
		 "NumberProducts":"9000","ValidFootprints":"T"},
		{"ODEMetaDB":"Moon","IHID":"LRO","IHName":"Lunar Reconnaissance Orbiter",
		 "IID":"LOLA","IName":"Laser Altimeter","PT":"RDR","PTName":"RDR",
		 "DataSetId":"LRO-L-LOLA-4-GDR-V1.0","NumberProducts":"0"}
	]}}}`
	descriptors, err := DecodeDiscovery([]byte(many))
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	require.Equal(t, int64(9000), descriptors[0].NumberProducts)
	require.True(t, descriptors[0].Georeferenced())
	require.False(t, descriptors[1].Georeferenced())

	// A single set arrives as a lone object.
	one := `{"ODEResults":{"IIPTSets":{"IIPTSet":
		{"ODEMetaDB":"Mars","IHID":"MGS","IHName":"MGS","IID":"MOLA",
		 "IName":"MOLA","PT":"PEDR","PTName":"PEDR","DataSetId":"X",
		 "NumberProducts":"1"}}}}`
	descriptors, err = DecodeDiscovery([]byte(one))
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
}

func TestFingerprint(t *testing.T) {
	desc := &Descriptor{
		ODEMetaDB: "Mars",
		IHID:      "MGS",
		IHName:    "Mars Global Surveyor",
		IID:       "MOLA",
		DataSetID: "MGS-M-MOLA-3-PEDR-L1A-V1.0",
	}
	fp := desc.Fingerprint()
	require.True(t, fp.Valid())
	require.Equal(t,
		"mars/mars_global_surveyor/mgs/mola/mgs-m-mola-3-pedr-l1a-v1.0",
		fp.Key())
	require.Len(t, fp.Segments(), 5)

	require.False(t, Fingerprint{Target: "mars"}.Valid())
}
