// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds

import (
	"encoding/json"
	"strings"
)

// Descriptor holds the metadata the ODE discovery endpoint reports for
// one instrument-host/instrument/product-type tuple. It is the unit
// stored in the registry.
type Descriptor struct {
	ODEMetaDB          string              `json:"ODEMetaDB"`
	IHID               string              `json:"IHID"`
	IHName             string              `json:"IHName"`
	IID                string              `json:"IID"`
	IName              string              `json:"IName"`
	PT                 string              `json:"PT"`
	PTName             string              `json:"PTName"`
	DataSetID          string              `json:"DataSetId"`
	NumberProducts     int64               `json:"NumberProducts,string"`
	ValidFootprints    string              `json:"ValidFootprints,omitempty"`
	ValidTargets       map[string][]string `json:"ValidTargets,omitempty"`
	MinObservationTime string              `json:"MinObservationTime,omitempty"`
	MaxObservationTime string              `json:"MaxObservationTime,omitempty"`
	MinOrbit           string              `json:"MinOrbit,omitempty"`
	MaxOrbit           string              `json:"MaxOrbit,omitempty"`
}

// Georeferenced reports whether the collection is worth keeping: the
// service confirms footprints exist and at least one product is listed.
func (d *Descriptor) Georeferenced() bool {
	return d.ValidFootprints != "F" && d.NumberProducts > 0
}

// Fingerprint derives the collection fingerprint from the descriptor.
// The mission element comes from the instrument host name since the ODE
// discovery response has no mission field of its own; PDS3 enrichment
// later supplies the proper mission metadata.
func (d *Descriptor) Fingerprint() Fingerprint {
	return Fingerprint{
		Target:     d.ODEMetaDB,
		Mission:    d.IHName,
		Host:       d.IHID,
		Instrument: d.IID,
		DatasetID:  d.DataSetID,
	}
}

// PageCount returns how many record pages the collection spans for the
// given page size, rounding up.
func (d *Descriptor) PageCount(pageSize int) int {
	if pageSize <= 0 || d.NumberProducts <= 0 {
		return 0
	}
	return int((d.NumberProducts + int64(pageSize) - 1) / int64(pageSize))
}

// Encode returns the canonical JSON form of the descriptor.
func (d *Descriptor) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	return data, Error.Wrap(err)
}

// DecodeDescriptor parses the canonical JSON form of a descriptor.
func DecodeDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, Error.Wrap(err)
	}
	return &d, nil
}

// DiscoveryEnvelope mirrors the JSON envelope of the iipt discovery
// response. IIPTSet arrives either as a single object or as a list.
type DiscoveryEnvelope struct {
	ODEResults struct {
		IIPTSets struct {
			IIPTSet DescriptorList `json:"IIPTSet"`
		} `json:"IIPTSets"`
	} `json:"ODEResults"`
}

// DescriptorList accepts both a lone JSON object and a JSON array.
type DescriptorList []Descriptor

// UnmarshalJSON implements json.Unmarshaler.
func (l *DescriptorList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []Descriptor
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	var one Descriptor
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = DescriptorList{one}
	return nil
}

// DecodeDiscovery parses a discovery response body into descriptors.
func DecodeDiscovery(data []byte) ([]Descriptor, error) {
	var env DiscoveryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Error.Wrap(err)
	}
	return env.ODEResults.IIPTSets.IIPTSet, nil
}
