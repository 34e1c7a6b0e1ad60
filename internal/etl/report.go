// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package etl

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdssp/pds-crawler/internal/stac"
)

// FormatReport renders a collection failure report as a markdown
// table, category counts first, then the first messages per resource.
func FormatReport(entries []stac.ReportEntry) []byte {
	var b strings.Builder
	b.WriteString("| Resource | Explanation |\n")
	b.WriteString("|----------|-------------|\n")
	for _, entry := range entries {
		explanation := strings.ReplaceAll(entry.Explanation, "\n", " ")
		fmt.Fprintf(&b, "| %s | %s |\n", entry.Resource, explanation)
	}
	return []byte(b.String())
}

// CollectionSummary is the machine-readable outcome for one collection
// within a phase.
type CollectionSummary struct {
	Collection  string   `json:"collection"`
	Status      string   `json:"status"`
	Error       string   `json:"error,omitempty"`
	Pages       int      `json:"pages,omitempty"`
	Items       int      `json:"items,omitempty"`
	Skipped     int      `json:"skipped,omitempty"`
	Quarantined int      `json:"quarantined,omitempty"`
	Failures    int      `json:"failures,omitempty"`
	Missing     []int    `json:"missing_pages,omitempty"`
	MissingPDS3 []string `json:"missing_pds3,omitempty"`
}

// PhaseSummary is the machine-readable per-phase summary written at
// the storage root.
type PhaseSummary struct {
	Phase       string              `json:"phase"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Collections []CollectionSummary `json:"collections"`
}
