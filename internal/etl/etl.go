// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

// Package etl orchestrates the pipeline phases in order: discover,
// extract_records, extract_pds3, transform_pds3, transform_records.
// The driver keeps no state of its own; idempotence comes from the
// storage layer.
package etl

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/pdssp/pds-crawler/internal/fetch"
	"github.com/pdssp/pds-crawler/internal/ode"
	"github.com/pdssp/pds-crawler/internal/pds"
	"github.com/pdssp/pds-crawler/internal/pds3"
	"github.com/pdssp/pds-crawler/internal/stac"
	"github.com/pdssp/pds-crawler/internal/storage"
)

var (
	// Error is the class of errors returned by this package.
	Error = errs.Class("etl")

	mon = monkit.Package()
)

// Config assembles the per-subsystem configurations around the storage
// root.
type Config struct {
	Root  string       `help:"storage root directory" default:".pds"`
	ODE   ode.Config
	Fetch fetch.Config
}

// Selection narrows a phase to a subset of collections.
type Selection struct {
	Planet    string
	DatasetID string
	Sample    int // record pages per collection; 0 means all
}

func (s Selection) matches(desc *pds.Descriptor) bool {
	return s.DatasetID == "" || s.DatasetID == desc.DataSetID
}

// Driver owns the phase lifecycles and the shared collaborators.
type Driver struct {
	log         *zap.Logger
	config      Config
	registry    *storage.Registry
	files       *storage.FileStore
	client      *ode.Client
	transformer *stac.Transformer
	progress    bool
}

// New opens the storage layer and wires the subsystems.
func New(log *zap.Logger, config Config, progress bool) (*Driver, error) {
	files, err := storage.NewFileStore(log.Named("storage"), config.Root)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	registry, err := storage.OpenRegistry(log.Named("registry"), filepath.Join(config.Root, "registry"))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	fetcher := fetch.New(log.Named("fetch"), config.Fetch)
	return &Driver{
		log:         log,
		config:      config,
		registry:    registry,
		files:       files,
		client:      ode.NewClient(log.Named("ode"), config.ODE, fetcher, registry, files),
		transformer: stac.NewTransformer(log.Named("stac"), files),
		progress:    progress,
	}, nil
}

// Close releases the registry lock.
func (d *Driver) Close() error {
	return d.registry.Close()
}

// Registry exposes the descriptor table, mainly for tests and the CLI.
func (d *Driver) Registry() *storage.Registry { return d.registry }

// Files exposes the file store, mainly for tests and the CLI.
func (d *Driver) Files() *storage.FileStore { return d.files }

// collections resolves the selection against the registry.
func (d *Driver) collections(ctx context.Context, sel Selection) ([]*pds.Descriptor, error) {
	var out []*pds.Descriptor
	err := d.registry.All(ctx, sel.Planet, func(desc *pds.Descriptor) error {
		if sel.matches(desc) {
			out = append(out, desc)
		}
		return nil
	})
	return out, err
}

// Discover runs collection discovery. With save unset the descriptors
// are only counted and logged.
func (d *Driver) Discover(ctx context.Context, planet string, save bool) (ode.DiscoverStats, error) {
	stats, err := d.client.Discover(ctx, planet, save, nil)
	if err != nil {
		return stats, err
	}
	return stats, Error.Wrap(d.files.WriteSummary("discover", stats))
}

// eventSink builds the fetch event callback, with an optional progress
// bar over total requests.
func (d *Driver) eventSink(total int) (func(fetch.Event), func()) {
	if !d.progress || total == 0 {
		return nil, func() {}
	}
	bar := fetch.NewProgress(total)
	return bar.Sink(), bar.Finish
}

// perCollection runs fn for every selected collection, isolating
// failures: an error is recorded in the phase summary and the driver
// moves on to the next collection.
func (d *Driver) perCollection(ctx context.Context, phase string, sel Selection, fn func(context.Context, *pds.Descriptor) CollectionSummary) (err error) {
	defer mon.Task()(&ctx)(&err)

	descriptors, err := d.collections(ctx, sel)
	if err != nil {
		return err
	}
	summary := PhaseSummary{Phase: phase, StartedAt: time.Now().UTC()}
	for _, desc := range descriptors {
		if err := ctx.Err(); err != nil {
			return Error.Wrap(err)
		}
		entry := fn(ctx, desc)
		entry.Collection = desc.Fingerprint().Key()
		if entry.Error != "" {
			d.log.Error("collection failed",
				zap.String("phase", phase),
				zap.String("collection", entry.Collection),
				zap.String("error", entry.Error))
		}
		summary.Collections = append(summary.Collections, entry)
	}
	summary.FinishedAt = time.Now().UTC()
	return Error.Wrap(d.files.WriteSummary(phase, summary))
}

// ExtractRecords fills missing record pages for the selected
// collections.
func (d *Driver) ExtractRecords(ctx context.Context, sel Selection) error {
	return d.perCollection(ctx, "extract_records", sel, func(ctx context.Context, desc *pds.Descriptor) CollectionSummary {
		fp := desc.Fingerprint()
		total := desc.PageCount(d.config.ODE.PageSize)
		if sel.Sample > 0 && sel.Sample < total {
			total = sel.Sample
		}
		sink, finish := d.eventSink(len(d.files.ListMissingPages(fp, total)))
		defer finish()
		if err := d.client.ExtractRecords(ctx, desc, sel.Sample, sink); err != nil {
			return CollectionSummary{Status: "failed", Error: err.Error()}
		}
		pages, _ := d.files.ListPages(fp)
		return CollectionSummary{Status: "ok", Pages: len(pages)}
	})
}

// ExtractPDS3 scrapes and downloads the PDS3 catalog files for the
// selected collections.
func (d *Driver) ExtractPDS3(ctx context.Context, sel Selection) error {
	return d.perCollection(ctx, "extract_pds3", sel, func(ctx context.Context, desc *pds.Descriptor) CollectionSummary {
		sink, finish := d.eventSink(len(pds3KindRoster))
		defer finish()
		if err := d.client.ExtractPDS3(ctx, desc, sink); err != nil {
			return CollectionSummary{Status: "failed", Error: err.Error()}
		}
		return CollectionSummary{Status: "ok"}
	})
}

// TransformPDS3 enriches the STAC tree from parsed catalog files.
func (d *Driver) TransformPDS3(ctx context.Context, sel Selection) error {
	return d.perCollection(ctx, "transform_pds3", sel, func(ctx context.Context, desc *pds.Descriptor) CollectionSummary {
		stats, err := d.transformer.TransformPDS3(ctx, desc)
		return d.transformSummary(desc, stats, err)
	})
}

// TransformRecords emits STAC items from record pages.
func (d *Driver) TransformRecords(ctx context.Context, sel Selection) error {
	return d.perCollection(ctx, "transform_records", sel, func(ctx context.Context, desc *pds.Descriptor) CollectionSummary {
		stats, err := d.transformer.TransformRecords(ctx, desc)
		return d.transformSummary(desc, stats, err)
	})
}

func (d *Driver) transformSummary(desc *pds.Descriptor, stats stac.Stats, err error) CollectionSummary {
	entry := CollectionSummary{
		Status:      "ok",
		Pages:       stats.PagesRead,
		Items:       stats.ItemsWritten,
		Skipped:     stats.ItemsSkipped,
		Quarantined: stats.Quarantined,
		Failures:    len(stats.Failures),
	}
	if err != nil {
		entry.Status = "failed"
		entry.Error = err.Error()
	}
	if len(stats.Failures) > 0 {
		if werr := d.files.WriteReport(desc.Fingerprint(), FormatReport(stats.Failures)); werr != nil {
			d.log.Warn("writing collection report failed", zap.Error(werr))
		}
	}
	return entry
}

// Run executes the full phase order for the selection.
func (d *Driver) Run(ctx context.Context, sel Selection) error {
	if _, err := d.Discover(ctx, sel.Planet, true); err != nil {
		return err
	}
	if err := d.ExtractRecords(ctx, sel); err != nil {
		return err
	}
	if err := d.ExtractPDS3(ctx, sel); err != nil {
		return err
	}
	if err := d.TransformPDS3(ctx, sel); err != nil {
		return err
	}
	return d.TransformRecords(ctx, sel)
}

// pds3KindRoster is the set of catalog kinds a volume can declare.
var pds3KindRoster = []pds3.Kind{
	pds3.KindMission,
	pds3.KindInstrumentHost,
	pds3.KindInstrument,
	pds3.KindDataSet,
	pds3.KindDataSetMapProjection,
	pds3.KindPersonnel,
	pds3.KindReference,
	pds3.KindVolumeDescriptor,
}

// CheckExtract reports local extraction gaps per collection: record
// pages not yet on disk and catalog kinds not yet stored. It only
// reads local state.
func (d *Driver) CheckExtract(ctx context.Context, sel Selection) ([]CollectionSummary, error) {
	descriptors, err := d.collections(ctx, sel)
	if err != nil {
		return nil, err
	}
	var out []CollectionSummary
	for _, desc := range descriptors {
		fp := desc.Fingerprint()
		total := desc.PageCount(d.config.ODE.PageSize)
		if sel.Sample > 0 && sel.Sample < total {
			total = sel.Sample
		}
		entry := CollectionSummary{
			Collection: fp.Key(),
			Status:     "ok",
			Missing:    d.files.ListMissingPages(fp, total),
		}
		stored, err := d.files.ListPDS3(fp)
		if err != nil {
			entry.Status = "failed"
			entry.Error = err.Error()
			out = append(out, entry)
			continue
		}
		present := map[string]bool{}
		for _, item := range stored {
			present[item.Kind] = true
		}
		for _, kind := range pds3KindRoster {
			if !present[kind.String()] {
				entry.MissingPDS3 = append(entry.MissingPDS3, kind.String())
			}
		}
		if len(entry.Missing) > 0 {
			entry.Status = "incomplete"
		}
		out = append(out, entry)
	}
	if err := d.files.WriteSummary("check_extract", out); err != nil {
		return out, err
	}
	return out, nil
}

// Reset applies a scoped deletion. ScopeCollection also drops the
// registry entry so a later discover re-creates it.
func (d *Driver) Reset(ctx context.Context, scope storage.Scope, fp pds.Fingerprint) error {
	if err := d.files.Reset(ctx, scope, fp); err != nil {
		return err
	}
	if scope == storage.ScopeCollection {
		return d.registry.Delete(ctx, fp)
	}
	return nil
}
