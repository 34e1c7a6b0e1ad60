// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package stac

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdssp/pds-crawler/internal/pds"
	"github.com/pdssp/pds-crawler/internal/pds3"
	"github.com/pdssp/pds-crawler/internal/storage"
)

// ReportEntry is one failure captured during a transform.
type ReportEntry struct {
	Resource    string
	Explanation string
}

// Stats summarizes one collection transform.
type Stats struct {
	ItemsWritten int
	ItemsSkipped int
	PagesRead    int
	Quarantined  int
	Failures     []ReportEntry
}

// Transformer builds the STAC tree from record pages and parsed PDS3
// catalogs.
type Transformer struct {
	log   *zap.Logger
	files *storage.FileStore
	repo  *Repository
}

// NewTransformer wires the transformer to the storage layer.
func NewTransformer(log *zap.Logger, files *storage.FileStore) *Transformer {
	return &Transformer{
		log:   log,
		files: files,
		repo:  NewRepository(log, files),
	}
}

// identity is the set of normalized ids for one collection's chain.
type identity struct {
	missionID    string
	missionTitle string
	hostID       string
	hostTitle    string
	instrumentID string
	instTitle    string
	collectionID string
}

func (t *Transformer) identityOf(desc *pds.Descriptor, arena *arena) identity {
	id := identity{
		missionID:    NormID(desc.IHName),
		missionTitle: desc.IHName,
		hostID:       NormID(desc.IHID),
		hostTitle:    desc.IHName,
		instrumentID: NormID(desc.IID),
		instTitle:    desc.IName,
		collectionID: NormID(desc.DataSetID),
	}
	// PDS3 values win over the ODE descriptor when both are present.
	if arena != nil {
		if arena.mission != nil && arena.mission.Name != "" {
			id.missionID = NormID(arena.mission.Name)
			id.missionTitle = arena.mission.Name
		}
		if arena.host != nil {
			if arena.host.InstrumentHostID != "" {
				id.hostID = NormID(arena.host.InstrumentHostID)
			}
			if arena.host.Name != "" {
				id.hostTitle = arena.host.Name
			}
		}
		if arena.instrument != nil {
			if arena.instrument.InstrumentID != "" {
				id.instrumentID = NormID(arena.instrument.InstrumentID)
			}
			if arena.instrument.Name != "" {
				id.instTitle = arena.instrument.Name
			}
		}
	}
	return id
}

// arena holds one collection's parsed PDS3 objects, keyed by natural
// id where it matters. Citations are linked by key lookup after all
// files have been parsed, never by pointer during parse.
type arena struct {
	mission    *pds3.Mission
	host       *pds3.InstrumentHost
	instrument *pds3.Instrument
	dataset    *pds3.DataSet
	projection *pds3.DataSetMapProjection
	volume     *pds3.VolumeDescriptor
	personnel  *pds3.Personnel
	citations  map[string]pds3.Citation
}

// loadArena parses every stored PDS3 file for the collection. Parse
// failures are recorded and the corresponding enrichment is skipped.
func (t *Transformer) loadArena(fp pds.Fingerprint, stats *Stats) *arena {
	a := &arena{citations: map[string]pds3.Citation{}}
	entries, err := t.files.ListPDS3(fp)
	if err != nil {
		stats.Failures = append(stats.Failures, ReportEntry{
			Resource:    fp.Key(),
			Explanation: fmt.Sprintf("listing pds3 files: %v", err),
		})
		return a
	}
	for _, entry := range entries {
		data, err := os.ReadFile(entry.Path)
		if err != nil {
			stats.Failures = append(stats.Failures, ReportEntry{
				Resource:    entry.Path,
				Explanation: err.Error(),
			})
			continue
		}
		obj, err := pds3.ParseFile(entry.Path, string(data), t.log)
		if err != nil {
			stats.Failures = append(stats.Failures, ReportEntry{
				Resource:    entry.Path,
				Explanation: fmt.Sprintf("unparsed: %v", err),
			})
			continue
		}
		switch v := obj.(type) {
		case *pds3.Mission:
			a.mission = v
		case *pds3.InstrumentHost:
			a.host = v
		case *pds3.Instrument:
			a.instrument = v
		case *pds3.DataSet:
			a.dataset = v
		case *pds3.DataSetMapProjection:
			a.projection = v
		case *pds3.VolumeDescriptor:
			a.volume = v
		case *pds3.Personnel:
			a.personnel = v
		case *pds3.Reference:
			for _, citation := range v.Citations {
				a.citations[citation.ReferenceKeyID] = citation
			}
		}
	}
	return a
}

// publications resolves reference keys against the citation arena.
func (a *arena) publications(keys []string) []Publication {
	var out []Publication
	for _, key := range keys {
		if citation, ok := a.citations[key]; ok && citation.Desc != "" {
			out = append(out, Publication{Citation: citation.Desc})
		}
	}
	return out
}

// TransformRecords streams the collection's record pages and emits one
// item per record, creating the collection document and parent chain
// when missing. Stored PDS3 metadata is applied here too, so the phase
// order does not matter: whichever transform runs last sees the same
// enrichment. Undecodable pages are quarantined; individual item
// failures are recorded and skipped.
func (t *Transformer) TransformRecords(ctx context.Context, desc *pds.Descriptor) (stats Stats, err error) {
	defer mon.Task()(&ctx)(&err)

	fp := desc.Fingerprint()
	a := t.loadArena(fp, &stats)
	id := t.identityOf(desc, a)

	pages, err := t.files.ListPages(fp)
	if err != nil {
		return stats, err
	}

	ext := newExtentAccum()
	for _, index := range pages {
		if err := ctx.Err(); err != nil {
			return stats, Error.Wrap(err)
		}
		body, err := t.files.ReadPage(fp, index)
		if err != nil {
			stats.Failures = append(stats.Failures, ReportEntry{
				Resource:    t.files.PagePath(fp, index),
				Explanation: err.Error(),
			})
			continue
		}
		stats.PagesRead++
		records, err := pds.DecodeRecords(body)
		if err != nil {
			path := t.files.PagePath(fp, index)
			stats.Failures = append(stats.Failures, ReportEntry{
				Resource:    path,
				Explanation: fmt.Sprintf("not decodable, quarantined: %v", err),
			})
			if qerr := t.files.Quarantine(fp, path); qerr != nil {
				t.log.Warn("quarantine failed", zap.Error(qerr))
			} else {
				stats.Quarantined++
			}
			continue
		}
		for i := range records {
			record := &records[i]
			item, err := t.buildItem(fp, id, record)
			if err != nil {
				stats.ItemsSkipped++
				stats.Failures = append(stats.Failures, ReportEntry{
					Resource:    record.ODEID,
					Explanation: err.Error(),
				})
				continue
			}
			if err := t.repo.WriteDoc(t.repo.ItemPath(fp, item.ID), item); err != nil {
				stats.ItemsSkipped++
				stats.Failures = append(stats.Failures, ReportEntry{
					Resource:    record.ODEID,
					Explanation: err.Error(),
				})
				continue
			}
			stats.ItemsWritten++
			ext.addItem(item)
		}
	}

	if err := t.writeCollection(fp, id, desc, a, ext); err != nil {
		return stats, err
	}
	if err := t.writeParentChain(fp, id, desc, a); err != nil {
		return stats, err
	}
	return stats, nil
}

// TransformPDS3 enriches the collection and its parent chain with the
// parsed PDS3 catalog metadata. Items already emitted are preserved.
func (t *Transformer) TransformPDS3(ctx context.Context, desc *pds.Descriptor) (stats Stats, err error) {
	defer mon.Task()(&ctx)(&err)

	fp := desc.Fingerprint()
	a := t.loadArena(fp, &stats)
	id := t.identityOf(desc, a)

	ext := newExtentAccum()
	existing, err := t.repo.ReadCollection(t.repo.CollectionPath(fp))
	if err != nil {
		return stats, err
	}
	if existing != nil {
		ext.addExtent(existing.Extent)
	}

	if err := t.writeCollection(fp, id, desc, a, ext); err != nil {
		return stats, err
	}
	if err := t.writeParentChain(fp, id, desc, a); err != nil {
		return stats, err
	}
	return stats, nil
}

func (t *Transformer) buildItem(fp pds.Fingerprint, id identity, record *pds.Record) (*Item, error) {
	itemID := NormID(record.ODEID)
	if itemID == "" {
		itemID = NormID(record.PDSID)
	}
	if itemID == "" {
		return nil, Error.New("record has no identifier")
	}
	when, err := record.Datetime()
	if err != nil {
		return nil, err
	}
	geometry, err := record.Geometry()
	if err != nil {
		return nil, err
	}

	properties := map[string]interface{}{
		"datetime":     when.Format(time.RFC3339),
		"platform":     record.IHID,
		"instruments":  []string{record.IID},
		"ssys:targets": []string{record.TargetName},
	}
	if start, stop, ok := record.StartStop(); ok {
		properties["start_datetime"] = start.Format(time.RFC3339)
		properties["end_datetime"] = stop.Format(time.RFC3339)
	}

	assets := map[string]Asset{}
	for _, ref := range record.Assets() {
		assets[ref.Name] = Asset{
			Href:        ref.Href,
			Title:       ref.Title,
			Description: ref.Description,
			Type:        ref.MediaType,
			Roles:       ref.Roles,
		}
	}

	itemPath := t.repo.ItemPath(fp, itemID)
	collectionPath := t.repo.CollectionPath(fp)
	rootPath := t.repo.RootPath()
	return &Item{
		Type:           "Feature",
		StacVersion:    Version,
		StacExtensions: []string{SsysSchema},
		ID:             itemID,
		Geometry:       geometry,
		BBox:           record.BBox(),
		Properties:     properties,
		Collection:     id.collectionID,
		Links: []Link{
			{Rel: "root", Href: RelHref(itemPath, rootPath), Type: "application/json"},
			{Rel: "parent", Href: RelHref(itemPath, collectionPath), Type: "application/json"},
			{Rel: "collection", Href: RelHref(itemPath, collectionPath), Type: "application/json"},
		},
		Assets: assets,
	}, nil
}

// writeCollection creates or rewrites the collection document. The
// extent is the union of the accumulated item extents, the previous
// extent, and the descriptor's observation window.
func (t *Transformer) writeCollection(fp pds.Fingerprint, id identity, desc *pds.Descriptor, a *arena, ext *extentAccum) error {
	collectionPath := t.repo.CollectionPath(fp)
	existing, err := t.repo.ReadCollection(collectionPath)
	if err != nil {
		return err
	}
	if existing != nil {
		ext.addExtent(existing.Extent)
	}
	ext.addDescriptor(desc)

	title := desc.DataSetID
	description := fmt.Sprintf("Products of %s acquired by %s on %s.", desc.PTName, desc.IName, desc.IHName)
	var keywords []string
	var providers []Provider
	var publications []Publication
	targets := []string{desc.ODEMetaDB}

	if a != nil {
		if a.dataset != nil {
			if a.dataset.Name != "" {
				title = a.dataset.Name
			}
			if a.dataset.Desc != "" {
				description = a.dataset.Desc
			} else if a.dataset.TerseDesc != "" {
				description = a.dataset.TerseDesc
			}
			if len(a.dataset.Targets) > 0 {
				targets = a.dataset.Targets
			}
			for _, name := range a.dataset.ProducerFullName {
				providers = append(providers, Provider{Name: name, Roles: []string{"producer"}})
			}
			publications = a.publications(a.dataset.References)
			keywords = append(keywords, a.dataset.TerseDesc)
			keywords = trimEmpty(keywords)
		}
		if a.volume != nil {
			if a.volume.Producer.InstitutionName != "" {
				providers = append(providers, Provider{
					Name:  a.volume.Producer.InstitutionName,
					Roles: []string{"producer"},
				})
			}
			if a.volume.Supplier != nil && a.volume.Supplier.InstitutionName != "" {
				providers = append(providers, Provider{
					Name:  a.volume.Supplier.InstitutionName,
					Roles: []string{"host"},
				})
			}
		}
		if a.projection != nil && a.projection.ProjectionType != "" {
			keywords = append(keywords, a.projection.ProjectionType)
		}
	}
	providers = dedupeProviders(providers)

	instrumentPath := t.repo.InstrumentPath(id.missionID, id.hostID, id.instrumentID)
	collection := &Collection{
		Type:           "Collection",
		StacVersion:    Version,
		StacExtensions: []string{SsysSchema},
		ID:             id.collectionID,
		Title:          title,
		Description:    description,
		Keywords:       keywords,
		License:        License,
		Providers:      providers,
		Extent:         ext.extent(),
		SsysTargets:    targets,
		Publications:   publications,
		Links: []Link{
			{Rel: "root", Href: RelHref(collectionPath, t.repo.RootPath()), Type: "application/json"},
			{Rel: "parent", Href: RelHref(collectionPath, instrumentPath), Type: "application/json"},
		},
	}

	itemIDs, err := t.repo.ItemIDs(fp)
	if err != nil {
		return err
	}
	sort.Strings(itemIDs)
	for _, itemID := range itemIDs {
		collection.Links = append(collection.Links, Link{
			Rel:  "item",
			Href: RelHref(collectionPath, t.repo.ItemPath(fp, itemID)),
			Type: "application/json",
		})
	}
	return t.repo.WriteDoc(collectionPath, collection)
}

// writeParentChain creates or merges the instrument, host, mission and
// root catalogs, bottom up, recomputing each parent's extent as the
// union of its children.
func (t *Transformer) writeParentChain(fp pds.Fingerprint, id identity, desc *pds.Descriptor, a *arena) error {
	rootPath := t.repo.RootPath()
	missionPath := t.repo.MissionPath(id.missionID)
	hostPath := t.repo.HostPath(id.missionID, id.hostID)
	instrumentPath := t.repo.InstrumentPath(id.missionID, id.hostID, id.instrumentID)
	collectionPath := t.repo.CollectionPath(fp)

	// Instrument catalog: children are collection documents that can
	// live anywhere under the storage root, so child links are merged
	// with the ones already present.
	instrument := NewCatalog(id.instrumentID, id.instTitle,
		fmt.Sprintf("Products acquired by %s.", id.instTitle))
	if a != nil && a.instrument != nil && a.instrument.Desc != "" {
		instrument.Description = a.instrument.Desc
	}
	prior, err := t.repo.ReadCatalog(instrumentPath)
	if err != nil {
		return err
	}
	instrument.Links = []Link{
		{Rel: "root", Href: RelHref(instrumentPath, rootPath), Type: "application/json"},
		{Rel: "parent", Href: RelHref(instrumentPath, hostPath), Type: "application/json"},
	}
	children := map[string]bool{RelHref(instrumentPath, collectionPath): true}
	if prior != nil {
		for _, link := range childLinks(prior.Links) {
			children[link.Href] = true
		}
	}
	instrument.Extent = t.unionChildExtents(instrumentPath, children)
	for _, href := range sortedKeys(children) {
		instrument.Links = append(instrument.Links, Link{Rel: "child", Href: href, Type: "application/json"})
	}
	if err := t.repo.WriteDoc(instrumentPath, instrument); err != nil {
		return err
	}

	// Host catalog.
	host := NewCatalog(id.hostID, id.hostTitle,
		fmt.Sprintf("Instruments flown on %s.", id.hostTitle))
	if a != nil && a.host != nil && a.host.Desc != "" {
		host.Description = a.host.Desc
	}
	if err := t.writeDirCatalog(host, hostPath, missionPath, rootPath); err != nil {
		return err
	}

	// Mission catalog.
	mission := NewCatalog(id.missionID, id.missionTitle,
		fmt.Sprintf("Data collected during the %s mission.", id.missionTitle))
	if a != nil && a.mission != nil {
		if a.mission.Desc != "" {
			mission.Description = a.mission.Desc
		}
		if len(a.mission.Host.Targets) > 0 {
			mission.SsysTargets = a.mission.Host.Targets
			mission.StacExtensions = []string{SsysSchema}
		}
	}
	if err := t.writeDirCatalog(mission, missionPath, rootPath, rootPath); err != nil {
		return err
	}

	// Root catalog.
	root := NewCatalog("pds", "Planetary Data System",
		"STAC projection of the Planetary Data System archives.")
	root.Links = []Link{}
	rootChildren, err := t.childDirCatalogs(rootPath)
	if err != nil {
		return err
	}
	for _, childPath := range rootChildren {
		root.Links = append(root.Links, Link{
			Rel: "child", Href: RelHref(rootPath, childPath), Type: "application/json",
		})
	}
	return t.repo.WriteDoc(rootPath, root)
}

// writeDirCatalog rewrites a parent catalog whose children live in its
// own subdirectories, regenerating links and unioning child extents.
func (t *Transformer) writeDirCatalog(catalog *Catalog, path, parentPath, rootPath string) error {
	catalog.Links = []Link{
		{Rel: "root", Href: RelHref(path, rootPath), Type: "application/json"},
		{Rel: "parent", Href: RelHref(path, parentPath), Type: "application/json"},
	}
	childPaths, err := t.childDirCatalogs(path)
	if err != nil {
		return err
	}
	ext := newExtentAccum()
	for _, childPath := range childPaths {
		catalog.Links = append(catalog.Links, Link{
			Rel: "child", Href: RelHref(path, childPath), Type: "application/json",
		})
		child, err := t.repo.ReadCatalog(childPath)
		if err != nil {
			return err
		}
		if child != nil && child.Extent != nil {
			ext.addExtent(*child.Extent)
		}
	}
	if !ext.empty() {
		extent := ext.extent()
		catalog.Extent = &extent
	}
	return t.repo.WriteDoc(path, catalog)
}

// childDirCatalogs lists catalog.json documents one directory below
// path, sorted for deterministic link order.
func (t *Transformer) childDirCatalogs(path string) ([]string, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(dir, entry.Name(), "catalog.json")
		if _, err := os.Stat(candidate); err == nil {
			out = append(out, candidate)
		}
	}
	sort.Strings(out)
	return out, nil
}

// unionChildExtents unions the extents of the given child collection
// hrefs, resolved relative to the instrument catalog.
func (t *Transformer) unionChildExtents(instrumentPath string, children map[string]bool) *Extent {
	ext := newExtentAccum()
	for href := range children {
		childPath := resolveHref(instrumentPath, href)
		collection, err := t.repo.ReadCollection(childPath)
		if err != nil || collection == nil {
			continue
		}
		ext.addExtent(collection.Extent)
	}
	if ext.empty() {
		return nil
	}
	extent := ext.extent()
	return &extent
}

func trimEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupeProviders(in []Provider) []Provider {
	seen := map[string]bool{}
	var out []Provider
	for _, p := range in {
		if p.Name == "" || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
