// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package stac

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pdssp/pds-crawler/internal/pds"
	"github.com/pdssp/pds-crawler/internal/storage"
)

// Repository manages the STAC documents on disk. Parent catalogs live
// under the storage root's stac directory; collection documents and
// items live inside each collection's own directory. All hrefs are
// relative so the tree can be relocated wholesale.
type Repository struct {
	log   *zap.Logger
	files *storage.FileStore
}

// NewRepository returns a repository over the file store.
func NewRepository(log *zap.Logger, files *storage.FileStore) *Repository {
	return &Repository{log: log, files: files}
}

// RootPath returns the root catalog document path.
func (r *Repository) RootPath() string {
	return filepath.Join(r.files.RootStacDir(), "catalog.json")
}

// MissionPath returns the mission catalog document path.
func (r *Repository) MissionPath(missionID string) string {
	return filepath.Join(r.files.RootStacDir(), missionID, "catalog.json")
}

// HostPath returns the instrument host catalog document path.
func (r *Repository) HostPath(missionID, hostID string) string {
	return filepath.Join(r.files.RootStacDir(), missionID, hostID, "catalog.json")
}

// InstrumentPath returns the instrument catalog document path.
func (r *Repository) InstrumentPath(missionID, hostID, instrumentID string) string {
	return filepath.Join(r.files.RootStacDir(), missionID, hostID, instrumentID, "catalog.json")
}

// CollectionPath returns the collection document path.
func (r *Repository) CollectionPath(fp pds.Fingerprint) string {
	return filepath.Join(r.files.StacDir(fp), "collection.json")
}

// ItemPath returns an item document path.
func (r *Repository) ItemPath(fp pds.Fingerprint, itemID string) string {
	return filepath.Join(r.files.StacDir(fp), "items", itemID+".json")
}

// ItemIDs lists the item ids present for a collection, in directory
// order.
func (r *Repository) ItemIDs(fp pds.Fingerprint) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.files.StacDir(fp), "items"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var ids []string
	for _, entry := range entries {
		if name := entry.Name(); filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}

// RelHref returns the relative href from the document at fromPath to
// the document at toPath, in slash form.
func RelHref(fromPath, toPath string) string {
	rel, err := filepath.Rel(filepath.Dir(fromPath), toPath)
	if err != nil {
		return toPath
	}
	return filepath.ToSlash(rel)
}

// marshal renders a document in the canonical indented form. Encoding
// is deterministic, so idempotent rewrites are byte-equal.
func marshal(doc interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return append(data, '\n'), nil
}

// WriteDoc writes a document atomically.
func (r *Repository) WriteDoc(path string, doc interface{}) error {
	data, err := marshal(doc)
	if err != nil {
		return err
	}
	return Error.Wrap(storage.WriteFileAtomic(path, data))
}

// ReadCatalog loads a catalog document; absent files return nil.
func (r *Repository) ReadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, Error.Wrap(err)
	}
	return &catalog, nil
}

// ReadCollection loads a collection document; absent files return nil.
func (r *Repository) ReadCollection(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var collection Collection
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, Error.Wrap(err)
	}
	return &collection, nil
}

// ReadItem loads an item document; absent files return nil.
func (r *Repository) ReadItem(path string) (*Item, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, Error.Wrap(err)
	}
	return &item, nil
}
