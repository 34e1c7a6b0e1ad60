// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdssp/pds-crawler/internal/pds"
	"github.com/pdssp/pds-crawler/internal/pds3"
)

// Scope selects what Reset removes.
type Scope int

const (
	// ScopeFiles removes all downloaded record pages and PDS3 files,
	// for every collection.
	ScopeFiles Scope = iota
	// ScopeStac removes the whole STAC tree, parents included.
	ScopeStac
	// ScopeCollection removes one collection's directory entirely.
	ScopeCollection
)

// PDS3Entry is one stored catalog file with its detected kind.
type PDS3Entry struct {
	Kind string
	Path string
}

// FileStore is the per-collection directory hierarchy. Every write
// goes through a temp sibling and a rename; concurrent writers to
// different collections never conflict.
type FileStore struct {
	log  *zap.Logger
	root string
}

// NewFileStore returns a file store rooted at root, creating it when
// missing. Temp siblings left behind by interrupted writes are swept
// on open.
func NewFileStore(log *zap.Logger, root string) (*FileStore, error) {
	if err := os.MkdirAll(root, dirPermission); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := removeTempFiles(root); err != nil {
		return nil, err
	}
	return &FileStore{log: log, root: root}, nil
}

// Root returns the storage root path.
func (s *FileStore) Root() string { return s.root }

// CollectionDir returns the directory owned by the collection.
func (s *FileStore) CollectionDir(fp pds.Fingerprint) string {
	return filepath.Join(append([]string{s.root}, fp.Segments()...)...)
}

func (s *FileStore) recordsDir(fp pds.Fingerprint) string {
	return filepath.Join(s.CollectionDir(fp), "records")
}

func (s *FileStore) pds3Dir(fp pds.Fingerprint) string {
	return filepath.Join(s.CollectionDir(fp), "pds3")
}

func (s *FileStore) quarantineDir(fp pds.Fingerprint) string {
	return filepath.Join(s.CollectionDir(fp), "quarantine")
}

// StacDir returns the collection's STAC directory holding
// collection.json and items/.
func (s *FileStore) StacDir(fp pds.Fingerprint) string {
	return filepath.Join(s.CollectionDir(fp), "stac")
}

// RootStacDir returns the directory of the managed parent catalogs
// (root, mission, host, instrument).
func (s *FileStore) RootStacDir() string {
	return filepath.Join(s.root, "stac")
}

// PagePath returns the deterministic path of a record page.
func (s *FileStore) PagePath(fp pds.Fingerprint, index int) string {
	return filepath.Join(s.recordsDir(fp), fmt.Sprintf("page_%03d.json", index))
}

// HasPage reports whether the page is already on disk.
func (s *FileStore) HasPage(fp pds.Fingerprint, index int) bool {
	info, err := os.Stat(s.PagePath(fp, index))
	return err == nil && info.Mode().IsRegular()
}

// WritePage persists one verbatim page body atomically. On failure any
// prior content is preserved.
func (s *FileStore) WritePage(ctx context.Context, fp pds.Fingerprint, index int, data []byte) (err error) {
	defer mon.Task()(&ctx)(&err)
	return writeAtomic(s.PagePath(fp, index), bytes.NewReader(data))
}

// ReadPage returns one verbatim page body.
func (s *FileStore) ReadPage(fp pds.Fingerprint, index int) ([]byte, error) {
	data, err := os.ReadFile(s.PagePath(fp, index))
	return data, Error.Wrap(err)
}

// ListMissingPages returns the page indices in [0, total) that are not
// on disk, in increasing order. Extraction resumes from this list.
func (s *FileStore) ListMissingPages(fp pds.Fingerprint, total int) []int {
	var missing []int
	for index := 0; index < total; index++ {
		if !s.HasPage(fp, index) {
			missing = append(missing, index)
		}
	}
	return missing
}

// ListPages returns the indices of the pages on disk, sorted. Readers
// must not assume write order.
func (s *FileStore) ListPages(fp pds.Fingerprint) ([]int, error) {
	entries, err := os.ReadDir(s.recordsDir(fp))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var pages []int
	for _, entry := range entries {
		var index int
		if _, err := fmt.Sscanf(entry.Name(), "page_%03d.json", &index); err == nil {
			pages = append(pages, index)
		}
	}
	sort.Ints(pages)
	return pages, nil
}

// PDS3Path returns the path a catalog file is stored at. The name is
// the upstream filename prefixed by the detected catalog kind.
func (s *FileStore) PDS3Path(fp pds.Fingerprint, kind, filename string) string {
	name := strings.ToLower(filepath.Base(filename))
	return filepath.Join(s.pds3Dir(fp), kind+"_"+name)
}

// HasPDS3 reports whether the catalog file is already stored.
func (s *FileStore) HasPDS3(fp pds.Fingerprint, kind, filename string) bool {
	info, err := os.Stat(s.PDS3Path(fp, kind, filename))
	return err == nil && info.Mode().IsRegular()
}

// WritePDS3 stores one catalog file atomically.
func (s *FileStore) WritePDS3(ctx context.Context, fp pds.Fingerprint, kind, filename string, data []byte) (err error) {
	defer mon.Task()(&ctx)(&err)
	return writeAtomic(s.PDS3Path(fp, kind, filename), bytes.NewReader(data))
}

// ListPDS3 returns the stored catalog files with their kinds, sorted
// by path.
func (s *FileStore) ListPDS3(fp pds.Fingerprint) ([]PDS3Entry, error) {
	entries, err := os.ReadDir(s.pds3Dir(fp))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var out []PDS3Entry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind := "unknown"
		for _, k := range pds3.KindsByPrefix {
			if strings.HasPrefix(entry.Name(), k.String()+"_") {
				kind = k.String()
				break
			}
		}
		out = append(out, PDS3Entry{
			Kind: kind,
			Path: filepath.Join(s.pds3Dir(fp), entry.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Quarantine moves a malformed file into the collection's quarantine
// sibling, preserving its name.
func (s *FileStore) Quarantine(fp pds.Fingerprint, path string) error {
	dir := s.quarantineDir(fp)
	if err := os.MkdirAll(dir, dirPermission); err != nil {
		return Error.Wrap(err)
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return Error.Wrap(err)
	}
	s.log.Warn("file quarantined",
		zap.String("from", path), zap.String("to", dest))
	return nil
}

// Reset performs a scoped deletion. ScopeCollection requires a
// fingerprint; the other scopes ignore it.
func (s *FileStore) Reset(ctx context.Context, scope Scope, fp pds.Fingerprint) (err error) {
	defer mon.Task()(&ctx)(&err)
	switch scope {
	case ScopeCollection:
		if !fp.Valid() {
			return Error.New("reset collection requires a complete fingerprint")
		}
		return Error.Wrap(os.RemoveAll(s.CollectionDir(fp)))
	case ScopeStac:
		if err := os.RemoveAll(s.RootStacDir()); err != nil {
			return Error.Wrap(err)
		}
		return s.walkCollections(func(dir string) error {
			return os.RemoveAll(filepath.Join(dir, "stac"))
		})
	case ScopeFiles:
		return s.walkCollections(func(dir string) error {
			if err := os.RemoveAll(filepath.Join(dir, "records")); err != nil {
				return err
			}
			if err := os.RemoveAll(filepath.Join(dir, "quarantine")); err != nil {
				return err
			}
			return os.RemoveAll(filepath.Join(dir, "pds3"))
		})
	default:
		return Error.New("unknown reset scope %d", scope)
	}
}

// walkCollections calls fn with every collection directory, detected
// as a depth-five directory under the root.
func (s *FileStore) walkCollections(fn func(dir string) error) error {
	return Error.Wrap(filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		if rel == "stac" {
			return filepath.SkipDir
		}
		if depth := len(strings.Split(rel, string(filepath.Separator))); depth == 5 {
			if err := fn(path); err != nil {
				return err
			}
			return filepath.SkipDir
		}
		return nil
	}))
}

// WriteReport writes the collection's human-readable failure report.
func (s *FileStore) WriteReport(fp pds.Fingerprint, content []byte) error {
	return writeAtomic(filepath.Join(s.StacDir(fp), "report.txt"), bytes.NewReader(content))
}

// WriteSummary writes the machine-readable per-phase summary at the
// storage root.
func (s *FileStore) WriteSummary(phase string, summary interface{}) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return Error.Wrap(err)
	}
	name := fmt.Sprintf("summary_%s.json", phase)
	return writeAtomic(filepath.Join(s.root, name), bytes.NewReader(data))
}
