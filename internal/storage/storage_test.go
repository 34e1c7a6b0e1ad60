// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"storj.io/common/testcontext"

	"github.com/pdssp/pds-crawler/internal/pds"
)

func testFingerprint(dataset string) pds.Fingerprint {
	return pds.Fingerprint{
		Target:     "Mars",
		Mission:    "Mars Global Surveyor",
		Host:       "MGS",
		Instrument: "MOLA",
		DatasetID:  dataset,
	}
}

func testDescriptor(target, dataset string) *pds.Descriptor {
	return &pds.Descriptor{
		ODEMetaDB:      target,
		IHID:           "MGS",
		IHName:         "Mars Global Surveyor",
		IID:            "MOLA",
		IName:          "Mars Orbiter Laser Altimeter",
		PT:             "PEDR",
		PTName:         "PEDR",
		DataSetID:      dataset,
		NumberProducts: 42,
	}
}

func TestRegistry(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	registry, err := OpenRegistry(zaptest.NewLogger(t), ctx.File("registry"))
	require.NoError(t, err)
	defer ctx.Check(registry.Close)

	descA := testDescriptor("Mars", "DS-A")
	descB := testDescriptor("Moon", "DS-B")
	require.NoError(t, registry.Put(ctx, descA))
	require.NoError(t, registry.Put(ctx, descB))

	got, err := registry.Get(ctx, descA.Fingerprint())
	require.NoError(t, err)
	require.Equal(t, descA, got)

	missing, err := registry.Get(ctx, testFingerprint("NOPE"))
	require.NoError(t, err)
	require.Nil(t, missing)

	// Put replaces by fingerprint.
	descA.NumberProducts = 100
	require.NoError(t, registry.Put(ctx, descA))
	got, err = registry.Get(ctx, descA.Fingerprint())
	require.NoError(t, err)
	require.Equal(t, int64(100), got.NumberProducts)

	var seen []string
	require.NoError(t, registry.All(ctx, "", func(desc *pds.Descriptor) error {
		seen = append(seen, desc.DataSetID)
		return nil
	}))
	require.ElementsMatch(t, []string{"DS-A", "DS-B"}, seen)

	// Target filter is case-insensitive.
	seen = nil
	require.NoError(t, registry.All(ctx, "MOON", func(desc *pds.Descriptor) error {
		seen = append(seen, desc.DataSetID)
		return nil
	}))
	require.Equal(t, []string{"DS-B"}, seen)

	boom := errors.New("boom")
	err = registry.All(ctx, "", func(*pds.Descriptor) error { return boom })
	require.ErrorIs(t, err, boom)

	require.NoError(t, registry.Delete(ctx, descB.Fingerprint()))
	missing, err = registry.Get(ctx, descB.Fingerprint())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFileStorePages(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := NewFileStore(zaptest.NewLogger(t), ctx.Dir("root"))
	require.NoError(t, err)
	fp := testFingerprint("DS-A")

	require.False(t, store.HasPage(fp, 0))
	require.Equal(t, []int{0, 1, 2}, store.ListMissingPages(fp, 3))

	require.NoError(t, store.WritePage(ctx, fp, 0, []byte(`{"a":1}`)))
	require.NoError(t, store.WritePage(ctx, fp, 2, []byte(`{"c":3}`)))
	require.True(t, store.HasPage(fp, 0))
	require.False(t, store.HasPage(fp, 1))
	require.Equal(t, []int{1}, store.ListMissingPages(fp, 3))

	pages, err := store.ListPages(fp)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, pages)

	body, err := store.ReadPage(fp, 2)
	require.NoError(t, err)
	require.Equal(t, `{"c":3}`, string(body))

	// An unknown collection has no pages and no missing list surprises.
	other := testFingerprint("DS-B")
	pages, err = store.ListPages(other)
	require.NoError(t, err)
	require.Empty(t, pages)
}

func TestFileStorePDS3(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := NewFileStore(zaptest.NewLogger(t), ctx.Dir("root"))
	require.NoError(t, err)
	fp := testFingerprint("DS-A")

	require.False(t, store.HasPDS3(fp, "mission", "MISSION.CAT"))
	require.NoError(t, store.WritePDS3(ctx, fp, "mission", "MISSION.CAT", []byte("OBJECT = MISSION\n")))
	require.NoError(t, store.WritePDS3(ctx, fp, "data_set", "DS.CAT", []byte("OBJECT = DATA_SET\n")))
	require.NoError(t, store.WritePDS3(ctx, fp, "instrument_host", "INSTHOST.CAT", []byte("OBJECT = INSTRUMENT_HOST\n")))
	require.True(t, store.HasPDS3(fp, "mission", "MISSION.CAT"))
	// Upstream names are case-normalized.
	require.True(t, store.HasPDS3(fp, "mission", "mission.cat"))

	entries, err := store.ListPDS3(fp)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	kinds := map[string]bool{}
	for _, entry := range entries {
		kinds[entry.Kind] = true
	}
	require.True(t, kinds["mission"])
	require.True(t, kinds["data_set"])
	require.True(t, kinds["instrument_host"])
}

// failingReader simulates a crash in the middle of a write.
type failingReader struct{ fed int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.fed > 0 {
		return 0, errors.New("disk on fire")
	}
	r.fed++
	copy(p, "partial")
	return len("partial"), nil
}

func TestWriteAtomicPreservesOldContent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("dir", "doc.json")
	require.NoError(t, WriteFileAtomic(path, []byte("original")))

	err := writeAtomic(path, &failingReader{})
	require.Error(t, err)

	// The old content survives and no temp siblings are left on the
	// final path's name.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "original", string(data))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestNewFileStoreSweepsTempFiles(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	root := ctx.Dir("root")
	fp := testFingerprint("DS-A")

	store, err := NewFileStore(zaptest.NewLogger(t), root)
	require.NoError(t, err)
	require.NoError(t, store.WritePage(ctx, fp, 0, []byte("{}")))

	// A crash between CreateTemp and the rename leaves a temp sibling.
	leftover := filepath.Join(filepath.Dir(store.PagePath(fp, 0)), "page_001.json.tmp123456")
	require.NoError(t, os.WriteFile(leftover, []byte("partial"), 0o644))

	store, err = NewFileStore(zaptest.NewLogger(t), root)
	require.NoError(t, err)
	_, err = os.Stat(leftover)
	require.True(t, os.IsNotExist(err))
	require.True(t, store.HasPage(fp, 0))
}

func TestQuarantine(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := NewFileStore(zaptest.NewLogger(t), ctx.Dir("root"))
	require.NoError(t, err)
	fp := testFingerprint("DS-A")

	require.NoError(t, store.WritePage(ctx, fp, 0, []byte("garbage")))
	path := store.PagePath(fp, 0)
	require.NoError(t, store.Quarantine(fp, path))

	require.False(t, store.HasPage(fp, 0))
	moved := filepath.Join(store.CollectionDir(fp), "quarantine", filepath.Base(path))
	_, err = os.Stat(moved)
	require.NoError(t, err)
}

func TestResetScopes(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := NewFileStore(zaptest.NewLogger(t), ctx.Dir("root"))
	require.NoError(t, err)
	fpA := testFingerprint("DS-A")
	fpB := testFingerprint("DS-B")

	seed := func(fp pds.Fingerprint) {
		require.NoError(t, store.WritePage(ctx, fp, 0, []byte("{}")))
		require.NoError(t, store.WritePDS3(ctx, fp, "mission", "MISSION.CAT", []byte("x")))
		require.NoError(t, WriteFileAtomic(filepath.Join(store.StacDir(fp), "collection.json"), []byte("{}")))
	}
	seed(fpA)
	seed(fpB)
	require.NoError(t, WriteFileAtomic(filepath.Join(store.RootStacDir(), "catalog.json"), []byte("{}")))

	// ScopeFiles clears downloads but leaves the STAC tree alone.
	require.NoError(t, store.Reset(ctx, ScopeFiles, pds.Fingerprint{}))
	require.False(t, store.HasPage(fpA, 0))
	require.False(t, store.HasPDS3(fpB, "mission", "MISSION.CAT"))
	_, err = os.Stat(filepath.Join(store.StacDir(fpA), "collection.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.RootStacDir(), "catalog.json"))
	require.NoError(t, err)

	// ScopeStac clears the whole tree, parents included.
	seed(fpA)
	seed(fpB)
	require.NoError(t, store.Reset(ctx, ScopeStac, pds.Fingerprint{}))
	_, err = os.Stat(filepath.Join(store.StacDir(fpA), "collection.json"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(store.RootStacDir(), "catalog.json"))
	require.True(t, os.IsNotExist(err))
	require.True(t, store.HasPage(fpA, 0))

	// ScopeCollection removes a single collection directory.
	require.NoError(t, store.Reset(ctx, ScopeCollection, fpA))
	_, err = os.Stat(store.CollectionDir(fpA))
	require.True(t, os.IsNotExist(err))
	require.True(t, store.HasPage(fpB, 0))

	require.Error(t, store.Reset(ctx, ScopeCollection, pds.Fingerprint{}))
}

func TestWriteSummary(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := NewFileStore(zaptest.NewLogger(t), ctx.Dir("root"))
	require.NoError(t, err)

	require.NoError(t, store.WriteSummary("discover", map[string]int{"kept": 3}))
	data, err := os.ReadFile(filepath.Join(store.Root(), "summary_discover.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"kept": 3`)
}
