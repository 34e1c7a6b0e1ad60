// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/errs"
)

// writeAtomic writes data to path through a temp sibling and a rename,
// so a crash mid-write leaves either the old content or the new one,
// never a partial file.
func writeAtomic(path string, data io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return Error.Wrap(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, os.Remove(tmp.Name()))
		}
	}()
	if _, err := io.Copy(tmp, data); err != nil {
		return errs.Combine(Error.Wrap(err), tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return errs.Combine(Error.Wrap(err), tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(os.Rename(tmp.Name(), path))
}

// WriteFileAtomic writes data to path with the temp-sibling-and-rename
// discipline. Other packages use it for documents they own inside the
// storage tree.
func WriteFileAtomic(path string, data []byte) error {
	return writeAtomic(path, bytes.NewReader(data))
}

// removeTempFiles clears leftover temp siblings from interrupted
// writes anywhere under root. A missing root is not an error.
func removeTempFiles(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.Contains(d.Name(), ".tmp") {
			return nil
		}
		return os.Remove(path)
	})
	return Error.Wrap(err)
}

const (
	dirPermission  = 0o755
	filePermission = 0o644
)
