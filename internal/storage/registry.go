// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

// Package storage owns all persistent state of the pipeline: a bolt
// backed registry of collection descriptors and a per-collection file
// store for record pages, PDS3 catalog files, and the STAC tree.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/pdssp/pds-crawler/internal/pds"
)

var (
	// Error is the class of errors returned by this package.
	Error = errs.Class("storage")

	mon = monkit.Package()
)

var collectionsBucket = []byte("collections")

// Registry is the keyed table of collection descriptors. Bolt provides
// the exclusive file lock and crash-safe snapshots; many readers and a
// single writer are supported.
type Registry struct {
	log *zap.Logger
	db  *bolt.DB
}

// OpenRegistry opens or creates the registry database at path.
func OpenRegistry(log *zap.Logger, path string) (*Registry, error) {
	db, err := bolt.Open(path, filePermission, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(collectionsBucket)
		return err
	})
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), db.Close())
	}
	return &Registry{log: log, db: db}, nil
}

// Close releases the database and its file lock.
func (r *Registry) Close() error {
	return Error.Wrap(r.db.Close())
}

// Put inserts or replaces the descriptor keyed by its fingerprint.
func (r *Registry) Put(ctx context.Context, desc *pds.Descriptor) (err error) {
	defer mon.Task()(&ctx)(&err)
	data, err := desc.Encode()
	if err != nil {
		return Error.Wrap(err)
	}
	key := desc.Fingerprint().Key()
	return Error.Wrap(r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(collectionsBucket).Put([]byte(key), data)
	}))
}

// Get returns the descriptor for the fingerprint, or nil when absent.
func (r *Registry) Get(ctx context.Context, fp pds.Fingerprint) (desc *pds.Descriptor, err error) {
	defer mon.Task()(&ctx)(&err)
	err = r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(collectionsBucket).Get([]byte(fp.Key()))
		if data == nil {
			return nil
		}
		desc, err = pds.DecodeDescriptor(data)
		return err
	})
	return desc, Error.Wrap(err)
}

// Delete removes the descriptor for the fingerprint, if present.
func (r *Registry) Delete(ctx context.Context, fp pds.Fingerprint) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(collectionsBucket).Delete([]byte(fp.Key()))
	}))
}

// All streams every descriptor to fn, optionally filtered by target
// body (case-insensitive). Iteration stops on the first error or on
// context cancellation.
func (r *Registry) All(ctx context.Context, target string, fn func(*pds.Descriptor) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	target = strings.ToLower(target)
	err = r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(collectionsBucket).ForEach(func(key, data []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			desc, err := pds.DecodeDescriptor(data)
			if err != nil {
				r.log.Warn("skipping undecodable registry entry",
					zap.ByteString("key", key), zap.Error(err))
				return nil
			}
			if target != "" && strings.ToLower(desc.ODEMetaDB) != target {
				return nil
			}
			return fn(desc)
		})
	})
	return Error.Wrap(err)
}
