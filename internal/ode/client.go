// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

// Package ode talks to the two upstream sources: the ODE JSON web
// service for collection discovery and record pages, and the browsable
// archive website for PDS3 catalog files.
package ode

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/pdssp/pds-crawler/internal/fetch"
	"github.com/pdssp/pds-crawler/internal/pds"
	"github.com/pdssp/pds-crawler/internal/storage"
)

var (
	// Error is the class of errors returned by this package.
	Error = errs.Class("ode")

	mon = monkit.Package()
)

// Config holds the upstream endpoints and paging policy.
type Config struct {
	RestEndpoint    string `help:"ODE REST endpoint" default:"https://oderest.rsl.wustl.edu/live2/"`
	WebsiteEndpoint string `help:"archive website base" default:"https://ode.rsl.wustl.edu"`
	PageSize        int    `help:"records per page request" default:"1000"`
}

// Client drives discovery and record extraction against the ODE
// service, writing through the storage layer.
type Client struct {
	log      *zap.Logger
	config   Config
	fetcher  *fetch.Fetcher
	registry *storage.Registry
	files    *storage.FileStore
}

// NewClient wires the extractor to its collaborators.
func NewClient(log *zap.Logger, config Config, fetcher *fetch.Fetcher, registry *storage.Registry, files *storage.FileStore) *Client {
	if config.PageSize <= 0 {
		config.PageSize = 1000
	}
	return &Client{
		log:      log,
		config:   config,
		fetcher:  fetcher,
		registry: registry,
		files:    files,
	}
}

// DiscoveryURL builds the iipt query, optionally scoped to a planet.
func (c *Client) DiscoveryURL(planet string) string {
	params := url.Values{}
	params.Set("query", "iipt")
	params.Set("output", "json")
	if planet != "" {
		params.Set("odemetadb", planet)
	}
	return c.config.RestEndpoint + "?" + params.Encode()
}

// RecordPageURL builds the records query for a zero-based page index.
// The upstream offset starts at one.
func (c *Client) RecordPageURL(desc *pds.Descriptor, pageIndex int) string {
	params := url.Values{}
	params.Set("query", "product")
	params.Set("target", desc.ODEMetaDB)
	params.Set("results", "copmf")
	params.Set("ihid", desc.IHID)
	params.Set("iid", desc.IID)
	params.Set("pt", desc.PT)
	params.Set("offset", strconv.Itoa(pageIndex*c.config.PageSize+1))
	params.Set("limit", strconv.Itoa(c.config.PageSize))
	params.Set("output", "json")
	return c.config.RestEndpoint + "?" + params.Encode()
}

// DiscoverStats summarizes one discovery run.
type DiscoverStats struct {
	Found    int `json:"found"`
	Kept     int `json:"kept"`
	Filtered int `json:"filtered"`
	Saved    int `json:"saved"`
}

// Discover queries the discovery endpoint and streams the descriptors
// that pass the georeferenced filter to fn. When save is set the kept
// descriptors are written through to the registry (create-or-replace).
func (c *Client) Discover(ctx context.Context, planet string, save bool, fn func(*pds.Descriptor) error) (stats DiscoverStats, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := c.fetchBody(ctx, c.DiscoveryURL(planet))
	if err != nil {
		return stats, err
	}
	descriptors, err := pds.DecodeDiscovery(body)
	if err != nil {
		return stats, Error.New("discovery response is not decodable: %w", err)
	}
	stats.Found = len(descriptors)
	for i := range descriptors {
		desc := &descriptors[i]
		if !desc.Georeferenced() {
			c.log.Debug("collection filtered out",
				zap.String("dataset", desc.DataSetID),
				zap.String("footprints", desc.ValidFootprints),
				zap.Int64("products", desc.NumberProducts))
			stats.Filtered++
			continue
		}
		stats.Kept++
		if save {
			if err := c.registry.Put(ctx, desc); err != nil {
				return stats, err
			}
			stats.Saved++
		}
		if fn != nil {
			if err := fn(desc); err != nil {
				return stats, err
			}
		}
	}
	c.log.Info("discovery finished",
		zap.String("planet", planet),
		zap.Int("found", stats.Found),
		zap.Int("kept", stats.Kept),
		zap.Int("filtered", stats.Filtered))
	return stats, nil
}

// ExtractRecords fills the missing record pages of one collection.
// sample bounds extraction to the first sample pages; zero means all.
// Pages land verbatim on disk; decoding happens at transform time.
func (c *Client) ExtractRecords(ctx context.Context, desc *pds.Descriptor, sample int, events func(fetch.Event)) (err error) {
	defer mon.Task()(&ctx)(&err)

	fp := desc.Fingerprint()
	total := desc.PageCount(c.config.PageSize)
	if sample > 0 && sample < total {
		total = sample
	}
	missing := c.files.ListMissingPages(fp, total)
	if len(missing) == 0 {
		c.log.Info("all record pages present",
			zap.String("collection", fp.Key()), zap.Int("pages", total))
		return nil
	}

	requests := make([]fetch.Request, 0, len(missing))
	for _, index := range missing {
		requests = append(requests, fetch.Request{
			URL:          c.RecordPageURL(desc, index),
			Path:         c.files.PagePath(fp, index),
			AllowedTypes: []string{"application/json", "text/plain"},
		})
	}
	c.log.Info("extracting record pages",
		zap.String("collection", fp.Key()),
		zap.Int("total", total),
		zap.Int("missing", len(missing)))

	results, err := c.fetcher.Run(ctx, requests, events)
	if err != nil {
		return err
	}
	var group errs.Group
	for _, result := range results {
		if result.Err != nil {
			group.Add(fmt.Errorf("page %s: %w", result.Request.URL, result.Err))
		}
	}
	return Error.Wrap(group.Err())
}

// fetchBody downloads a URL into memory through the fetcher policies
// by staging it in the collection-independent temp area.
func (c *Client) fetchBody(ctx context.Context, rawurl string) ([]byte, error) {
	return fetchBody(ctx, c.fetcher, c.files.Root(), rawurl)
}
