// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package ode

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/pdssp/pds-crawler/internal/fetch"
	"github.com/pdssp/pds-crawler/internal/pds"
	"github.com/pdssp/pds-crawler/internal/pds3"
)

// Anchor is one scraped link from a volume index page.
type Anchor struct {
	Name string
	URL  string
}

// parseAnchors extracts the anchors of the last HTML table on the
// page, the one the archive uses for its file listing. Anchors with a
// title attribute are navigation rows and are skipped.
func parseAnchors(pageURL string, body []byte) ([]Anchor, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var tables []*html.Node
	var findTables func(*html.Node)
	findTables = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" {
			tables = append(tables, n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			findTables(child)
		}
	}
	findTables(root)
	if len(tables) == 0 {
		return nil, Error.New("no table found in volume page %s", pageURL)
	}

	var anchors []Anchor
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, title string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					href = attr.Val
				case "title":
					title = attr.Val
				}
			}
			if href != "" && title == "" {
				ref, err := base.Parse(href)
				if err == nil {
					anchors = append(anchors, Anchor{
						Name: strings.TrimSpace(nodeText(n)),
						URL:  ref.String(),
					})
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(tables[len(tables)-1])
	return anchors, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}

// VolumeURL composes the archive's volume browse URL for a collection
// from its descriptor and the volume id carried by one of its records.
func (c *Client) VolumeURL(desc *pds.Descriptor, volumeID string) string {
	return fmt.Sprintf(
		"%s/%s/DataSetExplorer.aspx?target=%s&instrumenthost=%s&instrumentid=%s&datasetid=%s&volumeid=%s",
		strings.TrimSuffix(c.config.WebsiteEndpoint, "/"),
		desc.ODEMetaDB,
		url.QueryEscape(desc.ODEMetaDB),
		url.QueryEscape(desc.IHID),
		url.QueryEscape(desc.IID),
		url.QueryEscape(desc.DataSetID),
		url.QueryEscape(volumeID),
	)
}

// volumeID finds the PDS volume id in the collection's already fetched
// records.
func (c *Client) volumeID(fp pds.Fingerprint) (string, error) {
	pages, err := c.files.ListPages(fp)
	if err != nil {
		return "", err
	}
	for _, index := range pages {
		body, err := c.files.ReadPage(fp, index)
		if err != nil {
			continue
		}
		records, err := pds.DecodeRecords(body)
		if err != nil {
			continue
		}
		for _, record := range records {
			if record.PDSVolumeID != "" {
				return record.PDSVolumeID, nil
			}
		}
	}
	return "", Error.New("no record with a volume id for %s; extract records first", fp.Key())
}

const volDescName = "voldesc.cat"

// catalogRoster returns the catalog file names the volume declares per
// kind. The stored volume descriptor is used when present; otherwise
// voldesc.cat is fetched from the volume index and persisted alongside
// the other catalog files, so the transform can read DATA_PRODUCER and
// DATA_SUPPLIER later.
func (c *Client) catalogRoster(ctx context.Context, fp pds.Fingerprint, volumeURL string) (map[pds3.Kind][]string, error) {
	volKind := pds3.KindVolumeDescriptor.String()
	if c.files.HasPDS3(fp, volKind, volDescName) {
		body, err := os.ReadFile(c.files.PDS3Path(fp, volKind, volDescName))
		if err != nil {
			return nil, Error.Wrap(err)
		}
		return parseVolumeRoster(body, c.log)
	}

	body, err := c.fetchBody(ctx, volumeURL)
	if err != nil {
		return nil, err
	}
	anchors, err := parseAnchors(volumeURL, body)
	if err != nil {
		return nil, err
	}
	var volDescURL string
	for _, anchor := range anchors {
		if strings.EqualFold(anchor.Name, volDescName) {
			volDescURL = anchor.URL
			break
		}
	}
	if volDescURL == "" {
		return nil, Error.New("voldesc.cat not found in %s", volumeURL)
	}

	volDescBody, err := c.fetchBody(ctx, volDescURL)
	if err != nil {
		return nil, err
	}
	roster, err := parseVolumeRoster(volDescBody, c.log)
	if err != nil {
		return nil, err
	}
	if err := c.files.WritePDS3(ctx, fp, volKind, volDescName, volDescBody); err != nil {
		return nil, err
	}
	return roster, nil
}

func parseVolumeRoster(body []byte, log *zap.Logger) (map[pds3.Kind][]string, error) {
	obj, err := pds3.ParseFile(volDescName, string(body), log)
	if err != nil {
		return nil, err
	}
	vol, ok := obj.(*pds3.VolumeDescriptor)
	if !ok {
		return nil, Error.New("voldesc.cat did not parse as a volume descriptor")
	}
	return vol.Catalog, nil
}

// ExtractPDS3 scrapes the collection's volume catalog directory and
// downloads the catalog files named by the volume descriptor into the
// collection's pds3 directory. Matching is case-insensitive and the
// first anchor per catalog kind wins.
func (c *Client) ExtractPDS3(ctx context.Context, desc *pds.Descriptor, events func(fetch.Event)) (err error) {
	defer mon.Task()(&ctx)(&err)

	fp := desc.Fingerprint()
	volumeID, err := c.volumeID(fp)
	if err != nil {
		return err
	}
	volumeURL := c.VolumeURL(desc, volumeID)
	roster, err := c.catalogRoster(ctx, fp, volumeURL)
	if err != nil {
		return err
	}

	catalogDirURL := volumeURL + "&pathtovol=catalog/"
	body, err := c.fetchBody(ctx, catalogDirURL)
	if err != nil {
		return err
	}
	anchors, err := parseAnchors(catalogDirURL, body)
	if err != nil {
		return err
	}

	var requests []fetch.Request
	for kind, names := range roster {
		anchor, ok := matchAnchor(anchors, names)
		if !ok {
			c.log.Warn("catalog file not found on volume",
				zap.String("collection", fp.Key()),
				zap.Stringer("kind", kind),
				zap.Strings("names", names))
			continue
		}
		dest := c.files.PDS3Path(fp, kind.String(), anchor.Name)
		if c.files.HasPDS3(fp, kind.String(), anchor.Name) {
			continue
		}
		requests = append(requests, fetch.Request{
			URL:          anchor.URL,
			Path:         dest,
			AllowedTypes: []string{"text/plain", "text/html", "application/octet-stream"},
		})
	}
	if len(requests) == 0 {
		c.log.Info("all catalog files present", zap.String("collection", fp.Key()))
		return nil
	}

	results, err := c.fetcher.Run(ctx, requests, events)
	if err != nil {
		return err
	}
	var failed []error
	for _, result := range results {
		if result.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", result.Request.URL, result.Err))
		}
	}
	if len(failed) > 0 {
		return Error.New("%d catalog downloads failed: %v", len(failed), failed[0])
	}
	return nil
}

// matchAnchor finds the first anchor whose base name equals one of the
// roster names, case-insensitively.
func matchAnchor(anchors []Anchor, names []string) (Anchor, bool) {
	for _, anchor := range anchors {
		base := strings.ToLower(path.Base(strings.TrimSpace(anchor.Name)))
		for _, name := range names {
			if base == strings.ToLower(strings.TrimSpace(name)) {
				return anchor, true
			}
		}
	}
	return Anchor{}, false
}

// fetchBody stages a URL under a scratch directory via the fetcher so
// every download shares the same retry and backoff policy, then reads
// it back.
func fetchBody(ctx context.Context, fetcher *fetch.Fetcher, root, rawurl string) ([]byte, error) {
	scratch, err := os.MkdirTemp(root, "download*")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	dest := filepath.Join(scratch, "body")
	results, err := fetcher.Run(ctx, []fetch.Request{{URL: rawurl, Path: dest}}, nil)
	if err != nil {
		return nil, err
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}
	data, err := os.ReadFile(dest)
	return data, Error.Wrap(err)
}
