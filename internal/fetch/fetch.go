// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

// Package fetch implements the bounded-concurrency HTTP downloader
// used by the extract phase: bounded total and per-host parallelism,
// exponential backoff with jitter, resume by existing file, and an
// event stream for progress reporting.
package fetch

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"storj.io/common/memory"
	"storj.io/common/sync2"
)

var (
	// Error is the class of errors returned by this package.
	Error = errs.Class("fetch")

	mon = monkit.Package()
)

// Config holds the fetcher policies.
type Config struct {
	MaxInFlight    int           `help:"maximum concurrent downloads" default:"6"`
	PerHostCap     int           `help:"maximum concurrent downloads per host" default:"3"`
	MaxAttempts    int           `help:"attempts per request before giving up" default:"4"`
	BackoffFloor   time.Duration `help:"first retry delay" default:"1s"`
	BackoffCap     time.Duration `help:"maximum retry delay" default:"30s"`
	ConnectTimeout time.Duration `help:"dial timeout per attempt" default:"15s"`
	ReadTimeout    time.Duration `help:"response read timeout per attempt" default:"3m"`
	UserAgent      string        `help:"user agent header" default:"pds-crawler"`
}

// Request is one download: a URL, its destination path, and optional
// expectations used for resume and content checks.
type Request struct {
	URL          string
	Path         string
	ExpectedSize int64    // 0 means unknown
	AllowedTypes []string // content-type allow list; empty allows all
}

// EventKind discriminates fetch events.
type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
	EventSkipped
)

// Event is one fetch lifecycle notification.
type Event struct {
	Kind    EventKind
	URL     string
	Path    string
	Written int64
	Suspect bool
	Err     error
}

// Result is the terminal outcome for one request.
type Result struct {
	Request Request
	Suspect bool
	Skipped bool
	Err     error
}

// Fetcher downloads files with bounded concurrency.
type Fetcher struct {
	log    *zap.Logger
	config Config
	client *http.Client

	mu    sync.Mutex
	hosts map[string]*sync2.Semaphore
}

// New creates a Fetcher with the given policies.
func New(log *zap.Logger, config Config) *Fetcher {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 1
	}
	if config.PerHostCap <= 0 {
		config.PerHostCap = config.MaxInFlight
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: config.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: config.ReadTimeout,
	}
	return &Fetcher{
		log:    log,
		config: config,
		client: &http.Client{Transport: transport},
		hosts:  map[string]*sync2.Semaphore{},
	}
}

func (f *Fetcher) hostSlot(host string) *sync2.Semaphore {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.hosts[host]
	if !ok {
		slot = new(sync2.Semaphore)
		slot.Init(f.config.PerHostCap)
		f.hosts[host] = slot
	}
	return slot
}

// Run downloads all requests and returns one result per request, in
// request order. Events are delivered to the optional sink from worker
// goroutines. Cancellation finishes in-flight downloads to a safe
// boundary and returns.
func (f *Fetcher) Run(ctx context.Context, requests []Request, events func(Event)) (results []Result, err error) {
	defer mon.Task()(&ctx)(&err)
	if events == nil {
		events = func(Event) {}
	}
	results = make([]Result, len(requests))
	limiter := sync2.NewLimiter(f.config.MaxInFlight)
	for i, req := range requests {
		i, req := i, req
		started := limiter.Go(ctx, func() {
			results[i] = f.fetchOne(ctx, req, events)
		})
		if !started {
			results[i] = Result{Request: req, Err: ctx.Err()}
		}
	}
	limiter.Wait()
	return results, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, req Request, events func(Event)) Result {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return Result{Request: req, Err: Error.Wrap(err)}
	}

	if f.shouldSkip(req) {
		f.log.Debug("already downloaded, skipping",
			zap.String("url", req.URL), zap.String("path", req.Path))
		events(Event{Kind: EventSkipped, URL: req.URL, Path: req.Path})
		return Result{Request: req, Skipped: true}
	}

	slot := f.hostSlot(parsed.Host)
	if err := ctx.Err(); err != nil {
		return Result{Request: req, Err: err}
	}
	if !slot.Lock() {
		return Result{Request: req, Err: context.Canceled}
	}
	defer slot.Unlock()

	events(Event{Kind: EventStarted, URL: req.URL, Path: req.Path})
	written, suspect, err := f.download(ctx, req, events)
	if err != nil {
		f.log.Warn("download failed",
			zap.String("url", req.URL), zap.Error(err))
		events(Event{Kind: EventFailed, URL: req.URL, Path: req.Path, Err: err})
		return Result{Request: req, Err: err}
	}
	f.log.Debug("download complete",
		zap.String("url", req.URL),
		zap.Stringer("size", memory.Size(written)))
	events(Event{
		Kind: EventCompleted, URL: req.URL, Path: req.Path,
		Written: written, Suspect: suspect,
	})
	return Result{Request: req, Suspect: suspect}
}

// shouldSkip implements resume: an existing file with the expected
// size (or any complete file when the size is unknown) is not
// refetched.
func (f *Fetcher) shouldSkip(req Request) bool {
	info, err := os.Stat(req.Path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if req.ExpectedSize > 0 {
		return info.Size() == req.ExpectedSize
	}
	return info.Size() > 0
}

// download performs the attempt loop with exponential backoff and
// jitter. Transport errors, 5xx and 429 retry; other 4xx are terminal.
func (f *Fetcher) download(ctx context.Context, req Request, events func(Event)) (written int64, suspect bool, err error) {
	backoff := f.config.BackoffFloor
	for attempt := 1; ; attempt++ {
		written, suspect, err = f.attempt(ctx, req, events)
		if err == nil {
			return written, suspect, nil
		}
		if terminal(err) || attempt >= f.config.MaxAttempts || ctx.Err() != nil {
			return 0, false, err
		}
		delay := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
		f.log.Debug("retrying after backoff",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if !sync2.Sleep(ctx, delay) {
			return 0, false, ctx.Err()
		}
		backoff *= 2
		if backoff > f.config.BackoffCap {
			backoff = f.config.BackoffCap
		}
	}
}

// statusError marks HTTP statuses so the retry policy can classify
// them.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected status " + http.StatusText(e.code)
}

func retriableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func terminal(err error) bool {
	var status *statusError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.As(err, &status) {
		return !retriableStatus(status.code)
	}
	return false
}

func (f *Fetcher) attempt(ctx context.Context, req Request, events func(Event)) (written int64, suspect bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.config.ReadTimeout+f.config.ConnectTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, false, Error.Wrap(err)
	}
	httpReq.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return 0, false, Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, false, Error.Wrap(&statusError{code: resp.StatusCode})
	}

	suspect = !f.contentTypeAllowed(req, resp.Header.Get("Content-Type"))
	if suspect {
		f.log.Warn("unexpected content type, download marked suspect",
			zap.String("url", req.URL),
			zap.String("content-type", resp.Header.Get("Content-Type")))
	}

	// Partial files never land on the final path: the body goes to a
	// temp sibling that is renamed only after a full read.
	if err := os.MkdirAll(filepath.Dir(req.Path), 0o755); err != nil {
		return 0, false, Error.Wrap(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(req.Path), filepath.Base(req.Path)+".tmp*")
	if err != nil {
		return 0, false, Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, os.Remove(tmp.Name()))
		}
	}()

	written, err = io.Copy(tmp, &progressReader{
		reader: resp.Body,
		notify: func(n int64) {
			events(Event{Kind: EventProgress, URL: req.URL, Path: req.Path, Written: n})
		},
	})
	if err != nil {
		return 0, false, errs.Combine(Error.Wrap(err), tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return 0, false, Error.Wrap(err)
	}
	if err := os.Rename(tmp.Name(), req.Path); err != nil {
		return 0, false, Error.Wrap(err)
	}
	return written, suspect, nil
}

func (f *Fetcher) contentTypeAllowed(req Request, contentType string) bool {
	if len(req.AllowedTypes) == 0 {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, allowed := range req.AllowedTypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

// progressReader reports cumulative byte counts while the body is
// copied.
type progressReader struct {
	reader io.Reader
	notify func(int64)
	total  int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.total += int64(n)
		r.notify(r.total)
	}
	return n, err
}
