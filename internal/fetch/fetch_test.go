// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"storj.io/common/testcontext"
)

func testConfig() Config {
	return Config{
		MaxInFlight:    4,
		PerHostCap:     2,
		MaxAttempts:    4,
		BackoffFloor:   time.Millisecond,
		BackoffCap:     10 * time.Millisecond,
		ConnectTimeout: time.Second,
		ReadTimeout:    5 * time.Second,
		UserAgent:      "test-agent",
	}
}

func TestRetryOnServerError(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	fetcher := New(zaptest.NewLogger(t), testConfig())
	dest := ctx.File("downloads", "body")
	results, err := fetcher.Run(ctx, []Request{{URL: server.URL, Path: dest}}, nil)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestRetryOnTooManyRequests(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	fetcher := New(zaptest.NewLogger(t), testConfig())
	results, err := fetcher.Run(ctx, []Request{{URL: server.URL, Path: ctx.File("d", "body")}}, nil)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestNotFoundIsTerminal(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := ctx.File("d", "body")
	fetcher := New(zaptest.NewLogger(t), testConfig())
	results, err := fetcher.Run(ctx, []Request{{URL: server.URL, Path: dest}}, nil)
	require.NoError(t, err)
	require.Error(t, results[0].Err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "4xx must not retry")

	// Nothing lands on the destination path.
	_, statErr := os.Stat(dest)
	require.True(t, os.IsNotExist(statErr))
}

func TestResumeSkipsExistingFile(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer server.Close()

	dest := ctx.File("d", "body")
	require.NoError(t, os.WriteFile(dest, []byte("already here"), 0o644))

	fetcher := New(zaptest.NewLogger(t), testConfig())
	var skipped int32
	events := func(e Event) {
		if e.Kind == EventSkipped {
			atomic.AddInt32(&skipped, 1)
		}
	}
	results, err := fetcher.Run(ctx, []Request{{URL: server.URL, Path: dest}}, events)
	require.NoError(t, err)
	require.True(t, results[0].Skipped)
	require.EqualValues(t, 1, atomic.LoadInt32(&skipped))
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "already here", string(data))

	// A size mismatch against the expectation forces a refetch.
	results, err = fetcher.Run(ctx, []Request{{URL: server.URL, Path: dest, ExpectedSize: 5}}, nil)
	require.NoError(t, err)
	require.False(t, results[0].Skipped)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSuspectContentType(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>error page</html>"))
	}))
	defer server.Close()

	fetcher := New(zaptest.NewLogger(t), testConfig())
	results, err := fetcher.Run(ctx, []Request{{
		URL:          server.URL,
		Path:         ctx.File("d", "body"),
		AllowedTypes: []string{"application/json"},
	}}, nil)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	require.True(t, results[0].Suspect, "mismatched content type must be flagged")

	// An allowed type is not suspect, parameters ignored.
	results, err = fetcher.Run(ctx, []Request{{
		URL:          server.URL,
		Path:         ctx.File("d", "body2"),
		AllowedTypes: []string{"text/html"},
	}}, nil)
	require.NoError(t, err)
	require.False(t, results[0].Suspect)
}

func TestCancellation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	fetcher := New(zaptest.NewLogger(t), testConfig())
	results, err := fetcher.Run(cancelled, []Request{
		{URL: server.URL, Path: ctx.File("d", "a")},
		{URL: server.URL, Path: ctx.File("d", "b")},
	}, nil)
	require.NoError(t, err)
	for _, result := range results {
		require.Error(t, result.Err)
	}
}

func TestResultsKeepRequestOrder(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	requests := make([]Request, 8)
	for i := range requests {
		requests[i] = Request{
			URL:  server.URL + "/" + string(rune('a'+i)),
			Path: ctx.File("d", string(rune('a'+i))),
		}
	}
	fetcher := New(zaptest.NewLogger(t), testConfig())
	results, err := fetcher.Run(ctx, requests, nil)
	require.NoError(t, err)
	require.Len(t, results, len(requests))
	for i, result := range results {
		require.NoError(t, result.Err)
		require.Equal(t, requests[i].URL, result.Request.URL)
	}
}
