package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/mfenderov/agenda-watch/internal/storage"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinDomainDelay = 0
	cfg.BackoffUnit = 10 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	blobs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS() error = %v", err)
	}
	return NewCache(blobs)
}

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Language") == "" {
			t.Error("missing browser-like Accept-Language header")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>agenda</html>"))
	}))
	defer server.Close()

	f := New(testConfig(), nil)
	res := f.Fetch(t.Context(), server.URL, "metro")

	if !res.OK() {
		t.Fatalf("Fetch() outcome = %s, error = %s", res.Outcome, res.Error)
	}
	if string(res.Content) != "<html>agenda</html>" {
		t.Errorf("Content = %q", res.Content)
	}
	if res.StatusCode != 200 || res.Attempts != 1 || res.SourceID != "metro" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.SHA256) != 64 {
		t.Errorf("SHA256 = %q, want 64 hex chars", res.SHA256)
	}
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := testConfig()
	f := New(cfg, nil)
	f.jitter = func() float64 { return 0 }

	start := time.Now()
	res := f.Fetch(t.Context(), server.URL, "s")
	elapsed := time.Since(start)

	if !res.OK() {
		t.Fatalf("Fetch() outcome = %s, error = %s", res.Outcome, res.Error)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	// 1 unit before the second attempt, 2 units before the third.
	if minWait := 3 * cfg.BackoffUnit; elapsed < minWait {
		t.Errorf("elapsed %v, want at least %v", elapsed, minWait)
	}
}

func TestFetch_StatusHandling(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantOutcome  models.FetchOutcome
		wantAttempts int
	}{
		{"not found is permanent", http.StatusNotFound, models.FetchPermanent, 1},
		{"gone is permanent", http.StatusGone, models.FetchPermanent, 1},
		{"forbidden is not retried", http.StatusForbidden, models.FetchClientError, 1},
		{"server error exhausts retries", http.StatusInternalServerError, models.FetchExhausted, 3},
		{"rate limited exhausts retries", http.StatusTooManyRequests, models.FetchExhausted, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			res := New(testConfig(), nil).Fetch(t.Context(), server.URL, "s")

			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.wantOutcome)
			}
			if res.Attempts != tt.wantAttempts || int(calls.Load()) != tt.wantAttempts {
				t.Errorf("Attempts = %d, server calls = %d, want %d", res.Attempts, calls.Load(), tt.wantAttempts)
			}
			if res.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", res.StatusCode, tt.status)
			}
			if res.Error == "" {
				t.Error("Error should be set")
			}
		})
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	res := New(testConfig(), nil).Fetch(t.Context(), "ftp://example.gov/file", "s")
	if res.Outcome != models.FetchInvalid {
		t.Errorf("Outcome = %s, want %s", res.Outcome, models.FetchInvalid)
	}
}

func TestFetch_Cache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 body"))
	}))
	defer server.Close()

	cache := newTestCache(t)
	now := time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC)
	f := New(testConfig(), cache, WithClock(func() time.Time { return now }))

	first := f.Fetch(t.Context(), server.URL+"/a.pdf", "s")
	second := f.Fetch(t.Context(), server.URL+"/a.pdf", "s")

	if first.FromCache || !second.FromCache {
		t.Errorf("FromCache = %v, %v; want false, true", first.FromCache, second.FromCache)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if !bytes.Equal(second.Content, first.Content) || second.ContentType != "application/pdf" {
		t.Errorf("cached result differs: %+v", second)
	}

	now = now.Add(2 * time.Hour)
	third := f.Fetch(t.Context(), server.URL+"/a.pdf", "s")
	if third.FromCache || calls.Load() != 2 {
		t.Errorf("stale entry should be refetched (FromCache=%v, calls=%d)", third.FromCache, calls.Load())
	}
}

func TestFetch_RevalidatesStaleEntry(t *testing.T) {
	var calls, conditional atomic.Int32
	var version atomic.Value
	version.Store("v1")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		etag := `"` + version.Load().(string) + `"`
		if r.Header.Get("If-None-Match") != "" {
			conditional.Add(1)
			if r.Header.Get("If-Modified-Since") == "" {
				t.Error("missing If-Modified-Since on revalidation")
			}
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", "Tue, 14 Jan 2025 08:00:00 GMT")
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 " + version.Load().(string)))
	}))
	defer server.Close()

	now := time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC)
	f := New(testConfig(), newTestCache(t), WithClock(func() time.Time { return now }))
	u := server.URL + "/agenda.pdf"

	first := f.Fetch(t.Context(), u, "s")
	if !first.OK() || first.ETag != `"v1"` {
		t.Fatalf("first fetch = %+v", first)
	}

	now = now.Add(2 * time.Hour)
	second := f.Fetch(t.Context(), u, "s")
	if !second.OK() || !second.Revalidated || !second.FromCache {
		t.Fatalf("stale entry should be revalidated: %+v", second)
	}
	if !bytes.Equal(second.Content, first.Content) || second.StatusCode != http.StatusOK {
		t.Errorf("revalidated result differs: %+v", second)
	}
	if conditional.Load() != 1 {
		t.Errorf("conditional requests = %d, want 1", conditional.Load())
	}

	third := f.Fetch(t.Context(), u, "s")
	if !third.FromCache || third.Revalidated || calls.Load() != 2 {
		t.Errorf("revalidation should renew freshness (third=%+v, calls=%d)", third, calls.Load())
	}

	version.Store("v2")
	now = now.Add(2 * time.Hour)
	fourth := f.Fetch(t.Context(), u, "s")
	if fourth.FromCache || fourth.Revalidated || string(fourth.Content) != "%PDF-1.4 v2" {
		t.Errorf("changed resource should be refetched: %+v content %q", fourth, fourth.Content)
	}
	if fourth.ETag != `"v2"` {
		t.Errorf("ETag = %q, want the new validator", fourth.ETag)
	}
}

func TestFetch_BypassCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.BypassCache = true
	f := New(cfg, newTestCache(t))

	f.Fetch(t.Context(), server.URL, "s")
	res := f.Fetch(t.Context(), server.URL, "s")

	if res.FromCache || calls.Load() != 2 {
		t.Errorf("bypass should always hit the network (FromCache=%v, calls=%d)", res.FromCache, calls.Load())
	}
}

func TestFetch_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("Call to Order"))
	zw.Close()
	compressed := buf.Bytes()

	tests := []struct {
		name   string
		header string
	}{
		{"content-encoding header", "gzip"},
		{"magic bytes only", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Content-Encoding", tt.header)
				}
				w.Header().Set("Content-Type", "application/octet-stream")
				w.Write(compressed)
			}))
			defer server.Close()

			res := New(testConfig(), nil).Fetch(t.Context(), server.URL, "s")

			if !res.OK() {
				t.Fatalf("Fetch() outcome = %s", res.Outcome)
			}
			if !res.GzipDetected {
				t.Error("GzipDetected = false")
			}
			if string(res.Content) != "Call to Order" {
				t.Errorf("Content = %q, want decompressed text", res.Content)
			}
		})
	}
}

func TestFetch_PerDomainDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MinDomainDelay = 50 * time.Millisecond
	f := New(cfg, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		f.Fetch(t.Context(), server.URL, "s")
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("3 requests took %v, want at least 2 delays of %v", elapsed, cfg.MinDomainDelay)
	}
}

func TestFetch_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.BackoffUnit = time.Second
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := New(cfg, nil).Fetch(ctx, server.URL, "s")

	if res.Outcome != models.FetchCancelled {
		t.Errorf("Outcome = %s, want %s", res.Outcome, models.FetchCancelled)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation should interrupt the backoff sleep")
	}
}

func TestFetch_RespectsRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RespectRobots = true
	f := New(cfg, nil)

	if res := f.Fetch(t.Context(), server.URL+"/private/agenda.pdf", "s"); res.Outcome != models.FetchBlocked {
		t.Errorf("Outcome = %s, want %s", res.Outcome, models.FetchBlocked)
	}
	if res := f.Fetch(t.Context(), server.URL+"/public/agenda.pdf", "s"); !res.OK() {
		t.Errorf("Outcome = %s, want ok", res.Outcome)
	}
}

func TestSweepCache(t *testing.T) {
	cache := newTestCache(t)
	ctx := t.Context()
	if err := cache.Put(ctx, &CacheEntry{URL: "https://example.gov/a", CachedAt: time.Now()}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	later := time.Now().Add(8 * 24 * time.Hour)
	f := New(testConfig(), cache, WithClock(func() time.Time { return later }))

	removed, err := f.SweepCache(ctx, 0)
	if err != nil {
		t.Fatalf("SweepCache() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := cache.Get(ctx, "https://example.gov/a"); ok {
		t.Error("entry should be gone after sweep")
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		n      int
		jitter float64
		want   time.Duration
	}{
		{0, 0, time.Second},
		{1, 0, 2 * time.Second},
		{2, 0.5, 4500 * time.Millisecond},
		{10, 0, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := BackoffDelay(tt.n, time.Second, 60, tt.jitter); got != tt.want {
			t.Errorf("BackoffDelay(%d, %v) = %v, want %v", tt.n, tt.jitter, got, tt.want)
		}
	}
}
