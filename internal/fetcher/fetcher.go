// Package fetcher retrieves URLs politely: per-domain rate limiting, a
// freshness-windowed cache, retries with capped exponential backoff and
// transparent gzip handling.
package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sethvargo/go-retry"

	"github.com/mfenderov/agenda-watch/internal/metrics"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Config holds fetcher configuration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// MinDomainDelay is the minimum gap between requests to one host.
	MinDomainDelay time.Duration
	// CacheFreshness is how long a cached response is served without a
	// network request.
	CacheFreshness time.Duration
	// CacheRetention is the age after which SweepCache deletes entries.
	CacheRetention time.Duration
	MaxAttempts    int
	// BackoffUnit scales the retry delay: attempt n waits
	// min(2^n, MaxBackoffUnits) units plus up to one unit of jitter.
	BackoffUnit     time.Duration
	MaxBackoffUnits int
	BypassCache     bool
	// InsecureTLS disables certificate verification. Many municipal sites
	// serve broken chains.
	InsecureTLS   bool
	RespectRobots bool
	MaxBodyBytes  int64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MinDomainDelay:  2 * time.Second,
		CacheFreshness:  time.Hour,
		CacheRetention:  7 * 24 * time.Hour,
		MaxAttempts:     3,
		BackoffUnit:     time.Second,
		MaxBackoffUnits: 60,
		InsecureTLS:     true,
		MaxBodyBytes:    50 << 20,
	}
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	config  Config
	client  *http.Client
	cache   *Cache
	limiter *domainLimiter
	robots  *robotsPolicy
	metrics *metrics.Metrics
	now     func() time.Time
	jitter  func() float64
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithClock overrides time.Now, for cache freshness tests.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a fetcher. A nil cache disables caching.
func New(config Config, cache *Cache, opts ...Option) *Fetcher {
	def := DefaultConfig()
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if config.CacheFreshness == 0 {
		config.CacheFreshness = def.CacheFreshness
	}
	if config.CacheRetention == 0 {
		config.CacheRetention = def.CacheRetention
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BackoffUnit <= 0 {
		config.BackoffUnit = def.BackoffUnit
	}
	if config.MaxBackoffUnits <= 0 {
		config.MaxBackoffUnits = def.MaxBackoffUnits
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}

	f := &Fetcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: config.InsecureTLS}, //nolint:gosec // see Config.InsecureTLS
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:   cache,
		limiter: newDomainLimiter(config.MinDomainDelay),
		now:     time.Now,
		jitter:  rand.Float64,
	}
	for _, opt := range opts {
		opt(f)
	}
	if config.RespectRobots {
		f.robots = newRobotsPolicy(f.client, config.UserAgent)
	}
	return f
}

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

// Fetch retrieves rawURL on behalf of sourceID. It never returns nil and never
// panics; failures are reported through the result's Outcome and Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, sourceID string) *models.FetchResult {
	res := &models.FetchResult{URL: rawURL, SourceID: sourceID, FetchedAt: f.now()}
	defer func() {
		f.metrics.ObserveFetch(string(res.Outcome), res.Attempts, res.FromCache)
	}()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		res.Outcome = models.FetchInvalid
		res.Error = fmt.Sprintf("invalid URL %q", rawURL)
		return res
	}

	// stale is an expired entry that may still be confirmed with a 304.
	var stale *CacheEntry
	if !f.config.BypassCache {
		if entry, ok := f.cache.Get(ctx, rawURL); ok {
			if entry.Fresh(f.now(), f.config.CacheFreshness) {
				slog.Debug("cache hit", "url", rawURL, "cached_at", entry.CachedAt)
				fillFromCache(res, entry)
				res.Outcome = models.FetchOK
				return res
			}
			if entry.ETag != "" || entry.LastModified != "" {
				stale = entry
			}
		}
	}

	if f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		res.Outcome = models.FetchBlocked
		res.Error = "disallowed by robots.txt"
		return res
	}

	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		res.Outcome = models.FetchCancelled
		res.Error = err.Error()
		return res
	}

	err = retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		res.Attempts++
		err := f.attempt(ctx, rawURL, stale, res)
		if err == nil {
			return nil
		}

		var se *statusError
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.As(err, &se) && !retryableStatus(se.code):
			slog.Debug("fetch failed", "url", rawURL, "status", se.code, "attempt", res.Attempts)
			return err
		default:
			slog.Debug("retryable fetch failure", "url", rawURL, "attempt", res.Attempts, "error", err)
			return retry.RetryableError(err)
		}
	})

	var se *statusError
	switch {
	case err == nil:
		res.Outcome = models.FetchOK
	case ctx.Err() != nil:
		res.Outcome = models.FetchCancelled
		res.Error = ctx.Err().Error()
	case errors.As(err, &se) && (se.code == http.StatusNotFound || se.code == http.StatusGone):
		res.Outcome = models.FetchPermanent
		res.Error = err.Error()
	case errors.As(err, &se) && !retryableStatus(se.code):
		res.Outcome = models.FetchClientError
		res.Error = err.Error()
	default:
		res.Outcome = models.FetchExhausted
		res.Error = fmt.Sprintf("giving up after %d attempts: %v", res.Attempts, err)
	}

	if res.Outcome != models.FetchOK {
		slog.Warn("fetch failed", "url", rawURL, "source_id", sourceID, "outcome", res.Outcome, "error", res.Error)
		res.Content = nil
		return res
	}

	if !f.config.BypassCache {
		entry := &CacheEntry{
			URL:          rawURL,
			Content:      res.Content,
			SHA256:       res.SHA256,
			StatusCode:   res.StatusCode,
			ContentType:  res.ContentType,
			GzipDetected: res.GzipDetected,
			ETag:         res.ETag,
			LastModified: res.LastModified,
			CachedAt:     f.now(),
		}
		if err := f.cache.Put(ctx, entry); err != nil {
			slog.Warn("failed to write cache entry", "url", rawURL, "error", err)
		}
	}
	return res
}

// attempt performs one HTTP request and fills res on success. With a stale
// entry the request is conditional and a 304 serves the cached bytes.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, stale *CacheEntry, res *models.FetchResult) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	setBrowserHeaders(req, f.config.UserAgent)
	if stale != nil {
		if stale.ETag != "" {
			req.Header.Set("If-None-Match", stale.ETag)
		}
		if stale.LastModified != "" {
			req.Header.Set("If-Modified-Since", stale.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && stale != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		slog.Debug("cache revalidated", "url", rawURL, "cached_at", stale.CachedAt)
		fillFromCache(res, stale)
		res.Revalidated = true
		if etag := resp.Header.Get("ETag"); etag != "" {
			res.ETag = etag
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			res.LastModified = lm
		}
		return nil
	}

	res.FromCache = false
	res.Revalidated = false
	res.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	if isGzip(resp.Header.Get("Content-Encoding"), body) {
		res.GzipDetected = true
		if plain, err := gunzip(body); err != nil {
			slog.Warn("gzip decompression failed, keeping raw bytes", "url", rawURL, "error", err)
		} else {
			body = plain
		}
	}

	sum := sha256.Sum256(body)
	res.Content = body
	res.SHA256 = hex.EncodeToString(sum[:])
	res.ContentType = resp.Header.Get("Content-Type")
	res.ETag = resp.Header.Get("ETag")
	res.LastModified = resp.Header.Get("Last-Modified")
	return nil
}

func fillFromCache(res *models.FetchResult, entry *CacheEntry) {
	res.FromCache = true
	res.StatusCode = entry.StatusCode
	res.ContentType = entry.ContentType
	res.Content = entry.Content
	res.SHA256 = entry.SHA256
	res.GzipDetected = entry.GzipDetected
	res.ETag = entry.ETag
	res.LastModified = entry.LastModified
}

// backoff waits min(2^n, cap) units plus [0,1) unit of jitter before retry n,
// for at most MaxAttempts-1 retries.
func (f *Fetcher) backoff() retry.Backoff {
	n := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		d := BackoffDelay(n, f.config.BackoffUnit, f.config.MaxBackoffUnits, f.jitter())
		n++
		return d, false
	})
	return retry.WithMaxRetries(uint64(f.config.MaxAttempts-1), b)
}

// BackoffDelay returns the wait before retry n (zero-based).
func BackoffDelay(n int, unit time.Duration, maxUnits int, jitter float64) time.Duration {
	units := math.Min(math.Pow(2, float64(n)), float64(maxUnits))
	return time.Duration((units + jitter) * float64(unit))
}

// SweepCache deletes cache entries older than maxAge. Zero uses the
// configured retention.
func (f *Fetcher) SweepCache(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = f.config.CacheRetention
	}
	removed, err := f.cache.Sweep(ctx, maxAge, f.now())
	if err != nil {
		return removed, err
	}
	slog.Info("cache sweep complete", "removed", removed, "max_age", maxAge)
	return removed, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func setBrowserHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

func isGzip(contentEncoding string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentEncoding), "gzip") {
		return true
	}
	return len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
