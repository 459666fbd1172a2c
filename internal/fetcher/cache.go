package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/agenda-watch/internal/storage"
)

const cachePrefix = "cache/"

// CacheEntry is a stored copy of a successful fetch.
type CacheEntry struct {
	URL          string    `json:"url"`
	Content      []byte    `json:"content"`
	SHA256       string    `json:"sha256"`
	StatusCode   int       `json:"status_code"`
	ContentType  string    `json:"content_type"`
	GzipDetected bool      `json:"gzip_detected"`
	// ETag and LastModified are the validators sent when revalidating a
	// stale entry.
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	CachedAt     time.Time `json:"cached_at"`
}

// Fresh reports whether the entry is younger than window.
func (e *CacheEntry) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(e.CachedAt) < window
}

// Cache stores fetch results keyed by the SHA-256 of the URL.
type Cache struct {
	blobs storage.Store
}

// NewCache wraps a blob store.
func NewCache(blobs storage.Store) *Cache {
	return &Cache{blobs: blobs}
}

// CacheKey returns the storage key for url.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return cachePrefix + hex.EncodeToString(sum[:]) + ".json"
}

// Get returns the entry for url. A missing or unreadable entry is a miss.
func (c *Cache) Get(ctx context.Context, url string) (*CacheEntry, bool) {
	if c == nil {
		return nil, false
	}
	var entry CacheEntry
	err := storage.GetJSON(ctx, c.blobs, CacheKey(url), &entry)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("cache read failed", "url", url, "error", err)
		}
		return nil, false
	}
	return &entry, true
}

func (c *Cache) Put(ctx context.Context, entry *CacheEntry) error {
	if c == nil {
		return nil
	}
	if err := storage.PutJSON(ctx, c.blobs, CacheKey(entry.URL), entry); err != nil {
		return fmt.Errorf("failed to cache %s: %w", entry.URL, err)
	}
	return nil
}

// Sweep deletes entries written more than maxAge ago and returns how many
// were removed.
func (c *Cache) Sweep(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	if c == nil {
		return 0, nil
	}
	objects, err := c.blobs.List(ctx, cachePrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache: %w", err)
	}

	removed := 0
	for _, obj := range objects {
		if now.Sub(obj.ModTime) <= maxAge {
			continue
		}
		if err := c.blobs.Delete(ctx, obj.Key); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", obj.Key, err)
		}
		removed++
	}
	return removed, nil
}
