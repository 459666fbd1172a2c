package models

import "time"

// FetchOutcome classifies how a fetch ended.
type FetchOutcome string

const (
	FetchOK FetchOutcome = "ok"
	// FetchPermanent is a 404 or 410. Never retried.
	FetchPermanent FetchOutcome = "permanent"
	// FetchClientError is any other non-retryable HTTP status.
	FetchClientError FetchOutcome = "client-error"
	// FetchExhausted means every attempt hit a retryable failure.
	FetchExhausted FetchOutcome = "exhausted"
	FetchBlocked   FetchOutcome = "blocked"
	FetchCancelled FetchOutcome = "cancelled"
	FetchInvalid   FetchOutcome = "invalid"
)

// FetchResult is the outcome of retrieving one URL.
type FetchResult struct {
	URL          string       `json:"url"`
	SourceID     string       `json:"source_id"`
	FetchedAt    time.Time    `json:"fetched_at"`
	StatusCode   int          `json:"status_code"`
	ContentType  string       `json:"content_type"`
	Content      []byte       `json:"-"`
	SHA256       string       `json:"sha256"`
	FromCache    bool         `json:"from_cache"`
	// Revalidated means a stale cache entry was confirmed with a 304.
	Revalidated  bool         `json:"revalidated,omitempty"`
	ETag         string       `json:"etag,omitempty"`
	LastModified string       `json:"last_modified,omitempty"`
	GzipDetected bool         `json:"gzip_detected"`
	Attempts     int          `json:"attempts"`
	Outcome      FetchOutcome `json:"outcome"`
	Error        string       `json:"error,omitempty"`
}

// OK reports whether the fetch produced a 2xx payload.
func (r *FetchResult) OK() bool {
	return r != nil && r.Outcome == FetchOK
}
