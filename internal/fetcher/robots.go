package fetcher

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/benjaminestes/robots"
)

// robotsPolicy caches parsed robots.txt files per origin. A robots.txt that
// cannot be fetched or parsed allows everything.
type robotsPolicy struct {
	mu     sync.Mutex
	client *http.Client
	agent  string
	cache  map[string]*robots.Robots
}

func newRobotsPolicy(client *http.Client, agent string) *robotsPolicy {
	return &robotsPolicy{client: client, agent: agent, cache: make(map[string]*robots.Robots)}
}

// Allowed reports whether the configured agent may fetch rawURL.
func (p *robotsPolicy) Allowed(ctx context.Context, rawURL string) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic in robots.txt parsing, assuming allowed", "url", rawURL, "panic", r)
			allowed = true
		}
	}()

	robotsURL, err := robots.Locate(rawURL)
	if err != nil {
		return true
	}

	p.mu.Lock()
	r, ok := p.cache[robotsURL]
	p.mu.Unlock()
	if !ok {
		r = p.load(ctx, robotsURL)
		p.mu.Lock()
		p.cache[robotsURL] = r
		p.mu.Unlock()
	}
	if r == nil {
		return true
	}
	return r.Test(p.agent, rawURL)
}

func (p *robotsPolicy) load(ctx context.Context, robotsURL string) *robots.Robots {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", p.agent)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Debug("failed to fetch robots.txt", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	r, err := robots.From(resp.StatusCode, bytes.NewReader(body))
	if err != nil {
		slog.Debug("failed to parse robots.txt", "url", robotsURL, "error", err)
		return nil
	}
	return r
}
