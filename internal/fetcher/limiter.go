package fetcher

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// domainLimiter enforces a minimum delay between requests to the same host.
// Each host gets its own limiter; the map itself is guarded by a mutex.
type domainLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

func newDomainLimiter(interval time.Duration) *domainLimiter {
	return &domainLimiter{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to rawURL's host is allowed or ctx ends.
func (d *domainLimiter) Wait(ctx context.Context, rawURL string) error {
	if d.interval <= 0 {
		return nil
	}
	return d.get(domainOf(rawURL)).Wait(ctx)
}

func (d *domainLimiter) get(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Every(d.interval), 1)
		d.limiters[domain] = l
	}
	return l
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Host)
}
