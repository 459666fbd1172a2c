// Package probe surveys a source's website with a bounded same-host crawl
// and reports the highest-scoring agenda link candidates it finds. It is a
// tuning aid for allow and block lists, not part of a check cycle.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mfenderov/agenda-watch/internal/document"
	"github.com/mfenderov/agenda-watch/internal/links"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Config holds prober configuration.
type Config struct {
	Delay     time.Duration
	MaxDepth  int // link levels followed from the landing page
	MaxPages  int
	TopLinks  int
	UserAgent string
	Timeout   time.Duration
}

// DefaultConfig returns conservative survey limits.
func DefaultConfig() Config {
	return Config{
		Delay:     time.Second,
		MaxDepth:  2,
		MaxPages:  40,
		TopLinks:  15,
		UserAgent: "agenda-watch-probe/1.0",
		Timeout:   30 * time.Second,
	}
}

// Page is one page visited during a survey.
type Page struct {
	URL         string `json:"url"`
	Depth       int    `json:"depth"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Links       int    `json:"links"`
}

// Report is the outcome of a survey.
type Report struct {
	SourceID   string                 `json:"source_id"`
	LandingURL string                 `json:"landing_url"`
	Pages      []Page                 `json:"pages"`
	Candidates []models.LinkCandidate `json:"candidates"`
	Documents  []string               `json:"documents,omitempty"`
	Truncated  bool                   `json:"truncated,omitempty"`
	Duration   time.Duration          `json:"duration"`
}

// Prober crawls sites with colly.
type Prober struct {
	config Config
}

// New creates a prober. Zero config fields take defaults.
func New(config Config) *Prober {
	def := DefaultConfig()
	if config.MaxDepth <= 0 {
		config.MaxDepth = def.MaxDepth
	}
	if config.MaxPages <= 0 {
		config.MaxPages = def.MaxPages
	}
	if config.TopLinks <= 0 {
		config.TopLinks = def.TopLinks
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	return &Prober{config: config}
}

// Survey crawls src's site from its landing page, staying on the landing
// host, and ranks every link seen with the source's scoring rules.
func (p *Prober) Survey(ctx context.Context, src models.Source) (*Report, error) {
	start := time.Now()
	landing, err := url.Parse(src.LandingURL)
	if err != nil || landing.Host == "" {
		return nil, fmt.Errorf("invalid landing url %q", src.LandingURL)
	}

	rules := links.Rules{Allowlist: src.Allowlist, Blocklist: src.Blocklist}
	report := &Report{SourceID: src.ID, LandingURL: src.LandingURL}
	var (
		mu         sync.Mutex
		requested  int
		candidates []models.LinkCandidate
		documents  = map[string]bool{}
	)

	c := colly.NewCollector(
		colly.MaxDepth(p.config.MaxDepth+1),
		colly.UserAgent(p.config.UserAgent),
		colly.AllowedDomains(landing.Hostname()),
	)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       p.config.Delay,
		Parallelism: 1,
	})
	c.SetRequestTimeout(p.config.Timeout)

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if requested >= p.config.MaxPages {
			report.Truncated = true
			r.Abort()
			return
		}
		requested++
	})

	c.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		contentType := r.Headers.Get("Content-Type")
		page := Page{
			URL:         pageURL,
			Depth:       r.Request.Depth - 1,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
		}

		if document.IsPDF(pageURL, contentType, r.Body) {
			mu.Lock()
			documents[pageURL] = true
			report.Pages = append(report.Pages, page)
			mu.Unlock()
			return
		}

		found, err := links.Extract(r.Body, pageURL, rules)
		if err != nil {
			slog.Debug("link extraction failed", "url", pageURL, "error", err)
		}
		page.Links = len(found)

		mu.Lock()
		report.Pages = append(report.Pages, page)
		candidates = append(candidates, found...)
		for _, l := range found {
			if strings.HasSuffix(strings.ToLower(l.URL), ".pdf") {
				documents[l.URL] = true
			}
		}
		mu.Unlock()
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		next := e.Request.AbsoluteURL(e.Attr("href"))
		if next == "" {
			return
		}
		// Already-visited and off-host errors are expected.
		_ = e.Request.Visit(next)
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Pages = append(report.Pages, Page{
			URL:        r.Request.URL.String(),
			Depth:      r.Request.Depth - 1,
			StatusCode: r.StatusCode,
		})
		slog.Debug("probe request failed", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
	})

	slog.Debug("starting survey", "source_id", src.ID, "url", src.LandingURL, "max_depth", p.config.MaxDepth)
	if err := c.Visit(src.LandingURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", src.LandingURL, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	merged := links.Merge(candidates)
	report.Candidates = merged[:min(len(merged), p.config.TopLinks)]
	for doc := range documents {
		report.Documents = append(report.Documents, doc)
	}
	sort.Strings(report.Documents)
	sort.SliceStable(report.Pages, func(i, j int) bool {
		if report.Pages[i].Depth != report.Pages[j].Depth {
			return report.Pages[i].Depth < report.Pages[j].Depth
		}
		return report.Pages[i].URL < report.Pages[j].URL
	})
	report.Duration = time.Since(start)

	slog.Info("survey complete",
		"source_id", src.ID,
		"pages", len(report.Pages),
		"candidates", len(merged),
		"documents", len(report.Documents))
	return report, nil
}
