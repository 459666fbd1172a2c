// Package discovery walks from a source's landing page to its current agenda
// document, one scored link at a time.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mfenderov/agenda-watch/internal/document"
	"github.com/mfenderov/agenda-watch/internal/links"
	"github.com/mfenderov/agenda-watch/internal/metrics"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Fetcher retrieves one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url, sourceID string) *models.FetchResult
}

// Parser turns a fetch result into a classified document.
type Parser interface {
	Parse(ctx context.Context, res *models.FetchResult) *models.ParsedDocument
}

// Config holds discovery limits.
type Config struct {
	// MaxDepth is the deepest link level followed from the landing page.
	MaxDepth int
	// MinHTMLAgendaChars is the text length an HTML page classified as an
	// agenda needs to be accepted as the agenda itself.
	MinHTMLAgendaChars int
	// SelectionFloor: only candidates scoring above it are followed.
	SelectionFloor int
	// MeetingListCap bounds landing-page candidates in meeting-list mode.
	MeetingListCap int
	// PathLinks is how many top candidates each path step records.
	PathLinks int
	// MaxBacktracks bounds alternate candidates tried after rejected PDFs
	// on sources with backtracking enabled.
	MaxBacktracks int
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxDepth:           3,
		MinHTMLAgendaChars: 1000,
		SelectionFloor:     -20,
		MeetingListCap:     15,
		PathLinks:          5,
		MaxBacktracks:      2,
	}
}

// Engine is safe for concurrent use; each Discover call keeps its own state.
type Engine struct {
	config  Config
	fetcher Fetcher
	parser  Parser
	metrics *metrics.Metrics
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics records terminal statuses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates a discovery engine. Zero config fields take defaults, except
// SelectionFloor which is used as given.
func New(config Config, fetcher Fetcher, parser Parser, opts ...Option) *Engine {
	def := DefaultConfig()
	if config.MaxDepth <= 0 {
		config.MaxDepth = def.MaxDepth
	}
	if config.MinHTMLAgendaChars <= 0 {
		config.MinHTMLAgendaChars = def.MinHTMLAgendaChars
	}
	if config.MeetingListCap <= 0 {
		config.MeetingListCap = def.MeetingListCap
	}
	if config.PathLinks <= 0 {
		config.PathLinks = def.PathLinks
	}
	if config.MaxBacktracks < 0 {
		config.MaxBacktracks = 0
	}
	e := &Engine{config: config, fetcher: fetcher, parser: parser}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the mutable state of one Discover call.
type run struct {
	src        models.Source
	rules      links.Rules
	policy     Policy
	result     *models.DiscoveryResult
	visited    map[string]bool // normalized URLs already fetched
	fetched    map[string]bool // exact URLs already fetched
	parent     []models.LinkCandidate
	backtracks int
}

// Discover walks src from its landing page. It always returns a result whose
// Status is terminal; the path records every page fetched.
func (e *Engine) Discover(ctx context.Context, src models.Source) *models.DiscoveryResult {
	start := time.Now()
	maxDepth := src.MaxDepth
	if maxDepth <= 0 {
		maxDepth = e.config.MaxDepth
	}

	r := &run{
		src:     src,
		rules:   links.Rules{Allowlist: src.Allowlist, Blocklist: src.Blocklist},
		policy:  PolicyFor(src.Mode, e.config),
		visited: make(map[string]bool),
		fetched: make(map[string]bool),
		result: &models.DiscoveryResult{
			SourceID:   src.ID,
			RunID:      uuid.NewString(),
			LandingURL: src.LandingURL,
			Status:     models.StatusSearching,
			StartedAt:  start,
		},
	}

	e.walk(ctx, r, maxDepth)

	r.result.Duration = time.Since(start)
	e.metrics.ObserveDiscovery(string(r.result.Status))
	slog.Info("discovery finished",
		"source_id", src.ID,
		"status", r.result.Status,
		"depth", r.result.DepthReached,
		"steps", len(r.result.Path),
		"final_url", r.result.FinalURL,
		"duration", r.result.Duration)
	return r.result
}

func (e *Engine) walk(ctx context.Context, r *run, maxDepth int) {
	res := r.result
	current := r.src.LandingURL

	for depth := 0; depth <= maxDepth; {
		res.DepthReached = depth

		if err := ctx.Err(); err != nil {
			e.finish(r, models.StatusFailFetch, fmt.Sprintf("cancelled: %v", err))
			return
		}

		key := links.Normalize(current)
		if r.visited[key] {
			res.Path = append(res.Path, models.DiscoveryStep{Depth: depth, URL: current, Rejected: "already visited"})
			e.finish(r, models.StatusFailLoop, fmt.Sprintf("revisited %s", current))
			return
		}
		r.visited[key] = true
		r.fetched[current] = true

		slog.Debug("discovery step", "source_id", r.src.ID, "depth", depth, "url", current)
		fr := e.fetcher.Fetch(ctx, current, r.src.ID)
		if !fr.OK() {
			res.Path = append(res.Path, models.DiscoveryStep{Depth: depth, URL: current, Error: fr.Error})
			e.finish(r, models.StatusFailFetch, fmt.Sprintf("fetch %s: %s", current, fr.Error))
			return
		}

		if document.IsPDF(fr.URL, fr.ContentType, fr.Content) {
			next, done := e.pdfStep(ctx, r, depth, fr)
			if done {
				return
			}
			current = next
			continue
		}

		next, done := e.htmlStep(ctx, r, depth, maxDepth, fr)
		if done {
			return
		}
		current = next
		depth++
	}

	e.finish(r, models.StatusFailMaxDepth, fmt.Sprintf("no agenda within depth %d", maxDepth))
}

// pdfStep handles a fetched PDF. It either finishes the run or, when
// backtracking is allowed, returns an alternate candidate at the same depth.
func (e *Engine) pdfStep(ctx context.Context, r *run, depth int, fr *models.FetchResult) (next string, done bool) {
	doc := e.parser.Parse(ctx, fr)
	step := models.DiscoveryStep{
		Depth:      depth,
		URL:        fr.URL,
		Kind:       models.KindPDF,
		DocType:    doc.DocType,
		TextLength: len(doc.Text),
	}

	switch doc.DocType {
	case models.DocTypeAgenda:
		r.result.Path = append(r.result.Path, step)
		e.succeed(r, models.StatusSuccessAgenda, fr, doc)
		return "", true
	case models.DocTypeNoAgendaYet:
		r.result.Path = append(r.result.Path, step)
		r.result.Document = doc
		e.finish(r, models.StatusFailNoAgendaYet, "agenda not yet published")
		return "", true
	}

	step.Rejected = fmt.Sprintf("pdf classified as %s", doc.DocType)
	if r.src.Backtrack && r.backtracks < e.config.MaxBacktracks {
		if alt := e.selectNext(r.parent, func(c models.LinkCandidate) bool {
			return !r.visited[links.Normalize(c.URL)]
		}); alt != nil {
			r.backtracks++
			step.Selected = alt.URL
			r.result.Path = append(r.result.Path, step)
			slog.Debug("backtracking", "source_id", r.src.ID, "rejected", fr.URL, "next", alt.URL)
			return alt.URL, false
		}
	}

	r.result.Path = append(r.result.Path, step)
	e.finish(r, models.StatusFailNoLinks, step.Rejected)
	return "", true
}

// htmlStep handles a non-PDF page. It either finishes the run or returns the
// next URL one level deeper.
func (e *Engine) htmlStep(ctx context.Context, r *run, depth, maxDepth int, fr *models.FetchResult) (next string, done bool) {
	doc := e.parser.Parse(ctx, fr)
	candidates := r.policy.Candidates(depth, fr, r.rules)

	step := models.DiscoveryStep{
		Depth:      depth,
		URL:        fr.URL,
		Kind:       models.KindHTML,
		DocType:    doc.DocType,
		TextLength: len(doc.Text),
		LinksFound: len(candidates),
		TopLinks:   candidates[:min(len(candidates), e.config.PathLinks)],
	}

	if doc.DocType == models.DocTypeAgenda && len(doc.Text) > e.config.MinHTMLAgendaChars {
		r.result.Path = append(r.result.Path, step)
		e.succeed(r, models.StatusSuccessAgendaHTML, fr, doc)
		return "", true
	}

	if depth >= maxDepth {
		step.Rejected = "max depth reached"
		r.result.Path = append(r.result.Path, step)
		e.finish(r, models.StatusFailMaxDepth, fmt.Sprintf("no agenda within depth %d", maxDepth))
		return "", true
	}

	sel := e.selectNext(candidates, func(c models.LinkCandidate) bool { return !r.fetched[c.URL] })
	if sel == nil && doc.DocType == models.DocTypeNoAgendaYet {
		r.result.Path = append(r.result.Path, step)
		r.result.Document = doc
		e.finish(r, models.StatusFailNoAgendaYet, "agenda not yet published")
		return "", true
	}
	if sel == nil {
		// Only pages already fetched remain; following one ends the run as
		// a loop at the next depth.
		sel = e.selectNext(candidates, func(models.LinkCandidate) bool { return true })
	}
	if sel == nil {
		r.result.Path = append(r.result.Path, step)
		e.finish(r, models.StatusFailNoLinks, fmt.Sprintf("no candidate above %d on %s", e.config.SelectionFloor, fr.URL))
		return "", true
	}

	step.Selected = sel.URL
	r.result.Path = append(r.result.Path, step)
	r.parent = candidates
	return sel.URL, false
}

// selectNext returns the first candidate above the selection floor that
// passes eligible. Candidates are already sorted by score.
func (e *Engine) selectNext(candidates []models.LinkCandidate, eligible func(models.LinkCandidate) bool) *models.LinkCandidate {
	for i := range candidates {
		if candidates[i].Score <= e.config.SelectionFloor {
			return nil
		}
		if eligible(candidates[i]) {
			return &candidates[i]
		}
	}
	return nil
}

func (e *Engine) succeed(r *run, status models.DiscoveryStatus, fr *models.FetchResult, doc *models.ParsedDocument) {
	r.result.Status = status
	r.result.FinalURL = fr.URL
	r.result.Document = doc
	r.result.Fetch = fr
}

func (e *Engine) finish(r *run, status models.DiscoveryStatus, msg string) {
	r.result.Status = status
	r.result.Error = msg
}
