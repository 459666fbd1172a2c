// Package monitor runs check cycles: discover each source's agenda, compare
// it with the stored baseline and publish what changed.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/agenda-watch/internal/events"
	"github.com/mfenderov/agenda-watch/internal/metrics"
	"github.com/mfenderov/agenda-watch/internal/storage"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Discoverer finds the current agenda of a source.
type Discoverer interface {
	Discover(ctx context.Context, src models.Source) *models.DiscoveryResult
}

// Comparer compares a document against the source's baseline.
type Comparer interface {
	Compare(ctx context.Context, sourceID, newText, newFingerprint string) (*models.ChangeSummary, error)
}

// CacheSweeper removes stale fetch cache entries.
type CacheSweeper interface {
	SweepCache(ctx context.Context, maxAge time.Duration) (int, error)
}

// Config holds monitor configuration.
type Config struct {
	// Workers bounds how many sources are checked at once.
	Workers int
	// ArchiveDocuments stores the agenda bytes whenever a change is detected.
	ArchiveDocuments bool
	// CacheRetention is the max age passed to the cache sweep that ends each
	// cycle. Zero disables the sweep.
	CacheRetention time.Duration
}

// Monitor is safe for concurrent use.
type Monitor struct {
	config    Config
	discovery Discoverer
	diff      Comparer
	sink      events.Sink
	items     *events.ItemStore
	archive   storage.Store
	sweeper   CacheSweeper
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithSink sets where change events are published. Defaults to a LogSink.
func WithSink(s events.Sink) Option {
	return func(m *Monitor) { m.sink = s }
}

// WithItemStore enables item-level change events.
func WithItemStore(s *events.ItemStore) Option {
	return func(m *Monitor) { m.items = s }
}

// WithArchive sets the blob store agenda documents are archived to.
func WithArchive(s storage.Store) Option {
	return func(m *Monitor) { m.archive = s }
}

// WithCacheSweeper sets the fetch cache swept at the end of each cycle.
func WithCacheSweeper(s CacheSweeper) Option {
	return func(m *Monitor) { m.sweeper = s }
}

// WithMetrics records comparison and cycle metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a monitor.
func New(config Config, discovery Discoverer, diff Comparer, opts ...Option) *Monitor {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	m := &Monitor{
		config:    config,
		discovery: discovery,
		diff:      diff,
		sink:      events.LogSink{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SourceReport is the outcome of checking one source.
type SourceReport struct {
	SourceID   string                  `json:"source_id"`
	Name       string                  `json:"name"`
	Discovery  *models.DiscoveryResult `json:"discovery"`
	Summary    *models.ChangeSummary   `json:"summary,omitempty"`
	Events     []models.ChangeEvent    `json:"events,omitempty"`
	ArchiveKey string                  `json:"archive_key,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Duration   time.Duration           `json:"duration"`
}

// Failed reports whether the source could not be checked this cycle.
func (r SourceReport) Failed() bool {
	return r.Error != "" || r.Discovery == nil || !r.Discovery.Status.Success()
}

// Changed reports whether a real content change was detected.
func (r SourceReport) Changed() bool {
	return r.Summary != nil && r.Summary.Changed
}

// CycleReport summarizes one pass over all sources.
type CycleReport struct {
	CycleID   string         `json:"cycle_id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Checked   int            `json:"checked"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Changed   int            `json:"changed"`
	Swept     int            `json:"swept,omitempty"`
	Reports   []SourceReport `json:"reports"`
}

// CheckSource discovers, compares and publishes for one source. Failures are
// recorded in the report, never returned.
func (m *Monitor) CheckSource(ctx context.Context, src models.Source) SourceReport {
	start := time.Now()
	report := SourceReport{SourceID: src.ID, Name: src.DisplayName()}
	defer func() { report.Duration = time.Since(start) }()

	res := m.discovery.Discover(ctx, src)
	report.Discovery = res
	if !res.Status.Success() {
		report.Error = fmt.Sprintf("%s: %s", res.Status, res.Error)
		return report
	}

	doc := res.Document
	summary, err := m.diff.Compare(ctx, src.ID, doc.Text, doc.Fingerprint)
	if err != nil {
		m.metrics.ObserveComparison("error")
		report.Error = fmt.Sprintf("compare: %v", err)
		return report
	}
	report.Summary = summary
	m.metrics.ObserveComparison(comparisonLabel(summary))

	if summary.Changed || summary.Baseline {
		report.ArchiveKey = m.archiveDocument(ctx, src, res)
	}

	now := m.now()
	var evs []models.ChangeEvent
	if summary.Changed {
		evs = append(evs, events.AgendaChanged(src, res, summary, now))
	}
	evs = append(evs, m.itemEvents(ctx, src, res, summary, now)...)
	report.Events = evs

	if len(evs) > 0 {
		if err := m.sink.Publish(ctx, evs); err != nil {
			slog.Warn("failed to publish change events", "source_id", src.ID, "count", len(evs), "error", err)
		}
	}
	return report
}

// itemEvents diffs the agenda's items against the last stored set. The
// first time a source is seen its items are recorded without events.
func (m *Monitor) itemEvents(ctx context.Context, src models.Source, res *models.DiscoveryResult, summary *models.ChangeSummary, now time.Time) []models.ChangeEvent {
	if m.items == nil || !(summary.Changed || summary.Baseline) {
		return nil
	}
	current := events.ItemsFromDocument(src.ID, res)
	last, err := m.items.Load(ctx, src.ID)
	if err != nil {
		slog.Warn("failed to load previous items", "source_id", src.ID, "error", err)
		return nil
	}

	var out []models.ChangeEvent
	if !summary.Baseline {
		out = events.DiffItems(last, current, now)
	}
	if err := m.items.Save(ctx, src.ID, current); err != nil {
		slog.Warn("failed to save items", "source_id", src.ID, "error", err)
	}
	return out
}

// archiveDocument stores the fetched agenda bytes under
// documents/<source>/<sha256>. It returns the key, or "" when archiving is
// off or fails.
func (m *Monitor) archiveDocument(ctx context.Context, src models.Source, res *models.DiscoveryResult) string {
	if !m.config.ArchiveDocuments || m.archive == nil || res.Fetch == nil || len(res.Fetch.Content) == 0 {
		return ""
	}
	ext := ".html"
	if res.Document != nil && res.Document.Kind == models.KindPDF {
		ext = ".pdf"
	}
	key := "documents/" + storage.KeySegment(src.ID) + "/" + res.Fetch.SHA256 + ext
	if err := m.archive.Put(ctx, key, res.Fetch.Content, res.Fetch.ContentType); err != nil {
		slog.Warn("failed to archive document", "source_id", src.ID, "key", key, "error", err)
		return ""
	}
	slog.Debug("document archived", "source_id", src.ID, "key", key)
	return key
}

func comparisonLabel(s *models.ChangeSummary) string {
	switch {
	case s.Baseline:
		return "baseline"
	case s.Changed:
		return "changed"
	case s.NoiseOnly:
		return "noise"
	default:
		return "unchanged"
	}
}

// RunCycle checks every source with at most Config.Workers in flight, logs
// the cycle summary and sweeps the fetch cache.
func (m *Monitor) RunCycle(ctx context.Context, sources []models.Source) *CycleReport {
	start := time.Now()
	cycle := &CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: start,
		Reports:   make([]SourceReport, len(sources)),
	}
	slog.Info("cycle starting", "cycle_id", cycle.CycleID, "sources", len(sources), "workers", m.config.Workers)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Workers)
	for i, src := range sources {
		g.Go(func() error {
			cycle.Reports[i] = m.CheckSource(gCtx, src)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range cycle.Reports {
		cycle.Checked++
		switch {
		case r.Failed():
			cycle.Failed++
			slog.Warn("source check failed", "source_id", r.SourceID, "error", r.Error)
		default:
			cycle.Succeeded++
		}
		if r.Changed() {
			cycle.Changed++
		}
	}

	if m.sweeper != nil && m.config.CacheRetention > 0 {
		n, err := m.sweeper.SweepCache(ctx, m.config.CacheRetention)
		if err != nil {
			slog.Warn("cache sweep failed", "error", err)
		}
		cycle.Swept = n
	}

	cycle.Duration = time.Since(start)
	m.metrics.ObserveCycle(cycle.Duration, time.Now())
	slog.Info("cycle complete",
		"cycle_id", cycle.CycleID,
		"checked", cycle.Checked,
		"failed", cycle.Failed,
		"changed", cycle.Changed,
		"duration", cycle.Duration)
	return cycle
}
