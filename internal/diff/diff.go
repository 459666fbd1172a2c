// Package diff compares newly parsed agenda text with the stored baseline for
// a source and reports meaningful, noise-filtered line changes.
package diff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/mfenderov/agenda-watch/internal/state"
	"github.com/mfenderov/agenda-watch/internal/textnorm"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Config holds diff engine thresholds.
type Config struct {
	// MaxLines caps the added and removed lines kept in a summary.
	MaxLines int
	// BaselineChars bounds the text stored as the new baseline.
	BaselineChars int
	// MinLineChars drops shorter lines from the diff.
	MinLineChars int
	// SignificantChars is the length a surviving line must exceed for a
	// change to count as more than noise.
	SignificantChars int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxLines:         20,
		BaselineChars:    5000,
		MinLineChars:     3,
		SignificantChars: 20,
	}
}

var defaultNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(printed|updated|generated|last modified|last updated|posted)\b`),
	regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([ T]\d{1,2}:\d{2}(:\d{2})?)?$`),
	regexp.MustCompile(`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}$`),
	regexp.MustCompile(`(?i)^\d{1,2}:\d{2}(:\d{2})?\s*(am|pm|a\.m\.|p\.m\.)?$`),
	regexp.MustCompile(`(?i)^page\s+\d+(\s+(of|/)\s+\d+)?$`),
}

// Stats counts engine activity since creation.
type Stats struct {
	Comparisons   int64
	ShortCircuits int64
	LineDiffs     int64
}

// Engine is safe for concurrent use. Comparisons for the same source are
// serialized so a baseline is never read and written concurrently.
type Engine struct {
	config Config
	store  state.Store
	noise  []*regexp.Regexp
	now    func() time.Time

	locks sync.Map // sourceID -> *sync.Mutex

	comparisons   atomic.Int64
	shortCircuits atomic.Int64
	lineDiffs     atomic.Int64
}

// New creates a diff engine backed by store.
func New(config Config, store state.Store) *Engine {
	def := DefaultConfig()
	if config.MaxLines <= 0 {
		config.MaxLines = def.MaxLines
	}
	if config.BaselineChars <= 0 {
		config.BaselineChars = def.BaselineChars
	}
	if config.MinLineChars <= 0 {
		config.MinLineChars = def.MinLineChars
	}
	if config.SignificantChars <= 0 {
		config.SignificantChars = def.SignificantChars
	}
	return &Engine{config: config, store: store, noise: defaultNoise, now: time.Now}
}

// Compare diffs newText against the stored baseline for sourceID and then
// stores newText as the baseline. An empty newFingerprint is derived from
// newText. A source without a baseline yields Baseline=true, Changed=false.
func (e *Engine) Compare(ctx context.Context, sourceID, newText, newFingerprint string) (*models.ChangeSummary, error) {
	if newFingerprint == "" {
		newFingerprint = textnorm.Fingerprint(newText)
	}
	mu := e.lock(sourceID)
	mu.Lock()
	defer mu.Unlock()

	e.comparisons.Add(1)
	now := e.now()
	summary := &models.ChangeSummary{
		SourceID:       sourceID,
		NewFingerprint: newFingerprint,
		ComparedAt:     now,
	}

	old, err := e.store.Load(ctx, sourceID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		old = nil
	case err != nil:
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	if old != nil {
		summary.OldFingerprint = old.Fingerprint
		if old.Fingerprint == newFingerprint {
			e.shortCircuits.Add(1)
			summary.Similarity = 1
			slog.Debug("fingerprint unchanged", "source_id", sourceID, "fingerprint", newFingerprint)
			return summary, nil
		}
	}

	if old == nil {
		summary.Baseline = true
	} else {
		summary.FingerprintChanged = true
		e.diffInto(summary, old, newText)
	}

	rec := models.FingerprintRecord{
		SourceID:    sourceID,
		Fingerprint: newFingerprint,
		Text:        textnorm.Truncate(newText, e.config.BaselineChars),
		TextLength:  utf8.RuneCountInString(newText),
		LineHashes:  e.lineHashes(newText),
		UpdatedAt:   now,
	}
	if err := e.store.Save(ctx, rec); err != nil {
		return summary, fmt.Errorf("failed to save baseline: %w", err)
	}

	slog.Info("compared against baseline",
		"source_id", sourceID,
		"changed", summary.Changed,
		"noise_only", summary.NoiseOnly,
		"baseline", summary.Baseline,
		"added", len(summary.AddedLines),
		"removed", len(summary.RemovedLines))
	return summary, nil
}

// Stats returns activity counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Comparisons:   e.comparisons.Load(),
		ShortCircuits: e.shortCircuits.Load(),
		LineDiffs:     e.lineDiffs.Load(),
	}
}

func (e *Engine) lock(sourceID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(sourceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// diffInto computes the filtered line diff between the stored text and
// newText. When the stored text is a truncated prefix, only significant lines
// are compared and membership in the recorded line hashes decides whether a
// line is new or gone.
func (e *Engine) diffInto(summary *models.ChangeSummary, old *models.FingerprintRecord, newText string) {
	e.lineDiffs.Add(1)

	oldLen := old.TextLength
	if oldLen == 0 {
		oldLen = utf8.RuneCountInString(old.Text)
	}
	truncated := oldLen > utf8.RuneCountInString(old.Text) && len(old.LineHashes) > 0

	a := splitLines(old.Text)
	if truncated && len(a) > 0 {
		// the last stored line may be cut short
		a = a[:len(a)-1]
	}
	b := splitLines(newText)
	matcher := difflib.NewMatcher(a, b)
	summary.Similarity = matcher.Ratio()

	var added, removed []string
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'r':
			removed = append(removed, a[op.I1:op.I2]...)
			added = append(added, b[op.J1:op.J2]...)
		case 'd':
			removed = append(removed, a[op.I1:op.I2]...)
		case 'i':
			added = append(added, b[op.J1:op.J2]...)
		}
	}

	if truncated {
		added, removed, summary.RemovedBeyondBaseline = e.beyondBaseline(old.LineHashes, a, b, added, removed)
	}

	summary.AddedLines = e.filter(added)
	summary.RemovedLines = e.filter(removed)

	significant := summary.RemovedBeyondBaseline > 0
	for _, line := range append(append([]string{}, summary.AddedLines...), summary.RemovedLines...) {
		if utf8.RuneCountInString(line) > e.config.SignificantChars {
			significant = true
			break
		}
	}
	survived := len(summary.AddedLines)+len(summary.RemovedLines) > 0 || summary.RemovedBeyondBaseline > 0
	summary.NoiseOnly = !significant
	summary.Changed = !summary.NoiseOnly && survived
	summary.PercentChanged = percentChanged(oldLen, utf8.RuneCountInString(newText))
}

// beyondBaseline reconciles a diff against a truncated baseline. Added lines
// survive only when significant and absent from the old text; removed lines
// only when absent from the new text. Old significant lines outside the
// stored prefix that are missing from the new text are counted.
func (e *Engine) beyondBaseline(oldHashes, window, newLines, added, removed []string) (keptAdded, keptRemoved []string, gone int) {
	oldSet := make(map[string]bool, len(oldHashes))
	for _, h := range oldHashes {
		oldSet[h] = true
	}
	current := make(map[string]bool, len(newLines))
	newSet := make(map[string]bool, len(newLines))
	for _, line := range newLines {
		line = strings.TrimSpace(line)
		current[line] = true
		newSet[models.GenerateDocumentID(line)] = true
	}
	windowSet := make(map[string]bool, len(window))
	for _, line := range window {
		windowSet[models.GenerateDocumentID(strings.TrimSpace(line))] = true
	}

	for _, line := range added {
		trimmed := strings.TrimSpace(line)
		if e.significant(trimmed) && !oldSet[models.GenerateDocumentID(trimmed)] {
			keptAdded = append(keptAdded, line)
		}
	}
	for _, line := range removed {
		if !current[strings.TrimSpace(line)] {
			keptRemoved = append(keptRemoved, line)
		}
	}
	for h := range oldSet {
		if !newSet[h] && !windowSet[h] {
			gone++
		}
	}
	return keptAdded, keptRemoved, gone
}

// lineHashes returns the sorted, distinct hashes of the significant lines of
// text.
func (e *Engine) lineHashes(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if !e.significant(line) {
			continue
		}
		h := models.GenerateDocumentID(line)
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Engine) significant(line string) bool {
	return utf8.RuneCountInString(line) > e.config.SignificantChars && !e.isNoise(line)
}

// filter drops short and noise lines and caps the result.
func (e *Engine) filter(lines []string) []string {
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < e.config.MinLineChars || e.isNoise(line) {
			continue
		}
		out = append(out, line)
		if len(out) == e.config.MaxLines {
			break
		}
	}
	return out
}

func (e *Engine) isNoise(line string) bool {
	for _, p := range e.noise {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// percentChanged is the relative change in length, capped at 100.
func percentChanged(oldLen, newLen int) float64 {
	if oldLen == 0 {
		if newLen == 0 {
			return 0
		}
		return 100
	}
	return math.Min(100, math.Abs(float64(newLen-oldLen))/float64(oldLen)*100)
}
