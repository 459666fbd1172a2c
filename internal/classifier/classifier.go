// Package classifier labels extracted document text as agenda, calendar,
// minutes, index, no-agenda-yet or unknown using ordered phrase tables.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Rules holds the phrase tables and thresholds the classifier evaluates.
// Phrases are matched case-insensitively as substrings.
type Rules struct {
	// NavTerms identify site chrome lines removed before scanning.
	NavTerms []string
	// AgendaPhrases classify a document as an agenda regardless of any
	// other signal.
	AgendaPhrases   []string
	NoAgendaPhrases []string
	CalendarPhrases []string
	MinutesPhrases  []string
	IndexPhrases    []string

	// MinItemMarkers distinct numbered/lettered line starts mark an agenda.
	MinItemMarkers int
	// CalendarMaxMarkers is the most item markers a calendar may carry.
	CalendarMaxMarkers int
	// ScanLimit bounds how many characters of cleaned text are scanned.
	ScanLimit int
	// Short texts with many embedded links are treated as index pages.
	IndexMaxLength int
	IndexMinLinks  int
}

// DefaultRules returns the built-in phrase tables.
func DefaultRules() Rules {
	return Rules{
		NavTerms: []string{
			"home", "menu", "main menu", "skip to main content", "skip to content",
			"login", "log in", "sign in", "contact us", "about us", "site map", "sitemap",
			"subscribe", "back to top", "translate", "select language", "share",
			"facebook", "twitter", "instagram", "youtube", "linkedin",
			"accessibility", "privacy policy", "terms of use", "copyright",
		},
		AgendaPhrases: []string{
			"call to order", "roll call", "public comment", "item no.", "item #",
			"consent calendar", "public hearing", "order of business",
			"agenda item", "resolution no", "pledge of allegiance",
		},
		NoAgendaPhrases: []string{
			"no agenda", "agenda not yet", "agenda will be posted", "agenda has not been posted",
			"not yet available", "not available", "coming soon", "check back later",
		},
		CalendarPhrases: []string{
			"meeting calendar", "schedule of meetings", "calendar year",
			"meeting schedule", "calendar of meetings", "annual calendar",
		},
		MinutesPhrases: []string{
			"meeting minutes", "approved minutes", "minutes of", "draft minutes",
			"summary of proceedings",
		},
		IndexPhrases: []string{
			"upcoming meetings", "meeting list", "all meetings", "past meetings",
			"select a meeting", "filter by", "search meetings", "browse", "category",
		},
		MinItemMarkers:     5,
		CalendarMaxMarkers: 2,
		ScanLimit:          5000,
		IndexMaxLength:     3000,
		IndexMinLinks:      5,
	}
}

// itemMarker matches an ordered list marker at the start of a line: "1.",
// "12)", "A.", "b)", "IV." and the markdown-escaped form "1\.".
var itemMarker = regexp.MustCompile(`(?m)^[ \t]*\(?(\d{1,3}|[A-Za-z]|[IVXivx]{2,5})\\?[.)][ \t]+\S`)

type phraseSet struct {
	phrases []string
	matcher *ahocorasick.Matcher
}

func newPhraseSet(phrases []string) *phraseSet {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			normalized = append(normalized, p)
		}
	}
	ps := &phraseSet{phrases: normalized}
	if len(normalized) > 0 {
		ps.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return ps
}

// find returns the first dictionary phrase present in text, or "".
func (ps *phraseSet) find(text string) string {
	if ps.matcher == nil {
		return ""
	}
	hits := ps.matcher.MatchThreadSafe([]byte(text))
	if len(hits) == 0 {
		return ""
	}
	best := hits[0]
	for _, h := range hits[1:] {
		if h < best {
			best = h
		}
	}
	return ps.phrases[best]
}

// hits returns the indexes of every dictionary phrase present in text.
func (ps *phraseSet) hits(text string) []int {
	if ps.matcher == nil {
		return nil
	}
	return ps.matcher.MatchThreadSafe([]byte(text))
}

// Classifier is safe for concurrent use.
type Classifier struct {
	rules    Rules
	nav      *phraseSet
	navExact map[string]struct{}
	agenda   *phraseSet
	noAgenda *phraseSet
	calendar *phraseSet
	minutes  *phraseSet
	index    *phraseSet
}

// Decision is a classification plus the signal that produced it.
type Decision struct {
	DocType models.DocType
	Reason  string
	Markers int
}

// New creates a classifier with the default rules.
func New() *Classifier {
	return NewWithRules(DefaultRules())
}

// NewWithRules creates a classifier from custom rule tables. Zero thresholds
// fall back to the defaults.
func NewWithRules(rules Rules) *Classifier {
	def := DefaultRules()
	if rules.MinItemMarkers <= 0 {
		rules.MinItemMarkers = def.MinItemMarkers
	}
	if rules.CalendarMaxMarkers <= 0 {
		rules.CalendarMaxMarkers = def.CalendarMaxMarkers
	}
	if rules.ScanLimit <= 0 {
		rules.ScanLimit = def.ScanLimit
	}
	if rules.IndexMaxLength <= 0 {
		rules.IndexMaxLength = def.IndexMaxLength
	}
	if rules.IndexMinLinks <= 0 {
		rules.IndexMinLinks = def.IndexMinLinks
	}

	c := &Classifier{
		rules:    rules,
		nav:      newPhraseSet(rules.NavTerms),
		navExact: make(map[string]struct{}, len(rules.NavTerms)),
		agenda:   newPhraseSet(rules.AgendaPhrases),
		noAgenda: newPhraseSet(rules.NoAgendaPhrases),
		calendar: newPhraseSet(rules.CalendarPhrases),
		minutes:  newPhraseSet(rules.MinutesPhrases),
		index:    newPhraseSet(rules.IndexPhrases),
	}
	for _, term := range c.nav.phrases {
		c.navExact[term] = struct{}{}
	}
	return c
}

// Classify returns the document type for text.
func (c *Classifier) Classify(text string) models.DocType {
	return c.Explain(text).DocType
}

// Explain classifies text and reports which rule decided it.
//
// Precedence: agenda phrases, then item-marker count, then no-agenda-yet,
// calendar, minutes and index phrasing, else unknown.
func (c *Classifier) Explain(text string) Decision {
	cleaned := c.StripNavigation(text)
	scan := truncateBytes(strings.ToLower(cleaned), c.rules.ScanLimit)
	markers := CountItemMarkers(scan)

	if phrase := c.agenda.find(scan); phrase != "" {
		return Decision{DocType: models.DocTypeAgenda, Reason: "phrase: " + phrase, Markers: markers}
	}
	if markers >= c.rules.MinItemMarkers {
		return Decision{DocType: models.DocTypeAgenda, Reason: "item markers", Markers: markers}
	}
	if phrase := c.noAgenda.find(scan); phrase != "" {
		return Decision{DocType: models.DocTypeNoAgendaYet, Reason: "phrase: " + phrase, Markers: markers}
	}
	if phrase := c.calendar.find(scan); phrase != "" && markers <= c.rules.CalendarMaxMarkers {
		return Decision{DocType: models.DocTypeCalendar, Reason: "phrase: " + phrase, Markers: markers}
	}
	if phrase := c.minutes.find(scan); phrase != "" {
		return Decision{DocType: models.DocTypeMinutes, Reason: "phrase: " + phrase, Markers: markers}
	}
	if phrase := c.index.find(scan); phrase != "" {
		return Decision{DocType: models.DocTypeIndex, Reason: "phrase: " + phrase, Markers: markers}
	}
	if len(text) < c.rules.IndexMaxLength && strings.Count(strings.ToLower(text), "http") > c.rules.IndexMinLinks {
		return Decision{DocType: models.DocTypeIndex, Reason: "link density", Markers: markers}
	}
	return Decision{DocType: models.DocTypeUnknown, Markers: markers}
}

// StripNavigation drops lines that look like site chrome: lines under four
// characters, lines that are exactly a navigation term, and short lines that
// are little more than a navigation term.
func (c *Classifier) StripNavigation(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 4 {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, ok := c.navExact[lower]; ok {
			continue
		}
		if c.isNavLine(lower) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, "\n")
}

func (c *Classifier) isNavLine(lower string) bool {
	for _, h := range c.nav.hits(lower) {
		if len(lower) < len(c.nav.phrases[h])+10 {
			return true
		}
	}
	return false
}

// CountItemMarkers returns the number of distinct ordered-list markers that
// begin a line of text.
func CountItemMarkers(text string) int {
	seen := make(map[string]struct{})
	for _, m := range itemMarker.FindAllStringSubmatch(text, -1) {
		seen[strings.ToLower(m[1])] = struct{}{}
	}
	return len(seen)
}

// ContainsAgendaVocabulary reports whether text mentions agenda-specific
// terms. Used for confidence scoring, not classification.
func ContainsAgendaVocabulary(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"agenda", "meeting", "item", "motion", "resolution"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
