// Package links extracts anchors from HTML pages and ranks them by how likely
// they are to lead to a meeting agenda.
package links

import (
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Rules are the per-source allow and block patterns. Patterns are matched as
// case-insensitive substrings.
type Rules struct {
	Allowlist []string
	Blocklist []string
}

// Rule is one weighted scoring signal. Weight is added when Match is true.
type Rule struct {
	Name   string
	Weight int
	Match  func(l *link) bool
}

// link is the precomputed view of an anchor that rules evaluate.
type link struct {
	href     string // lowercased raw href
	anchor   string // lowercased anchor text
	combined string
	filename string
	pdf      bool
	sameSite bool
}

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}`),
		regexp.MustCompile(`\b(jan|january|feb|february|mar|march|apr|april|may|jun|june|jul|july|aug|august|sep|sept|september|oct|october|nov|november|dec|december)\b`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}`),
	}
	navEndpoints = []string{"/search", "/contact", "/about", "/login"}
)

// baseRules apply to every source. Order matters only for readability; each
// rule is independent except where a predicate excludes another explicitly.
var baseRules = []Rule{
	{Name: "agenda-pdf", Weight: 40, Match: func(l *link) bool {
		return l.pdf && strings.Contains(l.href, "agenda")
	}},
	{Name: "agenda", Weight: 25, Match: func(l *link) bool {
		return !(l.pdf && strings.Contains(l.href, "agenda")) && strings.Contains(l.combined, "agenda")
	}},
	{Name: "agenda-packet-anchor", Weight: 20, Match: func(l *link) bool {
		return strings.Contains(l.anchor, "agenda packet")
	}},
	{Name: "packet", Weight: 15, Match: func(l *link) bool {
		return containsAny(l.combined, "packet", "materials")
	}},
	{Name: "pdf", Weight: 25, Match: func(l *link) bool { return l.pdf }},
	{Name: "meeting-body", Weight: 10, Match: func(l *link) bool {
		return containsAny(l.combined, "meeting", "board", "committee", "council")
	}},
	{Name: "date", Weight: 12, Match: func(l *link) bool {
		for _, p := range datePatterns {
			if p.MatchString(l.combined) {
				return true
			}
		}
		return false
	}},
	{Name: "same-site", Weight: 8, Match: func(l *link) bool { return l.sameSite }},
	{Name: "calendar-file", Weight: -40, Match: func(l *link) bool {
		return strings.Contains(l.filename, "calendar")
	}},
	{Name: "nav-endpoint", Weight: -20, Match: func(l *link) bool {
		return containsAny(l.href, navEndpoints...)
	}},
}

// Scorer applies a fixed rule table. It is safe for concurrent use.
type Scorer struct {
	rules []Rule
}

// NewScorer builds the rule table for a source: allowlist and blocklist rules
// followed by the shared base rules.
func NewScorer(r Rules) *Scorer {
	allow := lowerAll(r.Allowlist)
	block := lowerAll(r.Blocklist)

	rules := make([]Rule, 0, len(baseRules)+2)
	if len(allow) > 0 {
		rules = append(rules, Rule{Name: "allowlist", Weight: 30, Match: func(l *link) bool {
			return containsAny(l.href, allow...) || containsAny(l.anchor, allow...)
		}})
	}
	if len(block) > 0 {
		rules = append(rules, Rule{Name: "blocklist", Weight: -50, Match: func(l *link) bool {
			return containsAny(l.href, block...)
		}})
	}
	rules = append(rules, baseRules...)
	return &Scorer{rules: rules}
}

// Score returns the summed weight of every matching rule.
func (s *Scorer) Score(href, anchor, baseURL string) int {
	l := newLink(href, anchor, baseURL)
	score := 0
	for i := range s.rules {
		if s.rules[i].Match(l) {
			score += s.rules[i].Weight
		}
	}
	return score
}

// Explain returns the names of the rules that matched.
func (s *Scorer) Explain(href, anchor, baseURL string) []string {
	l := newLink(href, anchor, baseURL)
	var names []string
	for i := range s.rules {
		if s.rules[i].Match(l) {
			names = append(names, s.rules[i].Name)
		}
	}
	return names
}

// Score is a convenience wrapper around NewScorer(rules).Score.
func Score(href, anchor, baseURL string, rules Rules) int {
	return NewScorer(rules).Score(href, anchor, baseURL)
}

func newLink(href, anchor, baseURL string) *link {
	h := strings.ToLower(strings.TrimSpace(href))
	a := strings.ToLower(strings.TrimSpace(anchor))

	p := h
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	filename := p
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}

	return &link{
		href:     h,
		anchor:   a,
		combined: h + " " + a,
		filename: filename,
		pdf:      path.Ext(p) == ".pdf",
		sameSite: sameSite(href, baseURL),
	}
}

// sameSite reports whether href is relative or shares the registrable domain
// of baseURL.
func sameSite(href, baseURL string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	if u.Host == "" {
		return true
	}
	b, err := url.Parse(baseURL)
	if err != nil || b.Host == "" {
		return false
	}
	return registrableDomain(u.Hostname()) == registrableDomain(b.Hostname())
}

func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
