package links

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

// MaxAnchorText is the longest anchor text kept on a candidate.
const MaxAnchorText = 100

var spaceRun = regexp.MustCompile(`\s+`)

// Extract returns every followable anchor on an HTML page, resolved against
// baseURL (or the page's <base href>) and sorted by descending score.
// Fragment-only, javascript:, mailto: and tel: links are skipped.
func Extract(body []byte, baseURL string, rules Rules) ([]models.LinkCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	scorer := NewScorer(rules)
	var candidates []models.LinkCandidate
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if skipHref(href) {
			return
		}

		abs, ok := resolve(base, href)
		if !ok {
			return
		}

		anchor := truncateRunes(strings.TrimSpace(spaceRun.ReplaceAllString(s.Text(), " ")), MaxAnchorText)
		candidates = append(candidates, models.LinkCandidate{
			URL:        abs,
			RawHref:    href,
			AnchorText: anchor,
			Score:      scorer.Score(href, anchor, base.String()),
		})
	})

	return Merge(candidates), nil
}

// Merge combines candidate lists, keeping the highest-scoring entry per URL,
// and sorts the result by descending score. Ties keep their input order.
func Merge(lists ...[]models.LinkCandidate) []models.LinkCandidate {
	index := make(map[string]int)
	var out []models.LinkCandidate
	for _, list := range lists {
		for _, c := range list {
			if i, ok := index[c.URL]; ok {
				if c.Score > out[i].Score {
					out[i] = c
				}
				continue
			}
			index[c.URL] = len(out)
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func skipHref(href string) bool {
	lower := strings.ToLower(href)
	return href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:")
}

func resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
