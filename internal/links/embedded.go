package links

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

// EndpointBonus is added to embedded API endpoints so they outrank ordinary
// anchors on api-first sources.
const EndpointBonus = 35

var (
	absoluteURL = regexp.MustCompile(`https?://[^\s"'<>\\)]+`)
	quotedPath  = regexp.MustCompile(`["'](/[^"'\s<>]+)["']`)
)

// ExtractEmbedded scans a raw payload (HTML with inline scripts, or JSON) for
// URL strings that look like data API endpoints or PDF documents.
func ExtractEmbedded(body []byte, baseURL string, rules Rules) []models.LinkCandidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	text := strings.ReplaceAll(string(body), `\/`, "/")

	raw := absoluteURL.FindAllString(text, -1)
	for _, m := range quotedPath.FindAllStringSubmatch(text, -1) {
		raw = append(raw, m[1])
	}

	scorer := NewScorer(rules)
	var candidates []models.LinkCandidate
	for _, r := range raw {
		r = strings.TrimRight(r, ".,;")
		abs, ok := resolve(base, r)
		if !ok {
			continue
		}
		u, err := url.Parse(abs)
		if err != nil {
			continue
		}
		api := IsAPIEndpoint(u)
		if !api && !strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			continue
		}
		score := scorer.Score(abs, "", base.String())
		if api {
			score += EndpointBonus
		}
		candidates = append(candidates, models.LinkCandidate{URL: abs, RawHref: r, Score: score, Embedded: true})
	}
	return Merge(candidates)
}

// IsAPIEndpoint reports whether u looks like a JSON data endpoint.
func IsAPIEndpoint(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	p := strings.ToLower(u.Path)
	return strings.HasPrefix(host, "api.") ||
		strings.HasPrefix(host, "webapi.") ||
		strings.Contains(p, "/api/") ||
		strings.HasSuffix(p, ".json")
}
