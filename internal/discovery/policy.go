package discovery

import (
	"log/slog"

	"github.com/mfenderov/agenda-watch/internal/links"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Policy produces the ranked candidates for a fetched page.
type Policy interface {
	Name() string
	Candidates(depth int, res *models.FetchResult, rules links.Rules) []models.LinkCandidate
}

// PolicyFor returns the policy for a source mode. Unknown modes fall back to
// the standard policy.
func PolicyFor(mode models.Mode, config Config) Policy {
	switch mode {
	case models.ModeMeetingList:
		return meetingListPolicy{limit: config.MeetingListCap}
	case models.ModeAPIFirst:
		return apiFirstPolicy{}
	default:
		return standardPolicy{}
	}
}

type standardPolicy struct{}

func (standardPolicy) Name() string { return string(models.ModeStandard) }

func (standardPolicy) Candidates(_ int, res *models.FetchResult, rules links.Rules) []models.LinkCandidate {
	candidates, err := links.Extract(res.Content, res.URL, rules)
	if err != nil {
		slog.Warn("link extraction failed", "url", res.URL, "error", err)
		return nil
	}
	return candidates
}

// meetingListPolicy keeps only the best few candidates of the landing page.
type meetingListPolicy struct {
	limit int
}

func (meetingListPolicy) Name() string { return string(models.ModeMeetingList) }

func (p meetingListPolicy) Candidates(depth int, res *models.FetchResult, rules links.Rules) []models.LinkCandidate {
	candidates := standardPolicy{}.Candidates(depth, res, rules)
	if depth == 0 && p.limit > 0 && len(candidates) > p.limit {
		candidates = candidates[:p.limit]
	}
	return candidates
}

// apiFirstPolicy merges embedded endpoint and document URLs found in the raw
// payload with ordinary anchors. Endpoints carry a score bonus so they are
// tried before link-following.
type apiFirstPolicy struct{}

func (apiFirstPolicy) Name() string { return string(models.ModeAPIFirst) }

func (apiFirstPolicy) Candidates(depth int, res *models.FetchResult, rules links.Rules) []models.LinkCandidate {
	embedded := links.ExtractEmbedded(res.Content, res.URL, rules)
	anchors := standardPolicy{}.Candidates(depth, res, rules)
	return links.Merge(embedded, anchors)
}
