package models

import "time"

// LinkCandidate is a scored anchor found on a page.
type LinkCandidate struct {
	URL string `json:"url"`
	// RawHref is the href (or embedded string) as written on the page.
	RawHref    string `json:"raw_href,omitempty"`
	AnchorText string `json:"anchor_text"`
	Score      int    `json:"score"`
	Embedded   bool   `json:"embedded,omitempty"`
}

// DiscoveryStatus is the terminal state of a discovery run.
type DiscoveryStatus string

const (
	StatusSearching         DiscoveryStatus = "searching"
	StatusSuccessAgenda     DiscoveryStatus = "success-agenda"
	StatusSuccessAgendaHTML DiscoveryStatus = "success-agenda-html"
	StatusFailLoop          DiscoveryStatus = "fail-loop"
	StatusFailFetch         DiscoveryStatus = "fail-fetch"
	StatusFailNoAgendaYet   DiscoveryStatus = "fail-no-agenda-yet"
	StatusFailNoLinks       DiscoveryStatus = "fail-no-links"
	StatusFailMaxDepth      DiscoveryStatus = "fail-max-depth"
)

// Success reports whether the status names a located agenda.
func (s DiscoveryStatus) Success() bool {
	return s == StatusSuccessAgenda || s == StatusSuccessAgendaHTML
}

// DiscoveryStep records one fetched page on the path from the landing URL.
type DiscoveryStep struct {
	Depth      int             `json:"depth"`
	URL        string          `json:"url"`
	Kind       string          `json:"kind"`
	DocType    DocType         `json:"doc_type,omitempty"`
	TextLength int             `json:"text_length,omitempty"`
	LinksFound int             `json:"links_found,omitempty"`
	TopLinks   []LinkCandidate `json:"top_links,omitempty"`
	Selected   string          `json:"selected,omitempty"`
	Rejected   string          `json:"rejected,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// DiscoveryResult is the outcome of walking one source.
type DiscoveryResult struct {
	SourceID     string          `json:"source_id"`
	RunID        string          `json:"run_id"`
	LandingURL   string          `json:"landing_url"`
	Status       DiscoveryStatus `json:"status"`
	DepthReached int             `json:"depth_reached"`
	Path         []DiscoveryStep `json:"path"`
	FinalURL     string          `json:"final_url,omitempty"`
	Document     *ParsedDocument `json:"document,omitempty"`
	Fetch        *FetchResult    `json:"-"`
	Error        string          `json:"error,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	Duration     time.Duration   `json:"duration"`
}
