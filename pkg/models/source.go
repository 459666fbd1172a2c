package models

// Mode selects the candidate policy used while walking a source.
type Mode string

const (
	// ModeStandard follows scored anchors only.
	ModeStandard Mode = "standard"
	// ModeMeetingList caps the landing page to its best few candidates.
	// Suited to sites whose landing page is a long list of meetings.
	ModeMeetingList Mode = "meeting-list"
	// ModeAPIFirst also scans raw payloads for embedded API endpoints and
	// document URLs.
	ModeAPIFirst Mode = "api-first"
)

// Source is one monitored government body.
type Source struct {
	ID         string   `mapstructure:"id" json:"id"`
	Name       string   `mapstructure:"name" json:"name,omitempty"`
	LandingURL string   `mapstructure:"landing_url" json:"landing_url"`
	Allowlist  []string `mapstructure:"allowlist" json:"allowlist,omitempty"`
	Blocklist  []string `mapstructure:"blocklist" json:"blocklist,omitempty"`
	Mode       Mode     `mapstructure:"mode" json:"mode,omitempty"`
	// MaxDepth of zero means the engine default.
	MaxDepth int `mapstructure:"max_depth" json:"max_depth,omitempty"`
	// Backtrack lets discovery try the next candidate of the parent page
	// when a PDF turns out not to be an agenda.
	Backtrack bool `mapstructure:"backtrack" json:"backtrack,omitempty"`
}

// DisplayName returns Name, falling back to ID.
func (s Source) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
