package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocType is the classifier's label for a fetched document.
type DocType string

const (
	DocTypeAgenda      DocType = "agenda"
	DocTypeCalendar    DocType = "calendar"
	DocTypeMinutes     DocType = "minutes"
	DocTypeIndex       DocType = "index"
	DocTypeNoAgendaYet DocType = "no-agenda-yet"
	DocTypeUnknown     DocType = "unknown"
)

// Kind of payload a document was extracted from.
const (
	KindPDF  = "pdf"
	KindHTML = "html"
)

// ParsedDocument is the text extracted from a fetched payload along with its
// classification and content fingerprint.
type ParsedDocument struct {
	SourceURL   string   `json:"source_url"`
	Kind        string   `json:"kind"`
	Text        string   `json:"text"`
	PageCount   int      `json:"page_count"`
	Warnings    []string `json:"warnings,omitempty"`
	Confidence  float64  `json:"confidence"`
	Fingerprint string   `json:"fingerprint"`
	DocType     DocType  `json:"doc_type"`
	Title       string   `json:"title,omitempty"`
	Facts       *Facts   `json:"facts,omitempty"`
}

// Facts are meeting details pulled from agenda text. Every field is best
// effort and may be empty.
type Facts struct {
	MeetingDate string   `json:"meeting_date,omitempty"`
	MeetingTime string   `json:"meeting_time,omitempty"`
	Committee   string   `json:"committee,omitempty"`
	Location    string   `json:"location,omitempty"`
	Items       []string `json:"items,omitempty"`
}

// GenerateDocumentID creates a deterministic ID from a string key.
// The ID is a SHA-256 hash (first 16 chars) of the key.
func GenerateDocumentID(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])[:16]
}

// FingerprintRecord is the last known state of a source's agenda.
// Text may be truncated; TextLength is the rune count of the full text and
// LineHashes identify its significant lines, so changes past the stored
// prefix are still detected.
type FingerprintRecord struct {
	SourceID    string    `json:"source_id"`
	Fingerprint string    `json:"fingerprint"`
	Text        string    `json:"text"`
	TextLength  int       `json:"text_length,omitempty"`
	LineHashes  []string  `json:"line_hashes,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChangeSummary describes the difference between the stored baseline and a
// newly parsed document.
type ChangeSummary struct {
	SourceID           string   `json:"source_id"`
	Changed            bool     `json:"changed"`
	FingerprintChanged bool     `json:"fingerprint_changed"`
	NoiseOnly          bool     `json:"noise_only"`
	Baseline           bool     `json:"baseline,omitempty"`
	PercentChanged     float64  `json:"percent_changed"`
	Similarity         float64  `json:"similarity"`
	AddedLines         []string `json:"added_lines,omitempty"`
	RemovedLines       []string `json:"removed_lines,omitempty"`
	// RemovedBeyondBaseline counts significant lines that disappeared from
	// the part of the old text that was not stored.
	RemovedBeyondBaseline int       `json:"removed_beyond_baseline,omitempty"`
	OldFingerprint        string    `json:"old_fingerprint,omitempty"`
	NewFingerprint        string    `json:"new_fingerprint"`
	ComparedAt            time.Time `json:"compared_at"`
}
