package models

import "time"

// ChangeType names what changed about an agenda or one of its items.
type ChangeType string

const (
	ChangeAgendaChanged      ChangeType = "agenda_changed"
	ChangeNewItem            ChangeType = "new_item"
	ChangeRemovedItem        ChangeType = "removed_item"
	ChangeMeetingTimeChanged ChangeType = "meeting_time_changed"
	ChangeAttachmentAdded    ChangeType = "attachment_added"
	ChangeAttachmentChanged  ChangeType = "attachment_changed"
)

// Attachment is a document linked from an agenda item.
type Attachment struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256,omitempty"`
}

// AgendaItem is one line item of a published agenda.
type AgendaItem struct {
	ItemID          string       `json:"item_id"`
	SourceID        string       `json:"source_id"`
	Title           string       `json:"title"`
	MeetingDateTime string       `json:"meeting_datetime,omitempty"`
	SourceURL       string       `json:"source_url,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// ChangeEvent is a detected change handed to downstream notification.
// EventID is stable for the same change so consumers can deduplicate.
type ChangeEvent struct {
	EventID         string         `json:"event_id"`
	ChangeType      ChangeType     `json:"change_type"`
	ItemID          string         `json:"item_id"`
	SourceID        string         `json:"source_id"`
	Title           string         `json:"title"`
	MeetingDateTime string         `json:"meeting_datetime,omitempty"`
	Attachment      *Attachment    `json:"attachment,omitempty"`
	SourceURL       string         `json:"source_url,omitempty"`
	Facts           *Facts         `json:"facts,omitempty"`
	Summary         *ChangeSummary `json:"summary,omitempty"`
	DetectedAt      time.Time      `json:"detected_at"`
}
