// Package events turns detected agenda changes into deduplicable change
// events and delivers them to sinks.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

// EventID derives the stable identifier of a change:
// sha256("type:item:title[:attachment]")[:16].
func EventID(changeType models.ChangeType, itemID, title, attachmentURL string) string {
	content := fmt.Sprintf("%s:%s:%s", changeType, itemID, title)
	if attachmentURL != "" {
		content += ":" + attachmentURL
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// New builds an item-level event with its EventID filled in.
func New(changeType models.ChangeType, item models.AgendaItem, attachment *models.Attachment, now time.Time) models.ChangeEvent {
	var attachURL string
	if attachment != nil {
		attachURL = attachment.URL
	}
	return models.ChangeEvent{
		EventID:         EventID(changeType, item.ItemID, item.Title, attachURL),
		ChangeType:      changeType,
		ItemID:          item.ItemID,
		SourceID:        item.SourceID,
		Title:           item.Title,
		MeetingDateTime: item.MeetingDateTime,
		Attachment:      attachment,
		SourceURL:       item.SourceURL,
		DetectedAt:      now,
	}
}

// AgendaChanged builds the document-level event for a changed agenda. The
// item ID is the source ID and the attachment is the agenda document itself,
// so a new version of the same document yields a new EventID.
func AgendaChanged(src models.Source, res *models.DiscoveryResult, summary *models.ChangeSummary, now time.Time) models.ChangeEvent {
	title := src.DisplayName()
	var facts *models.Facts
	if res.Document != nil {
		if res.Document.Title != "" {
			title = res.Document.Title
		}
		facts = res.Document.Facts
	}
	attachment := &models.Attachment{URL: res.FinalURL}
	if res.Fetch != nil {
		attachment.SHA256 = res.Fetch.SHA256
	}

	ev := models.ChangeEvent{
		EventID:    EventID(models.ChangeAgendaChanged, src.ID, title, res.FinalURL+"#"+summary.NewFingerprint),
		ChangeType: models.ChangeAgendaChanged,
		ItemID:     src.ID,
		SourceID:   src.ID,
		Title:      title,
		Attachment: attachment,
		SourceURL:  res.FinalURL,
		Facts:      facts,
		Summary:    summary,
		DetectedAt: now,
	}
	if facts != nil {
		ev.MeetingDateTime = strings.TrimSpace(facts.MeetingDate + " " + facts.MeetingTime)
	}
	return ev
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// ItemsFromDocument lists the agenda items of a discovered document. Item IDs
// are derived from the item title so the same item keeps its ID across
// versions of the agenda. Each item carries the agenda document it was
// published in as its attachment, so a packet posted at a new URL or revised
// in place surfaces as an attachment event on the items it contains.
func ItemsFromDocument(sourceID string, res *models.DiscoveryResult) []models.AgendaItem {
	if res == nil || res.Document == nil || res.Document.Facts == nil {
		return nil
	}
	facts := res.Document.Facts
	when := strings.TrimSpace(facts.MeetingDate + " " + facts.MeetingTime)

	var attachments []models.Attachment
	if res.FinalURL != "" {
		packet := models.Attachment{URL: res.FinalURL}
		if res.Fetch != nil {
			packet.SHA256 = res.Fetch.SHA256
		}
		attachments = []models.Attachment{packet}
	}

	items := make([]models.AgendaItem, 0, len(facts.Items))
	seen := make(map[string]bool)
	for _, title := range facts.Items {
		slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
		if slug == "" {
			continue
		}
		id := sourceID + ":" + models.GenerateDocumentID(slug)
		if seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, models.AgendaItem{
			ItemID:          id,
			SourceID:        sourceID,
			Title:           title,
			MeetingDateTime: when,
			SourceURL:       res.FinalURL,
			Attachments:     attachments,
		})
	}
	return items
}

// DiffItems compares the previous and current item sets. Events are ordered
// by item ID then change type.
func DiffItems(last, current []models.AgendaItem, now time.Time) []models.ChangeEvent {
	lastByID := make(map[string]models.AgendaItem, len(last))
	for _, it := range last {
		lastByID[it.ItemID] = it
	}
	currentByID := make(map[string]models.AgendaItem, len(current))
	for _, it := range current {
		currentByID[it.ItemID] = it
	}

	var out []models.ChangeEvent
	for id, item := range currentByID {
		old, ok := lastByID[id]
		if !ok {
			out = append(out, New(models.ChangeNewItem, item, nil, now))
			continue
		}
		out = append(out, itemChanges(old, item, now)...)
	}
	for id, item := range lastByID {
		if _, ok := currentByID[id]; !ok {
			out = append(out, New(models.ChangeRemovedItem, item, nil, now))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].ChangeType < out[j].ChangeType
	})
	return out
}

func itemChanges(old, item models.AgendaItem, now time.Time) []models.ChangeEvent {
	var out []models.ChangeEvent
	if item.MeetingDateTime != "" && item.MeetingDateTime != old.MeetingDateTime {
		out = append(out, New(models.ChangeMeetingTimeChanged, item, nil, now))
	}

	oldAttachments := make(map[string]models.Attachment, len(old.Attachments))
	for _, a := range old.Attachments {
		oldAttachments[a.URL] = a
	}
	for i := range item.Attachments {
		a := item.Attachments[i]
		prev, ok := oldAttachments[a.URL]
		switch {
		case !ok:
			out = append(out, New(models.ChangeAttachmentAdded, item, &a, now))
		case prev.SHA256 != a.SHA256:
			out = append(out, New(models.ChangeAttachmentChanged, item, &a, now))
		}
	}
	return out
}
