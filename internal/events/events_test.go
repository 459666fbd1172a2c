package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/agenda-watch/internal/storage"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

var now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func TestEventID(t *testing.T) {
	a := EventID(models.ChangeNewItem, "board:1", "Budget hearing", "")
	b := EventID(models.ChangeNewItem, "board:1", "Budget hearing", "")
	if a != b {
		t.Errorf("same inputs gave %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("len = %d, want 16", len(a))
	}

	others := []string{
		EventID(models.ChangeRemovedItem, "board:1", "Budget hearing", ""),
		EventID(models.ChangeNewItem, "board:2", "Budget hearing", ""),
		EventID(models.ChangeNewItem, "board:1", "Budget workshop", ""),
		EventID(models.ChangeNewItem, "board:1", "Budget hearing", "https://example.gov/a.pdf"),
	}
	for i, o := range others {
		if o == a {
			t.Errorf("variant %d collides with base id", i)
		}
	}
}

func TestDiffItems(t *testing.T) {
	item := func(id, title, when string, attachments ...models.Attachment) models.AgendaItem {
		return models.AgendaItem{ItemID: id, SourceID: "board", Title: title, MeetingDateTime: when, Attachments: attachments}
	}

	last := []models.AgendaItem{
		item("a", "Approve minutes", "Jan 14 6:00 PM"),
		item("b", "Budget hearing", "Jan 14 6:00 PM", models.Attachment{URL: "https://x/budget.pdf", SHA256: "old"}),
		item("c", "Staff report", "Jan 14 6:00 PM"),
	}
	current := []models.AgendaItem{
		item("a", "Approve minutes", "Jan 14 6:00 PM"),
		item("b", "Budget hearing", "Jan 14 7:00 PM",
			models.Attachment{URL: "https://x/budget.pdf", SHA256: "new"},
			models.Attachment{URL: "https://x/exhibit.pdf"}),
		item("d", "Public comment", "Jan 14 6:00 PM"),
	}

	got := DiffItems(last, current, now)

	want := []struct {
		item string
		typ  models.ChangeType
	}{
		{"b", models.ChangeAttachmentAdded},
		{"b", models.ChangeAttachmentChanged},
		{"b", models.ChangeMeetingTimeChanged},
		{"c", models.ChangeRemovedItem},
		{"d", models.ChangeNewItem},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].ItemID != w.item || got[i].ChangeType != w.typ {
			t.Errorf("event %d = %s/%s, want %s/%s", i, got[i].ItemID, got[i].ChangeType, w.item, w.typ)
		}
		if got[i].EventID == "" || !got[i].DetectedAt.Equal(now) {
			t.Errorf("event %d missing id or timestamp: %+v", i, got[i])
		}
	}
	if got[0].Attachment == nil || got[0].Attachment.URL != "https://x/exhibit.pdf" {
		t.Errorf("attachment_added should carry the new attachment: %+v", got[0].Attachment)
	}
}

func TestDiffItems_FirstRunReportsEverythingNew(t *testing.T) {
	current := []models.AgendaItem{{ItemID: "a", Title: "One"}, {ItemID: "b", Title: "Two"}}
	got := DiffItems(nil, current, now)
	if len(got) != 2 || got[0].ChangeType != models.ChangeNewItem {
		t.Errorf("got %+v", got)
	}
}

func TestItemsFromDocument(t *testing.T) {
	res := &models.DiscoveryResult{
		FinalURL: "https://example.gov/agenda.pdf",
		Document: &models.ParsedDocument{Facts: &models.Facts{
			MeetingDate: "January 14, 2025",
			MeetingTime: "6:00 PM",
			Items:       []string{"Call to Order", "Budget Hearing", "budget hearing!", "--"},
		}},
	}

	items := ItemsFromDocument("board", res)

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (duplicates and empty slugs dropped): %+v", len(items), items)
	}
	if items[0].MeetingDateTime != "January 14, 2025 6:00 PM" {
		t.Errorf("MeetingDateTime = %q", items[0].MeetingDateTime)
	}
	again := ItemsFromDocument("board", res)
	if items[1].ItemID != again[1].ItemID {
		t.Error("item ids should be stable")
	}
	if ItemsFromDocument("board", &models.DiscoveryResult{}) != nil {
		t.Error("no document should give no items")
	}
}

func TestItemsFromDocument_AttachmentEvents(t *testing.T) {
	packet := func(url, sha string, items ...string) *models.DiscoveryResult {
		return &models.DiscoveryResult{
			FinalURL: url,
			Fetch:    &models.FetchResult{URL: url, SHA256: sha},
			Document: &models.ParsedDocument{Facts: &models.Facts{MeetingDate: "January 14, 2025", Items: items}},
		}
	}
	const url = "https://example.gov/docs/2025-01-14-agenda.pdf"
	v1 := ItemsFromDocument("board", packet(url, "aaa", "Call to Order", "Budget Hearing"))
	if len(v1) != 2 || len(v1[0].Attachments) != 1 || v1[0].Attachments[0] != (models.Attachment{URL: url, SHA256: "aaa"}) {
		t.Fatalf("items should carry the agenda packet: %+v", v1)
	}

	tests := []struct {
		name string
		next *models.DiscoveryResult
		want map[models.ChangeType]int
	}{
		{
			name: "packet revised in place",
			next: packet(url, "bbb", "Call to Order", "Budget Hearing", "Transit Shelters"),
			want: map[models.ChangeType]int{models.ChangeAttachmentChanged: 2, models.ChangeNewItem: 1},
		},
		{
			name: "packet reposted at a new url",
			next: packet("https://example.gov/docs/2025-01-14-agenda-rev1.pdf", "ccc", "Call to Order", "Budget Hearing"),
			want: map[models.ChangeType]int{models.ChangeAttachmentAdded: 2},
		},
		{
			name: "same packet",
			next: packet(url, "aaa", "Call to Order", "Budget Hearing"),
			want: map[models.ChangeType]int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[models.ChangeType]int{}
			for _, ev := range DiffItems(v1, ItemsFromDocument("board", tt.next), now) {
				got[ev.ChangeType]++
				if ev.ChangeType == models.ChangeAttachmentAdded || ev.ChangeType == models.ChangeAttachmentChanged {
					if ev.Attachment == nil || ev.Attachment.URL != tt.next.FinalURL || ev.Attachment.SHA256 != tt.next.Fetch.SHA256 {
						t.Errorf("%s carries %+v", ev.ChangeType, ev.Attachment)
					}
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("events = %v, want %v", got, tt.want)
			}
			for typ, n := range tt.want {
				if got[typ] != n {
					t.Errorf("%s = %d, want %d", typ, got[typ], n)
				}
			}
		})
	}
}

func TestAgendaChanged(t *testing.T) {
	src := models.Source{ID: "board", Name: "Board of Supervisors"}
	res := &models.DiscoveryResult{
		FinalURL: "https://example.gov/agenda.pdf",
		Fetch:    &models.FetchResult{SHA256: "abc"},
		Document: &models.ParsedDocument{Facts: &models.Facts{MeetingDate: "January 14, 2025"}},
	}
	summary := &models.ChangeSummary{Changed: true, NewFingerprint: "f1"}

	ev := AgendaChanged(src, res, summary, now)

	if ev.ChangeType != models.ChangeAgendaChanged || ev.Title != "Board of Supervisors" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Attachment == nil || ev.Attachment.SHA256 != "abc" {
		t.Errorf("attachment = %+v", ev.Attachment)
	}
	if ev.MeetingDateTime != "January 14, 2025" {
		t.Errorf("MeetingDateTime = %q", ev.MeetingDateTime)
	}

	next := AgendaChanged(src, res, &models.ChangeSummary{Changed: true, NewFingerprint: "f2"}, now)
	if next.EventID == ev.EventID {
		t.Error("a new fingerprint should give a new event id")
	}
}

type recorder struct {
	mu     sync.Mutex
	events []models.ChangeEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, events []models.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, events...)
	return nil
}

func TestDedupe(t *testing.T) {
	rec := &recorder{}
	d := NewDedupe(rec)
	evs := []models.ChangeEvent{{EventID: "1"}, {EventID: "2"}}

	if err := d.Publish(t.Context(), evs); err != nil {
		t.Fatal(err)
	}
	if err := d.Publish(t.Context(), append(evs, models.ChangeEvent{EventID: "3"})); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 3 {
		t.Errorf("delivered %d events, want 3", len(rec.events))
	}

	failing := &recorder{err: errors.New("down")}
	d = NewDedupe(failing)
	if err := d.Publish(t.Context(), evs); err == nil {
		t.Fatal("expected error")
	}
	failing.err = nil
	if err := d.Publish(t.Context(), evs); err != nil {
		t.Fatal(err)
	}
	if len(failing.events) != 2 {
		t.Errorf("events that failed delivery should be retried, got %d", len(failing.events))
	}
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("b down")}
	err := Multi(a, b, LogSink{}).Publish(t.Context(), []models.ChangeEvent{{EventID: "1"}})
	if err == nil {
		t.Error("expected joined error")
	}
	if len(a.events) != 1 {
		t.Error("healthy sink should still receive events")
	}
}

func TestDispatcher(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 1)
	for i := 0; i < 5; i++ {
		if err := d.Publish(t.Context(), []models.ChangeEvent{{EventID: string(rune('a' + i))}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Publish(t.Context(), nil); err != nil {
		t.Fatal(err)
	}

	delivered, failed := d.Close()

	if delivered != 5 || failed != 0 {
		t.Errorf("delivered=%d failed=%d, want 5/0", delivered, failed)
	}
	for i, ev := range rec.events {
		if ev.EventID != string(rune('a'+i)) {
			t.Errorf("event %d out of order: %s", i, ev.EventID)
		}
	}
}

func TestItemStore(t *testing.T) {
	blobs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := NewItemStore(blobs)

	items, err := s.Load(t.Context(), "board/1")
	if err != nil || items != nil {
		t.Fatalf("empty store: items=%v err=%v", items, err)
	}

	want := []models.AgendaItem{{ItemID: "x", Title: "Budget"}}
	if err := s.Save(t.Context(), "board/1", want); err != nil {
		t.Fatal(err)
	}
	items, err = s.Load(t.Context(), "board/1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Budget" {
		t.Errorf("items = %+v", items)
	}
}
