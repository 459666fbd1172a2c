package classifier

import (
	"strings"
	"testing"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

func TestClassify(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		text string
		want models.DocType
	}{
		{
			name: "agenda phrase wins over calendar phrasing",
			text: "Meeting Calendar\nCall to Order\nRoll Call",
			want: models.DocTypeAgenda,
		},
		{
			name: "five numbered items",
			text: "Regular Meeting\n1. Opening remarks\n2. Budget review\n3. Transit update\n4. Staff reports\n5. Closing remarks",
			want: models.DocTypeAgenda,
		},
		{
			name: "lettered and roman markers",
			text: "A. Opening remarks\nB. Budget review\nC. Transit update\nII. Staff reports\nIII. Closing remarks",
			want: models.DocTypeAgenda,
		},
		{
			name: "four items is not enough",
			text: "Regular Meeting\n1. Opening remarks\n2. Budget review\n3. Transit update\n4. Staff reports",
			want: models.DocTypeUnknown,
		},
		{
			name: "no agenda yet",
			text: "Board of Supervisors\nThe agenda will be posted 72 hours before the meeting.",
			want: models.DocTypeNoAgendaYet,
		},
		{
			name: "calendar",
			text: "2025 Meeting Calendar\nJanuary 14, 2025\nFebruary 11, 2025\nMarch 11, 2025",
			want: models.DocTypeCalendar,
		},
		{
			name: "minutes",
			text: "Minutes of the Regular Meeting held January 5, 2025\nPresent: Smith, Jones",
			want: models.DocTypeMinutes,
		},
		{
			name: "index phrasing",
			text: "Browse recordings and documents for every committee",
			want: models.DocTypeIndex,
		},
		{
			name: "link dense short page",
			text: "https://a.gov/1\nhttps://a.gov/2\nhttps://a.gov/3\nhttps://a.gov/4\nhttps://a.gov/5\nhttps://a.gov/6",
			want: models.DocTypeIndex,
		},
		{
			name: "unknown",
			text: "Welcome to the department of transportation website.",
			want: models.DocTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text); got != tt.want {
				t.Errorf("Classify() = %q, want %q (decision %+v)", got, tt.want, c.Explain(tt.text))
			}
		})
	}
}

func TestClassify_ScanLimit(t *testing.T) {
	c := New()
	text := strings.Repeat("lorem ipsum text line\n", 400) + "Call to Order"

	if got := c.Classify(text); got != models.DocTypeUnknown {
		t.Errorf("phrase beyond scan limit should be ignored, got %q", got)
	}
}

func TestStripNavigation(t *testing.T) {
	c := New()
	input := "Home\nMenu\nContact Us Today\nab\nBudget workshop notes\n  Skip to main content  "

	got := c.StripNavigation(input)

	if got != "Budget workshop notes" {
		t.Errorf("StripNavigation() = %q, want %q", got, "Budget workshop notes")
	}
}

func TestStripNavigation_KeepsLongLinesWithNavTerms(t *testing.T) {
	c := New()
	line := "Residents may share comments with the commission in writing"

	if got := c.StripNavigation(line); got != line {
		t.Errorf("StripNavigation() = %q, want line kept", got)
	}
}

func TestCountItemMarkers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"mixed markers", "1. A item\n2) B item\nA. C item\nIV. D item\n1. dup item", 4},
		{"escaped markdown", "1\\. First\n2\\. Second", 2},
		{"mid-line numbers ignored", "We met at 5. Then left.", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountItemMarkers(tt.text); got != tt.want {
				t.Errorf("CountItemMarkers() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewWithRules_CustomPhrases(t *testing.T) {
	rules := DefaultRules()
	rules.AgendaPhrases = []string{"orden del día"}
	c := NewWithRules(rules)

	if got := c.Classify("Orden del Día\nSesión ordinaria"); got != models.DocTypeAgenda {
		t.Errorf("Classify() = %q, want agenda", got)
	}
}
