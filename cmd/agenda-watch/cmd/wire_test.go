package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mfenderov/agenda-watch/internal/config"
	"github.com/mfenderov/agenda-watch/internal/monitor"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

func testConfig() config.Config {
	c := config.Defaults()
	c.Sources = []models.Source{
		{ID: "council", LandingURL: "https://example.gov/council"},
		{ID: "planning", LandingURL: "https://example.gov/planning", Mode: models.ModeMeetingList},
	}
	return c
}

func TestSelectSources(t *testing.T) {
	c := testConfig()

	all, err := selectSources(c, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("selectSources(all) = %d, %v", len(all), err)
	}

	one, err := selectSources(c, "planning")
	if err != nil || len(one) != 1 || one[0].ID != "planning" {
		t.Fatalf("selectSources(planning) = %+v, %v", one, err)
	}

	if _, err := selectSources(c, "missing"); err == nil {
		t.Error("expected error for unknown source")
	}

	if _, err := selectSources(config.Defaults(), ""); !errors.Is(err, config.ErrNoSources) {
		t.Errorf("expected ErrNoSources, got %v", err)
	}
}

func TestSourceFromFlags(t *testing.T) {
	saved := cfg
	cfg = testConfig()
	t.Cleanup(func() { cfg = saved })

	tests := []struct {
		name    string
		id      string
		url     string
		wantID  string
		wantErr bool
	}{
		{name: "configured source", id: "council", wantID: "council"},
		{name: "ad hoc url", url: "https://example.org/meetings", wantID: "adhoc"},
		{name: "unknown source", id: "nope", wantErr: true},
		{name: "both flags", id: "council", url: "https://example.org", wantErr: true},
		{name: "neither flag", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := sourceFromFlags(tt.id, tt.url, "api-first")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got source %+v", src)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", src.ID, tt.wantID)
			}
			if tt.url != "" && src.Mode != models.ModeAPIFirst {
				t.Errorf("Mode = %q, want api-first", src.Mode)
			}
		})
	}
}

func TestPrintCycle(t *testing.T) {
	cycle := &monitor.CycleReport{
		Checked:   2,
		Succeeded: 1,
		Failed:    1,
		Changed:   1,
		Reports: []monitor.SourceReport{
			{
				SourceID:  "council",
				Discovery: &models.DiscoveryResult{Status: models.StatusSuccessAgenda, FinalURL: "https://example.gov/agenda.pdf"},
				Summary:   &models.ChangeSummary{Changed: true, PercentChanged: 12.5, AddedLines: []string{"3. New item"}},
				Events:    []models.ChangeEvent{{ChangeType: models.ChangeNewItem, Title: "3. New item"}},
			},
			{
				SourceID:  "planning",
				Discovery: &models.DiscoveryResult{Status: models.StatusFailFetch},
				Error:     "http 404",
			},
		},
	}

	var buf bytes.Buffer
	printCycle(&buf, cycle)
	out := buf.String()

	for _, want := range []string{
		"changed (12.5%, +1/-0 lines)",
		"agenda: https://example.gov/agenda.pdf",
		"new_item",
		"error: http 404",
		"Checked 2 sources: 1 ok, 1 failed, 1 changed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
