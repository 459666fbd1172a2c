package probe

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

func newSite(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	pages := map[string]string{
		"/": `<html><body>
			<a href="/meetings">Board Meetings</a>
			<a href="/about">About</a>
			<a href="https://other.example/elsewhere">Elsewhere</a>
		</body></html>`,
		"/meetings": `<html><body>
			<a href="/docs/2025-01-14-agenda.pdf">Agenda Packet</a>
			<a href="/docs/calendar.pdf">Calendar</a>
		</body></html>`,
		"/about": `<html><body><p>About the board.</p></body></html>`,
	}
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, ".pdf") {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4\n"))
			return
		}
		content, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(content))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestProber_Survey(t *testing.T) {
	server, _ := newSite(t)
	p := New(Config{Delay: 0, MaxDepth: 2, UserAgent: "test-agent"})

	report, err := p.Survey(t.Context(), models.Source{ID: "board", LandingURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("Survey() error = %v", err)
	}

	if len(report.Pages) != 5 {
		t.Errorf("visited %d pages, want 5: %+v", len(report.Pages), report.Pages)
	}
	if report.Pages[0].Depth != 0 {
		t.Errorf("pages should be ordered by depth, first = %+v", report.Pages[0])
	}
	for _, page := range report.Pages {
		if strings.Contains(page.URL, "other.example") {
			t.Errorf("crawl left the landing host: %s", page.URL)
		}
	}
	if len(report.Candidates) == 0 || report.Candidates[0].URL != server.URL+"/docs/2025-01-14-agenda.pdf" {
		t.Errorf("top candidate = %+v", report.Candidates)
	}
	if len(report.Documents) != 2 {
		t.Errorf("documents = %v, want both PDFs", report.Documents)
	}
	if report.Truncated {
		t.Error("survey should not be truncated")
	}
}

func TestProber_RespectsLimits(t *testing.T) {
	tests := []struct {
		name          string
		config        Config
		wantMaxHits   int32
		wantTruncated bool
	}{
		{name: "landing page only", config: Config{MaxDepth: 1, MaxPages: 1}, wantMaxHits: 1, wantTruncated: true},
		{name: "one level", config: Config{MaxDepth: 1}, wantMaxHits: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, hits := newSite(t)
			report, err := New(tt.config).Survey(t.Context(), models.Source{ID: "board", LandingURL: server.URL + "/"})
			if err != nil {
				t.Fatalf("Survey() error = %v", err)
			}
			if got := hits.Load(); got > tt.wantMaxHits {
				t.Errorf("server hits = %d, want at most %d", got, tt.wantMaxHits)
			}
			if report.Truncated != tt.wantTruncated {
				t.Errorf("Truncated = %v, want %v", report.Truncated, tt.wantTruncated)
			}
		})
	}
}

func TestProber_InvalidLanding(t *testing.T) {
	if _, err := New(Config{}).Survey(t.Context(), models.Source{ID: "x", LandingURL: "not a url"}); err == nil {
		t.Error("expected error for invalid landing url")
	}
}
