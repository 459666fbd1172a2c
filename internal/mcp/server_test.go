package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mfenderov/agenda-watch/internal/elasticsearch"
	"github.com/mfenderov/agenda-watch/internal/monitor"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

type fakeSearcher struct {
	events     map[string]models.ChangeEvent
	lastQuery  string
	lastFilter elasticsearch.Filter
	lastLimit  int
	err        error
}

func (f *fakeSearcher) Search(_ context.Context, query string, filter elasticsearch.Filter, limit int) ([]models.ChangeEvent, error) {
	f.lastQuery, f.lastFilter, f.lastLimit = query, filter, limit
	if f.err != nil {
		return nil, f.err
	}
	var out []models.ChangeEvent
	for _, ev := range f.events {
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeSearcher) GetEvent(_ context.Context, id string) (*models.ChangeEvent, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

type fakeChecker struct{ checked []string }

func (f *fakeChecker) CheckSource(_ context.Context, src models.Source) monitor.SourceReport {
	f.checked = append(f.checked, src.ID)
	return monitor.SourceReport{
		SourceID:  src.ID,
		Discovery: &models.DiscoveryResult{Status: models.StatusSuccessAgenda},
		Summary:   &models.ChangeSummary{Changed: true},
	}
}

var testSources = []models.Source{
	{ID: "board", Name: "Board of Supervisors", LandingURL: "https://example.gov/board"},
	{ID: "council", LandingURL: "https://example.gov/council"},
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestServer_Creation(t *testing.T) {
	s := NewServer(Config{Name: "agenda-watch", Version: "1.0.0"}, nil, &fakeChecker{})
	if s == nil || s.mcpServer == nil {
		t.Fatal("NewServer() should build the MCP server")
	}
}

func TestServer_ListSources(t *testing.T) {
	s := NewServer(Config{Sources: testSources}, nil, &fakeChecker{})

	res, err := s.listSourcesHandler(t.Context(), call(nil))
	if err != nil {
		t.Fatal(err)
	}

	var got []models.Source
	if err := json.Unmarshal([]byte(text(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "board" {
		t.Errorf("sources = %+v", got)
	}
}

func TestServer_CheckSource(t *testing.T) {
	checker := &fakeChecker{}
	s := NewServer(Config{Sources: testSources}, nil, checker)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{name: "known source", args: map[string]any{"source_id": "council"}},
		{name: "unknown source", args: map[string]any{"source_id": "zoo"}, wantErr: true},
		{name: "missing id", args: map[string]any{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.checkSourceHandler(t.Context(), call(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if res.IsError != tt.wantErr {
				t.Errorf("IsError = %v, want %v: %s", res.IsError, tt.wantErr, text(t, res))
			}
		})
	}
	if len(checker.checked) != 1 || checker.checked[0] != "council" {
		t.Errorf("checked = %v", checker.checked)
	}
}

func TestServer_SearchChanges(t *testing.T) {
	searcher := &fakeSearcher{events: map[string]models.ChangeEvent{
		"e1": {EventID: "e1", ChangeType: models.ChangeNewItem, Title: "Zoning hearing"},
	}}
	s := NewServer(Config{}, searcher, &fakeChecker{})

	res, err := s.searchChangesHandler(t.Context(), call(map[string]any{
		"query":       "zoning",
		"source_id":   "board",
		"change_type": "new_item",
		"limit":       float64(3),
	}))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(text(t, res), `"event_id":"e1"`) {
		t.Errorf("result = %s", text(t, res))
	}
	if searcher.lastQuery != "zoning" || searcher.lastLimit != 3 {
		t.Errorf("query = %q limit = %d", searcher.lastQuery, searcher.lastLimit)
	}
	if searcher.lastFilter != (elasticsearch.Filter{SourceID: "board", ChangeType: models.ChangeNewItem}) {
		t.Errorf("filter = %+v", searcher.lastFilter)
	}

	searcher.err = errors.New("cluster down")
	res, _ = s.searchChangesHandler(t.Context(), call(nil))
	if !res.IsError {
		t.Error("search failure should be a tool error")
	}
}

func TestServer_GetChange(t *testing.T) {
	searcher := &fakeSearcher{events: map[string]models.ChangeEvent{"e1": {EventID: "e1", Title: "Budget"}}}
	s := NewServer(Config{}, searcher, &fakeChecker{})

	res, err := s.getChangeHandler(t.Context(), call(map[string]any{"event_id": "e1"}))
	if err != nil || res.IsError {
		t.Fatalf("getChange(e1) = %v, %v", res, err)
	}
	if !strings.Contains(text(t, res), "Budget") {
		t.Errorf("result = %s", text(t, res))
	}

	res, _ = s.getChangeHandler(t.Context(), call(map[string]any{"event_id": "nope"}))
	if !res.IsError {
		t.Error("missing event should be a tool error")
	}
}
