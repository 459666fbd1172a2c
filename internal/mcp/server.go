// Package mcp exposes agenda checks and the change-event history as MCP
// tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfenderov/agenda-watch/internal/elasticsearch"
	"github.com/mfenderov/agenda-watch/internal/monitor"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// EventSearcher queries stored change events.
type EventSearcher interface {
	Search(ctx context.Context, query string, filter elasticsearch.Filter, limit int) ([]models.ChangeEvent, error)
	GetEvent(ctx context.Context, id string) (*models.ChangeEvent, error)
}

// Checker runs an on-demand check of one source.
type Checker interface {
	CheckSource(ctx context.Context, src models.Source) monitor.SourceReport
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Sources []models.Source
}

// Server wraps the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	sources   []models.Source
	searcher  EventSearcher
	checker   Checker
}

// NewServer registers the source tools and, when searcher is non-nil, the
// change history tools.
func NewServer(config Config, searcher EventSearcher, checker Checker) *Server {
	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		sources:   config.Sources,
		searcher:  searcher,
		checker:   checker,
	}

	mcpServer.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the monitored agenda sources with their landing pages."),
	), s.listSourcesHandler)

	mcpServer.AddTool(mcp.NewTool("check_source",
		mcp.WithDescription("Discover the current agenda of a source now and compare it with the last known version."),
		mcp.WithString("source_id",
			mcp.Required(),
			mcp.Description("ID of the source to check"),
		),
	), s.checkSourceHandler)

	if searcher != nil {
		mcpServer.AddTool(mcp.NewTool("search_changes",
			mcp.WithDescription("Search detected agenda changes. An empty query lists the most recent changes."),
			mcp.WithString("query", mcp.Description("Full-text query over titles, agenda items and changed lines")),
			mcp.WithString("source_id", mcp.Description("Only changes of this source")),
			mcp.WithString("change_type", mcp.Description("Only this change type, e.g. new_item or agenda_changed")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results to return (default: 10)")),
		), s.searchChangesHandler)

		mcpServer.AddTool(mcp.NewTool("get_change",
			mcp.WithDescription("Get a detected change by event ID"),
			mcp.WithString("event_id",
				mcp.Required(),
				mcp.Description("Event ID to retrieve"),
			),
		), s.getChangeHandler)
	}

	return s
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listSourcesHandler(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sources)
}

func (s *Server) checkSourceHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError("source_id parameter is required"), nil
	}

	for _, src := range s.sources {
		if src.ID == id {
			return jsonResult(s.checker.CheckSource(ctx, src))
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("unknown source: %s", id)), nil
}

func (s *Server) searchChangesHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := elasticsearch.Filter{
		SourceID:   req.GetString("source_id", ""),
		ChangeType: models.ChangeType(req.GetString("change_type", "")),
	}
	results, err := s.searcher.Search(ctx, req.GetString("query", ""), filter, req.GetInt("limit", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(results)
}

func (s *Server) getChangeHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("event_id")
	if err != nil {
		return mcp.NewToolResultError("event_id parameter is required"), nil
	}

	ev, err := s.searcher.GetEvent(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get change failed: %v", err)), nil
	}
	if ev == nil {
		return mcp.NewToolResultError(fmt.Sprintf("change not found: %s", id)), nil
	}
	return jsonResult(ev)
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
