// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes pipeline tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/arnvik/raido/internal/ledger"
	"github.com/arnvik/raido/internal/models"
	"github.com/arnvik/raido/internal/notestore"
	"github.com/arnvik/raido/internal/trigger"
)

// Server wraps the MCP server with pipeline tools.
type Server struct {
	mcp       *server.MCPServer
	runner    *trigger.Server
	db        *ledger.DB
	notes     notestore.Store
	noteTitle string
}

// New creates a new MCP server with all pipeline tools registered.
func New(runner *trigger.Server, db *ledger.DB, notes notestore.Store, noteTitle string) *Server {
	s := &Server{runner: runner, db: db, notes: notes, noteTitle: noteTitle}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("trigger_run",
		mcp.WithDescription("Start a full pipeline run: sync the note, download new URLs, "+
			"reconcile results. Fails if a run is already in progress."),
	), s.triggerRun)

	s.mcp.AddTool(mcp.NewTool("run_status",
		mcp.WithDescription("Report whether a run is in progress and the outcome of the last run."),
	), s.runStatus)

	s.mcp.AddTool(mcp.NewTool("list_batches",
		mcp.WithDescription("List committed URL batches, newest last."),
		mcp.WithString("kind", mcp.Description("Optional filter: mp3 or mp4 (empty for all)")),
	), s.listBatches)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the current body of the watched note."),
	), s.readNote)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) triggerRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.runner.StartRun(context.WithoutCancel(ctx))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("run started: %s", id)), nil
}

func (s *Server) runStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	running, runID, last := s.runner.Status()
	status := map[string]any{"running": running}
	if running {
		status["run_id"] = runID
	}
	if last != nil {
		status["last_run"] = last
	}
	out, _ := json.MarshalIndent(status, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listBatches(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var kind models.Kind
	if k, err := req.RequireString("kind"); err == nil && k != "" {
		switch k {
		case "mp3", "audio":
			kind = models.KindAudio
		case "mp4", "video":
			kind = models.KindVideo
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown kind: %s", k)), nil
		}
	}
	batches, err := s.db.Batches(kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(batches) == 0 {
		return mcp.NewToolResultText("no batches recorded"), nil
	}
	out, _ := json.MarshalIndent(batches, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := s.notes.Read(ctx, s.noteTitle)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(body), nil
}
