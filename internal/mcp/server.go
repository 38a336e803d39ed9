// Package mcp serves the analysis operations as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rohankatakam/sentryai/internal/models"
	"github.com/rohankatakam/sentryai/internal/orchestrator"
	"github.com/rohankatakam/sentryai/internal/storage"
	"github.com/rohankatakam/sentryai/internal/workspace"
)

// Server registers the tools on an MCP server
type Server struct {
	orch       *orchestrator.Orchestrator
	workspaces *workspace.Resolver
	server     *sdk.Server
	logger     *slog.Logger
}

// NewServer creates the MCP server and registers analyze_issue, get_analysis
// and list_analyses
func NewServer(orch *orchestrator.Orchestrator, workspaces *workspace.Resolver, version string) *Server {
	s := &Server{
		orch:       orch,
		workspaces: workspaces,
		server:     sdk.NewServer(&sdk.Implementation{Name: "sentryai", Version: version}, nil),
		logger:     slog.Default().With("component", "mcp"),
	}

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "analyze_issue",
		Description: "Fetch a Sentry issue and produce an AI analysis: root cause, reproduction steps, suggested fix and priority. Returns the in-flight analysis if one is already running for the issue.",
	}, s.analyzeIssue)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_analysis",
		Description: "Get an analysis record by id, including its status and failure reason.",
	}, s.getAnalysis)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "list_analyses",
		Description: "List a workspace's analyses, newest first.",
	}, s.listAnalyses)

	return s
}

// Run serves on stdin/stdout until ctx is done or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server started on stdio")
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves a single session on t; used to embed the server
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

type AnalyzeIssueInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"workspace that owns the analysis"`
	IssueID     string `json:"issue_id" jsonschema:"Sentry issue id"`
	Async       bool   `json:"async,omitempty" jsonschema:"return as soon as the analysis is processing instead of waiting for the result"`
}

type GetAnalysisInput struct {
	AnalysisID string `json:"analysis_id" jsonschema:"analysis record id"`
}

type ListAnalysesInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"workspace to list"`
	Status      string `json:"status,omitempty" jsonschema:"only records in this status: pending, processing, completed or failed"`
	Limit       int    `json:"limit,omitempty" jsonschema:"page size, at most 100"`
	Offset      int    `json:"offset,omitempty" jsonschema:"records to skip"`
}

func (s *Server) analyzeIssue(ctx context.Context, _ *sdk.CallToolRequest, in AnalyzeIssueInput) (*sdk.CallToolResult, any, error) {
	creds, err := s.workspaces.Credentials(ctx, in.WorkspaceID)
	if err != nil {
		return nil, nil, err
	}

	req := orchestrator.StartRequest{WorkspaceID: in.WorkspaceID, IssueID: in.IssueID, Credentials: creds}
	start := s.orch.StartAnalysis
	if in.Async {
		start = s.orch.StartAnalysisAsync
	}

	res, err := start(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res.Record)
}

func (s *Server) getAnalysis(ctx context.Context, _ *sdk.CallToolRequest, in GetAnalysisInput) (*sdk.CallToolResult, any, error) {
	rec, err := s.orch.GetAnalysis(ctx, in.AnalysisID)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(rec)
}

func (s *Server) listAnalyses(ctx context.Context, _ *sdk.CallToolRequest, in ListAnalysesInput) (*sdk.CallToolResult, any, error) {
	recs, err := s.orch.ListAnalyses(ctx, in.WorkspaceID, storage.ListOptions{
		Status: models.Status(in.Status),
		Limit:  in.Limit,
		Offset: in.Offset,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(map[string]any{"analyses": recs})
}

func jsonResult(v any) (*sdk.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(b)}},
	}, nil, nil
}
