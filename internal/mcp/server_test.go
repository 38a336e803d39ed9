package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/sentryai/internal/config"
	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
	"github.com/rohankatakam/sentryai/internal/orchestrator"
	"github.com/rohankatakam/sentryai/internal/storage"
	"github.com/rohankatakam/sentryai/internal/workspace"
)

type stubSource struct{}

func (stubSource) FetchIssue(_ context.Context, _ models.WorkspaceCredentials, issueID string) (*models.IssueRecord, error) {
	if issueID == "missing" {
		return nil, errors.NotFoundErrorf("issue %s not found", issueID)
	}
	return &models.IssueRecord{ID: issueID, Title: "boom", Level: models.LevelError}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, string, models.WorkspaceCredentials, *models.IssueRecord) (*models.AIAnalysis, error) {
	return &models.AIAnalysis{Summary: "s", Priority: models.PriorityLow, Tags: []string{}}, nil
}

func connect(t *testing.T) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	retryCfg := config.Default().Retry
	orch := orchestrator.New(store, stubSource{}, stubAnalyzer{},
		orchestrator.WithFetchPolicy(orchestrator.FetchPolicy(retryCfg).WithoutSleep()))
	defaults := models.WorkspaceCredentials{SentryToken: "tok", SentryOrganization: "acme", OpenAIKey: "sk"}
	srv := NewServer(orch, workspace.NewResolver(store, defaults), "test")

	serverT, clientT := sdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *sdk.ClientSession, name string, args map[string]any) (*sdk.CallToolResult, string) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok)
	return res, text.Text
}

func TestListTools(t *testing.T) {
	cs := connect(t)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"analyze_issue", "get_analysis", "list_analyses"}, names)
}

func TestAnalyzeThenGet(t *testing.T) {
	cs := connect(t)

	res, text := call(t, cs, "analyze_issue", map[string]any{"workspace_id": "ws-1", "issue_id": "ISSUE-1"})
	assert.False(t, res.IsError)

	var rec models.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(text), &rec))
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, models.PriorityLow, rec.Analysis.Priority)

	res, text = call(t, cs, "get_analysis", map[string]any{"analysis_id": rec.ID})
	assert.False(t, res.IsError)
	var got models.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, rec.ID, got.ID)
}

func TestAnalyzeFailureIsARecordNotAnError(t *testing.T) {
	cs := connect(t)

	res, text := call(t, cs, "analyze_issue", map[string]any{"workspace_id": "ws-1", "issue_id": "missing"})
	assert.False(t, res.IsError)

	var rec models.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(text), &rec))
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, "not_found", rec.FailureReason)
}

func TestGetAnalysis_UnknownIDIsToolError(t *testing.T) {
	cs := connect(t)

	res, text := call(t, cs, "get_analysis", map[string]any{"analysis_id": "nope"})
	assert.True(t, res.IsError)
	assert.Contains(t, text, "not found")
}

func TestListAnalyses(t *testing.T) {
	cs := connect(t)
	call(t, cs, "analyze_issue", map[string]any{"workspace_id": "ws-1", "issue_id": "ISSUE-1"})
	call(t, cs, "analyze_issue", map[string]any{"workspace_id": "ws-1", "issue_id": "missing"})

	res, text := call(t, cs, "list_analyses", map[string]any{"workspace_id": "ws-1", "status": "failed"})
	assert.False(t, res.IsError)

	var out struct {
		Analyses []models.AnalysisRecord `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Len(t, out.Analyses, 1)
	assert.Equal(t, "missing", out.Analyses[0].IssueID)
}
