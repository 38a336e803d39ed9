// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
	"github.com/rohankatakam/sentryai/internal/orchestrator"
	"github.com/rohankatakam/sentryai/internal/storage"
	"github.com/rohankatakam/sentryai/internal/workspace"
)

// Pinger reports backend health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers
type Server struct {
	orch       *orchestrator.Orchestrator
	workspaces *workspace.Resolver
	health     Pinger
	logger     *slog.Logger
}

// NewServer wires the handlers to the orchestrator and workspace resolver
func NewServer(orch *orchestrator.Orchestrator, workspaces *workspace.Resolver, health Pinger) *Server {
	return &Server{
		orch:       orch,
		workspaces: workspaces,
		health:     health,
		logger:     slog.Default().With("component", "api"),
	}
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/workspaces/{workspace}/issues/{issue}/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/v1/workspaces/{workspace}/analyses", s.handleListAnalyses)
	mux.HandleFunc("GET /api/v1/workspaces/{workspace}", s.handleGetWorkspace)
	mux.HandleFunc("PUT /api/v1/workspaces/{workspace}", s.handlePutWorkspace)
	mux.HandleFunc("GET /api/v1/analyses/{id}", s.handleGetAnalysis)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.logRequests(mux)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := orchestrator.StartRequest{
		WorkspaceID: r.PathValue("workspace"),
		IssueID:     r.PathValue("issue"),
	}

	creds, err := s.workspaces.Credentials(ctx, req.WorkspaceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req.Credentials = creds

	start := s.orch.StartAnalysis
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		start = s.orch.StartAnalysisAsync
	}

	res, err := start(ctx, req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res.Record)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orch.GetAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type listResponse struct {
	Analyses []*models.AnalysisRecord `json:"analyses"`
	Limit    int                      `json:"limit"`
	Offset   int                      `json:"offset"`
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{Status: models.Status(q.Get("status"))}

	var err error
	if opts.Limit, err = intParam(q.Get("limit"), 0, 1, storage.MaxListLimit); err != nil {
		s.writeError(w, errors.ValidationErrorf("limit: %v", err))
		return
	}
	if opts.Offset, err = intParam(q.Get("offset"), 0, 0, -1); err != nil {
		s.writeError(w, errors.ValidationErrorf("offset: %v", err))
		return
	}
	opts = opts.Normalize()

	recs, err := s.orch.ListAnalyses(r.Context(), r.PathValue("workspace"), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Analyses: recs, Limit: opts.Limit, Offset: opts.Offset})
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaces.Get(r.Context(), r.PathValue("workspace"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := *ws
	out.Credentials = ws.Credentials.Redacted()
	writeJSON(w, http.StatusOK, out)
}

type workspaceRequest struct {
	Name        string                      `json:"name"`
	Credentials models.WorkspaceCredentials `json:"credentials"`
}

func (s *Server) handlePutWorkspace(w http.ResponseWriter, r *http.Request) {
	var body workspaceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, errors.ValidationErrorf("invalid workspace body: %v", err))
		return
	}

	ws, err := s.workspaces.Save(r.Context(), r.PathValue("workspace"), body.Name, body.Credentials)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := *ws
	out.Credentials = ws.Credentials.Redacted()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: errors.Reason(err), Message: err.Error()})
}

func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation, errors.KindConfiguration:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// intParam parses an optional integer; hi < 0 means unbounded
func intParam(raw string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < lo || (hi >= 0 && n > hi) {
		return 0, errors.ValidationErrorf("%d is out of range", n)
	}
	return n, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
