// Package storage persists analysis records and workspaces.
package storage

import (
	"context"
	"errors"

	"github.com/rohankatakam/sentryai/internal/models"
)

var (
	// ErrNotFound is returned when a record or workspace does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by CreateAnalysis when the issue already has an active record
	ErrConflict = errors.New("active analysis already exists")
	// ErrTerminal is returned when updating a completed or failed record
	ErrTerminal = errors.New("analysis is already terminal")
)

// Default and maximum page sizes for ListAnalyses
const (
	DefaultListLimit = 25
	MaxListLimit     = 100
)

// ListOptions filters and pages ListAnalyses. Results are newest first.
type ListOptions struct {
	Status models.Status
	Limit  int
	Offset int
}

// Normalize clamps Limit and Offset into range
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Store is the persistence contract used by the orchestrator and the API.
//
// CreateAnalysis must be atomic with respect to the active-record check: of two
// concurrent creates for the same (workspace, issue), exactly one succeeds and
// the other gets ErrConflict. UpdateAnalysis refuses records that are already
// terminal, and never replaces an issue snapshot once one has been stored.
type Store interface {
	CreateAnalysis(ctx context.Context, rec *models.AnalysisRecord) error
	FindActive(ctx context.Context, workspaceID, issueID string) (*models.AnalysisRecord, error)
	UpdateAnalysis(ctx context.Context, rec *models.AnalysisRecord) error
	GetAnalysis(ctx context.Context, id string) (*models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, workspaceID string, opts ListOptions) ([]*models.AnalysisRecord, error)

	SaveWorkspace(ctx context.Context, ws *models.Workspace) error
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)

	Ping(ctx context.Context) error
	Close() error
}
