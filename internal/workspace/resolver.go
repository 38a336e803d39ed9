// Package workspace resolves the credentials a workspace's analyses run with.
package workspace

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
	"github.com/rohankatakam/sentryai/internal/storage"
)

// Resolver merges stored workspace credentials with process-level defaults
type Resolver struct {
	store    storage.Store
	defaults models.WorkspaceCredentials
	now      func() time.Time
}

// NewResolver creates a resolver. defaults usually come from config and the keychain.
func NewResolver(store storage.Store, defaults models.WorkspaceCredentials) *Resolver {
	return &Resolver{
		store:    store,
		defaults: defaults,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Credentials returns the workspace's credentials with empty fields filled from
// the defaults. A workspace that is unknown while no defaults exist is a
// configuration error.
func (r *Resolver) Credentials(ctx context.Context, workspaceID string) (models.WorkspaceCredentials, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return models.WorkspaceCredentials{}, errors.ValidationErrorf("workspace id is required")
	}

	ws, err := r.store.GetWorkspace(ctx, workspaceID)
	switch {
	case err == nil:
		return ws.Credentials.Merge(r.defaults), nil
	case !stderrors.Is(err, storage.ErrNotFound):
		return models.WorkspaceCredentials{}, errors.DatabaseErrorf(err, "load workspace %s", workspaceID)
	}

	if r.defaults == (models.WorkspaceCredentials{}) {
		return models.WorkspaceCredentials{}, errors.ConfigErrorf(
			"workspace %s is not configured and no default credentials are set", workspaceID).
			WithContext("workspace_id", workspaceID)
	}
	return r.defaults, nil
}

// Get returns a stored workspace
func (r *Resolver) Get(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	ws, err := r.store.GetWorkspace(ctx, workspaceID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NotFoundErrorf("workspace %s not found", workspaceID)
	}
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "load workspace %s", workspaceID)
	}
	return ws, nil
}

// Save creates or updates a workspace. Empty or still-redacted credential
// fields in the update keep their stored values so secrets need not be resent.
func (r *Resolver) Save(ctx context.Context, workspaceID, name string, creds models.WorkspaceCredentials) (*models.Workspace, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, errors.ValidationErrorf("workspace id is required")
	}

	creds = creds.WithoutRedacted()
	now := r.now()
	ws := &models.Workspace{ID: workspaceID, Name: name, Credentials: creds, CreatedAt: now, UpdatedAt: now}

	existing, err := r.store.GetWorkspace(ctx, workspaceID)
	switch {
	case err == nil:
		ws.CreatedAt = existing.CreatedAt
		ws.Credentials = creds.Merge(existing.Credentials)
		if ws.Name == "" {
			ws.Name = existing.Name
		}
	case !stderrors.Is(err, storage.ErrNotFound):
		return nil, errors.DatabaseErrorf(err, "load workspace %s", workspaceID)
	}
	if ws.Name == "" {
		ws.Name = workspaceID
	}

	if err := r.store.SaveWorkspace(ctx, ws); err != nil {
		return nil, errors.DatabaseErrorf(err, "save workspace %s", workspaceID)
	}
	return ws, nil
}
