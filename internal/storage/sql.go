package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/rohankatakam/sentryai/internal/models"
)

// SQLStore implements Store on sqlite (local) or postgres (shared deployments)
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) a sqlite database at path.
// ":memory:" is accepted for tests.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	if path == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	return newSQLStore(db, "sqlite3")
}

// NewPostgresStore connects through the pgx stdlib driver
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, "pgx")
}

func newSQLStore(db *sqlx.DB, driver string) (*SQLStore, error) {
	s := &SQLStore{
		db:     db,
		driver: driver,
		logger: slog.Default().With("component", "storage", "driver", driver),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ts := "DATETIME"
	if s.driver == "pgx" {
		ts = "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workspaces (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			sentry_token TEXT NOT NULL DEFAULT '',
			sentry_organization TEXT NOT NULL DEFAULT '',
			openai_key TEXT NOT NULL DEFAULT '',
			openai_model TEXT NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			issue_id TEXT NOT NULL,
			status TEXT NOT NULL,
			issue_data TEXT,
			analysis TEXT,
			failure_reason TEXT NOT NULL DEFAULT '',
			failure_message TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL,
			completed_at ` + ts + `
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_analyses_active
			ON analyses (workspace_id, issue_id)
			WHERE status IN ('pending', 'processing')`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_workspace_created
			ON analyses (workspace_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type analysisRow struct {
	ID             string         `db:"id"`
	WorkspaceID    string         `db:"workspace_id"`
	IssueID        string         `db:"issue_id"`
	Status         string         `db:"status"`
	IssueData      sql.NullString `db:"issue_data"`
	Analysis       sql.NullString `db:"analysis"`
	FailureReason  string         `db:"failure_reason"`
	FailureMessage string         `db:"failure_message"`
	Attempts       int            `db:"attempts"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
}

const analysisColumns = `id, workspace_id, issue_id, status, issue_data, analysis,
	failure_reason, failure_message, attempts, created_at, updated_at, completed_at`

func toRow(rec *models.AnalysisRecord) (*analysisRow, error) {
	row := &analysisRow{
		ID:             rec.ID,
		WorkspaceID:    rec.WorkspaceID,
		IssueID:        rec.IssueID,
		Status:         string(rec.Status),
		FailureReason:  rec.FailureReason,
		FailureMessage: rec.FailureMessage,
		Attempts:       rec.Attempts,
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
	}
	if rec.Issue != nil {
		b, err := json.Marshal(rec.Issue)
		if err != nil {
			return nil, fmt.Errorf("encode issue snapshot: %w", err)
		}
		row.IssueData = sql.NullString{String: string(b), Valid: true}
	}
	if rec.Analysis != nil {
		b, err := json.Marshal(rec.Analysis)
		if err != nil {
			return nil, fmt.Errorf("encode analysis: %w", err)
		}
		row.Analysis = sql.NullString{String: string(b), Valid: true}
	}
	if rec.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: rec.CompletedAt.UTC(), Valid: true}
	}
	return row, nil
}

func (r *analysisRow) record() (*models.AnalysisRecord, error) {
	rec := &models.AnalysisRecord{
		ID:             r.ID,
		WorkspaceID:    r.WorkspaceID,
		IssueID:        r.IssueID,
		Status:         models.Status(r.Status),
		FailureReason:  r.FailureReason,
		FailureMessage: r.FailureMessage,
		Attempts:       r.Attempts,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.IssueData.Valid {
		rec.Issue = &models.IssueRecord{}
		if err := json.Unmarshal([]byte(r.IssueData.String), rec.Issue); err != nil {
			return nil, fmt.Errorf("decode issue snapshot of %s: %w", r.ID, err)
		}
	}
	if r.Analysis.Valid {
		rec.Analysis = &models.AIAnalysis{}
		if err := json.Unmarshal([]byte(r.Analysis.String), rec.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis of %s: %w", r.ID, err)
		}
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		rec.CompletedAt = &t
	}
	return rec, nil
}

// CreateAnalysis inserts a new record. The partial unique index turns a
// second active record for the same issue into ErrConflict.
func (s *SQLStore) CreateAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO analyses (` + analysisColumns + `)
		VALUES (:id, :workspace_id, :issue_id, :status, :issue_data, :analysis,
			:failure_reason, :failure_message, :attempts, :created_at, :updated_at, :completed_at)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// FindActive returns the pending or processing record for the issue, if any
func (s *SQLStore) FindActive(ctx context.Context, workspaceID, issueID string) (*models.AnalysisRecord, error) {
	query := s.db.Rebind(`SELECT ` + analysisColumns + ` FROM analyses
		WHERE workspace_id = ? AND issue_id = ? AND status IN ('pending', 'processing')
		LIMIT 1`)
	return s.getOne(ctx, query, workspaceID, issueID)
}

// GetAnalysis fetches a record by id
func (s *SQLStore) GetAnalysis(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	query := s.db.Rebind(`SELECT ` + analysisColumns + ` FROM analyses WHERE id = ?`)
	return s.getOne(ctx, query, id)
}

func (s *SQLStore) getOne(ctx context.Context, query string, args ...any) (*models.AnalysisRecord, error) {
	var row analysisRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	return row.record()
}

// UpdateAnalysis writes the mutable fields of a non-terminal record
func (s *SQLStore) UpdateAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	query := `UPDATE analyses SET
			status = :status,
			issue_data = COALESCE(issue_data, :issue_data),
			analysis = :analysis,
			failure_reason = :failure_reason,
			failure_message = :failure_message,
			attempts = :attempts,
			updated_at = :updated_at,
			completed_at = :completed_at
		WHERE id = :id AND status IN ('pending', 'processing')`

	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update analysis: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing matched: either the id is unknown or the record is already terminal
	if _, err := s.GetAnalysis(ctx, rec.ID); err != nil {
		return err
	}
	return ErrTerminal
}

// ListAnalyses returns a workspace's records, newest first
func (s *SQLStore) ListAnalyses(ctx context.Context, workspaceID string, opts ListOptions) ([]*models.AnalysisRecord, error) {
	opts = opts.Normalize()

	var (
		where = []string{"workspace_id = ?"}
		args  = []any{workspaceID}
	)
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	args = append(args, opts.Limit, opts.Offset)

	query := s.db.Rebind(`SELECT ` + analysisColumns + ` FROM analyses
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`)

	var rows []analysisRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}

	out := make([]*models.AnalysisRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type workspaceRow struct {
	ID                 string    `db:"id"`
	Name               string    `db:"name"`
	SentryToken        string    `db:"sentry_token"`
	SentryOrganization string    `db:"sentry_organization"`
	OpenAIKey          string    `db:"openai_key"`
	OpenAIModel        string    `db:"openai_model"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// SaveWorkspace inserts or replaces a workspace, keeping its original created_at
func (s *SQLStore) SaveWorkspace(ctx context.Context, ws *models.Workspace) error {
	row := workspaceRow{
		ID:                 ws.ID,
		Name:               ws.Name,
		SentryToken:        ws.Credentials.SentryToken,
		SentryOrganization: ws.Credentials.SentryOrganization,
		OpenAIKey:          ws.Credentials.OpenAIKey,
		OpenAIModel:        ws.Credentials.OpenAIModel,
		CreatedAt:          ws.CreatedAt.UTC(),
		UpdatedAt:          ws.UpdatedAt.UTC(),
	}

	query := `INSERT INTO workspaces (id, name, sentry_token, sentry_organization, openai_key, openai_model, created_at, updated_at)
		VALUES (:id, :name, :sentry_token, :sentry_organization, :openai_key, :openai_model, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			sentry_token = excluded.sentry_token,
			sentry_organization = excluded.sentry_organization,
			openai_key = excluded.openai_key,
			openai_model = excluded.openai_model,
			updated_at = excluded.updated_at`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("save workspace: %w", err)
	}
	return nil
}

// GetWorkspace fetches a workspace by id
func (s *SQLStore) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	var row workspaceRow
	query := s.db.Rebind(`SELECT id, name, sentry_token, sentry_organization, openai_key, openai_model, created_at, updated_at
		FROM workspaces WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query workspace: %w", err)
	}

	return &models.Workspace{
		ID:   row.ID,
		Name: row.Name,
		Credentials: models.WorkspaceCredentials{
			SentryToken:        row.SentryToken,
			SentryOrganization: row.SentryOrganization,
			OpenAIKey:          row.OpenAIKey,
			OpenAIModel:        row.OpenAIModel,
		},
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

// Ping checks the connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLStore) Close() error {
	s.logger.Debug("closing database")
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrConstraint &&
			(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
