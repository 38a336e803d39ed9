// Package orchestrator drives one analysis run through its lifecycle:
// dedup, issue fetch, AI analysis and persistence of every transition.
package orchestrator

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rohankatakam/sentryai/internal/config"
	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
	"github.com/rohankatakam/sentryai/internal/retry"
	"github.com/rohankatakam/sentryai/internal/storage"
)

// IssueSource fetches an issue snapshot from the tracker
type IssueSource interface {
	FetchIssue(ctx context.Context, creds models.WorkspaceCredentials, issueID string) (*models.IssueRecord, error)
}

// Analyzer produces an AI analysis for an issue snapshot
type Analyzer interface {
	Analyze(ctx context.Context, workspaceID string, creds models.WorkspaceCredentials, issue *models.IssueRecord) (*models.AIAnalysis, error)
}

// StartRequest identifies the issue to analyze and carries the credentials
// for this run. Credentials are never read from ambient state.
type StartRequest struct {
	WorkspaceID string
	IssueID     string
	Credentials models.WorkspaceCredentials
}

func (r StartRequest) validate() error {
	if strings.TrimSpace(r.WorkspaceID) == "" {
		return errors.ValidationErrorf("workspace id is required")
	}
	if strings.TrimSpace(r.IssueID) == "" {
		return errors.ValidationErrorf("issue id is required")
	}
	return nil
}

// StartResult is the record a start call ended on. Created is false when an
// in-flight record for the same issue was returned instead.
type StartResult struct {
	Record  *models.AnalysisRecord
	Created bool
}

// Orchestrator is the only writer of analysis records
type Orchestrator struct {
	store    storage.Store
	source   IssueSource
	analyzer Analyzer

	fetchPolicy    retry.Policy
	providerPolicy retry.Policy

	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	wg sync.WaitGroup
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithFetchPolicy overrides the retry policy around issue fetches
func WithFetchPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.fetchPolicy = p }
}

// WithProviderPolicy overrides the retry policy around completion calls
func WithProviderPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.providerPolicy = p }
}

// WithClock sets the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator sets the record id generator
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// FetchPolicy retries tracker fetches on transient errors only
func FetchPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.FetchAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Retryable:      errors.IsTransient,
	}
}

// ProviderPolicy retries completion calls on rate limits and timeouts only
func ProviderPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.ProviderAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Retryable:      errors.IsRetryableProvider,
	}
}

// New creates an orchestrator with the default retry policies
func New(store storage.Store, source IssueSource, analyzer Analyzer, opts ...Option) *Orchestrator {
	defaults := config.Default().Retry
	o := &Orchestrator{
		store:          store,
		source:         source,
		analyzer:       analyzer,
		fetchPolicy:    FetchPolicy(defaults),
		providerPolicy: ProviderPolicy(defaults),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		logger:         slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.fetchPolicy.OnRetry = o.logRetry("fetch")
	o.providerPolicy.OnRetry = o.logRetry("completion")
	return o
}

func (o *Orchestrator) logRetry(step string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		o.logger.Warn("retrying after error",
			"step", step,
			"attempt", attempt,
			"reason", errors.Reason(err),
			"backoff", wait,
			"error", err)
	}
}

// StartAnalysis runs the whole pipeline and returns the terminal record, or
// the in-flight record when the issue is already being analyzed. Pipeline
// failures are recorded on the record; only storage and request errors are
// returned.
func (o *Orchestrator) StartAnalysis(ctx context.Context, req StartRequest) (*StartResult, error) {
	rec, created, err := o.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	if !created {
		return &StartResult{Record: rec}, nil
	}

	if err := o.run(context.WithoutCancel(ctx), rec, req.Credentials); err != nil {
		return nil, err
	}
	return &StartResult{Record: rec.Clone(), Created: true}, nil
}

// StartAnalysisAsync persists the record as processing and returns it; the
// fetch and analysis continue in the background. Use Wait to drain them.
func (o *Orchestrator) StartAnalysisAsync(ctx context.Context, req StartRequest) (*StartResult, error) {
	rec, created, err := o.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	if !created {
		return &StartResult{Record: rec}, nil
	}

	snapshot := rec.Clone()
	detached := context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.run(detached, rec, req.Credentials); err != nil {
			o.logger.Error("background analysis could not be recorded",
				"analysis_id", rec.ID, "error", err)
		}
	}()

	return &StartResult{Record: snapshot, Created: true}, nil
}

// Wait blocks until every background run has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// begin returns the active record for the issue, or creates one and moves
// it to processing. The store's uniqueness guarantee decides races: a loser
// picks up the winner's record on the next pass. Store writes ignore caller
// cancellation so a created record never stays pending.
func (o *Orchestrator) begin(ctx context.Context, req StartRequest) (*models.AnalysisRecord, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}
	ctx = context.WithoutCancel(ctx)

	for pass := 0; pass < 3; pass++ {
		existing, err := o.store.FindActive(ctx, req.WorkspaceID, req.IssueID)
		if err == nil {
			o.logger.Info("analysis already in flight",
				"analysis_id", existing.ID, "workspace_id", req.WorkspaceID, "issue_id", req.IssueID)
			return existing, false, nil
		}
		if !stderrors.Is(err, storage.ErrNotFound) {
			return nil, false, errors.DatabaseError(err, "look up active analysis")
		}

		now := o.now()
		rec := &models.AnalysisRecord{
			ID:          o.newID(),
			WorkspaceID: req.WorkspaceID,
			IssueID:     req.IssueID,
			Status:      models.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = o.store.CreateAnalysis(ctx, rec)
		if stderrors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, errors.DatabaseError(err, "create analysis")
		}

		o.logger.Info("analysis created",
			"analysis_id", rec.ID, "workspace_id", req.WorkspaceID, "issue_id", req.IssueID)

		if err := o.transition(ctx, rec, models.StatusProcessing); err != nil {
			rec.Status = models.StatusPending
			rec.CompletedAt = nil
			if ferr := o.fail(ctx, rec, err); ferr != nil {
				o.logger.Error("could not release stuck analysis",
					"analysis_id", rec.ID, "error", ferr)
			}
			return nil, false, err
		}
		return rec, true, nil
	}

	return nil, false, errors.DatabaseErrorf(storage.ErrConflict,
		"could not claim analysis for issue %s in workspace %s", req.IssueID, req.WorkspaceID)
}

// run performs the fetch and the analysis for a processing record. It
// returns an error only when a transition could not be persisted.
func (o *Orchestrator) run(ctx context.Context, rec *models.AnalysisRecord, creds models.WorkspaceCredentials) error {
	start := o.now()

	var issue *models.IssueRecord
	attempts, err := o.fetchPolicy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		issue, err = o.source.FetchIssue(ctx, creds, rec.IssueID)
		return err
	})
	rec.Attempts += attempts
	if err != nil {
		return o.fail(ctx, rec, err)
	}

	rec.Issue = issue
	if err := o.save(ctx, rec); err != nil {
		return err
	}

	var analysis *models.AIAnalysis
	attempts, err = o.providerPolicy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		analysis, err = o.analyzer.Analyze(ctx, rec.WorkspaceID, creds, issue)
		return err
	})
	rec.Attempts += attempts
	if err != nil {
		return o.fail(ctx, rec, err)
	}

	rec.Analysis = analysis
	if err := o.transition(ctx, rec, models.StatusCompleted); err != nil {
		return err
	}

	o.logger.Info("analysis completed",
		"analysis_id", rec.ID,
		"issue_id", rec.IssueID,
		"priority", analysis.Priority,
		"attempts", rec.Attempts,
		"total_tokens", analysis.Usage.TotalTokens,
		"duration", o.now().Sub(start))
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, rec *models.AnalysisRecord, cause error) error {
	rec.FailureReason = errors.Reason(cause)
	rec.FailureMessage = cause.Error()

	o.logger.Warn("analysis failed",
		"analysis_id", rec.ID,
		"issue_id", rec.IssueID,
		"reason", rec.FailureReason,
		"attempts", rec.Attempts,
		"error", cause)

	return o.transition(ctx, rec, models.StatusFailed)
}

func (o *Orchestrator) transition(ctx context.Context, rec *models.AnalysisRecord, to models.Status) error {
	if !rec.Status.CanTransition(to) {
		return errors.InternalErrorf("illegal transition %s -> %s for analysis %s", rec.Status, to, rec.ID)
	}
	rec.Status = to
	if to.Terminal() {
		t := o.now()
		rec.CompletedAt = &t
	}
	return o.save(ctx, rec)
}

func (o *Orchestrator) save(ctx context.Context, rec *models.AnalysisRecord) error {
	rec.UpdatedAt = o.now()
	if err := o.store.UpdateAnalysis(ctx, rec); err != nil {
		return errors.DatabaseErrorf(err, "persist analysis %s (%s)", rec.ID, rec.Status)
	}
	return nil
}

// GetAnalysis returns a record by id
func (o *Orchestrator) GetAnalysis(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	rec, err := o.store.GetAnalysis(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NotFoundErrorf("analysis %s not found", id)
	}
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "get analysis %s", id)
	}
	return rec, nil
}

// ListAnalyses returns a workspace's records, newest first
func (o *Orchestrator) ListAnalyses(ctx context.Context, workspaceID string, opts storage.ListOptions) ([]*models.AnalysisRecord, error) {
	if opts.Status != "" && !opts.Status.Validate() {
		return nil, errors.ValidationErrorf("unknown status %q", opts.Status)
	}
	recs, err := o.store.ListAnalyses(ctx, workspaceID, opts)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "list analyses for %s", workspaceID)
	}
	return recs, nil
}
