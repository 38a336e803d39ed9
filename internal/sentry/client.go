package sentry

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
)

const (
	DefaultBaseURL = "https://sentry.io/api/0"
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 4 << 20
)

// Client reads issues from the Sentry REST API. It never retries; callers own retry policy.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit paces outbound requests; rps <= 0 disables pacing
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.rateLimiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.rateLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a tracker client. An empty baseURL uses sentry.io.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		timeout:     DefaultTimeout,
		rateLimiter: rate.NewLimiter(rate.Limit(5), 5),
		logger:      slog.Default().With("component", "sentry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func checkCredentials(creds models.WorkspaceCredentials) error {
	if strings.TrimSpace(creds.SentryToken) == "" {
		return errors.ConfigError("sentry API token is not configured")
	}
	if strings.TrimSpace(creds.SentryOrganization) == "" {
		return errors.ConfigError("sentry organization slug is not configured")
	}
	return nil
}

// FetchIssue performs one GET for the issue and maps the body into an IssueRecord
func (c *Client) FetchIssue(ctx context.Context, creds models.WorkspaceCredentials, issueID string) (*models.IssueRecord, error) {
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return nil, errors.ConfigError("issue id is required")
	}
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/organizations/%s/issues/%s/",
		url.PathEscape(creds.SentryOrganization), url.PathEscape(issueID))

	body, _, err := c.get(ctx, creds, path, nil)
	if err != nil {
		if e, ok := errors.As(err); ok {
			e.WithContext("issue_id", issueID)
		}
		return nil, err
	}

	issue, err := parseIssue(body, issueID)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("issue fetched", "issue_id", issue.ID, "title", issue.Title)
	return issue, nil
}

// ListIssuesOptions filters an issue listing
type ListIssuesOptions struct {
	Project     string // numeric project id
	Query       string // Sentry search query, e.g. "is:unresolved"
	StatsPeriod string // "24h", "14d"
	Cursor      string
	Limit       int
}

// IssuePage is one page of an issue listing
type IssuePage struct {
	Issues     []*models.IssueRecord
	NextCursor string // empty when there are no more results
}

// ListIssues lists issues for the organization, one page at a time
func (c *Client) ListIssues(ctx context.Context, creds models.WorkspaceCredentials, opts ListIssuesOptions) (*IssuePage, error) {
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}

	q := url.Values{}
	if opts.Project != "" {
		q.Set("project", opts.Project)
	}
	if opts.Query != "" {
		q.Set("query", opts.Query)
	}
	if opts.StatsPeriod != "" {
		q.Set("statsPeriod", opts.StatsPeriod)
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := fmt.Sprintf("/organizations/%s/issues/", url.PathEscape(creds.SentryOrganization))
	body, header, err := c.get(ctx, creds, path, q)
	if err != nil {
		return nil, err
	}

	issues, err := parseIssueList(body)
	if err != nil {
		return nil, err
	}
	return &IssuePage{
		Issues:     issues,
		NextCursor: nextCursor(header.Get("Link")),
	}, nil
}

// TestConnection verifies the token can read the organization
func (c *Client) TestConnection(ctx context.Context, creds models.WorkspaceCredentials) error {
	if err := checkCredentials(creds); err != nil {
		return err
	}
	path := fmt.Sprintf("/organizations/%s/", url.PathEscape(creds.SentryOrganization))
	_, _, err := c.get(ctx, creds, path, nil)
	return err
}

// get performs one authenticated GET and classifies every failure
func (c *Client) get(ctx context.Context, creds models.WorkspaceCredentials, path string, query url.Values) ([]byte, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, nil, errors.TransientError(err, "sentry rate limiter")
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.KindConfiguration, "build sentry request")
	}
	req.Header.Set("Authorization", "Bearer "+creds.SentryToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, classifyTransportError(err)
	}

	c.logger.Debug("sentry request", "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, nil, err.WithContext("status", resp.StatusCode)
	}
	return body, resp.Header, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.TransientError(err, "sentry request timed out")
	case stderrors.As(err, &netErr):
		return errors.TransientError(err, "sentry network error")
	default:
		return errors.TransientError(err, "sentry request failed")
	}
}

// statusError maps a non-2xx response to the error taxonomy; nil for success
func statusError(status int, body []byte) *errors.Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return errors.NotFoundErrorf("sentry issue not found: %s", detail(body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.AuthErrorf("sentry rejected credentials (HTTP %d): %s", status, detail(body))
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.TransientError(nil, fmt.Sprintf("sentry unavailable (HTTP %d)", status))
	default:
		return errors.UnexpectedResponseError(nil, fmt.Sprintf("unexpected sentry status %d: %s", status, detail(body)))
	}
}

func detail(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= 200 {
		return s
	}
	n := 200
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
