package sentry

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
)

// parseIssue maps a Sentry issue body into an IssueRecord. A body without an
// id takes requestedID; every other field falls back to its zero value.
func parseIssue(body []byte, requestedID string) (*models.IssueRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.UnexpectedResponseError(nil, "sentry returned a body that is not JSON")
	}
	r := gjson.ParseBytes(body)
	if !r.IsObject() {
		return nil, errors.UnexpectedResponseError(nil, "sentry issue body is not a JSON object")
	}
	issue := issueFromResult(r)
	if issue.ID == "" {
		issue.ID = requestedID
	}
	if issue.ID == "" {
		return nil, errors.UnexpectedResponseError(nil, "sentry issue body has no id")
	}
	return issue, nil
}

func parseIssueList(body []byte) ([]*models.IssueRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.UnexpectedResponseError(nil, "sentry returned a body that is not JSON")
	}
	r := gjson.ParseBytes(body)
	if !r.IsArray() {
		return nil, errors.UnexpectedResponseError(nil, "sentry issue list is not a JSON array")
	}

	issues := make([]*models.IssueRecord, 0, len(r.Array()))
	r.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			if issue := issueFromResult(v); issue.ID != "" {
				issues = append(issues, issue)
			}
		}
		return true
	})
	return issues, nil
}

func issueFromResult(r gjson.Result) *models.IssueRecord {
	issue := &models.IssueRecord{
		ID:        r.Get("id").String(),
		ShortID:   r.Get("shortId").String(),
		Title:     r.Get("title").String(),
		Culprit:   r.Get("culprit").String(),
		Message:   r.Get("metadata.value").String(),
		Level:     models.ParseLevel(r.Get("level").String()),
		Status:    models.ParseIssueStatus(r.Get("status").String()),
		Platform:  r.Get("platform").String(),
		FirstSeen: parseTime(r.Get("firstSeen")),
		LastSeen:  parseTime(r.Get("lastSeen")),
		Count:     r.Get("count").Int(), // Sentry sends counts as strings
		UserCount: r.Get("userCount").Int(),
		Permalink: r.Get("permalink").String(),
		Project: models.Project{
			ID:   r.Get("project.id").String(),
			Name: r.Get("project.name").String(),
			Slug: r.Get("project.slug").String(),
		},
		Tags:     []models.Tag{},
		Metadata: map[string]any{},
	}

	if issue.Message == "" {
		issue.Message = r.Get("message").String()
	}

	if md := r.Get("metadata"); md.IsObject() {
		if m, ok := md.Value().(map[string]interface{}); ok {
			issue.Metadata = m
		}
	}

	r.Get("tags").ForEach(func(_, t gjson.Result) bool {
		key := t.Get("key").String()
		if key == "" {
			return true
		}
		value := t.Get("value").String()
		if value == "" {
			// issue-level tag summaries carry the most common value instead
			value = t.Get("topValues.0.value").String()
		}
		issue.Tags = append(issue.Tags, models.Tag{Key: key, Value: value})
		return true
	})

	return issue
}

func parseTime(r gjson.Result) time.Time {
	if r.Type != gjson.String {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, r.String())
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// nextCursor extracts the cursor of the rel="next" link when it has results:
// <https://...>; rel="next"; results="true"; cursor="0:100:0"
func nextCursor(link string) string {
	for _, part := range strings.Split(link, ",") {
		attrs := map[string]string{}
		for _, field := range strings.Split(part, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(field), "=")
			if !ok {
				continue
			}
			attrs[k] = strings.Trim(v, `"`)
		}
		if attrs["rel"] == "next" && attrs["results"] == "true" {
			return attrs["cursor"]
		}
	}
	return ""
}
