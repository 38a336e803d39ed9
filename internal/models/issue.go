package models

import (
	"strings"
	"time"
)

// Level is the tracker's severity for an issue
type Level string

const (
	LevelFatal   Level = "fatal"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// ParseLevel normalizes a tracker level, defaulting to error
func ParseLevel(s string) Level {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelFatal, LevelError, LevelWarning, LevelInfo, LevelDebug:
		return l
	case "warn":
		return LevelWarning
	default:
		return LevelError
	}
}

// IssueStatus is the tracker-side resolution state
type IssueStatus string

const (
	IssueUnresolved IssueStatus = "unresolved"
	IssueResolved   IssueStatus = "resolved"
	IssueIgnored    IssueStatus = "ignored"
)

// ParseIssueStatus normalizes a tracker status, defaulting to unresolved
func ParseIssueStatus(s string) IssueStatus {
	switch st := IssueStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case IssueResolved, IssueIgnored:
		return st
	default:
		return IssueUnresolved
	}
}

// Project identifies the tracker project an issue belongs to
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// Tag is one key/value pair attached to an issue
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// IssueRecord is a snapshot of a tracker issue as fetched at analysis time
type IssueRecord struct {
	ID        string         `json:"id"`
	ShortID   string         `json:"short_id,omitempty"`
	Title     string         `json:"title"`
	Culprit   string         `json:"culprit"`
	Message   string         `json:"message"`
	Level     Level          `json:"level"`
	Status    IssueStatus    `json:"status"`
	Platform  string         `json:"platform,omitempty"`
	Project   Project        `json:"project"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
	Count     int64          `json:"count"`
	UserCount int64          `json:"user_count"`
	Permalink string         `json:"permalink,omitempty"`
	Tags      []Tag          `json:"tags"`
	Metadata  map[string]any `json:"metadata"`
}
