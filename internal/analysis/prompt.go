package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rohankatakam/sentryai/internal/models"
)

// SystemPrompt frames the model as the author of a developer-facing spec
const SystemPrompt = "You are a senior software engineer and technical writer. " +
	"Your task is to analyze software errors and create detailed technical specifications for developers. " +
	"Respond with a single JSON object and nothing else."

const responseSchema = `{
  "summary": "Brief 1-2 sentence summary of the issue",
  "root_cause": "Detailed explanation of what is causing this error",
  "impact_assessment": "Who and what is affected, and how badly",
  "technical_description": "Technical details about the error for developers",
  "reproduction_steps": ["Step 1", "Step 2", "Step 3"],
  "suggested_fix": "Detailed explanation of how to fix this issue",
  "code_examples": "Code examples or configuration changes needed (if applicable)",
  "estimated_effort": "Time estimate (e.g. '2-4 hours', '1-2 days')",
  "priority": "low|medium|high|critical",
  "tags": ["short", "labels"],
  "affected_components": ["component1", "component2"],
  "related_issues": [],
  "confidence_score": 0.0
}`

// BuildPrompt renders the user prompt for an issue. It is a pure function:
// the same IssueRecord always yields the same bytes (metadata keys are sorted).
func BuildPrompt(issue *models.IssueRecord) string {
	var sb strings.Builder

	sb.WriteString("Please analyze the following software error and provide a comprehensive technical specification.\n\n")
	sb.WriteString("Error details:\n")
	fmt.Fprintf(&sb, "- Title: %s\n", orNone(issue.Title))
	fmt.Fprintf(&sb, "- Message: %s\n", orNone(issue.Message))
	fmt.Fprintf(&sb, "- Level: %s\n", orNone(string(issue.Level)))
	fmt.Fprintf(&sb, "- Culprit: %s\n", orNone(issue.Culprit))
	fmt.Fprintf(&sb, "- Platform: %s\n", orNone(issue.Platform))
	fmt.Fprintf(&sb, "- Project: %s\n", orNone(issue.Project.Name))
	fmt.Fprintf(&sb, "- Occurrences: %d\n", issue.Count)
	fmt.Fprintf(&sb, "- Affected users: %d\n", issue.UserCount)
	fmt.Fprintf(&sb, "- First seen: %s\n", formatTime(issue.FirstSeen))
	fmt.Fprintf(&sb, "- Last seen: %s\n", formatTime(issue.LastSeen))

	sb.WriteString("\nTags:\n")
	if len(issue.Tags) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, t := range issue.Tags {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Key, t.Value)
	}

	sb.WriteString("\nAdditional context:\n")
	sb.WriteString(renderMetadata(issue.Metadata))
	sb.WriteString("\n\nProvide your analysis in the following JSON format:\n\n")
	sb.WriteString(responseSchema)
	sb.WriteString(`

Focus on:
1. Identifying the root cause from the error message and context
2. Providing actionable steps for developers
3. Estimating the impact and effort required
4. Suggesting preventive measures if applicable
`)
	return sb.String()
}

// renderMetadata relies on encoding/json writing map keys in sorted order
func renderMetadata(md map[string]any) string {
	if len(md) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
