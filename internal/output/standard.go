package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rohankatakam/sentryai/internal/models"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// StandardFormatter outputs the analysis sections a developer acts on.
// Explain adds the issue snapshot, technical detail and token usage.
type StandardFormatter struct {
	Explain bool
}

func (f *StandardFormatter) Format(rec *models.AnalysisRecord, w io.Writer) error {
	fmt.Fprintf(w, "🔍 Analysis %s\n", rec.ID)
	fmt.Fprintf(w, "Issue: %s (workspace %s)\n", rec.IssueID, rec.WorkspaceID)
	fmt.Fprintf(w, "Status: %s %s\n", statusEmoji(rec.Status), rec.Status)
	if rec.Attempts > 0 {
		fmt.Fprintf(w, "Attempts: %d\n", rec.Attempts)
	}

	if rec.Issue != nil {
		f.formatIssue(rec.Issue, w)
	}

	switch rec.Status {
	case models.StatusFailed:
		fmt.Fprintf(w, "\nFailure: %s\n", rec.FailureReason)
		if rec.FailureMessage != "" {
			fmt.Fprintf(w, "  %s\n", rec.FailureMessage)
		}
	case models.StatusCompleted:
		if rec.Analysis != nil {
			f.formatAnalysis(rec.Analysis, w)
		}
	default:
		fmt.Fprintf(w, "\nStill running. Check again with 'sentryai get %s'\n", rec.ID)
	}
	return nil
}

func (f *StandardFormatter) FormatList(recs []*models.AnalysisRecord, w io.Writer) error {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No analyses found")
		return nil
	}
	for _, rec := range recs {
		title := ""
		if rec.Issue != nil {
			title = truncate(rec.Issue.Title, 50)
		}
		fmt.Fprintf(w, "%s  %-36s  %-12s  %-10s  %s  %s\n",
			statusEmoji(rec.Status),
			rec.ID,
			rec.IssueID,
			rec.Status,
			rec.CreatedAt.Local().Format(time.DateTime),
			title,
		)
	}
	return nil
}

func (f *StandardFormatter) formatIssue(issue *models.IssueRecord, w io.Writer) {
	fmt.Fprintf(w, "\n%s %s\n", levelEmoji(issue.Level), issue.Title)
	if issue.Culprit != "" {
		fmt.Fprintf(w, "  in %s\n", issue.Culprit)
	}
	fmt.Fprintf(w, "  %d events, %d users affected\n", issue.Count, issue.UserCount)
	if !f.Explain {
		return
	}
	if issue.Project.Name != "" {
		fmt.Fprintf(w, "  Project: %s\n", issue.Project.Name)
	}
	if !issue.FirstSeen.IsZero() {
		fmt.Fprintf(w, "  First seen: %s\n", issue.FirstSeen.Local().Format(time.DateTime))
	}
	if !issue.LastSeen.IsZero() {
		fmt.Fprintf(w, "  Last seen: %s\n", issue.LastSeen.Local().Format(time.DateTime))
	}
	if issue.Permalink != "" {
		fmt.Fprintf(w, "  %s\n", issue.Permalink)
	}
}

func (f *StandardFormatter) formatAnalysis(a *models.AIAnalysis, w io.Writer) {
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "%s Priority: %s   Effort: %s   Confidence: %.0f%%\n",
		priorityEmoji(a.Priority), a.Priority, a.EstimatedEffort, a.ConfidenceScore*100)
	fmt.Fprintf(w, "%s\n\n", rule)

	section(w, "Summary", a.Summary)
	section(w, "Root cause", a.RootCause)
	section(w, "Impact", a.ImpactAssessment)
	if f.Explain {
		section(w, "Technical detail", a.TechnicalDescription)
	}

	if len(a.ReproductionSteps) > 0 {
		fmt.Fprintln(w, "Reproduction:")
		for i, step := range a.ReproductionSteps {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
		fmt.Fprintln(w)
	}

	section(w, "Suggested fix", a.SuggestedFix)
	if f.Explain {
		section(w, "Code", a.CodeExamples)
		if len(a.AffectedComponents) > 0 {
			fmt.Fprintf(w, "Affected: %s\n", strings.Join(a.AffectedComponents, ", "))
		}
		if len(a.RelatedIssues) > 0 {
			fmt.Fprintf(w, "Related: %s\n", strings.Join(a.RelatedIssues, ", "))
		}
	}
	if len(a.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(a.Tags, ", "))
	}
	if f.Explain {
		fmt.Fprintf(w, "Model: %s (%d prompt + %d completion = %d tokens)\n",
			a.Model, a.Usage.PromptTokens, a.Usage.CompletionTokens, a.Usage.TotalTokens)
	}
}

func section(w io.Writer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(w, "%s:\n  %s\n\n", title, strings.ReplaceAll(strings.TrimSpace(body), "\n", "\n  "))
}

func priorityEmoji(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return "🔴"
	case models.PriorityHigh:
		return "🟠"
	case models.PriorityMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

func levelEmoji(l models.Level) string {
	switch l {
	case models.LevelFatal, models.LevelError:
		return "🔴"
	case models.LevelWarning:
		return "⚠️ "
	default:
		return "ℹ️ "
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
