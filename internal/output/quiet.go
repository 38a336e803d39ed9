package output

import (
	"fmt"
	"io"

	"github.com/rohankatakam/sentryai/internal/models"
)

// QuietFormatter outputs one line per record
type QuietFormatter struct{}

func (f *QuietFormatter) Format(rec *models.AnalysisRecord, w io.Writer) error {
	_, err := fmt.Fprintln(w, quietLine(rec))
	return err
}

func (f *QuietFormatter) FormatList(recs []*models.AnalysisRecord, w io.Writer) error {
	for _, rec := range recs {
		if err := f.Format(rec, w); err != nil {
			return err
		}
	}
	return nil
}

func quietLine(rec *models.AnalysisRecord) string {
	switch rec.Status {
	case models.StatusCompleted:
		priority := models.PriorityMedium
		if rec.Analysis != nil {
			priority = rec.Analysis.Priority
		}
		return fmt.Sprintf("%s %s %s %s %s", statusEmoji(rec.Status), rec.ID, rec.IssueID, rec.Status, priority)
	case models.StatusFailed:
		return fmt.Sprintf("%s %s %s %s %s", statusEmoji(rec.Status), rec.ID, rec.IssueID, rec.Status, rec.FailureReason)
	default:
		return fmt.Sprintf("%s %s %s %s", statusEmoji(rec.Status), rec.ID, rec.IssueID, rec.Status)
	}
}

func statusEmoji(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return "✅"
	case models.StatusFailed:
		return "❌"
	default:
		return "⏳"
	}
}
