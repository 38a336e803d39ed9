// Package output renders analysis records for the terminal.
package output

import (
	"io"

	"github.com/rohankatakam/sentryai/internal/models"
)

// Formatter renders a single record or a page of records
type Formatter interface {
	Format(rec *models.AnalysisRecord, w io.Writer) error
	FormatList(recs []*models.AnalysisRecord, w io.Writer) error
}

// VerbosityLevel determines output detail
type VerbosityLevel int

const (
	VerbosityQuiet    VerbosityLevel = iota // one line per record
	VerbosityStandard                       // summary, cause, fix
	VerbosityExplain                        // everything including the issue snapshot
	VerbosityJSON                           // machine-readable
)

// NewFormatter creates the formatter for level
func NewFormatter(level VerbosityLevel) Formatter {
	switch level {
	case VerbosityQuiet:
		return &QuietFormatter{}
	case VerbosityExplain:
		return &StandardFormatter{Explain: true}
	case VerbosityJSON:
		return &JSONFormatter{}
	default:
		return &StandardFormatter{}
	}
}
