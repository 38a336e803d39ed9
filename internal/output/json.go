package output

import (
	"encoding/json"
	"io"

	"github.com/rohankatakam/sentryai/internal/models"
)

// JSONFormatter writes records exactly as the HTTP API returns them
type JSONFormatter struct{}

func (f *JSONFormatter) Format(rec *models.AnalysisRecord, w io.Writer) error {
	return encode(w, rec)
}

func (f *JSONFormatter) FormatList(recs []*models.AnalysisRecord, w io.Writer) error {
	if recs == nil {
		recs = []*models.AnalysisRecord{}
	}
	return encode(w, map[string]any{"analyses": recs})
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
