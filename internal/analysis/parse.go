package analysis

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
)

// Defaults for fields the model left out or sent with the wrong type
const (
	DefaultEstimatedEffort = "unknown"
	DefaultPriority        = models.PriorityMedium
)

// ExtractJSON returns the first well-formed JSON object in text. Models wrap
// their answer in prose or ``` fences often enough that bare JSON cannot be assumed.
func ExtractJSON(text string) (string, bool) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil && len(raw) > 0 && raw[0] == '{' {
			return string(raw), true
		}

		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", false
}

// ParseAnalysis extracts and decodes a completion into an AIAnalysis. Only a
// response with no JSON object at all is an error; every field falls back to
// its default on its own.
func ParseAnalysis(text string) (*models.AIAnalysis, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, errors.ParseErrorf("completion contains no JSON object (%d bytes)", len(text))
	}
	r := gjson.Parse(raw)

	a := &models.AIAnalysis{
		Summary:              str(r, "summary"),
		RootCause:            str(r, "root_cause"),
		ImpactAssessment:     str(r, "impact_assessment"),
		TechnicalDescription: str(r, "technical_description"),
		ReproductionSteps:    strList(firstOf(r, "reproduction_steps", "steps_to_reproduce")),
		SuggestedFix:         str(r, "suggested_fix"),
		CodeExamples:         str(r, "code_examples"),
		EstimatedEffort:      strOr(r, "estimated_effort", DefaultEstimatedEffort),
		Priority:             DefaultPriority,
		Tags:                 tagSet(r.Get("tags")),
		AffectedComponents:   strList(r.Get("affected_components")),
		RelatedIssues:        idList(r.Get("related_issues")),
		ConfidenceScore:      confidence(r.Get("confidence_score")),
	}

	if p := r.Get("priority"); p.Type == gjson.String {
		a.Priority = models.ParsePriority(p.Str)
	}
	return a, nil
}

func firstOf(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// str returns the field as the model wrote it; absent or non-string is ""
func str(r gjson.Result, path string) string {
	return strOr(r, path, "")
}

func strOr(r gjson.Result, path, def string) string {
	v := r.Get(path)
	if v.Type != gjson.String {
		return def
	}
	return v.Str
}

// strList keeps the string elements of an array in order; anything else is empty
func strList(v gjson.Result) []string {
	out := []string{}
	if !v.IsArray() {
		return out
	}
	for _, el := range v.Array() {
		if el.Type == gjson.String {
			out = append(out, el.Str)
		}
	}
	return out
}

// tagSet deduplicates case-insensitively, keeping first-seen order
func tagSet(v gjson.Result) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range strList(v) {
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// idList accepts string or numeric identifiers
func idList(v gjson.Result) []string {
	out := []string{}
	if !v.IsArray() {
		return out
	}
	for _, el := range v.Array() {
		switch el.Type {
		case gjson.String:
			out = append(out, el.Str)
		case gjson.Number:
			out = append(out, el.Raw)
		}
	}
	return out
}

func confidence(v gjson.Result) float64 {
	if v.Type != gjson.Number {
		return 0
	}
	f := v.Num
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// compact is used in logs so multi-line completions stay on one line
func compact(s string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}
