package output

import (
	"os"
	"strings"

	"github.com/rohankatakam/sentryai/internal/errors"
)

// ParseVerbosity maps a --output flag value to a level
func ParseVerbosity(s string) (VerbosityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return GetDefaultVerbosity(), nil
	case "quiet", "q":
		return VerbosityQuiet, nil
	case "standard", "text":
		return VerbosityStandard, nil
	case "explain", "full":
		return VerbosityExplain, nil
	case "json":
		return VerbosityJSON, nil
	default:
		return VerbosityStandard, errors.ValidationErrorf("unknown output format %q (quiet, standard, explain, json)", s)
	}
}

// GetDefaultVerbosity returns appropriate default based on environment
func GetDefaultVerbosity() VerbosityLevel {
	// scripts and assistants ask for JSON explicitly
	if os.Getenv("SENTRYAI_OUTPUT") == "json" {
		return VerbosityJSON
	}
	if os.Getenv("CI") == "true" {
		return VerbosityQuiet
	}
	return VerbosityStandard
}
