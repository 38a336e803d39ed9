package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rohankatakam/sentryai/internal/config"
	"github.com/rohankatakam/sentryai/internal/logging"
)

func TestLoggingConfig(t *testing.T) {
	tests := []struct {
		name      string
		logging   config.LoggingConfig
		verbose   bool
		wantLevel logging.Level
		wantJSON  bool
		wantFile  string
	}{
		{"defaults", config.LoggingConfig{Level: "info"}, false, logging.INFO, false, ""},
		{"verbose wins over config level", config.LoggingConfig{Level: "warn"}, true, logging.DEBUG, false, ""},
		{"config level", config.LoggingConfig{Level: "warn"}, false, logging.WARN, false, ""},
		{"file sink is JSON", config.LoggingConfig{Level: "info", File: "/tmp/sentryai.log"}, false, logging.INFO, true, "/tmp/sentryai.log"},
		{"json to stderr", config.LoggingConfig{Level: "info", JSON: true}, false, logging.INFO, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default()
			c.Logging = tt.logging

			got := loggingConfig(c, tt.verbose)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantJSON, got.JSONFormat)
			assert.Equal(t, tt.wantFile, got.OutputFile)
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "analyze", "get", "list", "open", "issues", "workspace", "configure", "mcp", "version"} {
		assert.Contains(t, names, want)
	}
}
