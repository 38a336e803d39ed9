package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/sentryai/internal/config"
	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup wizard (with OS keychain support)",
	Long: `Walk through SentryAI configuration step-by-step.

This will configure:
1. Sentry organization and auth token
2. OpenAI API key and model
3. Storage backend (sqlite, postgres or bolt)

Secrets go to the OS keychain when available, otherwise to
~/.sentryai/credentials.yaml (mode 0600). They are never written to config.yaml.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if !config.IsInteractive() {
		return errors.ConfigError("configure needs an interactive terminal; set SENTRY_API_TOKEN and OPENAI_API_KEY instead")
	}

	fmt.Println("🔧 SentryAI Configuration Wizard")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	cm := config.NewCredentialManager()
	current := cm.ResolveDefaults(cfg)
	var creds models.WorkspaceCredentials
	var err error

	fmt.Println("Step 1/3: Sentry")
	if creds.SentryOrganization, err = cm.Prompt("Organization slug", current.SentryOrganization); err != nil {
		return err
	}
	if current.SentryToken != "" {
		fmt.Println("   (leave empty to keep the current token)")
	}
	if creds.SentryToken, err = cm.PromptSecret("Auth token"); err != nil {
		return err
	}
	fmt.Println()

	fmt.Println("Step 2/3: OpenAI")
	if current.OpenAIKey != "" {
		fmt.Println("   (leave empty to keep the current key)")
	}
	if creds.OpenAIKey, err = cm.PromptSecret("API key"); err != nil {
		return err
	}
	model, err := cm.Prompt("Model", cfg.OpenAI.Model)
	if err != nil {
		return err
	}
	fmt.Println()

	fmt.Println("Step 3/3: Storage")
	driver, err := cm.Prompt("Driver (sqlite, postgres, bolt)", cfg.Storage.Driver)
	if err != nil {
		return err
	}
	switch driver {
	case "sqlite":
		if cfg.Storage.SQLitePath, err = cm.Prompt("Database file", cfg.Storage.SQLitePath); err != nil {
			return err
		}
	case "postgres":
		if cfg.Storage.PostgresDSN, err = cm.Prompt("Connection string", cfg.Storage.PostgresDSN); err != nil {
			return err
		}
	case "bolt":
		if cfg.Storage.BoltPath, err = cm.Prompt("Database file", cfg.Storage.BoltPath); err != nil {
			return err
		}
	default:
		return errors.ConfigErrorf("unknown storage driver %q", driver)
	}
	cfg.Storage.Driver = driver
	cfg.OpenAI.Model = model
	cfg.Sentry.Organization = creds.SentryOrganization
	fmt.Println()

	location, err := cm.Save(creds.Merge(current))
	if err != nil {
		return err
	}

	path := cfgFile
	if path == "" {
		path = filepath.Join(config.HomeDir(), "config.yaml")
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("✅ Secrets saved to %s\n", location)
	fmt.Printf("✅ Config saved to %s\n", path)
	fmt.Println()
	fmt.Println("Next: sentryai workspace test default")
	return nil
}
