package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/sentryai/internal/config"
	"github.com/rohankatakam/sentryai/internal/models"
)

var (
	wsName   string
	wsCreds  models.WorkspaceCredentials
	wsPrompt bool
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces and their credentials",
}

var workspaceSetCmd = &cobra.Command{
	Use:   "set <workspace-id>",
	Short: "Create or update a workspace",
	Long: `Store credentials for a workspace. Fields left empty keep their current
value; fields unset everywhere fall back to the process defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		creds := wsCreds
		if wsPrompt {
			cm := config.NewCredentialManager()
			if creds.SentryToken == "" {
				if creds.SentryToken, err = cm.PromptSecret("Sentry auth token"); err != nil {
					return err
				}
			}
			if creds.OpenAIKey == "" {
				if creds.OpenAIKey, err = cm.PromptSecret("OpenAI API key"); err != nil {
					return err
				}
			}
		}

		ws, err := a.workspaces.Save(ctx, args[0], wsName, creds)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Workspace %s saved\n", ws.ID)
		return nil
	},
}

var workspaceShowCmd = &cobra.Command{
	Use:   "show <workspace-id>",
	Short: "Show a workspace with secrets redacted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ws, err := a.workspaces.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := *ws
		out.Credentials = ws.Credentials.Redacted()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var workspaceTestCmd = &cobra.Command{
	Use:   "test <workspace-id>",
	Short: "Check that the workspace's Sentry credentials work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		creds, err := a.workspaces.Credentials(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("🔌 Connecting to Sentry organization %q...\n", creds.SentryOrganization)
		if err := a.tracker.TestConnection(ctx, creds); err != nil {
			fmt.Println("❌ Connection failed")
			return err
		}
		fmt.Println("✅ Sentry credentials work")

		if creds.OpenAIKey == "" {
			fmt.Println("⚠️  No OpenAI API key configured; analyses will fail with configuration_error")
		}
		return nil
	},
}

func init() {
	workspaceSetCmd.Flags().StringVar(&wsName, "name", "", "display name (default: the workspace id)")
	workspaceSetCmd.Flags().StringVar(&wsCreds.SentryOrganization, "sentry-org", "", "Sentry organization slug")
	workspaceSetCmd.Flags().StringVar(&wsCreds.SentryToken, "sentry-token", "", "Sentry auth token")
	workspaceSetCmd.Flags().StringVar(&wsCreds.OpenAIKey, "openai-key", "", "OpenAI API key")
	workspaceSetCmd.Flags().StringVar(&wsCreds.OpenAIModel, "model", "", "OpenAI model override")
	workspaceSetCmd.Flags().BoolVar(&wsPrompt, "prompt", false, "prompt for secrets not given as flags")

	workspaceCmd.AddCommand(workspaceSetCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
	workspaceCmd.AddCommand(workspaceTestCmd)
}
