package main

import (
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
	"github.com/rohankatakam/sentryai/internal/orchestrator"
	"github.com/rohankatakam/sentryai/internal/storage"
)

var (
	workspaceID string
	asyncRun    bool
	listStatus  string
	listLimit   int
	listOffset  int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <issue-id>",
	Short: "Analyze a Sentry issue",
	Long: `Fetch the issue from Sentry, ask the model for an analysis and store the result.
If an analysis for the issue is already running, that record is returned instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var getCmd = &cobra.Command{
	Use:   "get <analysis-id>",
	Short: "Show an analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.orch.GetAnalysis(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(rec)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a workspace's analyses, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.orch.ListAnalyses(cmd.Context(), workspaceID, storage.ListOptions{
			Status: models.Status(listStatus),
			Limit:  listLimit,
			Offset: listOffset,
		})
		if err != nil {
			return err
		}

		f, err := formatter()
		if err != nil {
			return err
		}
		return f.FormatList(recs, os.Stdout)
	},
}

var openCmd = &cobra.Command{
	Use:   "open <analysis-id>",
	Short: "Open the analyzed issue in Sentry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.orch.GetAnalysis(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rec.Issue == nil || rec.Issue.Permalink == "" {
			return errors.NotFoundErrorf("analysis %s has no issue link (status %s)", rec.ID, rec.Status)
		}

		fmt.Printf("🌐 Opening %s\n", rec.Issue.Permalink)
		return browser.OpenURL(rec.Issue.Permalink)
	},
}

func init() {
	for _, c := range []*cobra.Command{analyzeCmd, listCmd} {
		c.Flags().StringVarP(&workspaceID, "workspace", "w", "default", "workspace id")
	}
	analyzeCmd.Flags().BoolVar(&asyncRun, "async", false, "return once the analysis is processing")

	listCmd.Flags().StringVar(&listStatus, "status", "", "only pending, processing, completed or failed")
	listCmd.Flags().IntVar(&listLimit, "limit", storage.DefaultListLimit, "page size")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "records to skip")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := a.workspaces.Credentials(ctx, workspaceID)
	if err != nil {
		return err
	}

	req := orchestrator.StartRequest{WorkspaceID: workspaceID, IssueID: args[0], Credentials: creds}
	start := a.orch.StartAnalysis
	if asyncRun {
		// prints the processing record; Close waits for the run before exit
		start = a.orch.StartAnalysisAsync
	}

	res, err := start(ctx, req)
	if err != nil {
		return err
	}
	if !res.Created {
		fmt.Fprintf(os.Stderr, "ℹ️  Analysis %s is already %s for this issue\n", res.Record.ID, res.Record.Status)
	}
	if err := render(res.Record); err != nil {
		return err
	}
	if res.Record.Status == models.StatusFailed {
		return fmt.Errorf("analysis failed: %s", res.Record.FailureReason)
	}
	return nil
}

func render(rec *models.AnalysisRecord) error {
	f, err := formatter()
	if err != nil {
		return err
	}
	return f.Format(rec, os.Stdout)
}
