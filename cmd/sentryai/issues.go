package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/sentryai/internal/sentry"
)

var (
	issuesQuery   string
	issuesProject string
	issuesPeriod  string
	issuesLimit   int
	issuesCursor  string
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List Sentry issues available for analysis",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		page, err := a.tracker.ListIssues(ctx, creds, sentry.ListIssuesOptions{
			Project:     issuesProject,
			Query:       issuesQuery,
			StatsPeriod: issuesPeriod,
			Cursor:      issuesCursor,
			Limit:       issuesLimit,
		})
		if err != nil {
			return err
		}

		if len(page.Issues) == 0 {
			fmt.Println("No issues found")
			return nil
		}
		for _, issue := range page.Issues {
			fmt.Printf("%-12s  %-7s  %6d events  %5d users  %s  %s\n",
				issue.ID, issue.Level, issue.Count, issue.UserCount,
				issue.LastSeen.Local().Format(time.DateTime), issue.Title)
		}
		if page.NextCursor != "" {
			fmt.Printf("\nMore results: sentryai issues --cursor %s\n", page.NextCursor)
		}
		return nil
	},
}

func init() {
	issuesCmd.Flags().StringVarP(&workspaceID, "workspace", "w", "default", "workspace id")
	issuesCmd.Flags().StringVarP(&issuesQuery, "query", "q", "is:unresolved", "Sentry search query")
	issuesCmd.Flags().StringVar(&issuesProject, "project", "", "numeric project id")
	issuesCmd.Flags().StringVar(&issuesPeriod, "period", "24h", "stats period (24h, 14d)")
	issuesCmd.Flags().IntVar(&issuesLimit, "limit", 25, "page size")
	issuesCmd.Flags().StringVar(&issuesCursor, "cursor", "", "page cursor from a previous listing")
}
