package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/sentryai/internal/config"
	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/logging"
	"github.com/rohankatakam/sentryai/internal/output"
)

var (
	// Set via ldflags during build
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile    string
	verbose    bool
	outputFlag string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if e, ok := errors.As(err); ok && verbose {
			fmt.Fprintln(os.Stderr, e.DetailedString())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sentryai",
	Short: "SentryAI - AI analysis for Sentry issues",
	Long: `SentryAI fetches Sentry issues and produces a structured analysis:
root cause, reproduction steps, suggested fix and priority.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			if cfgFile != "" {
				return err
			}
			cfg = config.Default()
		}
		return logging.Initialize(loggingConfig(cfg, verbose))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.sentryai/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "output format: quiet, standard, explain, json")

	rootCmd.SetVersionTemplate(fmt.Sprintf(`SentryAI %s
Build time: %s
Git commit: %s
`, Version, BuildTime, GitCommit))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(issuesCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SentryAI %s\nBuild time: %s\nGit commit: %s\n", Version, BuildTime, GitCommit)
	},
}

// loggingConfig starts from the verbose default and applies the config file's level, sink and format
func loggingConfig(cfg *config.Config, verbose bool) logging.Config {
	lc := logging.DefaultConfig(verbose)
	if cfg.Logging.File != "" {
		lc = logging.ProductionConfig(cfg.Logging.File)
	}
	if !verbose && cfg.Logging.Level != "" {
		lc.Level = logging.ParseLevel(cfg.Logging.Level)
	}
	if cfg.Logging.JSON {
		lc.JSONFormat = true
	}
	return lc
}

func formatter() (output.Formatter, error) {
	level, err := output.ParseVerbosity(outputFlag)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(level), nil
}
