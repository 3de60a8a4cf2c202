package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gitpulse",
	Short: "Incremental engineering-telemetry indexer for GitHub-compatible hosts",
	Long: `gitpulse continuously pulls commits, pull requests, releases, deployments
and code-scanning alerts from a GitHub-compatible API, normalizes them and
persists them for downstream analytics. Indexing is incremental per
repository and entity, survives rate limits and partial failure, and
converges to a complete historical snapshot without intervention.

Get started:
  gitpulse migrate    Apply database migrations
  gitpulse repos      Manage the indexed repository set
  gitpulse index      Run one pipeline for one repository (one-shot)
  gitpulse agent      Run the persistent indexing daemon`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.gitpulse/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		agentCmd,
		indexCmd,
		migrateCmd,
		reposCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
