package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/internal/database"
	"github.com/gitpulse/gitpulse-indexer/internal/gitlocal"
	"github.com/gitpulse/gitpulse-indexer/internal/indexer"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/internal/token"
	"github.com/gitpulse/gitpulse-indexer/models"
)

var (
	indexRepo   string
	indexEntity string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run one pipeline window for one repository (one-shot)",
	Long: `Runs a single pipeline window synchronously and prints the outcome as
JSON. Useful for backfilling a fresh repository or debugging a pipeline
without the daemon.

Examples:
  gitpulse index --repo acme/billing --entity commits
  gitpulse index --repo acme/billing --entity codeql_vulnerabilities`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexRepo, "repo", "", "Repository as owner/name (required)")
	indexCmd.Flags().StringVar(&indexEntity, "entity", string(models.EntityCommits),
		"Entity to index: commits|pull_requests|releases|deployments|codeql_vulnerabilities")
	_ = indexCmd.MarkFlagRequired("repo")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	entity := models.Entity(indexEntity)
	valid := false
	for _, e := range models.AllEntities {
		if e == entity {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown entity %q", indexEntity)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	st := store.New(db)
	repo, err := st.GetRepositoryByFullName(ctx, indexRepo)
	if err != nil {
		return fmt.Errorf("repository %q is not registered (use 'gitpulse repos add'): %w", indexRepo, err)
	}

	broker := token.NewBroker(cfg.GitHub, st)
	ix := indexer.New(cfg, st, broker, gitlocal.New(cfg, st))

	result := ix.Run(ctx, entity, repo.ID)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
