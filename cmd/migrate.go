package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		db, err := database.New(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			return err
		}
		fmt.Println("Migrations applied.")
		return nil
	},
}
