package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/internal/database"
	"github.com/gitpulse/gitpulse-indexer/internal/store"
	"github.com/gitpulse/gitpulse-indexer/models"
)

var (
	repoCloneURL string
	repoPrivate  bool
	repoOwnerID  int64
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage the indexed repository set",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeDB, err := openStore()
		if err != nil {
			return err
		}
		defer closeDB()

		repos, err := st.ListRepositories(context.Background())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tREPOSITORY\tPRIVATE\tINDEXED")
		for _, r := range repos {
			fmt.Fprintf(w, "%d\t%s\t%v\t%v\n", r.ID, r.FullName, r.Private, r.IsIndexed)
		}
		return w.Flush()
	},
}

var reposAddCmd = &cobra.Command{
	Use:   "add <owner/name>",
	Short: "Register one repository for indexing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeDB, err := openStore()
		if err != nil {
			return err
		}
		defer closeDB()

		repo := &models.Repository{
			FullName: args[0],
			CloneURL: repoCloneURL,
			Private:  repoPrivate,
			OwnerID:  repoOwnerID,
		}
		if repo.CloneURL == "" {
			repo.CloneURL = fmt.Sprintf("https://github.com/%s.git", repo.FullName)
		}
		if err := st.UpsertRepository(context.Background(), repo); err != nil {
			return err
		}
		fmt.Printf("Registered %s\n", repo.FullName)
		return nil
	},
}

// repoSeed is one entry of the YAML import file.
type repoSeed struct {
	FullName      string `yaml:"full_name"`
	CloneURL      string `yaml:"clone_url"`
	DefaultBranch string `yaml:"default_branch"`
	Private       bool   `yaml:"private"`
	OwnerID       int64  `yaml:"owner_id"`
}

var reposImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Register repositories in bulk from a YAML file",
	Long: `Reads a YAML list of repositories and registers each one. Entries look
like:

  - full_name: acme/billing
    clone_url: https://github.com/acme/billing.git
    private: true
    owner_id: 42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		var seeds []repoSeed
		if err := yaml.Unmarshal(data, &seeds); err != nil {
			return fmt.Errorf("parsing seed file: %w", err)
		}

		st, closeDB, err := openStore()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx := context.Background()
		imported := 0
		for _, seed := range seeds {
			repo := &models.Repository{
				FullName:      seed.FullName,
				CloneURL:      seed.CloneURL,
				DefaultBranch: seed.DefaultBranch,
				Private:       seed.Private,
				OwnerID:       seed.OwnerID,
			}
			if repo.CloneURL == "" {
				repo.CloneURL = fmt.Sprintf("https://github.com/%s.git", repo.FullName)
			}
			if err := st.UpsertRepository(ctx, repo); err != nil {
				fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", seed.FullName, err)
				continue
			}
			imported++
		}
		fmt.Printf("Imported %d of %d repositories.\n", imported, len(seeds))
		return nil
	},
}

func init() {
	reposAddCmd.Flags().StringVar(&repoCloneURL, "clone-url", "", "Clone URL (defaults to the GitHub HTTPS URL)")
	reposAddCmd.Flags().BoolVar(&repoPrivate, "private", false, "Mark the repository private")
	reposAddCmd.Flags().Int64Var(&repoOwnerID, "owner-id", 0, "Owner id used for OAuth credential lookup")
	reposCmd.AddCommand(reposListCmd, reposAddCmd, reposImportCmd)
}

// openStore opens the configured database and wraps it in a store. The
// returned func closes the underlying handle.
func openStore() (*store.Store, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}
	return store.New(db), func() { db.Close() }, nil
}
