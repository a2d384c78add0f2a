package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seolwon/ivscreen/internal/pipeline"
	"github.com/seolwon/ivscreen/pkg/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create database schemas",
	Long: `Applies the run-output schema to Postgres and the volatility
history schema to ClickHouse. Both are idempotent (CREATE IF NOT
EXISTS).

Example:
  go run ./cmd/screener migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ivscreen schema migration ===")

	ctx := cmd.Context()

	cfg, log, err := initDeps()
	if err != nil {
		return err
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	repo := pipeline.NewPostgresRunRepository(db.Pool)
	if err := repo.InitSchema(ctx); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	fmt.Println("Postgres run tables ready")

	// The history store constructor applies its own schema.
	_, closeStore, err := openHistoryStore(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer closeStore()
	fmt.Println("ClickHouse history tables ready")

	return nil
}
