package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending schema migrations to the database named by DATABASE_URL.
Both postgres:// and mysql:// URLs are supported. Already applied migrations
are skipped, so the command is safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	backend, err := openBackend(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer backend.Close()

	applied, err := backend.AppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list applied migrations: %w", err)
	}
	for _, name := range applied {
		fmt.Printf("  %s\n", name)
	}
	fmt.Printf("Schema up to date (%d migrations applied)\n", len(applied))
	return nil
}
