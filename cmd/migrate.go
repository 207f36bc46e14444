package cmd

import (
	"rollbook/internal/adapter/outbound/repository"
	"rollbook/internal/application/common/slogger"

	"github.com/spf13/cobra"
)

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Create the rollbook schema with the courses, attendees and archived_attendees
tables and their indexes. Statements are idempotent and safe to re-run.

Configuration for database connection is loaded from config files and environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := setupDatabaseConnection(ctx, GetConfig())
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := repository.ApplySchema(ctx, pool)
			if err != nil {
				return err
			}
			slogger.Info(ctx, "Database schema applied", slogger.Field("statements", applied))
			return nil
		},
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newMigrateCmd())
}
