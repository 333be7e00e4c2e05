package cmd

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var migrateDryRun bool

// sessionStoreMigration creates the backing table a Redis-less deployment
// could fall back to for session persistence; the runtime itself always
// reads/writes sessions through internal/sessionstore's cache.Cache
// interface, but this table gives operators a durable, queryable record.
const sessionStoreMigration = `CREATE TABLE IF NOT EXISTS webdsl_sessions (
	id TEXT PRIMARY KEY,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
	expires_at TIMESTAMP WITH TIME ZONE NOT NULL
)`

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the session store's backing table",
		Long: `migrate applies a fixed, embedded CREATE TABLE IF NOT EXISTS statement
for the session store's backing table. Use --dry-run to print it without
applying it.`,
		RunE: runMigrate,
	}
	cmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "print the migration without applying it")
	cmd.Flags().StringVar(&serveDatabaseURL, "database-url", "", "Postgres connection string")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateDryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Dry run: would apply:")
		fmt.Fprintln(cmd.OutOrStdout(), sessionStoreMigration)
		return nil
	}
	if serveDatabaseURL == "" {
		return fmt.Errorf("migrate: --database-url is required without --dry-run")
	}

	db, err := sql.Open("postgres", serveDatabaseURL)
	if err != nil {
		return fmt.Errorf("migrate: opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(sessionStoreMigration); err != nil {
		return fmt.Errorf("migrate: applying migration: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Migration applied successfully")
	return nil
}
