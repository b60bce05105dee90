package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/migsafe/migsafe/internal/cli"
	"github.com/migsafe/migsafe/pkg/ledger"
)

var (
	reconcileDB            string
	reconcileMigrationsDir string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile NAME...",
	Short: "Write reviewed checksums into the ledger",
	Long: `Recompute the checksum of each named migration from its file on disk
and write it into the migration ledger. Run this after reviewing a
drift report and confirming the on-disk content is the intended one.`,
	Example: `  # Accept the on-disk content of one migration
  migsafe reconcile 20260101120000_add_users

  # Accept several at once
  migsafe reconcile 20260101120000_add_users 20260102090000_add_index`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		migrationsDir := resolveString(reconcileMigrationsDir, cfg.MigrationsDir)

		dsn, err := resolveDSN(reconcileDB)
		if err != nil {
			return err
		}

		return runReconcile(cmd, dsn, migrationsDir, args)
	},
}

func init() {
	f := reconcileCmd.Flags()
	f.StringVar(&reconcileDB, "db", "", "database URL")
	f.StringVar(&reconcileMigrationsDir, "migrations-dir", "", "migration directory root")
}

func runReconcile(cmd *cobra.Command, dsn, migrationsDir string, names []string) error {
	// Validate all inputs before touching the ledger.
	sources := make(map[string][]byte, len(names))
	for _, name := range names {
		path := filepath.Join(migrationsDir, name, "migration.sql")
		data, err := os.ReadFile(path)
		if err != nil {
			return cli.ValidationError(fmt.Sprintf("reading migration %s", name), err)
		}
		sources[name] = data
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return cli.LedgerError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	rec := &ledger.Reconciler{Client: ledger.NewClient(db), Out: os.Stdout}

	failed := 0
	for _, name := range names {
		dir := filepath.Join(migrationsDir, name)
		if err := rec.Reconcile(cmd.Context(), dir, sources[name]); err != nil {
			fmt.Fprintf(os.Stderr, "error: reconciling %s: %v\n", name, err)
			failed++
		}
	}

	if failed > 0 {
		return cli.LedgerError(fmt.Sprintf("%d of %d reconciliations failed", failed, len(names)), nil)
	}
	return nil
}
