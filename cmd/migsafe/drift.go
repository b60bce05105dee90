package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/migsafe/migsafe/internal/cli"
	"github.com/migsafe/migsafe/pkg/drift"
	"github.com/migsafe/migsafe/pkg/ledger"
)

var (
	driftDB            string
	driftMigrationsDir string
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Detect checksum drift between the ledger and disk",
	Long: `Compare the checksum recorded in the migration ledger against the
checksum of each migration file on disk. Drift means a migration was
edited after it was applied; a missing file means the ledger references
a migration that no longer exists.`,
	Example: `  # Check for drift
  migsafe drift --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		migrationsDir := resolveString(driftMigrationsDir, cfg.MigrationsDir)

		dsn, err := resolveDSN(driftDB)
		if err != nil {
			return err
		}

		return runDrift(cmd, dsn, migrationsDir)
	},
}

func init() {
	f := driftCmd.Flags()
	f.StringVar(&driftDB, "db", "", "database URL")
	f.StringVar(&driftMigrationsDir, "migrations-dir", "", "migration directory root")
}

func runDrift(cmd *cobra.Command, dsn, migrationsDir string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return cli.LedgerError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	if !quiet {
		fmt.Println("migsafe drift - Checksum Audit")
	}

	report, err := drift.Detect(cmd.Context(), ledger.NewClient(db), migrationsDir)
	if err != nil {
		return cli.LedgerError("reading migration ledger", err)
	}

	report.Print(os.Stdout)

	if !report.Clean() {
		return cli.FindingsError("checksum drift detected")
	}
	return nil
}
