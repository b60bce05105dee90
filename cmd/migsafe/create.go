package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/migsafe/migsafe/internal/cli"
	"github.com/migsafe/migsafe/internal/prisma"
	"github.com/migsafe/migsafe/pkg/create"
	"github.com/migsafe/migsafe/pkg/ledger"
	"github.com/migsafe/migsafe/pkg/rules"
)

var (
	createName          string
	createDB            string
	createMigrationsDir string
	createRulesFile     string
	createSchema        string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a sanitized migration draft",
	Long: `Create a migration draft without applying it, then sanitize the
generated SQL against the rules file. Statements matching an ignore
pattern are commented out with a removal marker and listed in the
report.

If the schema tool refuses to run without a terminal (typical in CI),
the draft is generated by diffing the live database directly against
the datamodel instead.`,
	Example: `  # Create a migration, prompting for a name
  migsafe create

  # Create a migration non-interactively
  migsafe create --name add_user_settings`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := resolveString(createName, cfg.Create.Name)
		migrationsDir := resolveString(createMigrationsDir, cfg.MigrationsDir)
		rulesFile := resolveString(createRulesFile, cfg.RulesFile)
		schemaPath := resolveString(createSchema, cfg.Prisma.Schema)

		return runCreate(cmd.Context(), name, migrationsDir, rulesFile, schemaPath)
	},
}

func init() {
	f := createCmd.Flags()
	f.StringVar(&createName, "name", "", "migration name (lowercase letters, digits, underscores)")
	f.StringVar(&createDB, "db", "", "database URL for checksum reconciliation")
	f.StringVar(&createMigrationsDir, "migrations-dir", "", "migration directory root")
	f.StringVar(&createRulesFile, "rules", "", "path to the JSON rules file")
	f.StringVar(&createSchema, "schema", "", "path to schema.prisma")
}

func runCreate(ctx context.Context, name, migrationsDir, rulesFile, schemaPath string) error {
	set := loadRules(rulesFile)

	// The ledger is optional for create: without one, sanitized rewrites of
	// already-applied migrations are simply left for a later reconcile.
	var reconciler *ledger.Reconciler
	dsn := createDB
	if dsn == "" {
		dsn, _ = cfg.DSN()
	}
	if dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			defer func() { _ = db.Close() }()
			reconciler = &ledger.Reconciler{Client: ledger.NewClient(db), Out: os.Stdout}
		}
	}

	tool := prisma.New(schemaPath, dsn)
	if len(cfg.Prisma.Command) > 0 {
		tool.Command = cfg.Prisma.Command
	}

	creator := &create.Creator{
		Tool:                    tool,
		MigrationsDir:           migrationsDir,
		Patterns:                set.IgnorePatterns(),
		Reconciler:              reconciler,
		Interactive:             isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
		IsNonInteractiveFailure: prisma.IsNonInteractiveFailure,
		IsEmptyScript:           prisma.IsEmptyScript,
	}

	if err := creator.Run(ctx, name); err != nil {
		var runErr *prisma.RunError
		if errors.As(err, &runErr) {
			return cli.ToolError("creating migration", err)
		}
		return cli.GeneralError("creating migration", err)
	}
	return nil
}

// loadRules loads the rules file, falling back to the built-in defaults with
// a warning when the file is missing or invalid. A bad rules file must never
// block migration work; it only weakens the safety net.
func loadRules(path string) rules.Set {
	set, err := rules.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; using built-in default rules\n", err)
	}
	return set
}
