package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/migsafe/migsafe/internal/cli"
	"github.com/migsafe/migsafe/pkg/safety"
)

var (
	scanPath      string
	scanRulesFile string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan migrations for destructive index changes",
	Long: `Scan migration SQL files for drops of protected indexes that are not
recreated in the same file. Intended as a CI gate: a non-zero exit
blocks the merge until the migration recreates the index or the rule
is removed.`,
	Example: `  # Scan the configured migrations directory
  migsafe scan

  # Scan a specific directory
  migsafe scan --path db/migrations`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveString(scanPath, cfg.ScanPath())
		rulesFile := resolveString(scanRulesFile, cfg.RulesFile)

		return runScan(path, rulesFile)
	},
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanPath, "path", "", "directory to scan (default: migrations dir)")
	f.StringVar(&scanRulesFile, "rules", "", "path to the JSON rules file")
}

func runScan(path, rulesFile string) error {
	set := loadRules(rulesFile)

	if !quiet {
		fmt.Println("migsafe scan - Migration Safety Check")
	}

	report, err := safety.Scan(path, set.ProtectedIndexes())
	if err != nil {
		return cli.GeneralError("scanning migrations", err)
	}

	report.Print(os.Stdout)

	if report.HasViolations() {
		return cli.FindingsError("protected index violations found")
	}
	return nil
}
