package main

import (
	"github.com/spf13/cobra"

	"github.com/migsafe/migsafe/internal/cli"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *cli.Config
	configPath string

	// Persistent flags
	cfgFile string
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "migsafe",
	Short: "Safe Prisma migration workflow",
	Long: `migsafe - Safe Prisma migration workflow

Migsafe wraps Prisma's declarative migration flow with a safety layer:
it sanitizes generated migrations against a rules file, detects checksum
drift between the migration ledger and the files on disk, and gates CI
on destructive index changes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help/completion/version commands
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}

		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

// Command group IDs
const (
	groupMigration = "migration"
	groupAudit     = "audit"
	groupUtility   = "utility"
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover migsafe.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	// Define command groups
	rootCmd.AddGroup(
		&cobra.Group{ID: groupMigration, Title: "Migration:"},
		&cobra.Group{ID: groupAudit, Title: "Audit:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	// Migration commands
	createCmd.GroupID = groupMigration
	reconcileCmd.GroupID = groupMigration
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(reconcileCmd)

	// Audit commands
	driftCmd.GroupID = groupAudit
	scanCmd.GroupID = groupAudit
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(scanCmd)

	// Utility commands
	configCmd.GroupID = groupUtility
	versionCmd.GroupID = groupUtility
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.ExitWithError(err)
	}
}

// resolveString returns the first non-empty string from the provided values.
// Used to implement precedence: flag > config > default.
func resolveString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveDSN resolves the ledger connection string with flag precedence.
func resolveDSN(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("resolving database", err)
	}
	return dsn, nil
}
