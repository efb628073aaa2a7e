// Package main provides a CLI tool for copying OncoDerma data from SQLite to
// MySQL, for installations that outgrow the single-file database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (can be set via ldflags during build)
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "dbexport",
		Short: "Export OncoDerma data from SQLite to MySQL",
		Long: `Copy users, profiles and scan history from an OncoDerma SQLite database
into MySQL.

Original IDs are preserved so stored image paths and session cookies stay
valid. Rows that already exist in the target are skipped, which makes the
export safe to re-run.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "dbexport version %s\n", version)
				return err
			}
			return runExport(cmd, &cfg)
		},
	}

	// Source database flags
	cmd.Flags().StringVar(&cfg.SQLitePath, "sqlite-path", "", "Path to source SQLite database file")

	// Target database flags - DSN or individual components
	cmd.Flags().StringVar(&cfg.MySQLDSN, "mysql-dsn", "", "MySQL connection string (e.g., user:pass@tcp(host:3306)/dbname)")
	cmd.Flags().StringVar(&cfg.MySQL.Host, "mysql-host", "", "MySQL host (alternative to DSN)")
	cmd.Flags().StringVar(&cfg.MySQL.Port, "mysql-port", "3306", "MySQL port")
	cmd.Flags().StringVar(&cfg.MySQL.Username, "mysql-user", "oncoderma", "MySQL username")
	cmd.Flags().StringVar(&cfg.MySQL.Password, "mysql-pass", "", "MySQL password")
	cmd.Flags().StringVar(&cfg.MySQL.Database, "mysql-database", "oncoderma", "MySQL database name")

	// Migration options
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 1000, "Number of records per batch")
	cmd.Flags().BoolVar(&cfg.Clean, "clean", false, "Empty target tables before export")
	cmd.Flags().BoolVar(&cfg.AutoMigrate, "auto-migrate", true, "Create tables in the target database before export")
	cmd.Flags().BoolVar(&cfg.SkipVerify, "skip-verify", false, "Skip post-export verification")
	cmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose output")

	// Config file fallback
	cmd.Flags().StringVar(&cfg.ConfigPath, "config", "", "Path to config.yaml (for connection fallback)")

	cmd.Flags().BoolP("version", "v", false, "Print version information")

	return cmd
}

func runExport(cmd *cobra.Command, cfg *Config) error {
	out := cmd.OutOrStdout()

	if err := cfg.Load(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cfg.Verbose {
		fmt.Fprintf(out, "Source: %s\n", cfg.SQLitePath)
		fmt.Fprintf(out, "Target: %s\n", cfg.SanitizedMySQLDSN())
		fmt.Fprintf(out, "Batch size: %d\n", cfg.BatchSize)
		fmt.Fprintf(out, "Clean mode: %v\n", cfg.Clean)
	}

	migrator, err := NewMigrator(cfg, out)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	defer migrator.Close()

	stats, err := migrator.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	stats.Print(out)

	if !cfg.SkipVerify {
		fmt.Fprintln(out, "\n--- Verification ---")
		verifier := NewVerifier(migrator.sourceDB, migrator.targetDB, out)
		if err := verifier.Verify(cmd.Context()); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Fprintln(out, "Verification passed!")
	}

	return nil
}
