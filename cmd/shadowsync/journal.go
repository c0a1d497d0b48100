package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
	"github.com/nerrad567/shadowsync/internal/infrastructure/database"
	"github.com/nerrad567/shadowsync/internal/journal"
	"github.com/nerrad567/shadowsync/migrations"
)

// journalOptions holds flags for the journal subcommands.
type journalOptions struct {
	*rootOptions
	Key       string
	Limit     int
	OlderThan time.Duration
}

func newJournalCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &journalOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect or prune the local delta journal",
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Print journalled deltas, newest first",
		Long: `History prints the deltas applied to this device as JSON lines.

Example:
  shadowsync journal history --key heater --limit 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJournal(cmd.Context(), opts.ConfigPath, func(cfg *config.Config, repo journal.Repository) error {
				return printHistory(cmd.Context(), cmd.OutOrStdout(), repo, cfg.Device.ThingName, opts.Key, opts.Limit)
			})
		},
	}
	history.Flags().StringVar(&opts.Key, "key", "", "only deltas for this key")
	history.Flags().IntVar(&opts.Limit, "limit", 50, "maximum rows (1-500)")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal rows older than a duration",
		Long: `Prune removes delta and ack rows older than --older-than.

Example:
  shadowsync journal prune --older-than 720h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJournal(cmd.Context(), opts.ConfigPath, func(_ *config.Config, repo journal.Repository) error {
				n, err := repo.Prune(cmd.Context(), opts.OlderThan)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d rows\n", n)
				return err
			})
		},
	}
	prune.Flags().DurationVar(&opts.OlderThan, "older-than", 30*24*time.Hour, "age of the oldest row to keep")

	cmd.AddCommand(history, prune, newMigrateCommand(rootOpts))
	return cmd
}

func newMigrateCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Show or revert the journal schema",
	}

	status := &cobra.Command{
		Use:           "status",
		Short:         "List applied and pending journal migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), rootOpts.ConfigPath, func(_ *config.Config, db *database.DB) error {
				return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), db)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent journal migration",
		Long: `Down reverts the newest applied migration. The agent re-applies it on
its next start, so stop the agent first.

Example:
  shadowsync journal migrate down`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), rootOpts.ConfigPath, func(_ *config.Config, db *database.DB) error {
				if err := db.Rollback(cmd.Context(), migrations.FS, "."); err != nil {
					return fmt.Errorf("reverting migration: %w", err)
				}
				return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), db)
			})
		},
	}

	cmd.AddCommand(status, down)
	return cmd
}

// withDatabase opens the configured database for fn without migrating it.
func withDatabase(ctx context.Context, configPath string, fn func(*config.Config, *database.DB) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Nothing useful to do on close failure

	return fn(cfg, db)
}

// withJournal opens and migrates the configured database for fn. The
// database is used even when the agent's journal is disabled.
func withJournal(ctx context.Context, configPath string, fn func(*config.Config, journal.Repository) error) error {
	return withDatabase(ctx, configPath, func(cfg *config.Config, db *database.DB) error {
		if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		return fn(cfg, journal.NewSQLiteRepository(db.DB))
	})
}

func printMigrationStatus(ctx context.Context, w io.Writer, db *database.DB) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, r := range applied {
		if _, err := fmt.Fprintf(w, "applied %s %s\n", r.Version, r.AppliedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	for _, m := range pending {
		if _, err := fmt.Fprintf(w, "pending %s %s\n", m.Version, m.Name); err != nil {
			return err
		}
	}
	return nil
}

func printHistory(ctx context.Context, w io.Writer, repo journal.Repository, thing, key string, limit int) error {
	entries, err := repo.DeltaHistory(ctx, thing, key, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
