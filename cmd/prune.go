package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/megasecretaria/megasecretaria/internal/config"
	"github.com/megasecretaria/megasecretaria/internal/history"
)

func newPruneCmd() *cobra.Command {
	var (
		databasePath string
		olderThan    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversation history older than a cutoff",
		Long: `Delete stored conversation turns older than --older-than.

The serve command prunes on a schedule already; this command is for
one-off cleanups, e.g. from a cron job when serve runs with pruning off.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive, got %s", olderThan)
			}

			path := resolveDatabasePath(cmd, databasePath)
			store, err := history.Open(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("failed to open history database %s: %w", path, err)
			}
			defer func() { _ = store.Close() }()

			pruner, err := history.NewPruner(store, olderThan, config.DefaultPruneSchedule, slog.Default())
			if err != nil {
				return err
			}
			n, err := pruner.PruneNow(cmd.Context())
			if err != nil {
				return fmt.Errorf("error pruning history: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d turns older than %s\n", n, olderThan)
			return nil
		},
	}

	cmd.Flags().StringVar(&databasePath, "database-path", config.DefaultDatabasePath, "SQLite conversation history file. Can also use DATABASE_PATH env var.")
	cmd.Flags().DurationVar(&olderThan, "older-than", config.DefaultHistoryRetention, "Delete turns older than this duration")

	return cmd
}
