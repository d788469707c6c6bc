package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/megasecretaria/megasecretaria/internal/config"
	"github.com/megasecretaria/megasecretaria/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		databasePath string
		sender       string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored conversation turns",
		Long: `Print the conversation turns stored for a sender, oldest first.

Without --sender, the senders that have stored turns are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveDatabasePath(cmd, databasePath)
			store, err := history.Open(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("failed to open history database %s: %w", path, err)
			}
			defer func() { _ = store.Close() }()

			return printHistory(cmd.Context(), cmd.OutOrStdout(), store, sender, limit)
		},
	}

	cmd.Flags().StringVar(&databasePath, "database-path", config.DefaultDatabasePath, "SQLite conversation history file. Can also use DATABASE_PATH env var.")
	cmd.Flags().StringVar(&sender, "sender", "", "Phone number whose conversation to print")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of turns to print")

	return cmd
}

func printHistory(ctx context.Context, out io.Writer, store *history.Store, sender string, limit int) error {
	if sender == "" {
		senders, err := store.Senders(ctx)
		if err != nil {
			return err
		}
		if len(senders) == 0 {
			fmt.Fprintln(out, "No conversations stored.")
			return nil
		}
		for _, s := range senders {
			fmt.Fprintln(out, s)
		}
		return nil
	}

	entries, err := store.Read(ctx, sender, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No turns stored for %s.\n", sender)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Direction, e.Text)
	}
	return w.Flush()
}

// resolveDatabasePath applies DATABASE_PATH unless the flag was set.
func resolveDatabasePath(cmd *cobra.Command, flagValue string) string {
	if !cmd.Flags().Changed("database-path") {
		if path := os.Getenv("DATABASE_PATH"); path != "" {
			return path
		}
	}
	return flagValue
}
