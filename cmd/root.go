package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/megasecretaria/megasecretaria/internal/logging"
)

var (
	debugMode  bool
	logFormat  string
	configPath string
	envFile    string
)

// rootCmd represents the base command for the megasecretaria application
var rootCmd = &cobra.Command{
	Use:   "megasecretaria",
	Short: "WhatsApp secretary that manages a Google Calendar",
	Long: `megasecretaria is a conversational assistant that turns WhatsApp messages
into Google Calendar operations: creating, listing, updating and deleting
events and checking availability.

It receives messages from an Evolution API gateway webhook, asks a language
model what to do, confirms conflicting bookings with the sender and replies
through the same gateway.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, logFormat, debugMode)))
		return nil
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "megasecretaria version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML file with assistant settings (persona, timezone, budgets)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before reading environment variables")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newVersionCmd())
}
