// Package cmd implements the command-line interface for megasecretaria.
//
// This package provides the following commands:
//   - serve: Receive WhatsApp webhooks and answer them as the calendar assistant
//   - auth: Authorize Google Calendar access and store the OAuth token
//   - history: Print stored conversation turns
//   - prune: Delete conversation history older than a cutoff
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
