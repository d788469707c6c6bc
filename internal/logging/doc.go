// Package logging provides structured logging utilities for megasecretaria.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "calendar.create")
//	logger.Info("event created",
//	    logging.EventID(id),
//	    logging.Status(logging.StatusSuccess))
//
// Never log a raw phone number; hash it:
//
//	logger.Info("message queued", logging.SenderHash(number))
//
// # Security Considerations
//
//   - Sender phone numbers are hashed to prevent PII leakage while allowing correlation
//   - API keys and OAuth tokens are never logged directly, use SanitizeToken
package logging
