package logging

import (
	"log/slog"
)

// SchedulerAdapter exposes an slog.Logger with the Info/Error(err, ...) shape
// expected by job schedulers such as robfig/cron.
type SchedulerAdapter struct {
	logger *slog.Logger
}

// NewSchedulerAdapter wraps logger; nil means slog.Default().
func NewSchedulerAdapter(logger *slog.Logger) *SchedulerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchedulerAdapter{logger: logger}
}

// Info logs routine scheduler activity at debug level; cron is chatty.
func (a *SchedulerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

// Error logs a scheduler failure.
func (a *SchedulerAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{Err(err)}, keysAndValues...)
	a.logger.Error(msg, args...)
}
