package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/megasecretaria/megasecretaria/internal/logging"
)

// ActionInvocation captures one calendar mutation for the audit trail.
//
// # Privacy Considerations
//
// Sender holds a phone number. LogAttrs only emits its hash; LogAuditAttrs
// emits it in full and belongs in an access-controlled stream.
type ActionInvocation struct {
	Action  string
	Sender  string
	EventID string
	Summary string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewActionInvocation creates an ActionInvocation with timing started.
func NewActionInvocation(action, sender string) *ActionInvocation {
	return &ActionInvocation{
		Action:    action,
		Sender:    sender,
		StartTime: time.Now(),
	}
}

// WithEvent sets the affected event.
func (ai *ActionInvocation) WithEvent(id, summary string) *ActionInvocation {
	ai.EventID = id
	ai.Summary = summary
	return ai
}

// WithSpanContext copies trace identifiers from the span in ctx.
func (ai *ActionInvocation) WithSpanContext(ctx context.Context) *ActionInvocation {
	ai.TraceID = GetTraceID(ctx)
	ai.SpanID = GetSpanID(ctx)
	return ai
}

// Complete stops the clock and records the result.
func (ai *ActionInvocation) Complete(err error) *ActionInvocation {
	ai.Duration = time.Since(ai.StartTime)
	ai.Success = err == nil
	if err != nil {
		ai.Error = err.Error()
	}
	return ai
}

// Status returns "success" or "error" based on the Success field.
func (ai *ActionInvocation) Status() string {
	if ai.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns attributes safe for general logs (hashed sender).
func (ai *ActionInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", ai.Action),
		logging.SenderHash(ai.Sender),
		slog.Duration("duration", ai.Duration),
		slog.Bool("success", ai.Success),
	}
	return ai.appendOptional(attrs)
}

// LogAuditAttrs returns attributes including the raw sender number.
func (ai *ActionInvocation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", ai.Action),
		slog.String("sender", ai.Sender),
		slog.Duration("duration", ai.Duration),
		slog.Bool("success", ai.Success),
	}
	attrs = ai.appendOptional(attrs)
	if ai.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ai.SpanID))
	}
	return attrs
}

func (ai *ActionInvocation) appendOptional(attrs []slog.Attr) []slog.Attr {
	if ai.EventID != "" {
		attrs = append(attrs, slog.String("event_id", ai.EventID))
	}
	if ai.Summary != "" {
		attrs = append(attrs, slog.String("summary", ai.Summary))
	}
	if ai.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ai.TraceID))
	}
	if ai.Error != "" {
		attrs = append(attrs, slog.String("error", ai.Error))
	}
	return attrs
}

// AuditLogger writes ActionInvocations to a dedicated slog logger.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that hashes senders.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("component", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogAction writes one audit record. A nil receiver is a no-op.
func (al *AuditLogger) LogAction(ai *ActionInvocation) {
	if al == nil || !al.enabled || ai == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ai.LogAuditAttrs()
	} else {
		attrs = ai.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ai.Success {
		al.logger.Info("calendar_action", args...)
	} else {
		al.logger.Warn("calendar_action_failed", args...)
	}
}
