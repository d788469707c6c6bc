package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionInvocation_Complete(t *testing.T) {
	ai := NewActionInvocation("delete_event", "5511999998888").
		WithEvent("evt-1", "Reunião").
		WithSpanContext(context.Background()).
		Complete(nil)

	assert.True(t, ai.Success)
	assert.Equal(t, StatusSuccess, ai.Status())
	assert.Empty(t, ai.Error)
	assert.Empty(t, ai.TraceID)

	failed := NewActionInvocation("delete_event", "5511999998888").Complete(errors.New("gone"))
	assert.False(t, failed.Success)
	assert.Equal(t, StatusError, failed.Status())
	assert.Equal(t, "gone", failed.Error)
}

func TestAuditLogger_HashesSenderByDefault(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	al.LogAction(NewActionInvocation("create_event", "5511999998888").WithEvent("evt-1", "Dentista").Complete(nil))

	out := buf.String()
	assert.Contains(t, out, "calendar_action")
	assert.Contains(t, out, "event_id=evt-1")
	assert.Contains(t, out, "sender_hash=sender:")
	assert.NotContains(t, out, "5511999998888")
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: true, IncludePII: true})

	al.LogAction(NewActionInvocation("update_event", "5511999998888").Complete(errors.New("not found")))

	out := buf.String()
	assert.Contains(t, out, "calendar_action_failed")
	assert.Contains(t, out, "sender=5511999998888")
	assert.Contains(t, out, "level=WARN")
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})

	al.LogAction(NewActionInvocation("create_event", "1").Complete(nil))
	assert.Zero(t, buf.Len())

	var nilLogger *AuditLogger
	nilLogger.LogAction(NewActionInvocation("create_event", "1"))
	assert.False(t, strings.Contains(buf.String(), "create_event"))
}
