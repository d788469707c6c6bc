package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithOperation(t *testing.T) {
	logger := slog.Default()
	result := WithOperation(logger, "test_operation")
	if result == nil {
		t.Error("WithOperation returned nil")
	}
}

func TestWithService(t *testing.T) {
	logger := slog.Default()
	result := WithService(logger, "calendar")
	if result == nil {
		t.Error("WithService returned nil")
	}
}

func TestWithSender_DoesNotLeakNumber(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	WithSender(logger, "5511999998888").Info("hello")

	out := buf.String()
	if strings.Contains(out, "5511999998888") {
		t.Errorf("log output leaked the raw number: %s", out)
	}
	if !strings.Contains(out, KeySenderHash+"=sender:") {
		t.Errorf("log output missing sender hash: %s", out)
	}
}

func TestAttrHelpers(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"operation", Operation("test_op"), KeyOperation, "test_op"},
		{"service", Service("calendar"), KeyService, "calendar"},
		{"action", Action("create_event"), KeyAction, "create_event"},
		{"event id", EventID("abc123"), KeyEventID, "abc123"},
		{"request id", RequestID("req-1"), KeyRequestID, "req-1"},
		{"status", Status(StatusSuccess), KeyStatus, StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.wantVal)
			}
		})
	}
}

func TestErr(t *testing.T) {
	err := errors.New("test error")
	attr := Err(err)
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "test error")
	}

	// Empty Group has empty key
	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestAnonymizeSender(t *testing.T) {
	tests := []struct {
		sender   string
		wantLen  int
		hasValue bool
	}{
		{"5511999998888", 23, true}, // "sender:" + 16 hex chars
		{"5521988887777", 23, true},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			result := AnonymizeSender(tt.sender)
			if !tt.hasValue {
				if result != "" {
					t.Errorf("AnonymizeSender(%q) = %q, want empty string", tt.sender, result)
				}
				return
			}
			if len(result) != tt.wantLen {
				t.Errorf("AnonymizeSender(%q) length = %d, want %d", tt.sender, len(result), tt.wantLen)
			}
			if !strings.HasPrefix(result, "sender:") {
				t.Errorf("AnonymizeSender(%q) should start with 'sender:', got %q", tt.sender, result)
			}
		})
	}

	if AnonymizeSender("5511999998888") != AnonymizeSender("5511999998888") {
		t.Error("AnonymizeSender should return deterministic results")
	}
	if AnonymizeSender("5511999998888") == AnonymizeSender("5511999998889") {
		t.Error("Different senders should produce different hashes")
	}
}

func TestSenderHash(t *testing.T) {
	attr := SenderHash("5511999998888")
	if attr.Key != KeySenderHash {
		t.Errorf("SenderHash key = %q, want %q", attr.Key, KeySenderHash)
	}
	if len(attr.Value.String()) != 23 {
		t.Errorf("SenderHash value length = %d, want 23", len(attr.Value.String()))
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"a_very_long_token_string", "[token:24 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := SanitizeToken(tt.token)
			if result != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, result, tt.expected)
			}
		})
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer

	slog.New(NewHandler(&buf, FormatJSON, false)).Info("json line")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	logger := slog.New(NewHandler(&buf, "bogus", false))
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line should be filtered at info level, got %q", buf.String())
	}
	logger.Info("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("expected text output, got %q", buf.String())
	}

	buf.Reset()
	slog.New(NewHandler(&buf, FormatText, true)).Debug("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("debug line should pass in debug mode, got %q", buf.String())
	}
}

func TestStatusConstants(t *testing.T) {
	if StatusSuccess != "success" {
		t.Errorf("StatusSuccess = %q, want %q", StatusSuccess, "success")
	}
	if StatusError != "error" {
		t.Errorf("StatusError = %q, want %q", StatusError, "error")
	}
}
