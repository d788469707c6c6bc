package instrumentation

import "testing"

func TestNormalizeOutcome(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{OutcomeDone, OutcomeDone},
		{OutcomeConflict, OutcomeConflict},
		{OutcomeDuplicate, OutcomeDuplicate},
		{OutcomeReprompted, OutcomeReprompted},
		{"", OutcomeUnknownLabel},
		{"something-else", OutcomeUnknownLabel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeOutcome(tt.input); got != tt.expected {
				t.Errorf("NormalizeOutcome(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
