package state

import (
	"context"
	"strings"
	"time"
)

const (
	// DefaultPendingTTL is how long an unanswered confirmation stays open.
	DefaultPendingTTL = 30 * time.Minute

	// DefaultDuplicateWindow is how long a created event suppresses an
	// identical creation request.
	DefaultDuplicateWindow = 2 * time.Minute
)

// ProposedEvent is the event awaiting the sender's decision.
type ProposedEvent struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"timezone,omitempty"`
}

// PendingConfirmation exists while a sender is asked to confirm a
// conflicting event.
type PendingConfirmation struct {
	Sender    string        `json:"sender"`
	Proposed  ProposedEvent `json:"proposed"`
	CreatedAt time.Time     `json:"created_at"`
}

// Fingerprint identifies the last event created for a sender.
type Fingerprint struct {
	Summary   string    `json:"summary"`
	Start     time.Time `json:"start"`
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether a request for summary at start repeats this
// creation within window of now. Summaries compare case-insensitively and
// ignore surrounding whitespace.
func (f Fingerprint) Matches(summary string, start, now time.Time, window time.Duration) bool {
	return NormalizeSummary(f.Summary) == NormalizeSummary(summary) &&
		f.Start.Equal(start) &&
		!f.CreatedAt.IsZero() &&
		now.Sub(f.CreatedAt) < window
}

// NormalizeSummary is the form of a summary kept in a Fingerprint.
func NormalizeSummary(summary string) string {
	return strings.ToLower(strings.TrimSpace(summary))
}

// Store is the per-sender state store. Getters return nil without error
// when nothing (or only expired state) is stored.
type Store interface {
	Pending(ctx context.Context, sender string) (*PendingConfirmation, error)
	SetPending(ctx context.Context, p PendingConfirmation) error
	ClearPending(ctx context.Context, sender string) error

	LastCreated(ctx context.Context, sender string) (*Fingerprint, error)
	SetLastCreated(ctx context.Context, sender string, f Fingerprint) error

	// PendingCount returns how many senders are awaiting confirmation.
	PendingCount(ctx context.Context) (int, error)
}

// Options configures expiry for both stores.
type Options struct {
	PendingTTL     time.Duration
	FingerprintTTL time.Duration

	// Now stamps entries and judges their age. Callers that stamp
	// CreatedAt themselves must use the same clock.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PendingTTL <= 0 {
		o.PendingTTL = DefaultPendingTTL
	}
	if o.FingerprintTTL <= 0 {
		o.FingerprintTTL = DefaultDuplicateWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
