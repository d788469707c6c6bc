package state

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStoreContract runs the behaviour every Store must share.
func testStoreContract(t *testing.T, store Store, sender string) {
	ctx := context.Background()
	start := time.Date(2025, 6, 8, 20, 0, 0, 0, time.FixedZone("-03", -3*3600))

	t.Run("empty", func(t *testing.T) {
		p, err := store.Pending(ctx, sender)
		require.NoError(t, err)
		assert.Nil(t, p)

		f, err := store.LastCreated(ctx, sender)
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("pending round trip", func(t *testing.T) {
		require.NoError(t, store.SetPending(ctx, PendingConfirmation{
			Sender: sender,
			Proposed: ProposedEvent{
				Summary:  "Reunião",
				Start:    start,
				End:      start.Add(time.Hour),
				TimeZone: "America/Sao_Paulo",
			},
		}))

		p, err := store.Pending(ctx, sender)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Reunião", p.Proposed.Summary)
		assert.True(t, p.Proposed.Start.Equal(start))
		assert.True(t, p.Proposed.End.Equal(start.Add(time.Hour)))
		assert.False(t, p.CreatedAt.IsZero())

		other, err := store.Pending(ctx, sender+"-other")
		require.NoError(t, err)
		assert.Nil(t, other)

		n, err := store.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("pending replaced not duplicated", func(t *testing.T) {
		require.NoError(t, store.SetPending(ctx, PendingConfirmation{
			Sender:   sender,
			Proposed: ProposedEvent{Summary: "Outra", Start: start, End: start.Add(time.Hour)},
		}))
		p, err := store.Pending(ctx, sender)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Outra", p.Proposed.Summary)

		n, err := store.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("clear pending", func(t *testing.T) {
		require.NoError(t, store.ClearPending(ctx, sender))
		p, err := store.Pending(ctx, sender)
		require.NoError(t, err)
		assert.Nil(t, p)

		// Clearing twice is fine.
		require.NoError(t, store.ClearPending(ctx, sender))

		n, err := store.PendingCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("fingerprint round trip", func(t *testing.T) {
		require.NoError(t, store.SetLastCreated(ctx, sender, Fingerprint{Summary: "Reunião", Start: start}))
		f, err := store.LastCreated(ctx, sender)
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, "Reunião", f.Summary)
		assert.True(t, f.Start.Equal(start))
		assert.False(t, f.CreatedAt.IsZero())
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore(Options{}, time.Hour)
	defer store.Close()
	testStoreContract(t, store, "5511999990000")
}

func TestValkeyStore_Contract(t *testing.T) {
	url := os.Getenv("VALKEY_URL")
	if url == "" {
		t.Skip("VALKEY_URL not set")
	}

	store, err := NewValkeyStore(ValkeyConfig{
		URL:       url,
		Password:  os.Getenv("VALKEY_PASSWORD"),
		KeyPrefix: fmt.Sprintf("megasecretaria-test-%d:", time.Now().UnixNano()),
	}, Options{})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	testStoreContract(t, store, "5511999990000")
}

func TestNewValkeyStore_RequiresURL(t *testing.T) {
	_, err := NewValkeyStore(ValkeyConfig{}, Options{})
	assert.Error(t, err)
}

func TestMemoryStore_PendingExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(Options{PendingTTL: 30 * time.Minute, Now: func() time.Time { return now }}, time.Hour)
	defer store.Close()

	require.NoError(t, store.SetPending(ctx, PendingConfirmation{Sender: "s"}))

	now = now.Add(29 * time.Minute)
	p, err := store.Pending(ctx, "s")
	require.NoError(t, err)
	assert.NotNil(t, p)

	now = now.Add(time.Minute)
	p, err = store.Pending(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, p)

	n, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_StampsWithInjectedClock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(Options{Now: func() time.Time { return now }}, time.Hour)
	defer store.Close()

	// An entry stamped by the caller with the same clock is fresh, however
	// far that clock is from the wall clock.
	require.NoError(t, store.SetPending(ctx, PendingConfirmation{Sender: "s", CreatedAt: now}))
	p, err := store.Pending(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.CreatedAt.Equal(now))

	require.NoError(t, store.SetLastCreated(ctx, "s", Fingerprint{Summary: "x"}))
	f, err := store.LastCreated(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.CreatedAt.Equal(now))
}

func TestMemoryStore_PendingCountSkipsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(Options{PendingTTL: time.Minute, Now: func() time.Time { return now }}, time.Hour)
	defer store.Close()

	require.NoError(t, store.SetPending(ctx, PendingConfirmation{Sender: "a"}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.SetPending(ctx, PendingConfirmation{Sender: "b"}))

	// "a" is expired but not yet swept.
	n, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(Options{PendingTTL: time.Minute, FingerprintTTL: time.Minute, Now: func() time.Time { return now }}, time.Hour)
	defer store.Close()

	require.NoError(t, store.SetPending(ctx, PendingConfirmation{Sender: "a"}))
	require.NoError(t, store.SetLastCreated(ctx, "a", Fingerprint{Summary: "x"}))
	now = now.Add(30 * time.Second)
	require.NoError(t, store.SetPending(ctx, PendingConfirmation{Sender: "b"}))

	now = now.Add(45 * time.Second)
	assert.Equal(t, 2, store.Sweep())
	n, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := store.LastCreated(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	store := NewMemoryStore(Options{}, time.Millisecond)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestFingerprint_Matches(t *testing.T) {
	created := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	start := time.Date(2025, 6, 9, 20, 0, 0, 0, time.UTC)
	f := Fingerprint{Summary: "Reunião", Start: start, CreatedAt: created}

	tests := []struct {
		name    string
		summary string
		start   time.Time
		now     time.Time
		want    bool
	}{
		{"same within window", "Reunião", start, created.Add(3 * time.Second), true},
		{"same instant other zone", "Reunião", start.In(time.FixedZone("-03", -3*3600)), created.Add(time.Second), true},
		{"window elapsed", "Reunião", start, created.Add(2 * time.Minute), false},
		{"case differs", "reunião", start, created.Add(time.Second), true},
		{"surrounding spaces", "  REUNIÃO ", start, created.Add(time.Second), true},
		{"different summary", "Reuniao", start, created.Add(time.Second), false},
		{"different start", "Reunião", start.Add(time.Hour), created.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Matches(tt.summary, tt.start, tt.now, 2*time.Minute))
		})
	}
}
