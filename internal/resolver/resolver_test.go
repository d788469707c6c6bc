package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megasecretaria/megasecretaria/internal/calendar"
)

type listCall struct {
	min, max time.Time
	query    string
}

type fakeLister struct {
	events []calendar.Event
	err    error
	calls  []listCall
}

func (f *fakeLister) List(_ context.Context, timeMin, timeMax time.Time, query string) ([]calendar.Event, error) {
	f.calls = append(f.calls, listCall{timeMin, timeMax, query})
	return f.events, f.err
}

var loc = time.FixedZone("BRT", -3*3600)

func at(day, hour int) time.Time {
	return time.Date(2025, 6, day, hour, 0, 0, 0, loc)
}

func event(id, summary string, start time.Time) calendar.Event {
	return calendar.Event{ID: id, Summary: summary, Start: start, End: start.Add(time.Hour)}
}

func TestResolve_UniqueMatch(t *testing.T) {
	lister := &fakeLister{events: []calendar.Event{
		event("1", "Dentista", at(8, 15)),
		event("2", "Dentista pediatra", at(8, 16)),
	}}
	r := New(lister, loc)

	got, err := r.Resolve(context.Background(), Query{Summary: "dentista", Start: at(8, 15)})
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)

	require.Len(t, lister.calls, 1)
	assert.Equal(t, "dentista", lister.calls[0].query)
	assert.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, loc), lister.calls[0].min)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, loc), lister.calls[0].max)
}

func TestResolve_CaseFolding(t *testing.T) {
	lister := &fakeLister{events: []calendar.Event{event("1", "REUNIÃO", at(8, 9))}}
	r := New(lister, loc)

	got, err := r.Resolve(context.Background(), Query{Summary: "reunião"})
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)
}

func TestResolve_NotFound(t *testing.T) {
	lister := &fakeLister{events: []calendar.Event{event("1", "Dentista pediatra", at(8, 15))}}
	r := New(lister, loc)

	_, err := r.Resolve(context.Background(), Query{Summary: "Dentista"})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Dentista", nf.Summary)
}

func TestResolve_Ambiguous(t *testing.T) {
	lister := &fakeLister{events: []calendar.Event{
		event("a", "Dentista", at(8, 10)),
		event("b", "dentista", at(10, 14)),
	}}
	r := New(lister, loc)

	_, err := r.Resolve(context.Background(), Query{Summary: "Dentista"})

	var amb *AmbiguousMatchError
	require.ErrorAs(t, err, &amb)
	require.Len(t, amb.Candidates, 2)
	assert.Equal(t, "a", amb.Candidates[0].ID)
	assert.Equal(t, "b", amb.Candidates[1].ID)
	assert.Equal(t, "08/06/2025 10:00", amb.Candidates[0].FormattedStart())
}

func TestResolve_DefaultWindow(t *testing.T) {
	lister := &fakeLister{}
	r := New(lister, loc)
	now := at(8, 12)
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), Query{Summary: "x"})
	require.Error(t, err)

	require.Len(t, lister.calls, 1)
	assert.True(t, lister.calls[0].min.Equal(now))
	assert.True(t, lister.calls[0].max.Equal(now.Add(7*24*time.Hour)))
}

func TestResolve_Errors(t *testing.T) {
	r := New(&fakeLister{}, loc)
	_, err := r.Resolve(context.Background(), Query{Summary: "   "})
	assert.ErrorIs(t, err, ErrNoSummary)

	boom := errors.New("boom")
	r = New(&fakeLister{err: boom}, loc)
	_, err = r.Resolve(context.Background(), Query{Summary: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestNotFoundError_Message(t *testing.T) {
	assert.Contains(t, (&NotFoundError{EventID: "abc"}).Error(), "abc")
	assert.Contains(t, (&NotFoundError{Summary: "Dentista"}).Error(), "Dentista")
}
