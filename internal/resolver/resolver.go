// Package resolver finds the calendar event a sender refers to by title and
// approximate time when no event id is known.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/megasecretaria/megasecretaria/internal/calendar"
)

// DefaultLookahead is the search window used when the query has no start.
const DefaultLookahead = 7 * 24 * time.Hour

// DisplayLayout renders candidate times for the sender.
const DisplayLayout = "02/01/2006 15:04"

// ErrNoSummary is returned when the query carries no title to match.
var ErrNoSummary = errors.New("a title is required to find an event")

// Lister is the calendar capability the resolver needs.
type Lister interface {
	List(ctx context.Context, timeMin, timeMax time.Time, query string) ([]calendar.Event, error)
}

// Query describes the event being looked for.
type Query struct {
	Summary string
	Start   time.Time
}

// Candidate is one event that matched an ambiguous query.
type Candidate struct {
	ID      string
	Summary string
	Start   time.Time
}

// FormattedStart returns the start as dd/mm/yyyy HH:MM.
func (c Candidate) FormattedStart() string {
	return c.Start.Format(DisplayLayout)
}

// NotFoundError is returned when no event matches, or when an event id no
// longer exists.
type NotFoundError struct {
	EventID string
	Summary string
}

func (e *NotFoundError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("event %q not found", e.EventID)
	}
	return fmt.Sprintf("no event titled %q found", e.Summary)
}

// AmbiguousMatchError is returned when more than one event matches.
type AmbiguousMatchError struct {
	Summary    string
	Candidates []Candidate
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%d events titled %q found", len(e.Candidates), e.Summary)
}

// Resolver looks events up through a Lister. It never modifies the calendar.
type Resolver struct {
	lister    Lister
	location  *time.Location
	lookahead time.Duration
	now       func() time.Time
}

// New creates a resolver that interprets days in loc.
func New(lister Lister, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{
		lister:    lister,
		location:  loc,
		lookahead: DefaultLookahead,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for the default window.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Window returns the search range for q: the whole calendar day of q.Start,
// or from now until the lookahead when q has no start.
func (r *Resolver) Window(q Query) (time.Time, time.Time) {
	if !q.Start.IsZero() {
		s := q.Start.In(r.location)
		day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, r.location)
		return day, day.AddDate(0, 0, 1)
	}
	now := r.now().In(r.location)
	return now, now.Add(r.lookahead)
}

// Resolve returns the single event whose title equals q.Summary ignoring case.
// Zero matches give *NotFoundError and several give *AmbiguousMatchError.
func (r *Resolver) Resolve(ctx context.Context, q Query) (calendar.Event, error) {
	summary := strings.TrimSpace(q.Summary)
	if summary == "" {
		return calendar.Event{}, ErrNoSummary
	}

	timeMin, timeMax := r.Window(q)
	events, err := r.lister.List(ctx, timeMin, timeMax, summary)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("failed to search events: %w", err)
	}

	// The API text filter is fuzzy; only exact titles count.
	var matches []calendar.Event
	for _, e := range events {
		if strings.EqualFold(strings.TrimSpace(e.Summary), summary) {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return calendar.Event{}, &NotFoundError{Summary: summary}
	case 1:
		return matches[0], nil
	}

	candidates := make([]Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = Candidate{ID: m.ID, Summary: m.Summary, Start: m.Start.In(r.location)}
	}
	return calendar.Event{}, &AmbiguousMatchError{Summary: summary, Candidates: candidates}
}
