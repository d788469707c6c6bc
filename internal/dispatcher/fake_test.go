package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/megasecretaria/megasecretaria/internal/calendar"
)

// fakeCalendar is an in-memory Calendar that records every call.
type fakeCalendar struct {
	mu     sync.Mutex
	events []calendar.Event
	nextID int

	created  []calendar.EventInput
	updated  []string
	deleted  []string
	lists    int
	freebusy int

	createErr error
	listErr   error
	updateErr error
	deleteErr error
}

func (f *fakeCalendar) Create(_ context.Context, in calendar.EventInput) (calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return calendar.Event{}, f.createErr
	}
	f.created = append(f.created, in)
	f.nextID++
	e := calendar.Event{ID: fmt.Sprintf("new-%d", f.nextID), Summary: in.Summary, Start: in.Start, End: in.End}
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeCalendar) List(_ context.Context, timeMin, timeMax time.Time, query string) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []calendar.Event
	for _, e := range f.events {
		if !e.Overlaps(timeMin, timeMax) {
			continue
		}
		if query != "" && !containsFold(e.Summary, query) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeCalendar) Update(_ context.Context, id string, patch calendar.EventPatch) (calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return calendar.Event{}, f.updateErr
	}
	for i, e := range f.events {
		if e.ID != id {
			continue
		}
		if patch.Summary != "" {
			e.Summary = patch.Summary
		}
		if !patch.Start.IsZero() {
			d := e.End.Sub(e.Start)
			e.Start = patch.Start
			e.End = patch.Start.Add(d)
		}
		if !patch.End.IsZero() {
			e.End = patch.End
		}
		f.events[i] = e
		f.updated = append(f.updated, id)
		return e, nil
	}
	return calendar.Event{}, &calendar.Error{Op: "get", Kind: calendar.ErrNotFound, Err: fmt.Errorf("404")}
}

func (f *fakeCalendar) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, e := range f.events {
		if e.ID == id {
			f.events = append(f.events[:i], f.events[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return &calendar.Error{Op: "delete", Kind: calendar.ErrNotFound, Err: fmt.Errorf("404")}
}

func (f *fakeCalendar) FreeBusy(_ context.Context, timeMin, timeMax time.Time) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freebusy++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []calendar.Event
	for _, e := range f.events {
		if e.Overlaps(timeMin, timeMax) {
			out = append(out, calendar.Event{Start: e.Start, End: e.End})
		}
	}
	return out, nil
}

func containsFold(s, sub string) bool {
	return len(sub) == 0 || indexFold(s, sub) >= 0
}

func indexFold(s, sub string) int {
	rs, rsub := []rune(s), []rune(sub)
	for i := 0; i+len(rsub) <= len(rs); i++ {
		match := true
		for j := range rsub {
			if toLower(rs[i+j]) != toLower(rsub[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
