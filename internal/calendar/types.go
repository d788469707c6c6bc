package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// Event is the minimal view of a calendar entry the assistant works with.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Overlaps reports whether the event intersects the half-open range [start, end).
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// EventInput represents the input for creating a calendar event.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string // IANA name; the client location is used when empty
}

// EventPatch lists the fields to change on an existing event. Zero values
// leave the stored field untouched.
type EventPatch struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Summary == "" && p.Description == "" && p.Start.IsZero() && p.End.IsZero()
}

func (c *Client) toEvent(event *calendar.Event) Event {
	if event == nil {
		return Event{}
	}
	return Event{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Start:       c.parseEventTime(event.Start),
		End:         c.parseEventTime(event.End),
	}
}

// parseEventTime handles both timed entries and all-day entries, which only
// carry a date and are anchored at midnight in the client location.
func (c *Client) parseEventTime(edt *calendar.EventDateTime) time.Time {
	if edt == nil {
		return time.Time{}
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}
		}
		return t.In(c.location)
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", edt.Date, c.location)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

func (c *Client) eventDateTime(t time.Time, tz string) *calendar.EventDateTime {
	if tz == "" {
		tz = c.location.String()
	}
	return &calendar.EventDateTime{
		DateTime: t.In(c.location).Format(time.RFC3339),
		TimeZone: tz,
	}
}
