package action

import "time"

// Name is the wire name of an action.
type Name string

const (
	NameCreateEvent       Name = "create_event"
	NameListEvents        Name = "list_events"
	NameUpdateEvent       Name = "update_event"
	NameDeleteEvent       Name = "delete_event"
	NameCheckAvailability Name = "check_availability"
)

// Known reports whether n names one of the supported actions.
func (n Name) Known() bool {
	switch n {
	case NameCreateEvent, NameListEvents, NameUpdateEvent, NameDeleteEvent, NameCheckAvailability:
		return true
	}
	return false
}

// Request is one of CreateEvent, ListEvents, UpdateEvent, DeleteEvent or
// CheckAvailability. Zero time values mean the parameter was absent.
type Request interface {
	Action() Name
	isRequest()
}

// CreateEvent asks for a new event.
type CreateEvent struct {
	Summary     string
	Start       time.Time
	End         time.Time
	Description string
	TimeZone    string
}

// ListEvents asks for the events in a window.
type ListEvents struct {
	Start time.Time
	End   time.Time
	Query string
}

// EventRef identifies an existing event either by id or by the details
// the resolver can search with.
type EventRef struct {
	EventID string
	Summary string
	Start   time.Time
}

// HasID reports whether the reference carries an explicit id.
func (r EventRef) HasID() bool { return r.EventID != "" }

// Changes are the fields an update sets.
type Changes struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// IsEmpty reports whether no field is set.
func (c Changes) IsEmpty() bool {
	return c.Summary == "" && c.Description == "" && c.Start.IsZero() && c.End.IsZero()
}

// UpdateEvent asks to change an existing event.
type UpdateEvent struct {
	Target  EventRef
	Changes Changes
}

// DeleteEvent asks to remove an existing event.
type DeleteEvent struct {
	Target EventRef
}

// CheckAvailability asks whether a range is free.
type CheckAvailability struct {
	Start time.Time
	End   time.Time
}

func (CreateEvent) Action() Name       { return NameCreateEvent }
func (ListEvents) Action() Name        { return NameListEvents }
func (UpdateEvent) Action() Name       { return NameUpdateEvent }
func (DeleteEvent) Action() Name       { return NameDeleteEvent }
func (CheckAvailability) Action() Name { return NameCheckAvailability }

func (CreateEvent) isRequest()       {}
func (ListEvents) isRequest()        {}
func (UpdateEvent) isRequest()       {}
func (DeleteEvent) isRequest()       {}
func (CheckAvailability) isRequest() {}

// Result is the outcome of parsing one reply: either a Request or plain
// text. Invalid is set, alongside the text, when the reply named a known
// action but one of its parameters could not be decoded.
type Result struct {
	Request Request
	Text    string
	Invalid *ParamError
}

// IsAction reports whether the reply carried a calendar request.
func (r Result) IsAction() bool { return r.Request != nil }
