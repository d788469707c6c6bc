package google

import calendar "google.golang.org/api/calendar/v3"

// DefaultOAuthScopes are the scopes requested when authorizing the assistant.
// Event read/write is all the dispatcher needs; freebusy is covered by it.
var DefaultOAuthScopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}
