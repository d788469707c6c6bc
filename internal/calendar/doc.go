// Package calendar is the Google Calendar v3 collaborator used by the
// dispatcher and the resolver.
//
// All operations target the single calendar configured for the deployment
// and return events with timezone-aware times in the configured location.
// API failures are classified so callers can match them with errors.Is:
// a missing event becomes ErrNotFound and a rejected credential ErrAuth.
//
// Example usage:
//
//	client, err := calendar.NewClient(ctx, provider, calendar.Config{CalendarID: "primary", Location: loc})
//	if err != nil {
//	    return err
//	}
//	events, err := client.List(ctx, dayStart, dayEnd, "")
package calendar
