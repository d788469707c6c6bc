package calendar

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/megasecretaria/megasecretaria/internal/google"
	"github.com/megasecretaria/megasecretaria/internal/instrumentation"
)

// Config holds the calendar client settings.
type Config struct {
	// CalendarID is the calendar all operations target. Defaults to "primary".
	CalendarID string

	// Location is used to interpret all-day entries and to render times.
	// Defaults to time.Local.
	Location *time.Location

	// Metrics is optional.
	Metrics *instrumentation.Metrics
}

// Client wraps the Google Calendar service
type Client struct {
	svc        *calendar.Service
	calendarID string
	location   *time.Location
	metrics    *instrumentation.Metrics
}

// NewClient creates a Calendar client authorized by the token provider.
func NewClient(ctx context.Context, provider google.TokenProvider, cfg Config) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}

	ts, err := provider.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Google OAuth token: %w", err)
	}

	client := oauth2.NewClient(ctx, ts)

	// Force HTTP/1.1 by disabling HTTP/2
	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{ForceAttemptHTTP2: false}
	}

	return NewClientWithOptions(ctx, cfg, option.WithHTTPClient(client))
}

// NewClientWithOptions creates a Calendar client from raw API options.
// Tests use it to point the client at a local server.
func NewClientWithOptions(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Client{
		svc:        svc,
		calendarID: cfg.CalendarID,
		location:   cfg.Location,
		metrics:    cfg.Metrics,
	}, nil
}

// Location returns the location times are rendered in.
func (c *Client) Location() *time.Location {
	return c.location
}

func (c *Client) observe(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := instrumentation.StartCalendarSpan(ctx, op)
	start := time.Now()
	return ctx, func(err error) {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		c.metrics.RecordCalendarOperation(ctx, op, status, time.Since(start))
		span.End()
	}
}

// List returns the single (expanded) events in [timeMin, timeMax) ordered by
// start time. A non-empty query is passed to the API as a free-text filter.
func (c *Client) List(ctx context.Context, timeMin, timeMax time.Time, query string) (events []Event, err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationList)
	defer func() { done(err) }()

	call := c.svc.Events.List(c.calendarID).
		Context(ctx).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	if query != "" {
		call = call.Q(query)
	}

	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			events = append(events, c.toEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("list", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

// Create inserts a new event.
func (c *Client) Create(ctx context.Context, input EventInput) (created Event, err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationCreate)
	defer func() { done(err) }()

	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Start:       c.eventDateTime(input.Start, input.TimeZone),
		End:         c.eventDateTime(input.End, input.TimeZone),
	}

	result, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return Event{}, wrapError("create", err)
	}
	return c.toEvent(result), nil
}

// Update applies patch to an existing event. When only the start moves, the
// original duration is preserved.
func (c *Client) Update(ctx context.Context, eventID string, patch EventPatch) (updated Event, err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationUpdate)
	defer func() { done(err) }()

	existing, err := c.svc.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return Event{}, wrapError("get", err)
	}

	if patch.Summary != "" {
		existing.Summary = patch.Summary
	}
	if patch.Description != "" {
		existing.Description = patch.Description
	}

	current := c.toEvent(existing)
	tz := ""
	if existing.Start != nil {
		tz = existing.Start.TimeZone
	}

	start, end := patch.Start, patch.End
	if !start.IsZero() && end.IsZero() && !current.Start.IsZero() && !current.End.IsZero() {
		end = start.Add(current.End.Sub(current.Start))
	}
	if !start.IsZero() {
		existing.Start = c.eventDateTime(start, tz)
	}
	if !end.IsZero() {
		existing.End = c.eventDateTime(end, tz)
	}

	result, err := c.svc.Events.Update(c.calendarID, eventID, existing).Context(ctx).Do()
	if err != nil {
		return Event{}, wrapError("update", err)
	}
	return c.toEvent(result), nil
}

// Delete removes an event.
func (c *Client) Delete(ctx context.Context, eventID string) (err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationDelete)
	defer func() { done(err) }()

	if err = c.svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do(); err != nil {
		return wrapError("delete", err)
	}
	return nil
}

// FreeBusy returns the busy ranges of the calendar within [timeMin, timeMax)
// as anonymous events (no id or summary).
func (c *Client) FreeBusy(ctx context.Context, timeMin, timeMax time.Time) (busy []Event, err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationFreeBusy)
	defer func() { done(err) }()

	query := &calendar.FreeBusyRequest{
		TimeMin:  timeMin.Format(time.RFC3339),
		TimeMax:  timeMax.Format(time.RFC3339),
		TimeZone: c.location.String(),
		Items:    []*calendar.FreeBusyRequestItem{{Id: c.calendarID}},
	}

	result, err := c.svc.Freebusy.Query(query).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("freebusy", err)
	}

	cal, ok := result.Calendars[c.calendarID]
	if !ok {
		return nil, nil
	}
	if len(cal.Errors) > 0 {
		return nil, wrapError("freebusy", fmt.Errorf("calendar %s: %s", c.calendarID, cal.Errors[0].Reason))
	}

	for _, period := range cal.Busy {
		start, perr := time.Parse(time.RFC3339, period.Start)
		if perr != nil {
			continue
		}
		end, perr := time.Parse(time.RFC3339, period.End)
		if perr != nil {
			continue
		}
		busy = append(busy, Event{Start: start.In(c.location), End: end.In(c.location)})
	}
	return busy, nil
}
