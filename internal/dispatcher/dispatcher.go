package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/megasecretaria/megasecretaria/internal/action"
	"github.com/megasecretaria/megasecretaria/internal/calendar"
	"github.com/megasecretaria/megasecretaria/internal/instrumentation"
	"github.com/megasecretaria/megasecretaria/internal/logging"
	"github.com/megasecretaria/megasecretaria/internal/resolver"
	"github.com/megasecretaria/megasecretaria/internal/state"
)

// DefaultEventDuration is the length given to events created without an end.
const DefaultEventDuration = time.Hour

// Calendar is the calendar capability the dispatcher drives.
type Calendar interface {
	Create(ctx context.Context, input calendar.EventInput) (calendar.Event, error)
	List(ctx context.Context, timeMin, timeMax time.Time, query string) ([]calendar.Event, error)
	Update(ctx context.Context, eventID string, patch calendar.EventPatch) (calendar.Event, error)
	Delete(ctx context.Context, eventID string) error
	FreeBusy(ctx context.Context, timeMin, timeMax time.Time) ([]calendar.Event, error)
}

// Config holds the dispatcher settings. Zero values select the defaults.
type Config struct {
	Location        *time.Location
	DuplicateWindow time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// Reply is the text to send back, the outcome label for metrics and the
// error behind a failed outcome, if any.
type Reply struct {
	Text    string
	Outcome string
	Err     error
}

// Dispatcher runs calendar requests and the confirmation handshake.
type Dispatcher struct {
	cal      Calendar
	store    state.Store
	resolver *resolver.Resolver

	location        *time.Location
	duplicateWindow time.Duration
	logger          *slog.Logger
	metrics         *instrumentation.Metrics
	audit           *instrumentation.AuditLogger
	now             func() time.Time
}

// New creates a Dispatcher.
func New(cal Calendar, store state.Store, cfg Config) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = state.DefaultDuplicateWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		cal:             cal,
		store:           store,
		location:        cfg.Location,
		duplicateWindow: cfg.DuplicateWindow,
		logger:          logging.WithService(cfg.Logger, "dispatcher"),
		metrics:         cfg.Metrics,
		audit:           cfg.Audit,
		now:             time.Now,
	}
	d.resolver = resolver.New(cal, cfg.Location).WithClock(func() time.Time { return d.now() })
	return d
}

// Dispatch executes req for an idle sender.
func (d *Dispatcher) Dispatch(ctx context.Context, sender string, req action.Request) Reply {
	name := string(req.Action())
	ctx, span := instrumentation.StartSpan(ctx, "dispatcher."+name,
		instrumentation.NewSpanAttributeBuilder().
			WithAction(name).
			WithSender(logging.AnonymizeSender(sender)).
			Build()...)
	defer span.End()

	var reply Reply
	switch r := req.(type) {
	case action.CreateEvent:
		reply = d.create(ctx, sender, r)
	case action.ListEvents:
		reply = d.list(ctx, r)
	case action.UpdateEvent:
		reply = d.update(ctx, sender, r)
	case action.DeleteEvent:
		reply = d.delete(ctx, sender, r)
	case action.CheckAvailability:
		reply = d.checkAvailability(ctx, r)
	default:
		reply = d.fail(ctx, sender, name, &ValidationError{Action: name, Field: "action"})
	}

	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithOutcome(reply.Outcome).Build()...)
	if reply.Err != nil {
		instrumentation.SetSpanError(span, reply.Err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	d.metrics.RecordAction(ctx, name, reply.Outcome, logging.AnonymizeSender(sender))
	return reply
}

// Reject answers a request whose action was recognized but whose parameter
// could not be decoded, asking the sender for that parameter.
func (d *Dispatcher) Reject(ctx context.Context, sender string, invalid *action.ParamError) Reply {
	name := string(invalid.Action)
	reply := d.fail(ctx, sender, name, &ValidationError{
		Action: name,
		Field:  invalid.Field,
		Reason: invalid.Err.Error(),
		Err:    invalid,
	})
	d.metrics.RecordAction(ctx, name, reply.Outcome, logging.AnonymizeSender(sender))
	return reply
}

func (d *Dispatcher) create(ctx context.Context, sender string, req action.CreateEvent) Reply {
	const name = string(action.NameCreateEvent)

	if req.Summary == "" {
		return d.fail(ctx, sender, name, &ValidationError{Action: name, Field: "summary"})
	}
	if req.Start.IsZero() {
		return d.fail(ctx, sender, name, &ValidationError{Action: name, Field: "start_datetime"})
	}

	proposed := state.ProposedEvent{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       req.Start.In(d.location),
		End:         req.End,
		TimeZone:    req.TimeZone,
	}
	if proposed.End.IsZero() {
		proposed.End = proposed.Start.Add(DefaultEventDuration)
	}
	proposed.End = proposed.End.In(d.location)
	if !proposed.End.After(proposed.Start) {
		return d.fail(ctx, sender, name, &ValidationError{Action: name, Field: "end_datetime", Reason: reasonEndBeforeStart})
	}

	last, err := d.store.LastCreated(ctx, sender)
	if err != nil {
		return d.fail(ctx, sender, name, &CollaboratorError{Op: "read duplicate fingerprint", Err: err})
	}
	if last != nil && last.Matches(proposed.Summary, proposed.Start, d.now(), d.duplicateWindow) {
		d.metrics.RecordDuplicateSuppressed(ctx)
		d.logger.Info("duplicate creation suppressed", logging.SenderHash(sender), logging.Action(name))
		return Reply{Text: MsgDuplicate, Outcome: instrumentation.OutcomeDuplicate}
	}

	conflicts, err := d.overlapping(ctx, proposed.Start, proposed.End)
	if err != nil {
		return d.fail(ctx, sender, name, classify("list conflicts", err))
	}

	if len(conflicts) > 0 {
		pending := state.PendingConfirmation{Sender: sender, Proposed: proposed}
		if err := d.store.SetPending(ctx, pending); err != nil {
			return d.fail(ctx, sender, name, &CollaboratorError{Op: "store pending confirmation", Err: err})
		}
		d.logger.Info("conflict found, awaiting confirmation",
			logging.SenderHash(sender), logging.Action(name), "conflicts", len(conflicts))
		return Reply{Text: conflictMessage(conflicts), Outcome: instrumentation.OutcomeConflict}
	}

	created, err := d.createEvent(ctx, sender, proposed)
	if err != nil {
		return d.fail(ctx, sender, name, err)
	}
	return Reply{Text: createdMessage(created), Outcome: instrumentation.OutcomeDone}
}

// createEvent performs the creation without any conflict check and records
// the fingerprint.
func (d *Dispatcher) createEvent(ctx context.Context, sender string, p state.ProposedEvent) (calendar.Event, error) {
	audit := instrumentation.NewActionInvocation(string(action.NameCreateEvent), sender).WithSpanContext(ctx)

	created, err := d.cal.Create(ctx, calendar.EventInput{
		Summary:     p.Summary,
		Description: p.Description,
		Start:       p.Start,
		End:         p.End,
		TimeZone:    p.TimeZone,
	})
	d.audit.LogAction(audit.WithEvent(created.ID, p.Summary).Complete(err))
	if err != nil {
		return calendar.Event{}, classify("create event", err)
	}

	if created.Summary == "" {
		created.Summary = p.Summary
	}
	if created.Start.IsZero() {
		created.Start, created.End = p.Start, p.End
	}
	created.Start, created.End = created.Start.In(d.location), created.End.In(d.location)

	instrumentation.AnnotateSpan(ctx, instrumentation.NewSpanAttributeBuilder().WithEventID(created.ID).Build()...)

	fp := state.Fingerprint{Summary: state.NormalizeSummary(p.Summary), Start: p.Start, CreatedAt: d.now()}
	if err := d.store.SetLastCreated(ctx, sender, fp); err != nil {
		// The event exists; only the duplicate guard is weakened.
		d.logger.Warn("failed to store duplicate fingerprint", logging.SenderHash(sender), logging.Err(err))
	}

	d.logger.Info("event created", logging.SenderHash(sender), logging.EventID(created.ID))
	return created, nil
}

// overlapping lists the events intersecting [start, end).
func (d *Dispatcher) overlapping(ctx context.Context, start, end time.Time) ([]calendar.Event, error) {
	events, err := d.cal.List(ctx, start, end, "")
	if err != nil {
		return nil, err
	}
	var out []calendar.Event
	for _, e := range events {
		if e.Overlaps(start, end) {
			e.Start, e.End = e.Start.In(d.location), e.End.In(d.location)
			out = append(out, e)
		}
	}
	sortByStart(out)
	return out, nil
}

func (d *Dispatcher) list(ctx context.Context, req action.ListEvents) Reply {
	const name = string(action.NameListEvents)

	start, end := req.Start, req.End
	if start.IsZero() {
		now := d.now().In(d.location)
		if end.IsZero() {
			start = startOfDay(now)
		} else {
			start = now
		}
	}
	if end.IsZero() {
		end = startOfDay(start.In(d.location)).AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return d.fail(ctx, "", name, &ValidationError{Action: name, Field: "end_datetime", Reason: reasonEndBeforeStart})
	}

	events, err := d.cal.List(ctx, start, end, req.Query)
	if err != nil {
		return d.fail(ctx, "", name, classify("list events", err))
	}
	if len(events) == 0 {
		return Reply{Text: MsgNoEvents, Outcome: instrumentation.OutcomeDone}
	}

	for i := range events {
		events[i].Start, events[i].End = events[i].Start.In(d.location), events[i].End.In(d.location)
	}
	sortByStart(events)
	return Reply{Text: listMessage(events), Outcome: instrumentation.OutcomeDone}
}

// target returns the id of the referenced event, resolving it by title when
// no id was given.
func (d *Dispatcher) target(ctx context.Context, ref action.EventRef) (string, string, error) {
	if ref.HasID() {
		return ref.EventID, ref.Summary, nil
	}
	if ref.Summary == "" {
		return "", "", &ValidationError{Field: "summary"}
	}

	event, err := d.resolver.Resolve(ctx, resolver.Query{Summary: ref.Summary, Start: ref.Start})
	if err != nil {
		var nf *NotFoundError
		var amb *AmbiguousMatchError
		if errors.As(err, &nf) || errors.As(err, &amb) {
			return "", "", err
		}
		return "", "", classify("resolve event", err)
	}
	return event.ID, event.Summary, nil
}

func (d *Dispatcher) update(ctx context.Context, sender string, req action.UpdateEvent) Reply {
	const name = string(action.NameUpdateEvent)

	if req.Changes.IsEmpty() {
		return d.fail(ctx, sender, name, &ValidationError{Action: name, Field: "updates"})
	}

	id, _, err := d.target(ctx, req.Target)
	if err != nil {
		return d.fail(ctx, sender, name, withAction(err, name))
	}

	patch := calendar.EventPatch{
		Summary:     req.Changes.Summary,
		Description: req.Changes.Description,
		Start:       req.Changes.Start,
		End:         req.Changes.End,
	}
	if !patch.Start.IsZero() && !patch.End.IsZero() && !patch.End.After(patch.Start) {
		return d.fail(ctx, sender, name, &ValidationError{Action: name, Field: "end_datetime", Reason: reasonEndBeforeStart})
	}

	instrumentation.AnnotateSpan(ctx, instrumentation.NewSpanAttributeBuilder().WithEventID(id).Build()...)
	audit := instrumentation.NewActionInvocation(name, sender).WithSpanContext(ctx)
	updated, err := d.cal.Update(ctx, id, patch)
	d.audit.LogAction(audit.WithEvent(id, updated.Summary).Complete(err))
	if err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			return d.fail(ctx, sender, name, &NotFoundError{EventID: id})
		}
		return d.fail(ctx, sender, name, classify("update event", err))
	}

	updated.Start, updated.End = updated.Start.In(d.location), updated.End.In(d.location)
	d.logger.Info("event updated", logging.SenderHash(sender), logging.EventID(id))
	return Reply{Text: updatedMessage(updated), Outcome: instrumentation.OutcomeDone}
}

func (d *Dispatcher) delete(ctx context.Context, sender string, req action.DeleteEvent) Reply {
	const name = string(action.NameDeleteEvent)

	if !req.Target.HasID() && req.Target.Summary == "" {
		return d.fail(ctx, sender, name, &ValidationError{Action: name, Field: "summary"})
	}

	id, summary, err := d.target(ctx, req.Target)
	if err != nil {
		return d.fail(ctx, sender, name, withAction(err, name))
	}

	instrumentation.AnnotateSpan(ctx, instrumentation.NewSpanAttributeBuilder().WithEventID(id).Build()...)
	audit := instrumentation.NewActionInvocation(name, sender).WithSpanContext(ctx)
	err = d.cal.Delete(ctx, id)
	d.audit.LogAction(audit.WithEvent(id, summary).Complete(err))
	if err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			return d.fail(ctx, sender, name, &NotFoundError{EventID: id})
		}
		return d.fail(ctx, sender, name, classify("delete event", err))
	}

	d.logger.Info("event deleted", logging.SenderHash(sender), logging.EventID(id))
	return Reply{Text: deletedMessage(id, summary), Outcome: instrumentation.OutcomeDone}
}

func (d *Dispatcher) checkAvailability(ctx context.Context, req action.CheckAvailability) Reply {
	const name = string(action.NameCheckAvailability)

	if req.Start.IsZero() {
		return d.fail(ctx, "", name, &ValidationError{Action: name, Field: "start_datetime"})
	}
	if req.End.IsZero() {
		return d.fail(ctx, "", name, &ValidationError{Action: name, Field: "end_datetime"})
	}
	if !req.End.After(req.Start) {
		return d.fail(ctx, "", name, &ValidationError{Action: name, Field: "end_datetime", Reason: reasonEndBeforeStart})
	}

	busy, err := d.cal.FreeBusy(ctx, req.Start, req.End)
	if err != nil {
		return d.fail(ctx, "", name, classify("query free/busy", err))
	}

	var blocking []calendar.Event
	for _, b := range busy {
		if b.Overlaps(req.Start, req.End) {
			blocking = append(blocking, b)
		}
	}
	if len(blocking) == 0 {
		return Reply{Text: MsgAvailable, Outcome: instrumentation.OutcomeDone}
	}

	// Busy blocks carry no titles; name the entries behind them when possible.
	conflicts, err := d.overlapping(ctx, req.Start, req.End)
	if err != nil {
		d.logger.Warn("failed to list busy entries", logging.Err(err))
		conflicts = nil
	}
	return Reply{Text: busyMessage(conflicts), Outcome: instrumentation.OutcomeConflict}
}

// withAction fills in the action of a ValidationError raised below Dispatch.
func withAction(err error, name string) error {
	var v *ValidationError
	if errors.As(err, &v) && v.Action == "" {
		v.Action = name
	}
	return err
}

// fail logs err and converts it into the reply the sender sees.
func (d *Dispatcher) fail(ctx context.Context, sender, name string, err error) Reply {
	logger := d.logger.With(logging.Action(name))
	if sender != "" {
		logger = logger.With(logging.SenderHash(sender))
	}

	var (
		validation *ValidationError
		notFound   *NotFoundError
		ambiguous  *AmbiguousMatchError
		auth       *AuthError
	)
	switch {
	case errors.As(err, &validation):
		logger.Info("request rejected", logging.Err(err))
		return Reply{Text: validationMessage(validation), Outcome: instrumentation.OutcomeInvalid, Err: err}
	case errors.As(err, &notFound):
		logger.Info("event not found", logging.Err(err))
		return Reply{Text: notFoundMessage(notFound), Outcome: instrumentation.OutcomeNotFound, Err: err}
	case errors.As(err, &ambiguous):
		logger.Info("ambiguous event reference", logging.Err(err), "candidates", len(ambiguous.Candidates))
		return Reply{Text: ambiguousMessage(ambiguous), Outcome: instrumentation.OutcomeAmbiguous, Err: err}
	case errors.As(err, &auth):
		logger.ErrorContext(ctx, "calendar authorization failed", logging.Err(err))
		return Reply{Text: MsgCalendarAuth, Outcome: instrumentation.OutcomeFailed, Err: err}
	default:
		logger.ErrorContext(ctx, "calendar request failed", logging.Err(err))
		return Reply{Text: MsgGenericFailure, Outcome: instrumentation.OutcomeFailed, Err: err}
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sortByStart(events []calendar.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
