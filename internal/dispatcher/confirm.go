package dispatcher

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/megasecretaria/megasecretaria/internal/instrumentation"
	"github.com/megasecretaria/megasecretaria/internal/logging"
)

// Answer is a sender's reply to a confirmation prompt.
type Answer int

const (
	AnswerOther Answer = iota
	AnswerYes
	AnswerNo
)

// ParseAnswer recognizes "sim" and "não"/"nao", ignoring case, accents and
// surrounding whitespace. Anything else is AnswerOther.
func ParseAnswer(text string) Answer {
	switch normalizeAnswer(text) {
	case "sim":
		return AnswerYes
	case "nao":
		return AnswerNo
	default:
		return AnswerOther
	}
}

func normalizeAnswer(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(text))
	if err != nil {
		out = text
	}
	return strings.ToLower(out)
}

// HandlePending interprets text as the answer to the sender's pending
// confirmation. It returns handled=false when nothing is pending, in which
// case text is ordinary conversation.
func (d *Dispatcher) HandlePending(ctx context.Context, sender, text string) (reply Reply, handled bool) {
	const name = "confirm_event"

	pending, err := d.store.Pending(ctx, sender)
	if err != nil {
		return d.fail(ctx, sender, name, &CollaboratorError{Op: "read pending confirmation", Err: err}), true
	}
	if pending == nil {
		return Reply{}, false
	}

	ctx, span := instrumentation.StartSpan(ctx, "dispatcher."+name,
		instrumentation.NewSpanAttributeBuilder().
			WithAction(name).
			WithSender(logging.AnonymizeSender(sender)).
			Build()...)
	defer span.End()
	defer func() {
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithOutcome(reply.Outcome).Build()...)
		if reply.Err != nil {
			instrumentation.SetSpanError(span, reply.Err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		d.metrics.RecordAction(ctx, name, reply.Outcome, logging.AnonymizeSender(sender))
	}()

	switch ParseAnswer(text) {
	case AnswerYes:
		created, err := d.createEvent(ctx, sender, pending.Proposed)
		if err != nil {
			// The confirmation stays open so the sender can answer "sim" again.
			return d.fail(ctx, sender, name, err), true
		}
		if err := d.store.ClearPending(ctx, sender); err != nil {
			d.logger.Warn("failed to clear pending confirmation", logging.SenderHash(sender), logging.Err(err))
		}
		return Reply{Text: createdMessage(created), Outcome: instrumentation.OutcomeConfirmed}, true

	case AnswerNo:
		if err := d.store.ClearPending(ctx, sender); err != nil {
			return d.fail(ctx, sender, name, &CollaboratorError{Op: "clear pending confirmation", Err: err}), true
		}
		d.logger.Info("pending event declined", logging.SenderHash(sender))
		return Reply{Text: MsgDeclined, Outcome: instrumentation.OutcomeDeclined}, true

	default:
		return Reply{Text: MsgConfirmPrompt, Outcome: instrumentation.OutcomeReprompted}, true
	}
}
