package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/megasecretaria/megasecretaria/internal/action"
	"github.com/megasecretaria/megasecretaria/internal/contextwindow"
	"github.com/megasecretaria/megasecretaria/internal/dispatcher"
	"github.com/megasecretaria/megasecretaria/internal/history"
	"github.com/megasecretaria/megasecretaria/internal/instrumentation"
	"github.com/megasecretaria/megasecretaria/internal/llm"
	"github.com/megasecretaria/megasecretaria/internal/logging"
	"github.com/megasecretaria/megasecretaria/internal/state"
	"github.com/megasecretaria/megasecretaria/internal/whatsapp"
)

// DefaultHistoryLimit is how many stored turns are read before the token
// budget is applied.
const DefaultHistoryLimit = 20

// Message is one inbound text from a sender.
type Message struct {
	ID         string
	Sender     string
	Text       string
	ReceivedAt time.Time
}

// History is the conversation log the pipeline reads and appends to.
type History interface {
	Append(ctx context.Context, sender, text string, direction history.Direction) error
	Read(ctx context.Context, sender string, limit int) ([]history.Entry, error)
}

// Dispatcher executes parsed actions and answers pending confirmations.
type Dispatcher interface {
	HandlePending(ctx context.Context, sender, text string) (dispatcher.Reply, bool)
	Dispatch(ctx context.Context, sender string, req action.Request) dispatcher.Reply
	Reject(ctx context.Context, sender string, invalid *action.ParamError) dispatcher.Reply
}

// Config holds the pipeline collaborators and settings.
type Config struct {
	History    History
	Dispatcher Dispatcher
	Model      llm.Completer
	Sender     whatsapp.Sender

	Prompt  *llm.PromptBuilder
	Parser  *action.Parser
	Counter contextwindow.Counter

	HistoryLimit int
	TokenBudget  int

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Pipeline turns one inbound message into one outbound reply.
type Pipeline struct {
	history    History
	dispatcher Dispatcher
	model      llm.Completer
	sender     whatsapp.Sender

	prompt  *llm.PromptBuilder
	parser  *action.Parser
	counter contextwindow.Counter

	historyLimit int
	tokenBudget  int

	locks   *state.KeyedMutex
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// NewPipeline validates cfg and creates a Pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.History == nil:
		return nil, errors.New("history is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case cfg.Model == nil:
		return nil, errors.New("model is required")
	case cfg.Sender == nil:
		return nil, errors.New("sender is required")
	}
	if cfg.Prompt == nil {
		cfg.Prompt = llm.NewPromptBuilder("", "", time.Local)
	}
	if cfg.Parser == nil {
		cfg.Parser = action.NewParser(time.Local)
	}
	if cfg.Counter == nil {
		cfg.Counter = contextwindow.Estimator{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = contextwindow.DefaultBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pipeline{
		history:      cfg.History,
		dispatcher:   cfg.Dispatcher,
		model:        cfg.Model,
		sender:       cfg.Sender,
		prompt:       cfg.Prompt,
		parser:       cfg.Parser,
		counter:      cfg.Counter,
		historyLimit: cfg.HistoryLimit,
		tokenBudget:  cfg.TokenBudget,
		locks:        state.NewKeyedMutex(),
		logger:       logging.WithService(cfg.Logger, "assistant"),
		metrics:      cfg.Metrics,
		now:          time.Now,
	}, nil
}

// Handle processes msg and sends the reply. The returned error is the
// delivery failure, if any; every other failure becomes an apology reply.
func (p *Pipeline) Handle(ctx context.Context, msg Message) error {
	unlock := p.locks.Lock(msg.Sender)
	defer unlock()

	logger := p.logger.With(logging.SenderHash(msg.Sender), logging.RequestID(msg.ID))

	ctx, span := instrumentation.StartSpan(ctx, "assistant.handle",
		instrumentation.NewSpanAttributeBuilder().
			WithSender(logging.AnonymizeSender(msg.Sender)).
			Build()...)
	defer span.End()

	if err := p.history.Append(ctx, msg.Sender, msg.Text, history.Incoming); err != nil {
		logger.Warn("failed to store incoming message", logging.Err(err))
	}

	text := p.reply(ctx, logger, msg)

	if err := p.history.Append(ctx, msg.Sender, text, history.Outgoing); err != nil {
		logger.Warn("failed to store outgoing message", logging.Err(err))
	}

	if err := p.sender.Send(ctx, msg.Sender, text); err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Error("failed to deliver reply", logging.Err(err))
		return fmt.Errorf("deliver reply: %w", err)
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (p *Pipeline) reply(ctx context.Context, logger *slog.Logger, msg Message) string {
	if r, handled := p.dispatcher.HandlePending(ctx, msg.Sender, msg.Text); handled {
		logger.Info("answered pending confirmation", logging.Status(r.Outcome))
		return r.Text
	}

	entries, err := p.history.Read(ctx, msg.Sender, p.historyLimit+1)
	if err != nil {
		logger.Warn("failed to read history", logging.Err(err))
		entries = nil
	}
	entries = withoutCurrent(entries, msg.Text)
	if len(entries) > p.historyLimit {
		entries = entries[:p.historyLimit]
	}
	turns := contextwindow.Build(entries, p.tokenBudget, p.counter)
	logger.Debug("built context window",
		"turns", len(turns), "stored", len(entries), "tokens", contextwindow.TotalTokens(turns))

	out, err := p.model.Complete(ctx, p.prompt.System(p.now()), turns, p.prompt.UserTurn(msg.Text))
	if err != nil {
		logger.Error("model completion failed", logging.Err(err))
		return dispatcher.MsgGenericFailure
	}

	result := p.parser.Parse(out)
	if result.Invalid != nil {
		r := p.dispatcher.Reject(ctx, msg.Sender, result.Invalid)
		logger.Info("rejected action parameters",
			logging.Action(string(result.Invalid.Action)),
			logging.Status(r.Outcome),
			"field", result.Invalid.Field)
		if r.Text == "" {
			return dispatcher.MsgGenericFailure
		}
		return r.Text
	}
	if !result.IsAction() {
		p.metrics.RecordAction(ctx, "conversation", instrumentation.OutcomeConversation, logging.AnonymizeSender(msg.Sender))
		if result.Text == "" {
			return dispatcher.MsgGenericFailure
		}
		return result.Text
	}

	r := p.dispatcher.Dispatch(ctx, msg.Sender, result.Request)
	logger.Info("dispatched action",
		logging.Action(string(result.Request.Action())),
		logging.Status(r.Outcome))
	if r.Text == "" {
		return dispatcher.MsgGenericFailure
	}
	return r.Text
}

// withoutCurrent drops the just-stored incoming message from a
// most-recent-first history so it is not sent to the model twice.
func withoutCurrent(entries []history.Entry, text string) []history.Entry {
	if len(entries) > 0 && entries[0].Direction == history.Incoming && entries[0].Text == text {
		return entries[1:]
	}
	return entries
}
