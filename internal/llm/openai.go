package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/megasecretaria/megasecretaria/internal/contextwindow"
	"github.com/megasecretaria/megasecretaria/internal/instrumentation"
	"github.com/megasecretaria/megasecretaria/internal/logging"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyReply is returned when the model answers with no content.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Completer produces the model reply for one user turn.
type Completer interface {
	Complete(ctx context.Context, system string, history []contextwindow.Turn, user string) (string, error)
}

// Config holds the OpenAI client settings.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// OpenAI implements Completer with the chat completions API.
type OpenAI struct {
	client  openai.Client
	model   string
	max     int
	timeout time.Duration
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewOpenAI creates the client. Extra request options are appended last.
func NewOpenAI(cfg Config, opts ...option.RequestOption) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAI{
		client:  openai.NewClient(reqOpts...),
		model:   cfg.Model,
		max:     cfg.MaxTokens,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		logger:  logging.WithService(cfg.Logger, instrumentation.ServiceModel),
	}, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string {
	return o.model
}

// Complete sends the system prompt, the history window and the user turn.
func (o *OpenAI) Complete(ctx context.Context, system string, history []contextwindow.Turn, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ctx, span := instrumentation.StartModelSpan(ctx, o.model)
	defer span.End()

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: buildMessages(system, history, user),
	}
	if o.max > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.max))
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		o.metrics.RecordModelCompletion(ctx, o.model, instrumentation.StatusError, 0, 0, duration)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	o.metrics.RecordModelCompletion(ctx, o.model, instrumentation.StatusSuccess,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, duration)

	if len(resp.Choices) == 0 {
		instrumentation.SetSpanError(span, ErrEmptyReply)
		return "", ErrEmptyReply
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		instrumentation.SetSpanError(span, ErrEmptyReply)
		return "", ErrEmptyReply
	}

	instrumentation.SetSpanSuccess(span)
	o.logger.Debug("model replied",
		"model", o.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		slog.Duration(logging.KeyDuration, duration))
	return content, nil
}

func buildMessages(system string, history []contextwindow.Turn, user string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, turn := range history {
		switch turn.Role {
		case contextwindow.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	return append(messages, openai.UserMessage(user))
}
