package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/megasecretaria/megasecretaria/internal/instrumentation"
	"github.com/megasecretaria/megasecretaria/internal/logging"
)

const (
	// DefaultTypingDelay is the delay in milliseconds the gateway shows the
	// "composing" presence before delivering the text.
	DefaultTypingDelay = 1200

	// DefaultMaxAttempts bounds delivery attempts on transient failures.
	DefaultMaxAttempts = 3
)

// Sender delivers a text to a phone number.
type Sender interface {
	Send(ctx context.Context, number, text string) error
}

// Config holds the Evolution API settings.
type Config struct {
	BaseURL  string
	APIKey   string
	Instance string

	TypingDelay int
	MaxAttempts uint
	Timeout     time.Duration

	HTTPClient *http.Client
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
}

// Client sends messages through the Evolution API.
type Client struct {
	endpoint    string
	apiKey      string
	delay       int
	maxAttempts uint
	http        *http.Client
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &SendError{Op: "initialize", Err: fmt.Errorf("base URL cannot be empty")}
	}
	if cfg.APIKey == "" {
		return nil, &SendError{Op: "initialize", Err: fmt.Errorf("API key cannot be empty")}
	}
	if cfg.Instance == "" {
		return nil, &SendError{Op: "initialize", Err: fmt.Errorf("instance cannot be empty")}
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, &SendError{Op: "initialize", Err: fmt.Errorf("invalid base URL: %w", err)}
	}

	if cfg.TypingDelay <= 0 {
		cfg.TypingDelay = DefaultTypingDelay
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/message/sendText/" + url.PathEscape(cfg.Instance),
		apiKey:      cfg.APIKey,
		delay:       cfg.TypingDelay,
		maxAttempts: cfg.MaxAttempts,
		http:        cfg.HTTPClient,
		metrics:     cfg.Metrics,
		logger:      logging.WithService(cfg.Logger, instrumentation.ServiceWhatsApp),
	}, nil
}

// Send delivers text to number, retrying on rate limiting and gateway errors.
func (c *Client) Send(ctx context.Context, number, text string) error {
	if number == "" {
		return &SendError{Op: "send", Err: fmt.Errorf("number cannot be empty")}
	}
	if text == "" {
		return &SendError{Op: "send", Number: number, Err: fmt.Errorf("message cannot be empty")}
	}

	body, err := json.Marshal(sendTextRequest{
		Number:      number,
		Options:     sendOptions{Delay: c.delay, Presence: "composing", LinkPreview: false},
		TextMessage: textMessage{Text: text},
	})
	if err != nil {
		return &SendError{Op: "send", Number: number, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	ctx, span := instrumentation.StartWhatsAppSpan(ctx)
	defer span.End()

	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, c.post(ctx, number, body)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxAttempts),
	)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.metrics.RecordOutboundMessage(ctx, instrumentation.StatusError)
		c.logger.Warn("message delivery failed",
			logging.SenderHash(number), "attempts", attempts, logging.Err(err))

		var sendErr *SendError
		if errors.As(err, &sendErr) {
			return sendErr
		}
		return &SendError{Op: "send", Number: number, Err: err}
	}

	instrumentation.SetSpanSuccess(span)
	c.metrics.RecordOutboundMessage(ctx, instrumentation.StatusSuccess)
	c.logger.Debug("message delivered", logging.SenderHash(number), "attempts", attempts)
	return nil
}

// post performs one attempt. Errors that retrying cannot fix are permanent.
func (c *Client) post(ctx context.Context, number string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(&SendError{Op: "send", Number: number, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(&SendError{Op: "send", Number: number, Err: err})
		}
		return &SendError{Op: "send", Number: number, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	sendErr := &SendError{
		Op:         "send",
		Number:     number,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(detail))),
	}
	if retryable(resp.StatusCode) {
		return sendErr
	}
	return backoff.Permanent(sendErr)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
