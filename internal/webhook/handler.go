package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/megasecretaria/megasecretaria/internal/assistant"
	"github.com/megasecretaria/megasecretaria/internal/instrumentation"
	"github.com/megasecretaria/megasecretaria/internal/logging"
)

// MaxBodyBytes caps the size of an accepted webhook body.
const MaxBodyBytes = 1 << 20

// Enqueuer accepts messages for asynchronous processing.
type Enqueuer interface {
	Enqueue(msg assistant.Message) (string, error)
}

// HealthEndpoints provides the health handlers mounted next to the webhook.
type HealthEndpoints interface {
	LivenessHandler() http.Handler
	ReadinessHandler() http.Handler
	DetailedHealthHandler() http.Handler
}

// Config holds the router dependencies.
type Config struct {
	AllowList AllowList
	Queue     Enqueuer
	Health    HealthEndpoints
	Metrics   *instrumentation.Metrics
	Logger    *slog.Logger
}

// Response is the JSON body returned to the gateway.
type Response struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Response statuses.
const (
	StatusQueued  = "queued"
	StatusIgnored = "ignored"
	StatusError   = "error"
)

type handler struct {
	allow   AllowList
	queue   Enqueuer
	metrics *instrumentation.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouter builds the HTTP router serving the webhook and health checks.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handler{
		allow:   cfg.AllowList,
		queue:   cfg.Queue,
		metrics: cfg.Metrics,
		logger:  logging.WithService(cfg.Logger, "webhook"),
		now:     time.Now,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metricsMiddleware(cfg.Metrics))

	if cfg.Health != nil {
		r.Method(http.MethodGet, "/healthz", cfg.Health.LivenessHandler())
		r.Method(http.MethodGet, "/readyz", cfg.Health.ReadinessHandler())
		r.Method(http.MethodGet, "/healthz/detailed", cfg.Health.DetailedHealthHandler())
	}
	r.Post("/webhook", h.receive)

	return r
}

func (h *handler) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With(logging.RequestID(chimw.GetReqID(ctx)))

	var p payload
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		h.metrics.RecordWebhookMessage(ctx, instrumentation.WebhookResultInvalid)
		logger.Warn("malformed webhook body", logging.Err(err))
		writeJSON(w, http.StatusBadRequest, Response{Status: StatusError, Reason: "malformed JSON"})
		return
	}

	if p.Event != EventMessagesUpsert || p.Data == nil || p.Data.Message == nil {
		h.ignore(w, r, "not a message event")
		return
	}
	if p.Data.Key.FromMe {
		h.ignore(w, r, "own message")
		return
	}

	sender := NormalizeNumber(p.Data.Key.RemoteJID)
	text := p.Data.Message.text()
	if sender == "" || text == "" {
		h.ignore(w, r, "missing data")
		return
	}
	if !h.allow.Allowed(sender) {
		logger.Info("message from sender outside allow-list", logging.SenderHash(sender))
		h.ignore(w, r, "unauthorized sender")
		return
	}

	id, err := h.queue.Enqueue(assistant.Message{
		Sender:     sender,
		Text:       text,
		ReceivedAt: h.now(),
	})
	if err != nil {
		status := http.StatusServiceUnavailable
		if !errors.Is(err, assistant.ErrQueueFull) && !errors.Is(err, assistant.ErrQueueClosed) {
			status = http.StatusInternalServerError
		}
		h.metrics.RecordWebhookMessage(ctx, instrumentation.WebhookResultInvalid)
		logger.Error("failed to enqueue message", logging.SenderHash(sender), logging.Err(err))
		writeJSON(w, status, Response{Status: StatusError, Reason: err.Error()})
		return
	}

	h.metrics.RecordWebhookMessage(ctx, instrumentation.WebhookResultQueued)
	logger.Info("message queued", logging.SenderHash(sender), slog.String("message_id", id))
	writeJSON(w, http.StatusOK, Response{Status: StatusQueued, ID: id})
}

func (h *handler) ignore(w http.ResponseWriter, r *http.Request, reason string) {
	h.metrics.RecordWebhookMessage(r.Context(), instrumentation.WebhookResultIgnored)
	writeJSON(w, http.StatusOK, Response{Status: StatusIgnored, Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func metricsMiddleware(metrics *instrumentation.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.RecordHTTPRequest(r.Context(), r.Method, path, status, time.Since(start))
		})
	}
}
