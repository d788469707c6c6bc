package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrAction    = "action"
	attrOutcome   = "outcome"
	attrModel     = "model"
	attrKind      = "kind"
	attrSender    = "sender"
)

// Metrics records the assistant's counters and histograms.
// The zero value is a valid no-op recorder.
type Metrics struct {
	// Webhook ingress
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	webhookMessages     metric.Int64Counter

	// Collaborators
	calendarOpsTotal    metric.Int64Counter
	calendarOpsDuration metric.Float64Histogram
	modelCompletions    metric.Int64Counter
	modelDuration       metric.Float64Histogram
	modelTokens         metric.Int64Counter
	outboundMessages    metric.Int64Counter

	// Dispatcher state machine
	actionsTotal         metric.Int64Counter
	pendingConfirmations metric.Int64ObservableGauge
	duplicatesSuppressed metric.Int64Counter

	meter          metric.Meter
	detailedLabels bool
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{meter: meter, detailedLabels: detailedLabels}

	apiBuckets := metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0)

	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.webhookMessages, "webhook_messages_total", "Inbound webhook messages by result", "{message}"},
		{&m.calendarOpsTotal, "calendar_api_operations_total", "Total number of Google Calendar API operations", "{operation}"},
		{&m.modelCompletions, "model_completions_total", "Total number of language model completions", "{completion}"},
		{&m.modelTokens, "model_tokens_total", "Tokens consumed by language model completions", "{token}"},
		{&m.outboundMessages, "outbound_messages_total", "Outbound WhatsApp messages by status", "{message}"},
		{&m.actionsTotal, "assistant_actions_total", "Calendar actions handled by the dispatcher", "{action}"},
		{&m.duplicatesSuppressed, "assistant_duplicates_suppressed_total", "Create requests rejected by the duplicate guard", "{request}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.calendarOpsDuration, err = meter.Float64Histogram(
		"calendar_api_operation_duration_seconds",
		metric.WithDescription("Google Calendar API operation duration in seconds"),
		metric.WithUnit("s"),
		apiBuckets,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_api_operation_duration_seconds histogram: %w", err)
	}

	m.modelDuration, err = meter.Float64Histogram(
		"model_completion_duration_seconds",
		metric.WithDescription("Language model completion latency in seconds"),
		metric.WithUnit("s"),
		apiBuckets,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create model_completion_duration_seconds histogram: %w", err)
	}

	m.pendingConfirmations, err = meter.Int64ObservableGauge(
		"assistant_pending_confirmations",
		metric.WithDescription("Senders currently awaiting a yes/no confirmation"),
		metric.WithUnit("{sender}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant_pending_confirmations gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordWebhookMessage counts one inbound message by result (queued, ignored, invalid).
func (m *Metrics) RecordWebhookMessage(ctx context.Context, result string) {
	if m == nil || m.webhookMessages == nil {
		return
	}
	m.webhookMessages.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordCalendarOperation records a Google Calendar API call.
//
// Parameters:
//   - operation: list, create, update, delete or freebusy
//   - status: "success" or "error"
func (m *Metrics) RecordCalendarOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.calendarOpsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, ServiceCalendar),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.calendarOpsTotal.Add(ctx, 1, attrs)
	m.calendarOpsDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordModelCompletion records one chat completion and its token usage.
func (m *Metrics) RecordModelCompletion(ctx context.Context, model, status string, promptTokens, completionTokens int64, duration time.Duration) {
	if m == nil || m.modelCompletions == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrModel, model),
		attribute.String(attrStatus, status),
	)
	m.modelCompletions.Add(ctx, 1, attrs)
	m.modelDuration.Record(ctx, duration.Seconds(), attrs)

	if promptTokens > 0 {
		m.modelTokens.Add(ctx, promptTokens, metric.WithAttributes(
			attribute.String(attrModel, model), attribute.String(attrKind, "prompt")))
	}
	if completionTokens > 0 {
		m.modelTokens.Add(ctx, completionTokens, metric.WithAttributes(
			attribute.String(attrModel, model), attribute.String(attrKind, "completion")))
	}
}

// RecordOutboundMessage counts one message handed to the WhatsApp gateway.
func (m *Metrics) RecordOutboundMessage(ctx context.Context, status string) {
	if m == nil || m.outboundMessages == nil {
		return
	}
	m.outboundMessages.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordAction records a dispatched action and its outcome.
// The sender hash is attached only when detailed labels are enabled.
func (m *Metrics) RecordAction(ctx context.Context, action, outcome, senderHash string) {
	if m == nil || m.actionsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrAction, action),
		attribute.String(attrOutcome, NormalizeOutcome(outcome)),
	}
	if m.detailedLabels && senderHash != "" {
		attrs = append(attrs, attribute.String(attrSender, senderHash))
	}
	m.actionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// PendingCounter reports how many senders are awaiting confirmation.
type PendingCounter func(ctx context.Context) (int, error)

// ObservePendingConfirmations reports count as the pending confirmations
// gauge on every collection. Unregister the result on shutdown.
func (m *Metrics) ObservePendingConfirmations(count PendingCounter) (metric.Registration, error) {
	if m == nil || m.meter == nil || m.pendingConfirmations == nil {
		return nil, nil
	}
	gauge := m.pendingConfirmations
	reg, err := m.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := count(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(gauge, int64(n))
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("failed to observe assistant_pending_confirmations: %w", err)
	}
	return reg, nil
}

// RecordDuplicateSuppressed counts a create request dropped by the duplicate guard.
func (m *Metrics) RecordDuplicateSuppressed(ctx context.Context) {
	if m == nil || m.duplicatesSuppressed == nil {
		return
	}
	m.duplicatesSuppressed.Add(ctx, 1)
}
