package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the module.
const TracerName = "github.com/megasecretaria/megasecretaria"

// Span attribute keys.
const (
	SpanAttrService   = "assistant.service"
	SpanAttrOperation = "assistant.operation"
	SpanAttrAction    = "assistant.action"
	SpanAttrSender    = "assistant.sender_hash"
	SpanAttrEventID   = "calendar.event_id"
	SpanAttrModel     = "llm.model"
	SpanAttrOutcome   = "assistant.outcome"
)

// SpanAttributeBuilder helps construct span attributes with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 6)}
}

// WithAction adds the assistant action name.
func (b *SpanAttributeBuilder) WithAction(action string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrAction, action))
	return b
}

// WithSender adds an already anonymized sender. Empty values are skipped.
func (b *SpanAttributeBuilder) WithSender(senderHash string) *SpanAttributeBuilder {
	if senderHash != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrSender, senderHash))
	}
	return b
}

// WithEventID adds a calendar event id. Empty values are skipped.
func (b *SpanAttributeBuilder) WithEventID(id string) *SpanAttributeBuilder {
	if id != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrEventID, id))
	}
	return b
}

// WithOutcome adds the dispatcher outcome.
func (b *SpanAttributeBuilder) WithOutcome(outcome string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOutcome, outcome))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new internal span. The caller must end it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartCalendarSpan starts a client span for a Google Calendar call,
// named "calendar.<operation>".
func StartCalendarSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startClientSpan(ctx, ServiceCalendar, operation, attrs)
}

// StartModelSpan starts a client span for a language model completion.
func StartModelSpan(ctx context.Context, model string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startClientSpan(ctx, ServiceModel, OperationComplete, append(attrs, attribute.String(SpanAttrModel, model)))
}

// StartWhatsAppSpan starts a client span for an outbound gateway call.
func StartWhatsAppSpan(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startClientSpan(ctx, ServiceWhatsApp, OperationSend, attrs)
}

func startClientSpan(ctx context.Context, service, operation string, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	all = append(all, attrs...)

	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, service+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// AnnotateSpan adds attrs to the span in ctx, if any.
func AnnotateSpan(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
