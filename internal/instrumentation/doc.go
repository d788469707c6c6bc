// Package instrumentation provides OpenTelemetry metrics, tracing and the
// calendar audit trail for megasecretaria.
//
// # Metrics
//
// Webhook:
//   - http_requests_total, http_request_duration_seconds
//   - webhook_messages_total{result}
//
// Collaborators:
//   - calendar_api_operations_total, calendar_api_operation_duration_seconds
//   - model_completions_total, model_completion_duration_seconds, model_tokens_total{kind}
//   - outbound_messages_total{status}
//
// Dispatcher:
//   - assistant_actions_total{action,outcome}
//   - assistant_pending_confirmations
//   - assistant_duplicates_suppressed_total
//
// # Tracing
//
// Client spans are named after the collaborator: calendar.<operation>,
// model.complete and whatsapp.send. Each inbound message gets an
// assistant.handle span.
//
// # Configuration
//
// Environment variables read by DefaultConfig:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - METRICS_DETAILED_LABELS, AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordCalendarOperation(ctx, instrumentation.OperationCreate,
//		instrumentation.StatusSuccess, time.Since(start))
package instrumentation
