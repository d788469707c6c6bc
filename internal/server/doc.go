// Package server hosts the long-running HTTP surfaces of megasecretaria.
//
// # Key Components
//
// ServerContext carries the shutdown state and the shared observability
// handles (metrics and audit logger) for the lifetime of the serve command.
//
// HTTPServer serves the webhook router with production timeouts and
// optional TLS.
//
// HealthChecker provides Kubernetes-style health checks:
//   - /healthz: liveness, always ok while the process runs
//   - /readyz: readiness, including registered dependency checks such as
//     the history database and the Valkey state store
//   - /healthz/detailed: uptime and per-check results
//
// MetricsServer exposes the Prometheus /metrics endpoint on a dedicated
// port, isolated from the webhook traffic.
package server
