// Package observability provides the operational plumbing shared by the
// warden binaries: structured JSON logging with context propagation,
// Prometheus metrics, optional OpenTelemetry tracing and metric export,
// health/readiness probes, and graceful shutdown coordination.
package observability
