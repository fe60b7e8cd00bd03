// Package telemetry groups the gateway's observability concerns.
//
//   - logging: structured slog setup and request ID propagation
//   - metrics: Prometheus counters and the /metrics handler
//
// Both are wired by the gateway supervisor; nothing here keeps global state
// beyond the process default logger.
package telemetry
