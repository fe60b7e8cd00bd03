// Package logging configures the process-wide slog logger and carries the
// request id through context for per-request log correlation.
package logging
