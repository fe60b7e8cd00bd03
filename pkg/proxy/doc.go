// Package proxy relays upstream SSE streams to clients with inline
// moderation. Each connection runs one bounded framer; every framed event is
// scored before release, and events carrying violations are withheld and
// replaced with a redaction notice. Terminal failures (buffer overflow,
// upstream errors) surface as a final error event on the already-open
// stream, never as silent truncation.
package proxy
