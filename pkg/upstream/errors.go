package upstream

import "fmt"

// ErrorKind classifies forwarder failures.
type ErrorKind string

const (
	// KindInvalidResponse means the upstream answered, but the response
	// never validated as an event stream within the prebuffer cap.
	KindInvalidResponse ErrorKind = "invalid_upstream_response"

	// KindConnectionFailed means the upstream request could not be
	// performed at all.
	KindConnectionFailed ErrorKind = "connection_failed"
)

// maxExcerptBytes bounds the chunk excerpts carried by an Error. Enforced at
// construction, not by caller discipline.
const maxExcerptBytes = 200

// Error is a structured forwarder failure. Diagnostics are summary-only:
// chunk count, byte total, and bounded excerpts of the first and last chunk.
// The full prebuffer is never serialized into an error.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// StatusCode is the upstream HTTP status (0 if the request never
	// completed).
	StatusCode int

	// Chunks is the number of prebuffered chunks read before giving up.
	Chunks int

	// Bytes is the total number of prebuffered bytes.
	Bytes int64

	// FirstExcerpt and LastExcerpt hold at most maxExcerptBytes of the
	// first and last prebuffered chunk.
	FirstExcerpt string
	LastExcerpt  string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindConnectionFailed:
		return fmt.Sprintf("upstream: connection failed: %v", e.Cause)
	default:
		return fmt.Sprintf("upstream: invalid response (status %d, %d chunks, %d bytes)",
			e.StatusCode, e.Chunks, e.Bytes)
	}
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// excerpt returns at most maxExcerptBytes of b as a string.
func excerpt(b []byte) string {
	if len(b) > maxExcerptBytes {
		b = b[:maxExcerptBytes]
	}
	return string(b)
}
