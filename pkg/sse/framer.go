package sse

import (
	"bytes"
	"time"
)

// delimiter separates SSE events on the wire.
var delimiter = []byte("\n\n")

// DefaultMaxBufferBytes is the default framer buffer capacity (2 MiB).
const DefaultMaxBufferBytes = 2 << 20

// Event is one framed SSE event. It is immutable once produced: Raw holds a
// copy of the payload bytes (delimiter excluded) and is not aliased by the
// framer buffer.
type Event struct {
	// Raw is the event payload, excluding the trailing delimiter.
	Raw []byte

	// ReceivedAt is when the framer completed the event.
	ReceivedAt time.Time
}

// Framer turns a raw byte stream into discrete SSE events. It accumulates
// un-framed bytes in an internal buffer with a hard capacity; Feed fails with
// *OverflowError rather than growing past the bound.
type Framer struct {
	buf    []byte
	max    int
	closed bool
	failed bool
}

// NewFramer creates a framer with the given buffer capacity. A non-positive
// capacity selects DefaultMaxBufferBytes.
func NewFramer(maxBufferBytes int) *Framer {
	if maxBufferBytes <= 0 {
		maxBufferBytes = DefaultMaxBufferBytes
	}
	return &Framer{max: maxBufferBytes}
}

// Feed appends chunk to the buffer and returns every complete event framed by
// it, in wire order. A trailing partial event stays buffered for the next
// call.
//
// If buffering the chunk would exceed the capacity, Feed returns
// *OverflowError without appending; the framer is then unusable and the
// caller must terminate the stream.
func (f *Framer) Feed(chunk []byte) ([]Event, error) {
	if f.failed || f.closed {
		return nil, nil
	}
	if len(f.buf)+len(chunk) > f.max {
		f.failed = true
		err := &OverflowError{Limit: f.max, Buffered: len(f.buf), ChunkSize: len(chunk)}
		f.buf = nil
		return nil, err
	}

	f.buf = append(f.buf, chunk...)

	var events []Event
	for {
		i := bytes.Index(f.buf, delimiter)
		if i < 0 {
			break
		}
		payload := make([]byte, i)
		copy(payload, f.buf[:i])
		events = append(events, Event{Raw: payload, ReceivedAt: time.Now()})
		f.buf = f.buf[i+len(delimiter):]
	}
	return events, nil
}

// Close flushes the buffer. A non-blank partial event is returned as the
// terminal event; blank remainders are discarded and Close returns nil.
// The framer must not be fed after Close.
func (f *Framer) Close() *Event {
	if f.closed || f.failed {
		return nil
	}
	f.closed = true

	remaining := bytes.TrimSpace(f.buf)
	f.buf = nil
	if len(remaining) == 0 {
		return nil
	}
	payload := make([]byte, len(remaining))
	copy(payload, remaining)
	return &Event{Raw: payload, ReceivedAt: time.Now()}
}

// Buffered returns the number of un-framed bytes currently held.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
