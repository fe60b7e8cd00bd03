// Package sse provides a bounded framer for Server-Sent Event streams.
//
// The framer reconstructs discrete events from an arbitrary byte stream by
// splitting on the SSE event delimiter (two consecutive newlines). It carries
// a hard buffer capacity: an upstream that never emits the delimiter cannot
// grow memory past the configured bound.
//
// One Framer instance serves exactly one upstream connection and is discarded
// when the connection ends.
package sse
