package sse

import "fmt"

// OverflowError indicates that appending a chunk would have grown the framer
// buffer past its configured capacity. The stream must be terminated; the
// framer never appends past the bound.
//
// The error carries sizes only. Buffer content is deliberately excluded so
// that the diagnostic path cannot amplify allocation under failure.
type OverflowError struct {
	// Limit is the configured buffer capacity in bytes.
	Limit int

	// Buffered is the number of bytes held when the overflow occurred.
	Buffered int

	// ChunkSize is the size of the chunk that was rejected.
	ChunkSize int
}

// Error implements the error interface.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("sse: buffer overflow: %d buffered + %d chunk exceeds limit %d",
		e.Buffered, e.ChunkSize, e.Limit)
}
