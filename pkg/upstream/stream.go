package upstream

import (
	"io"
	"sync"
)

// Stream is a committed upstream response: the validated prebuffer replayed
// first, then the live network body. It implements io.ReadCloser; Close is
// idempotent and releases the upstream connection.
type Stream struct {
	prebuffer [][]byte
	index     int
	offset    int
	body      io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

func newStream(prebuffer [][]byte, body io.ReadCloser) *Stream {
	return &Stream{prebuffer: prebuffer, body: body}
}

// Read drains the prebuffer before reading from the network.
func (s *Stream) Read(p []byte) (int, error) {
	for s.index < len(s.prebuffer) {
		chunk := s.prebuffer[s.index]
		if s.offset < len(chunk) {
			n := copy(p, chunk[s.offset:])
			s.offset += n
			return n, nil
		}
		// Chunk fully replayed; drop the reference so replayed bytes
		// do not outlive the prebuffer phase.
		s.prebuffer[s.index] = nil
		s.index++
		s.offset = 0
	}
	return s.body.Read(p)
}

// Close releases the upstream connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.prebuffer = nil
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
