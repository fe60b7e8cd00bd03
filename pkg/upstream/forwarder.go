package upstream

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxPrebufferBytes is the default validation prebuffer cap.
const DefaultMaxPrebufferBytes = 1024

// readChunkSize is the fixed read buffer used during prebuffering, so a
// single chunk can never exceed the prebuffer cap.
const readChunkSize = 1024

// Config contains forwarder configuration.
type Config struct {
	// BaseURL is the upstream service base URL, without a trailing slash.
	BaseURL string

	// Timeout is the per-request timeout applied to the HTTP client.
	// It covers connection and header read; body streaming is governed by
	// the request context. Default: 60s.
	Timeout time.Duration

	// MaxPrebufferBytes caps how many response bytes are read while
	// validating the stream shape. Default: DefaultMaxPrebufferBytes.
	MaxPrebufferBytes int

	// MaxIdleConns and MaxIdleConnsPerHost configure transport pooling.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

// Request describes one client call to forward upstream.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Forwarder performs upstream requests with prebuffer validation.
type Forwarder struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewForwarder creates a forwarder with a pooled HTTP transport.
func NewForwarder(cfg Config) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxPrebufferBytes <= 0 {
		cfg.MaxPrebufferBytes = DefaultMaxPrebufferBytes
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	}

	return &Forwarder{
		config: cfg,
		// No client-level timeout: it would cut off long-lived event
		// streams. Cancellation comes from the request context.
		client: &http.Client{Transport: transport},
		logger: slog.Default().With("component", "upstream.forwarder"),
	}
}

// Forward issues the upstream request and validates the response prefix.
// On success it returns a Stream that replays the prebuffered bytes before
// continuing from the network; the caller owns the Stream and must Close it.
// On failure the upstream connection is already closed.
func (f *Forwarder) Forward(ctx context.Context, req *Request) (*Stream, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method,
		f.config.BaseURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &Error{Kind: KindConnectionFailed, Cause: err}
	}

	for key, values := range req.Header {
		if skipHeader(key) {
			continue
		}
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindConnectionFailed, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, f.rejectResponse(resp)
	}

	// Fast path: declared event stream, no prebuffering needed.
	if isEventStreamContentType(resp.Header.Get("Content-Type")) {
		return newStream(nil, resp.Body), nil
	}

	return f.prebuffer(resp)
}

// prebuffer reads capped chunks until the accumulated prefix validates as an
// event stream, or the cap is exhausted.
func (f *Forwarder) prebuffer(resp *http.Response) (*Stream, error) {
	var (
		chunks [][]byte
		total  int64
	)
	buf := make([]byte, readChunkSize)

	for total < int64(f.config.MaxPrebufferBytes) {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			chunks = append(chunks, chunk)
			total += int64(n)

			if looksLikeEventStream(chunks) {
				f.logger.Debug("upstream stream validated",
					"chunks", len(chunks),
					"prebuffered_bytes", total,
				)
				return newStream(chunks, resp.Body), nil
			}
		}
		if err != nil {
			break
		}
	}

	resp.Body.Close()
	upErr := &Error{
		Kind:       KindInvalidResponse,
		StatusCode: resp.StatusCode,
		Chunks:     len(chunks),
		Bytes:      total,
	}
	if len(chunks) > 0 {
		upErr.FirstExcerpt = excerpt(chunks[0])
		upErr.LastExcerpt = excerpt(chunks[len(chunks)-1])
	}
	f.logger.Warn("upstream response failed validation",
		"status", resp.StatusCode,
		"chunks", upErr.Chunks,
		"bytes", upErr.Bytes,
	)
	return nil, upErr
}

// rejectResponse drains a bounded excerpt of an error response and closes it.
func (f *Forwarder) rejectResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxExcerptBytes))
	resp.Body.Close()
	return &Error{
		Kind:         KindInvalidResponse,
		StatusCode:   resp.StatusCode,
		Chunks:       1,
		Bytes:        int64(len(body)),
		FirstExcerpt: excerpt(body),
	}
}

// skipHeader reports whether a client header must not be forwarded upstream.
func skipHeader(key string) bool {
	switch strings.ToLower(key) {
	case "host", "content-length", "connection", "accept-encoding":
		return true
	}
	return false
}

func isEventStreamContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "text/event-stream")
}

// looksLikeEventStream checks the accumulated prefix for SSE field framing.
func looksLikeEventStream(chunks [][]byte) bool {
	var prefix []byte
	for _, c := range chunks {
		prefix = append(prefix, c...)
		if len(prefix) >= 16 {
			break
		}
	}
	trimmed := bytes.TrimLeft(prefix, "\r\n")
	for _, field := range [][]byte{[]byte("data:"), []byte("event:"), []byte("id:"), []byte("retry:"), []byte(":")} {
		if bytes.HasPrefix(trimmed, field) {
			return true
		}
	}
	return false
}
