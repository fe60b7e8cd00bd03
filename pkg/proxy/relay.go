package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"warden-hq/warden/pkg/moderation"
	"warden-hq/warden/pkg/sse"
	"warden-hq/warden/pkg/telemetry/logging"
	"warden-hq/warden/pkg/telemetry/metrics"
	"warden-hq/warden/pkg/upstream"
)

// ProfileHeader selects the moderation profile for a stream.
const ProfileHeader = "X-Moderation-Profile"

// Evaluator scores one unit of text for a profile.
type Evaluator interface {
	Evaluate(requestID, profile, text string) moderation.Decision
}

// HandlerConfig tunes the streaming handler.
type HandlerConfig struct {
	// ForwardPath is the upstream path streams are forwarded to.
	// Default: "/v1/chat/completions".
	ForwardPath string

	// MaxBufferBytes bounds the per-connection framer.
	MaxBufferBytes int

	// DefaultProfile is used when the request names none.
	// Default: "default".
	DefaultProfile string
}

func (c *HandlerConfig) applyDefaults() {
	if c.ForwardPath == "" {
		c.ForwardPath = "/v1/chat/completions"
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = sse.DefaultMaxBufferBytes
	}
	if c.DefaultProfile == "" {
		c.DefaultProfile = "default"
	}
}

// Handler relays one client request as a moderated upstream stream.
type Handler struct {
	config    HandlerConfig
	forwarder *upstream.Forwarder
	engine    Evaluator
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewHandler builds the streaming handler. metrics may be nil.
func NewHandler(config HandlerConfig, forwarder *upstream.Forwarder, engine Evaluator, collector *metrics.Collector) *Handler {
	config.applyDefaults()
	return &Handler{
		config:    config,
		forwarder: forwarder,
		engine:    engine,
		metrics:   collector,
		logger:    slog.Default().With("component", "proxy"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := logging.RequestIDFrom(r.Context())

	profile := r.Header.Get(ProfileHeader)
	if profile == "" {
		profile = h.config.DefaultProfile
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported",
			"response writer does not support streaming", requestID)
		return
	}

	// Request bodies are small JSON payloads; buffering them lets the
	// forwarder replay the request with a known length.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body",
			"reading request body failed", requestID)
		return
	}

	stream, err := h.forwarder.Forward(r.Context(), &upstream.Request{
		Method: http.MethodPost,
		Path:   h.config.ForwardPath,
		Header: r.Header,
		Body:   body,
	})
	if err != nil {
		h.rejectUpstream(w, err, requestID)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	status := h.relay(r.Context(), w, flusher, stream, profile, requestID)

	if h.metrics != nil {
		h.metrics.RecordStream(status, time.Since(started))
	}
	h.logger.Info("stream finished",
		"request_id", requestID,
		"profile", profile,
		"status", status,
		"duration_ms", time.Since(started).Milliseconds())
}

// rejectUpstream maps a pre-commit upstream failure to a JSON error.
func (h *Handler) rejectUpstream(w http.ResponseWriter, err error, requestID string) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		if h.metrics != nil {
			h.metrics.RecordUpstreamReject(string(upErr.Kind))
		}
		h.logger.Warn("upstream rejected",
			"request_id", requestID,
			"kind", upErr.Kind,
			"error", upErr)
		writeError(w, http.StatusBadGateway, string(upErr.Kind),
			"upstream did not produce a usable event stream", requestID)
		return
	}
	h.logger.Error("upstream forward failed", "request_id", requestID, "error", err)
	writeError(w, http.StatusBadGateway, "upstream_error",
		"forwarding to upstream failed", requestID)
}

// relay pumps the committed upstream stream through the framer and the
// moderation engine until the stream ends or fails. It returns the terminal
// status for metrics: "completed", "overflow", "upstream_error", or
// "cancelled".
func (h *Handler) relay(ctx context.Context, w io.Writer, flusher http.Flusher, stream io.Reader, profile, requestID string) string {
	framer := sse.NewFramer(h.config.MaxBufferBytes)
	buf := make([]byte, 32*1024)

	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			events, err := framer.Feed(buf[:n])
			if err != nil {
				var overflow *sse.OverflowError
				if errors.As(err, &overflow) {
					if h.metrics != nil {
						h.metrics.RecordOverflow()
					}
					// The error carries sizes only; the buffered payload is
					// discarded unseen.
					h.logger.Warn("stream exceeded frame buffer cap",
						"request_id", requestID,
						"limit", overflow.Limit,
						"buffered", overflow.Buffered)
					h.write(w, flusher, terminalEvent("stream_buffer_overflow", requestID))
					return "overflow"
				}
				h.write(w, flusher, terminalEvent("framing_error", requestID))
				return "upstream_error"
			}
			for _, ev := range events {
				h.emit(w, flusher, ev.Raw, profile, requestID)
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				if final := framer.Close(); final != nil {
					h.emit(w, flusher, final.Raw, profile, requestID)
				}
				return "completed"
			}
			if ctx.Err() != nil {
				return "cancelled"
			}
			h.logger.Warn("upstream read failed mid-stream",
				"request_id", requestID,
				"error", readErr)
			h.write(w, flusher, terminalEvent("upstream_error", requestID))
			return "upstream_error"
		}
	}
}

// emit scores one framed event and writes either the event or a redaction
// notice downstream, preserving arrival order.
func (h *Handler) emit(w io.Writer, flusher http.Flusher, raw []byte, profile, requestID string) {
	if h.metrics != nil {
		h.metrics.RecordEvent(profile)
	}

	text := extractText(raw)
	if text != "" {
		decision := h.engine.Evaluate(requestID, profile, text)
		if h.metrics != nil {
			h.metrics.RecordDecision(profile, string(decision.Verdict))
		}
		if decision.Verdict == moderation.VerdictViolation {
			if h.metrics != nil {
				h.metrics.RecordRedaction(profile)
			}
			h.logger.Info("event redacted",
				"request_id", requestID,
				"profile", profile,
				"score", decision.Score)
			h.write(w, flusher, redactionEvent(profile, requestID))
			return
		}
	}

	h.write(w, flusher, append(raw, '\n', '\n'))
}

func (h *Handler) write(w io.Writer, flusher http.Flusher, b []byte) {
	if _, err := w.Write(b); err != nil {
		return
	}
	flusher.Flush()
}
