package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"warden-hq/warden/pkg/telemetry/logging"
)

// RequestIDHeader is the HTTP header for the request id.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a unique id, honoring a client-supplied
// X-Request-ID. The id travels in the context and the response header so
// logs, decisions, and client reports correlate.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
