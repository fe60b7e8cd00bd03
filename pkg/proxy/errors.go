package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// errorBody is the JSON error shape returned before a stream is committed.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError sends a JSON error response. Only valid before the response
// has been committed as an event stream.
func writeError(w http.ResponseWriter, status int, errType, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Type:      errType,
		Message:   message,
		RequestID: requestID,
	}})
}

// terminalEvent renders the final error event sent on an already-open
// stream. It carries the failure kind and the request id, never payload
// bytes from the stream itself.
func terminalEvent(errType, requestID string) []byte {
	detail, _ := json.Marshal(errorDetail{Type: errType, RequestID: requestID})
	return []byte(fmt.Sprintf("event: error\ndata: %s\n\n", detail))
}

// redactionEvent replaces a withheld event on the downstream stream.
func redactionEvent(profile, requestID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"moderation": map[string]string{
			"verdict":    "violation",
			"profile":    profile,
			"request_id": requestID,
		},
	})
	return []byte(fmt.Sprintf("event: moderation\ndata: %s\n\n", payload))
}
