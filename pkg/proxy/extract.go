package proxy

import (
	"bytes"
	"encoding/json"
	"strings"
)

var dataPrefix = []byte("data:")

// extractText pulls the moderatable text out of one framed SSE event.
// Data lines carrying JSON chat deltas contribute their content fields;
// non-JSON data lines contribute their raw text. Comment lines, field lines
// other than data, and the [DONE] sentinel contribute nothing.
func extractText(raw []byte) string {
	var parts []string
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}
		if text := textFromPayload(payload); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// textFromPayload extracts text from one data payload. JSON payloads in the
// common chat-completion shapes contribute delta or message content; other
// JSON contributes nothing; non-JSON payloads pass through as-is.
func textFromPayload(payload []byte) string {
	if payload[0] != '{' {
		return string(payload)
	}

	var body struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		// Malformed JSON still gets moderated as raw text.
		return string(payload)
	}

	var parts []string
	for _, choice := range body.Choices {
		switch {
		case choice.Delta.Content != "":
			parts = append(parts, choice.Delta.Content)
		case choice.Message.Content != "":
			parts = append(parts, choice.Message.Content)
		case choice.Text != "":
			parts = append(parts, choice.Text)
		}
	}
	return strings.Join(parts, " ")
}
