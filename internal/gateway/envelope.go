package gateway

import (
	"bytes"
	"encoding/json"
)

// unwrap strips the response envelopes the backend uses: {"data": ...}
// for single resources and Spring pages {"content": [...]} for lists.
// Anything else is returned unchanged.
func unwrap(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return trimmed
	}
	if inner, ok := envelope["data"]; ok && len(inner) > 0 && string(inner) != "null" {
		return unwrap(inner)
	}
	if inner, ok := envelope["content"]; ok && isArray(inner) {
		return inner
	}
	return trimmed
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	text := string(bytes.TrimSpace(data))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
