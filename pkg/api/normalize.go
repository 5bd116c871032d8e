package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// The backend's envelope convention is inconsistent across endpoints:
// some wrap payloads in {"data": ...}, some return the record bare
// (token responses carry access_token at the top level), some return
// an empty body on success. The decode path applies one ordered
// fallback chain instead of per-call-site probing.

// Unwrap returns the JSON payload stored under a top-level "data"
// field. Bodies without such a field — including bare token responses
// and already-unwrapped records — are returned as-is, which makes
// Unwrap idempotent on canonical payloads.
func Unwrap(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return trimmed
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || envelope.Data == nil {
		return trimmed
	}
	return envelope.Data
}

// decodeResponse drains resp.Body and applies the normalization rules:
// non-2xx becomes a *RequestError, an empty 2xx body leaves out at its
// zero value, JSON is unwrapped and unmarshalled, and non-JSON text is
// assigned directly when out is a *string.
func decodeResponse(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newRequestError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		if s, ok := out.(*string); ok {
			*s = string(body)
			return nil
		}
		// Some endpoints omit the content type on JSON bodies; fall
		// through and let the unmarshal decide.
	}

	if err := json.Unmarshal(Unwrap(trimmed), out); err != nil {
		if s, ok := out.(*string); ok {
			*s = string(body)
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// newRequestError parses the error body into a message, trying the
// usual field names before giving up on a generic one.
func newRequestError(status int, body []byte) *RequestError {
	msg := parseErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = "server error"
	}
	return &RequestError{Status: status, Message: msg}
}

func parseErrorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(Unwrap(trimmed), &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType) == "application/json"
}
