package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"enveloped object", `{"data":{"id":"f1"}}`, `{"id":"f1"}`},
		{"enveloped list", `{"data":[1,2]}`, `[1,2]`},
		{"bare object", `{"id":"f1"}`, `{"id":"f1"}`},
		{"bare token response", `{"access_token":"a","refresh_token":"r"}`, `{"access_token":"a","refresh_token":"r"}`},
		{"whitespace padding", "  {\"data\":{\"id\":\"f1\"}}\n", `{"id":"f1"}`},
		{"not an object", `[{"id":"f1"}]`, `[{"id":"f1"}]`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(Unwrap([]byte(tt.body)))
			if got != tt.want {
				t.Errorf("Unwrap(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestUnwrap_IdempotentOnCanonicalPayloads(t *testing.T) {
	bodies := []string{
		`{"id":"f1","fileName":"a.txt"}`,
		`{"data":{"id":"f1"}}`,
		`{"items":[{"id":"f1"}]}`,
	}
	for _, body := range bodies {
		once := Unwrap([]byte(body))
		twice := Unwrap(once)
		if string(once) != string(twice) {
			t.Errorf("Unwrap not idempotent for %q: %q then %q", body, once, twice)
		}
	}
}

func respondWith(t *testing.T, status int, contentType, body string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	if contentType != "" {
		rec.Header().Set("Content-Type", contentType)
	}
	rec.WriteHeader(status)
	rec.Body.WriteString(body)
	return rec.Result()
}

func TestDecodeResponse(t *testing.T) {
	t.Run("empty body success leaves zero value", func(t *testing.T) {
		var out FileRecord
		err := decodeResponse(respondWith(t, http.StatusCreated, "application/json", ""), &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.ID != "" {
			t.Errorf("expected zero value, got %+v", out)
		}
	})

	t.Run("enveloped payload unwrapped", func(t *testing.T) {
		var out FileRecord
		err := decodeResponse(respondWith(t, http.StatusOK, "application/json",
			`{"data":{"id":"f1","fileName":"a.txt","fileSize":500}}`), &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.ID != "f1" || out.FileName != "a.txt" || out.FileSize != 500 {
			t.Errorf("unexpected record: %+v", out)
		}
	})

	t.Run("bare payload taken whole", func(t *testing.T) {
		var out TokenPair
		err := decodeResponse(respondWith(t, http.StatusOK, "application/json",
			`{"access_token":"a","refresh_token":"r"}`), &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.AccessToken != "a" || out.RefreshToken != "r" {
			t.Errorf("unexpected pair: %+v", out)
		}
	})

	t.Run("camelCase token fields accepted", func(t *testing.T) {
		var out TokenPair
		err := decodeResponse(respondWith(t, http.StatusOK, "application/json",
			`{"accessToken":"a","refreshToken":"r"}`), &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.AccessToken != "a" || out.RefreshToken != "r" {
			t.Errorf("unexpected pair: %+v", out)
		}
	})

	t.Run("non-JSON content into string", func(t *testing.T) {
		var out string
		err := decodeResponse(respondWith(t, http.StatusOK, "text/plain", "hello"), &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "hello" {
			t.Errorf("expected raw text, got %q", out)
		}
	})

	t.Run("non-2xx becomes RequestError", func(t *testing.T) {
		err := decodeResponse(respondWith(t, http.StatusForbidden, "application/json",
			`{"message":"no access"}`), nil)
		var re *RequestError
		if !errors.As(err, &re) {
			t.Fatalf("expected RequestError, got %v", err)
		}
		if re.Status != http.StatusForbidden || re.Message != "no access" {
			t.Errorf("unexpected error: %+v", re)
		}
	})

	t.Run("unparseable error body gets generic message", func(t *testing.T) {
		err := decodeResponse(respondWith(t, http.StatusBadGateway, "text/html", "<html>oops</html>"), nil)
		var re *RequestError
		if !errors.As(err, &re) {
			t.Fatalf("expected RequestError, got %v", err)
		}
		if re.Message == "" {
			t.Error("expected a generic message")
		}
	})

	t.Run("enveloped error body parsed", func(t *testing.T) {
		err := decodeResponse(respondWith(t, http.StatusNotFound, "application/json",
			`{"data":{"message":"gone"}}`), nil)
		var re *RequestError
		if !errors.As(err, &re) {
			t.Fatalf("expected RequestError, got %v", err)
		}
		if re.Message != "gone" {
			t.Errorf("expected parsed message, got %q", re.Message)
		}
	})
}

func TestIsAuthFailure(t *testing.T) {
	if !IsAuthFailure(&RequestError{Status: http.StatusUnauthorized}) {
		t.Error("401 should be an auth failure")
	}
	if !IsAuthFailure(ErrUnauthenticated) {
		t.Error("ErrUnauthenticated should be an auth failure")
	}
	if IsAuthFailure(&RequestError{Status: http.StatusInternalServerError}) {
		t.Error("500 should not be an auth failure")
	}
	if IsAuthFailure(errors.New("dial tcp: refused")) {
		t.Error("network errors are not auth failures")
	}
}

func TestTokenPair_RejectsInvalidJSON(t *testing.T) {
	var pair TokenPair
	if err := json.Unmarshal([]byte(`"just a string"`), &pair); err == nil {
		t.Error("expected error for non-object token response")
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(`{"access_token":"a"}`)), &pair); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
