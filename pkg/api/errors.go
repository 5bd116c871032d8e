package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated means no usable credential is available. Callers
// should clear local session state and redirect to authentication.
var ErrUnauthenticated = errors.New("not authenticated")

// RequestError represents a non-2xx response from the remote API. It
// carries the human-readable message parsed from the error body, or a
// generic message when the body could not be parsed.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}

// Unauthorized reports whether the failure is an authorization failure.
func (e *RequestError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// IsAuthFailure reports whether err signals that the current credential
// is unusable and the session must be torn down.
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrUnauthenticated) {
		return true
	}
	var re *RequestError
	return errors.As(err, &re) && re.Unauthorized()
}
