package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable marks transport failures: the server could not be
// reached or the exchange broke off. Callers reading data treat it as a
// "failed to load" state and keep whatever they had cached.
var ErrUnavailable = errors.New("portal api unavailable")

// Error is a non-2xx response from the portal API.
type Error struct {
	StatusCode int
	Method     string
	Path       string

	// Message is the server-provided message, empty when the body carried
	// none.
	Message string

	// Body is the raw response body, truncated.
	Body string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d) on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
}

// AuthError indicates that the access token was rejected (HTTP 401).
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// MessageOf returns the server-provided message carried by err, or
// fallback when there is none.
func MessageOf(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	return fallback
}

// errorBody lists the message fields the backends use.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

const maxErrorBody = 512

func newError(status int, method, path string, body []byte) *Error {
	e := &Error{StatusCode: status, Method: method, Path: path}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		e.Message = strings.TrimSpace(firstNonEmpty(eb.Message, eb.Detail, eb.Error))
	}

	raw := string(body)
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	e.Body = raw
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
