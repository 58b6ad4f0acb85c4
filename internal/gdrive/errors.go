// Package gdrive provides an HTTP client for the Google Drive v3 API with
// automatic retry, error classification, paginated folder listing, and the
// OAuth2 credential provider used by scan jobs.
package gdrive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gdrive: bad request")
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	ErrForbidden    = errors.New("gdrive: forbidden")
	ErrNotFound     = errors.New("gdrive: not found")
	ErrThrottled    = errors.New("gdrive: throttled")
	ErrServerError  = errors.New("gdrive: server error")
)

// Drive reports per-user and per-project quota exhaustion as 403 with one of
// these reasons rather than 429.
const (
	reasonUserRateLimit = "userRateLimitExceeded"
	reasonRateLimit     = "rateLimitExceeded"
)

// DriveError wraps a sentinel error with the HTTP status code, the first
// error reason reported by Drive, and the API error message.
type DriveError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *DriveError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *DriveError) Unwrap() error {
	return e.Err
}

// errorEnvelope mirrors the Google API JSON error body.
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// parseErrorBody extracts the message and first reason from a Google API
// error body. Bodies that are not JSON are returned verbatim as the message.
func parseErrorBody(body []byte) (message, reason string) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return string(body), ""
	}

	if len(env.Error.Errors) > 0 {
		reason = env.Error.Errors[0].Reason
	}

	return env.Error.Message, reason
}

// classifyStatus maps an HTTP status code and Drive error reason to a
// sentinel error. Returns nil for codes with no sentinel.
func classifyStatus(code int, reason string) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if isRateLimitReason(reason) {
			return ErrThrottled
		}

		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given response should be retried.
func isRetryable(code int, reason string) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case http.StatusForbidden:
		return isRateLimitReason(reason)
	default:
		return false
	}
}

func isRateLimitReason(reason string) bool {
	return reason == reasonUserRateLimit || reason == reasonRateLimit
}

// AuthRequiredError signals that no usable credential exists and the end
// user must visit URL to grant access. It is a control-flow outcome, not a
// failure: callers detect it with errors.As and surface the URL.
type AuthRequiredError struct {
	URL string
}

func (e *AuthRequiredError) Error() string {
	return "gdrive: authorization required"
}
