package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error represents a Last.fm API error.
//
// The Error type provides structured error information including
// the Last.fm error code and message. It implements error, and
// provides additional methods for retry logic.
type Error struct {
	Code    int    // Last.fm error code
	Message string // Error message from Last.fm
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("lastfm: error %d: %s", e.Code, e.Message)
}

// Is checks if the target error is a Last.fm error.
//
// This allows errors.Is() to work with *Error types. A "user not found"
// error also matches ErrUserNotFound.
func (e *Error) Is(target error) bool {
	if target == ErrUserNotFound {
		return e.Code == ErrCodeInvalidParameters &&
			strings.Contains(strings.ToLower(e.Message), "user not found")
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Temporary returns true if the error is temporary and the request
// should be retried.
//
// The following Last.fm error codes are considered temporary:
//   - 8: Operation failed - most often a backend hiccup
//   - 11: Service Offline - temporarily unavailable
//   - 16: Service Temporarily Unavailable
//   - 29: Rate Limit Exceeded
func (e *Error) Temporary() bool {
	switch e.Code {
	case ErrCodeOperationFailed, ErrCodeServiceOffline, ErrCodeTempUnavailable, ErrCodeRateLimitExceeded:
		return true
	default:
		return false
	}
}

// StatusError is returned for a non-200 HTTP response that carried no
// Last.fm error body.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lastfm: unexpected status code: %d %s", e.StatusCode, e.Status)
}

// Temporary reports whether the status is worth retrying (429 and 5xx).
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Common Last.fm error codes.
const (
	ErrCodeInvalidService       = 2
	ErrCodeInvalidMethod        = 3
	ErrCodeAuthenticationFailed = 4
	ErrCodeInvalidFormat        = 5
	ErrCodeInvalidParameters    = 6
	ErrCodeInvalidResourceSpec  = 7
	ErrCodeOperationFailed      = 8
	ErrCodeInvalidSessionKey    = 9
	ErrCodeInvalidAPIKey        = 10
	ErrCodeServiceOffline       = 11
	ErrCodeSubscribersOnly      = 12
	ErrCodeInvalidSignature     = 13
	ErrCodeUnauthorizedToken    = 14
	ErrCodeExpiredToken         = 15
	ErrCodeTempUnavailable      = 16
	ErrCodeSuspendedAPIKey      = 26
	ErrCodeRateLimitExceeded    = 29
)

// Predefined errors for common cases.
var (
	// ErrUserNotFound is matched (via errors.Is) by the error Last.fm
	// returns for an unknown username.
	ErrUserNotFound = errors.New("lastfm: user not found")

	// ErrMalformedResponse is returned when a response body cannot be
	// decoded into the expected shape. It is never retried.
	ErrMalformedResponse = errors.New("lastfm: malformed response")
)

// IsAuthError reports whether err is a Last.fm error caused by the
// credentials rather than the request.
func IsAuthError(err error) bool {
	var lastfmErr *Error
	if !errors.As(err, &lastfmErr) {
		return false
	}
	switch lastfmErr.Code {
	case ErrCodeAuthenticationFailed, ErrCodeInvalidSessionKey, ErrCodeInvalidAPIKey, ErrCodeSuspendedAPIKey:
		return true
	default:
		return false
	}
}

// IsTemporary determines if an error should trigger a retry.
//
// Temporary Last.fm error codes, 429/5xx responses and network-level
// failures are retryable. Everything else, including malformed
// responses, is not.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, context.Canceled) {
		return false
	}

	var lastfmErr *Error
	if errors.As(err, &lastfmErr) {
		return lastfmErr.Temporary()
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	return shouldRetryNetworkError(err)
}

// shouldRetryNetworkError checks if a network error is retryable.
func shouldRetryNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
