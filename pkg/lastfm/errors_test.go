package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

func TestError_Temporary(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{ErrCodeOperationFailed, true},
		{ErrCodeServiceOffline, true},
		{ErrCodeTempUnavailable, true},
		{ErrCodeRateLimitExceeded, true},
		{ErrCodeInvalidParameters, false},
		{ErrCodeInvalidAPIKey, false},
		{ErrCodeAuthenticationFailed, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			err := &Error{Code: tt.code, Message: "x"}
			if got := err.Temporary(); got != tt.want {
				t.Errorf("Temporary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	notFound := &Error{Code: ErrCodeInvalidParameters, Message: "User not found"}
	if !errors.Is(notFound, ErrUserNotFound) {
		t.Error("expected code 6 'User not found' to match ErrUserNotFound")
	}

	badParam := &Error{Code: ErrCodeInvalidParameters, Message: "Invalid limit"}
	if errors.Is(badParam, ErrUserNotFound) {
		t.Error("expected other code 6 errors not to match ErrUserNotFound")
	}

	wrapped := fmt.Errorf("fetching: %w", &Error{Code: ErrCodeServiceOffline})
	if !errors.Is(wrapped, &Error{Code: ErrCodeServiceOffline}) {
		t.Error("expected wrapped error to match by code")
	}
	if errors.Is(wrapped, &Error{Code: ErrCodeTempUnavailable}) {
		t.Error("expected different code not to match")
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"temporary api error", &Error{Code: ErrCodeRateLimitExceeded}, true},
		{"permanent api error", &Error{Code: ErrCodeInvalidAPIKey}, false},
		{"429", &StatusError{StatusCode: 429}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"404", &StatusError{StatusCode: 404}, false},
		{"network timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutError{}}, true},
		{"wrapped network error", fmt.Errorf("http request failed: %w", timeoutError{}), true},
		{"malformed", fmt.Errorf("%w: bad json", ErrMalformedResponse), false},
		{"cancelled", fmt.Errorf("http request failed: %w", &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled}), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTemporary(tt.err); got != tt.want {
				t.Errorf("IsTemporary(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(fmt.Errorf("x: %w", &Error{Code: ErrCodeInvalidAPIKey})) {
		t.Error("expected invalid API key to be an auth error")
	}
	if !IsAuthError(&Error{Code: ErrCodeSuspendedAPIKey}) {
		t.Error("expected suspended API key to be an auth error")
	}
	if IsAuthError(&Error{Code: ErrCodeRateLimitExceeded}) {
		t.Error("expected rate limit not to be an auth error")
	}
	if IsAuthError(errors.New("boom")) {
		t.Error("expected plain error not to be an auth error")
	}
}
