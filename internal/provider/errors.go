package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by providers
var (
	ErrNotConfigured = errors.New("provider credentials not configured")
	ErrRateLimited   = errors.New("provider rate limit exceeded")
	ErrProviderAuth  = errors.New("provider authentication failed")
	ErrProviderError = errors.New("provider API error")
)

// ConfigurationError indicates a client was built without usable credentials.
// It is returned before any network I/O is attempted.
type ConfigurationError struct {
	Provider string
	Setting  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: %s is missing", e.Provider, e.Setting)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrNotConfigured
}

// NetworkError wraps a transport failure (DNS, connect, timeout, reset)
type NetworkError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s request failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx response from the provider
type HTTPError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed (HTTP %d): %s", e.Provider, e.Operation, e.StatusCode, e.Body)
}

// Unwrap maps the status onto one of the sentinel errors
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrProviderAuth
	default:
		return ErrProviderError
	}
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(provider, operation string, statusCode int, body string) *HTTPError {
	return &HTTPError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: statusCode,
		Body:       body,
	}
}

// IsConfigurationError checks if the error is a missing-credential error
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsRateLimitError checks if the error is a rate limit error
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsAuthError checks if the error is an authentication error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrProviderAuth)
}

// IsUpstreamError checks if the error came from talking to the provider
// (transport failure or HTTP error status)
func IsUpstreamError(err error) bool {
	var ne *NetworkError
	var he *HTTPError
	return errors.As(err, &ne) || errors.As(err, &he)
}
