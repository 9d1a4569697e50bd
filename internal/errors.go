package internal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies resolution faults
type ErrorKind int

const (
	// ErrInvalidURL means the input URL is malformed; fails before any strategy runs.
	ErrInvalidURL ErrorKind = iota
	// ErrAuthFailed means the configured credentials were rejected outright.
	ErrAuthFailed
	// ErrAuthBlocked means the provider returned an authorization rejection
	// mid-resolution; any reused session must be invalidated.
	ErrAuthBlocked
	// ErrNotFound means the provider signals the content does not exist.
	ErrNotFound
	// ErrTransientNetwork covers timeouts and connection failures.
	ErrTransientNetwork
	// ErrNoResult means a strategy ran cleanly but produced nothing.
	// Not a fault, just a fallback trigger.
	ErrNoResult
	// ErrAllStrategiesExhausted is terminal; it produces a failure result,
	// never an unhandled error out of the engine.
	ErrAllStrategiesExhausted
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidURL:
		return "InvalidURL"
	case ErrAuthFailed:
		return "AuthFailed"
	case ErrAuthBlocked:
		return "AuthBlocked"
	case ErrNotFound:
		return "NotFound"
	case ErrTransientNetwork:
		return "TransientNetwork"
	case ErrNoResult:
		return "NoResult"
	case ErrAllStrategiesExhausted:
		return "AllStrategiesExhausted"
	default:
		return "Unknown"
	}
}

// ResolutionError is a typed fault raised inside the resolution chain.
// Every strategy boundary converts faults into this shape so the engine
// can log a specific reason and keep going.
type ResolutionError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	URL        string
	Suggestion string
	Err        error
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	parts := []string{fmt.Sprintf("instagram error (%s)", e.Kind)}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.StatusCode))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// DetailedError returns a multi-line message suitable for diagnostics.
func (e *ResolutionError) DetailedError() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Kind, e.Message)}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("Status: %d", e.StatusCode))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactQuery(e.URL)))
	}
	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}
	return strings.Join(parts, "\n")
}

// IsRetryable reports whether the strategy-local retry loop may retry this fault.
func (e *ResolutionError) IsRetryable() bool {
	switch e.Kind {
	case ErrAuthBlocked, ErrTransientNetwork:
		return true
	default:
		return false
	}
}

// WithURL attaches URL context (redacted when rendered).
func (e *ResolutionError) WithURL(url string) *ResolutionError {
	e.URL = url
	return e
}

// WithStatus attaches the HTTP status that triggered the fault.
func (e *ResolutionError) WithStatus(code int) *ResolutionError {
	e.StatusCode = code
	return e
}

// NewResolutionError creates a typed fault with a default suggestion.
func NewResolutionError(kind ErrorKind, message string) *ResolutionError {
	return &ResolutionError{
		Kind:       kind,
		Message:    message,
		Suggestion: defaultSuggestion(kind),
	}
}

// WrapResolutionError wraps an underlying error with a kind and message.
func WrapResolutionError(kind ErrorKind, message string, err error) *ResolutionError {
	e := NewResolutionError(kind, message)
	e.Err = err
	return e
}

// KindOf extracts the ErrorKind from an error chain, defaulting to ErrNoResult.
func KindOf(err error) ErrorKind {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return resErr.Kind
	}
	return ErrNoResult
}

// IsAuthBlocked reports whether the error chain carries an authorization rejection.
func IsAuthBlocked(err error) bool {
	return err != nil && KindOf(err) == ErrAuthBlocked
}

func defaultSuggestion(kind ErrorKind) string {
	switch kind {
	case ErrInvalidURL:
		return "Provide a valid Instagram post URL (https://www.instagram.com/p/<shortcode>/)"
	case ErrAuthFailed:
		return "Check INSTAFETCH_USERNAME and INSTAFETCH_PASSWORD"
	case ErrAuthBlocked:
		return "Instagram is rejecting the current session; it will be discarded and retried"
	case ErrNotFound:
		return "Verify the post still exists and is not private"
	case ErrTransientNetwork:
		return "Check the network connection and try again; a proxy may help"
	case ErrAllStrategiesExhausted:
		return "The post may be private, deleted, or protected by Instagram's security measures"
	default:
		return ""
	}
}

// NewInvalidURLError creates an error for malformed input URLs.
func NewInvalidURLError(url string, reason string) *ResolutionError {
	return NewResolutionError(ErrInvalidURL, fmt.Sprintf("invalid URL: %s", reason)).WithURL(url)
}

// NewAuthFailedError creates an error for rejected credentials.
func NewAuthFailedError(message string) *ResolutionError {
	return NewResolutionError(ErrAuthFailed, message)
}

// NewAuthBlockedError creates an error for mid-resolution authorization rejections.
func NewAuthBlockedError(status int, message string) *ResolutionError {
	return NewResolutionError(ErrAuthBlocked, message).WithStatus(status)
}

// NewNotFoundError creates an error for removed or unreachable content.
func NewNotFoundError(url string) *ResolutionError {
	return NewResolutionError(ErrNotFound, "content not found or removed").WithURL(url)
}

// NewTransientNetworkError creates an error for timeouts and connection faults.
func NewTransientNetworkError(operation string, err error) *ResolutionError {
	return WrapResolutionError(ErrTransientNetwork, fmt.Sprintf("network failure during %s", operation), err)
}

// redactQuery strips query parameters that may carry tokens before logging.
func redactQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i] + "?[REDACTED]"
	}
	return url
}
