package downloader

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes download failures so callers can pick remediation:
// network problems are retryable later, access denials want different
// credentials, tier exhaustion wants a lower quality request.
type ErrorKind int

const (
	ErrInvalidURL ErrorKind = iota
	ErrNetwork
	ErrAccessDenied
	ErrTierUnavailable
	ErrFilesystem
	ErrTimeout
	ErrUnsupported
	ErrUpstream
	ErrUnknown
)

// msgNoPlayableTier is the terminal fallback failure recorded in the ledger
const msgNoPlayableTier = "no playable tier available"

// String returns the string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidURL:
		return "invalid_url"
	case ErrNetwork:
		return "network_failure"
	case ErrAccessDenied:
		return "access_denied"
	case ErrTierUnavailable:
		return "tier_unavailable"
	case ErrFilesystem:
		return "filesystem_error"
	case ErrTimeout:
		return "timeout"
	case ErrUnsupported:
		return "unsupported"
	case ErrUpstream:
		return "upstream_error"
	default:
		return "unknown"
	}
}

// Error is a structured download failure
type Error struct {
	Kind    ErrorKind         `json:"kind"`
	Message string            `json:"message"`
	Cause   error             `json:"cause,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind.String(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the specified kind and message
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error carrying an underlying cause
func Wrap(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithContext attaches context information to the error
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// IsKind reports whether err is an *Error of the given kind anywhere in
// its chain
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// Reason returns the human-readable failure reason recorded in the ledger:
// the bare message for structured errors, err.Error() otherwise.
func Reason(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
