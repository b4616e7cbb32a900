package downloader

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindString(t *testing.T) {
	testCases := []struct {
		kind     ErrorKind
		expected string
	}{
		{ErrInvalidURL, "invalid_url"},
		{ErrNetwork, "network_failure"},
		{ErrAccessDenied, "access_denied"},
		{ErrTierUnavailable, "tier_unavailable"},
		{ErrFilesystem, "filesystem_error"},
		{ErrTimeout, "timeout"},
		{ErrUnsupported, "unsupported"},
		{ErrUpstream, "upstream_error"},
		{ErrUnknown, "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := tc.kind.String(); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	plain := New(ErrUpstream, "playlist detail returned code 404")
	if got := plain.Error(); got != "upstream_error: playlist detail returned code 404" {
		t.Errorf("Unexpected error string: %q", got)
	}

	wrapped := Wrap(ErrNetwork, "weapi request failed", errors.New("connection refused"))
	want := "network_failure: weapi request failed (caused by: connection refused)"
	if got := wrapped.Error(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(ErrNetwork, "request failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
	if New(ErrUpstream, "no cause").Unwrap() != nil {
		t.Error("Expected nil Unwrap when there is no cause")
	}
}

func TestIsKind(t *testing.T) {
	err := New(ErrTierUnavailable, msgNoPlayableTier)

	if !IsKind(err, ErrTierUnavailable) {
		t.Error("Expected IsKind to match the direct error")
	}
	if IsKind(err, ErrNetwork) {
		t.Error("Expected IsKind to reject a different kind")
	}

	// the kind must survive another wrapping layer
	outer := fmt.Errorf("sync pass: %w", err)
	if !IsKind(outer, ErrTierUnavailable) {
		t.Error("Expected IsKind to match through fmt.Errorf wrapping")
	}

	if IsKind(errors.New("plain"), ErrUnknown) {
		t.Error("Expected IsKind to reject non-structured errors")
	}
}

func TestReason(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "structured error yields bare message",
			err:      New(ErrTierUnavailable, msgNoPlayableTier),
			expected: "no playable tier available",
		},
		{
			name:     "wrapped structured error still yields bare message",
			err:      fmt.Errorf("item 42: %w", Wrap(ErrNetwork, "request failed", errors.New("eof"))),
			expected: "request failed",
		},
		{
			name:     "plain error yields its Error() text",
			err:      errors.New("something broke"),
			expected: "something broke",
		},
		{
			name:     "nil error yields empty string",
			err:      nil,
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Reason(tc.err); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrAccessDenied, "cookie rejected").
		WithContext("platform", "netease").
		WithContext("item", "12345")

	if err.Context["platform"] != "netease" {
		t.Errorf("Expected platform context, got %+v", err.Context)
	}
	if err.Context["item"] != "12345" {
		t.Errorf("Expected item context, got %+v", err.Context)
	}
}
