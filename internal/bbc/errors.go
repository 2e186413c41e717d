package bbc

import (
	"errors"
	"fmt"
)

// Sentinel errors for upstream failures. Handlers map these to HTTP statuses.
var (
	// ErrNotFound means the requested programme ID is unknown upstream.
	ErrNotFound = errors.New("programme not found")

	// ErrUpstreamUnavailable means the Sounds API could not be reached or
	// answered with a server error.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrBadResponse means the Sounds API answered with a payload this
	// client does not understand.
	ErrBadResponse = errors.New("upstream response not understood")

	// ErrUnsupportedMedia means the episode's media is not an HLS stream.
	ErrUnsupportedMedia = errors.New("unsupported media format")
)

// StatusError wraps an unexpected upstream HTTP status.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream response code: %d", e.Status)
}

// Unwrap lets errors.Is treat any status error as upstream unavailability.
func (e *StatusError) Unwrap() error {
	return ErrUpstreamUnavailable
}

// errorFromStatus converts an upstream status code to a client error.
// The Sounds API answers 400 for malformed programme IDs, so both 400 and
// 404 are reported as not-found.
func errorFromStatus(status int) error {
	switch {
	case status == 404 || status == 400:
		return ErrNotFound
	case status >= 500:
		return &StatusError{Status: status}
	default:
		return &StatusError{Status: status}
	}
}
