package hls

import "errors"

var (
	// ErrMalformedManifest means a playlist could not be parsed, or parsed
	// into something unusable (no segments, no variants).
	ErrMalformedManifest = errors.New("malformed manifest")

	// ErrSegmentFetch means a media segment download failed after retries.
	ErrSegmentFetch = errors.New("segment fetch failed")
)
