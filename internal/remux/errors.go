package remux

import "errors"

// Errors reported while turning MPEG-TS segments into an ADTS stream.
// Handlers map these to HTTP statuses.
var (
	// ErrNoAudio means the transport stream carries no audio track, or the
	// audio track produced no frames.
	ErrNoAudio = errors.New("no audio track in stream")

	// ErrUnsupportedCodec means the audio track is not AAC and cannot be
	// repackaged as ADTS.
	ErrUnsupportedCodec = errors.New("unsupported audio codec")

	// ErrCorruptContainer means the transport stream could not be parsed.
	ErrCorruptContainer = errors.New("corrupt transport stream")

	// ErrInconsistentParams means the audio parameters changed mid-stream,
	// which a single ADTS stream cannot express.
	ErrInconsistentParams = errors.New("inconsistent stream parameters")
)
