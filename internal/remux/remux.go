// Package remux converts MPEG-TS segment streams into raw ADTS audio.
// Segments are concatenated into one continuous transport stream, so TS
// packets and PES payloads spanning a segment boundary demux correctly.
package remux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"soundsproxy/internal/hls"
)

// DefaultDecodeErrorLimit is how many recoverable demux errors are tolerated
// before the stream is declared corrupt. Discontinuities at segment joins
// produce the occasional decode error on otherwise healthy streams.
const DefaultDecodeErrorLimit = 16

// Remuxer demuxes AAC audio out of MPEG-TS segments and rewrites it as an
// ADTS elementary stream.
type Remuxer struct {
	logger           *slog.Logger
	decodeErrorLimit int
}

// NewRemuxer creates a Remuxer.
func NewRemuxer(logger *slog.Logger) *Remuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remuxer{
		logger:           logger,
		decodeErrorLimit: DefaultDecodeErrorLimit,
	}
}

// Remux consumes ordered segments and writes the episode's audio to w as
// ADTS frames. source delivers at most one error after the segment channel
// closes; that error is returned unwrapped so callers can inspect it.
//
// Errors from w (a disconnecting client, a failed upload) are returned as-is.
// Demux failures are reported through the package error taxonomy.
func (r *Remuxer) Remux(ctx context.Context, segments <-chan hls.Segment, source <-chan error, w io.Writer) error {
	pr, pw := io.Pipe()
	srcErr := make(chan error, 1)

	// Feed the pipe with the concatenated segment payloads. A source
	// failure tears the pipe down so the read side unblocks.
	go func() {
		for seg := range segments {
			if _, err := pw.Write(seg.Data); err != nil {
				// Reader side closed. Keep draining so the source
				// goroutine can finish and publish its error.
				for range segments {
				}
				break
			}
		}
		err := <-source
		if err != nil {
			srcErr <- err
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	defer pr.Close()

	sourceErr := func() error {
		select {
		case err := <-srcErr:
			return err
		default:
			return nil
		}
	}

	reader := &mpegts.Reader{R: pr}
	if err := reader.Initialize(); err != nil {
		if serr := sourceErr(); serr != nil {
			return serr
		}
		return fmt.Errorf("%w: %v", ErrCorruptContainer, err)
	}

	out := &adtsStream{w: w}
	track, err := r.selectAudioTrack(reader, out)
	if err != nil {
		return err
	}

	var decodeErrors int
	reader.OnDecodeError(func(derr error) {
		decodeErrors++
		r.logger.Debug("transport stream decode error",
			slog.String("error", derr.Error()),
			slog.Int("count", decodeErrors),
		)
	})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if decodeErrors > r.decodeErrorLimit {
			return fmt.Errorf("%w: %d decode errors", ErrCorruptContainer, decodeErrors)
		}

		err := reader.Read()
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			break
		}
		if serr := sourceErr(); serr != nil {
			return serr
		}
		if out.writeErr != nil {
			return out.writeErr
		}
		if errors.Is(err, ErrInconsistentParams) || errors.Is(err, ErrUnsupportedCodec) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCorruptContainer, err)
	}

	if serr := sourceErr(); serr != nil {
		return serr
	}
	if out.frames == 0 {
		return fmt.Errorf("%w: audio track %d produced no frames", ErrNoAudio, track.PID)
	}

	r.logger.Debug("remux complete",
		slog.Int("frames", out.frames),
		slog.Int("sample_rate", out.params.SampleRate),
		slog.Int("channels", out.params.ChannelCount),
	)

	return nil
}

// selectAudioTrack finds the AAC track and registers the ADTS rewrite
// callback on it.
func (r *Remuxer) selectAudioTrack(reader *mpegts.Reader, out *adtsStream) (*mpegts.Track, error) {
	var audioSeen bool
	for _, track := range reader.Tracks() {
		switch codec := track.Codec.(type) {
		case *mpegts.CodecMPEG4Audio:
			params := paramsFromConfig(codec.Config)
			reader.OnDataMPEG4Audio(track, func(pts int64, aus [][]byte) error {
				return out.writeAccessUnits(params, aus)
			})
			r.logger.Debug("found AAC audio track",
				slog.Uint64("pid", uint64(track.PID)),
				slog.Int("sample_rate", codec.Config.SampleRate),
				slog.Int("channels", codec.Config.ChannelCount),
			)
			return track, nil
		case *mpegts.CodecMPEG1Audio, *mpegts.CodecAC3, *mpegts.CodecOpus:
			audioSeen = true
		}
	}

	if audioSeen {
		return nil, fmt.Errorf("%w: audio track is not AAC", ErrUnsupportedCodec)
	}
	return nil, ErrNoAudio
}
