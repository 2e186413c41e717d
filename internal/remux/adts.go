package remux

import (
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// StreamParams are the audio parameters carried in every ADTS frame header.
// They are locked in by the first frame of a stream; all later frames must
// match.
type StreamParams struct {
	Type         mpeg4audio.ObjectType
	SampleRate   int
	ChannelCount int
}

func paramsFromConfig(cfg mpeg4audio.Config) StreamParams {
	return StreamParams{
		Type:         cfg.Type,
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.ChannelCount,
	}
}

// adtsStream writes AAC access units to w as ADTS frames.
type adtsStream struct {
	w        io.Writer
	params   StreamParams
	locked   bool
	frames   int
	writeErr error
}

// writeAccessUnits frames each access unit with an ADTS header and writes
// it out. Write failures are remembered in writeErr so the caller can tell
// sink errors apart from demux errors.
func (s *adtsStream) writeAccessUnits(params StreamParams, aus [][]byte) error {
	if !s.locked {
		s.params = params
		s.locked = true
	} else if params != s.params {
		return fmt.Errorf("%w: %+v then %+v", ErrInconsistentParams, s.params, params)
	}

	pkts := make(mpeg4audio.ADTSPackets, 0, len(aus))
	for _, au := range aus {
		pkts = append(pkts, &mpeg4audio.ADTSPacket{
			Type:         params.Type,
			SampleRate:   params.SampleRate,
			ChannelCount: params.ChannelCount,
			AU:           au,
		})
	}

	buf, err := pkts.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedCodec, err)
	}

	if _, err := s.w.Write(buf); err != nil {
		s.writeErr = err
		return err
	}
	s.frames += len(aus)
	return nil
}
