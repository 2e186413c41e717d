package hls

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"soundsproxy/internal/httpclient"
)

// maxSegmentBytes caps a single segment download. BBC audio segments are a
// few hundred KB.
const maxSegmentBytes = 64 << 20

// Segment is one downloaded media segment.
type Segment struct {
	// Index is the zero-based position within the manifest.
	Index int

	// Data is the raw MPEG-TS payload.
	Data []byte
}

// SegmentSource downloads the segments of a manifest sequentially and
// delivers them, in manifest order, on a bounded channel. The bound acts as
// the prefetch window: downloads run at most that many segments ahead of the
// consumer.
type SegmentSource struct {
	http     *httpclient.Client
	logger   *slog.Logger
	prefetch int
}

// NewSegmentSource creates a segment source. prefetch is the number of
// segments buffered ahead of the consumer; values below 1 are raised to 1.
func NewSegmentSource(hc *httpclient.Client, prefetch int, logger *slog.Logger) *SegmentSource {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SegmentSource{http: hc, logger: logger, prefetch: prefetch}
}

// Stream starts downloading the manifest's segments. It returns a channel of
// segments in strict manifest order and a channel delivering at most one
// error. When a download fails, the segment channel is closed without the
// failed segment and the error is published; nothing past the failure is
// delivered. Cancelling ctx stops the download loop.
func (s *SegmentSource) Stream(ctx context.Context, manifest *Manifest) (<-chan Segment, <-chan error) {
	segments := make(chan Segment, s.prefetch)
	errc := make(chan error, 1)

	go func() {
		defer close(segments)
		defer close(errc)

		for i, ref := range manifest.Segments {
			data, err := s.fetch(ctx, ref)
			if err != nil {
				if ctx.Err() != nil {
					errc <- ctx.Err()
					return
				}
				errc <- fmt.Errorf("%w: segment %d: %v", ErrSegmentFetch, i, err)
				return
			}

			select {
			case segments <- Segment{Index: i, Data: data}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return segments, errc
}

// fetch downloads a single segment, honouring its byte range.
func (s *SegmentSource) fetch(ctx context.Context, ref SegmentRef) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, err
	}

	wantPartial := false
	if ref.ByteRangeLength != nil {
		var start uint64
		if ref.ByteRangeStart != nil {
			start = *ref.ByteRangeStart
		}
		end := start + *ref.ByteRangeLength - 1
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
		wantPartial = true
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case wantPartial && resp.StatusCode == http.StatusPartialContent:
	case !wantPartial && resp.StatusCode == http.StatusOK:
	case wantPartial && resp.StatusCode == http.StatusOK:
		// Server ignored the range; the caller still gets only the
		// requested slice below.
	default:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSegmentBytes))
	if err != nil {
		return nil, err
	}

	// Trim a full-resource response down to the requested range.
	if wantPartial && resp.StatusCode == http.StatusOK {
		var start uint64
		if ref.ByteRangeStart != nil {
			start = *ref.ByteRangeStart
		}
		end := start + *ref.ByteRangeLength
		if uint64(len(data)) < end {
			return nil, fmt.Errorf("short response: got %d bytes, range ends at %d", len(data), end)
		}
		data = data[start:end]
	}

	s.logger.Debug("fetched segment",
		slog.String("url", ref.URL),
		slog.Int("bytes", len(data)),
	)

	return data, nil
}
