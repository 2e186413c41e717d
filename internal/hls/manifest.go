// Package hls resolves HLS playlists into ordered segment lists and streams
// the referenced MPEG-TS segments with bounded prefetch.
package hls

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"soundsproxy/internal/httpclient"
)

// maxPlaylistBytes caps playlist downloads. On-demand audio playlists for
// multi-hour programmes stay well under this.
const maxPlaylistBytes = 4 << 20

// SegmentRef identifies one media segment within a resolved manifest.
type SegmentRef struct {
	// URL is the absolute segment URL.
	URL string

	// Duration is the advertised segment duration.
	Duration time.Duration

	// ByteRangeStart and ByteRangeLength describe the sub-range of the
	// resource holding this segment. Both nil when the segment is the
	// whole resource; the resolver always fills in Start when Length is
	// set, including for continuation ranges declared without an offset.
	ByteRangeStart  *uint64
	ByteRangeLength *uint64
}

// Manifest is a fully resolved media playlist: the ordered list of segments
// making up one episode.
type Manifest struct {
	// TargetDuration is the playlist's advertised maximum segment duration
	// in seconds.
	TargetDuration int

	Segments []SegmentRef
}

// TotalDuration sums the advertised segment durations.
func (m *Manifest) TotalDuration() time.Duration {
	var total time.Duration
	for _, seg := range m.Segments {
		total += seg.Duration
	}
	return total
}

// Resolver turns a playlist URL into a Manifest, following one level of
// multivariant indirection.
type Resolver struct {
	http   *httpclient.Client
	logger *slog.Logger
}

// NewResolver creates a manifest resolver.
func NewResolver(hc *httpclient.Client, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{http: hc, logger: logger}
}

// Resolve fetches the playlist at playlistURL and returns the segment list.
// A multivariant playlist is resolved by picking the highest-bandwidth
// variant and fetching its media playlist.
func (r *Resolver) Resolve(ctx context.Context, playlistURL string) (*Manifest, error) {
	pl, err := r.fetchPlaylist(ctx, playlistURL)
	if err != nil {
		return nil, err
	}

	media, ok := pl.(*playlist.Media)
	if !ok {
		mv, ok := pl.(*playlist.Multivariant)
		if !ok {
			return nil, fmt.Errorf("%w: unknown playlist type", ErrMalformedManifest)
		}

		mediaURL, err := selectVariant(playlistURL, mv)
		if err != nil {
			return nil, err
		}

		pl, err = r.fetchPlaylist(ctx, mediaURL)
		if err != nil {
			return nil, err
		}
		media, ok = pl.(*playlist.Media)
		if !ok {
			return nil, fmt.Errorf("%w: variant %s is not a media playlist", ErrMalformedManifest, mediaURL)
		}
		playlistURL = mediaURL
	}

	if len(media.Segments) == 0 {
		return nil, fmt.Errorf("%w: media playlist has no segments", ErrMalformedManifest)
	}

	manifest := &Manifest{
		TargetDuration: media.TargetDuration,
		Segments:       make([]SegmentRef, 0, len(media.Segments)),
	}

	// A byte-range tag without an offset continues from the end of the
	// previous sub-range of the same resource (RFC 8216 section 4.3.2.2).
	nextOffset := make(map[string]uint64)

	for _, seg := range media.Segments {
		if seg == nil || seg.URI == "" {
			return nil, fmt.Errorf("%w: segment without URI", ErrMalformedManifest)
		}
		absURL, err := absolutizeURL(playlistURL, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("%w: segment URI %q: %v", ErrMalformedManifest, seg.URI, err)
		}
		ref := SegmentRef{URL: absURL, Duration: seg.Duration}
		if seg.ByteRangeLength != nil {
			length := *seg.ByteRangeLength
			start := nextOffset[absURL]
			if seg.ByteRangeStart != nil {
				start = *seg.ByteRangeStart
			}
			ref.ByteRangeStart = &start
			ref.ByteRangeLength = &length
			nextOffset[absURL] = start + length
		}
		manifest.Segments = append(manifest.Segments, ref)
	}

	r.logger.Debug("resolved manifest",
		slog.String("url", playlistURL),
		slog.Int("segments", len(manifest.Segments)),
		slog.Duration("total_duration", manifest.TotalDuration()),
	)

	return manifest, nil
}

func (r *Resolver) fetchPlaylist(ctx context.Context, playlistURL string) (playlist.Playlist, error) {
	resp, err := r.http.Get(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist %s: %w", playlistURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching playlist %s: HTTP %d", playlistURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return nil, fmt.Errorf("reading playlist %s: %w", playlistURL, err)
	}

	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	return pl, nil
}

// selectVariant picks the highest-bandwidth variant from a multivariant
// playlist and returns its absolute media playlist URL.
func selectVariant(baseURL string, mv *playlist.Multivariant) (string, error) {
	if len(mv.Variants) == 0 {
		return "", fmt.Errorf("%w: multivariant playlist has no variants", ErrMalformedManifest)
	}

	variants := make([]*playlist.MultivariantVariant, len(mv.Variants))
	copy(variants, mv.Variants)
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bandwidth > variants[j].Bandwidth
	})

	absURL, err := absolutizeURL(baseURL, variants[0].URI)
	if err != nil {
		return "", fmt.Errorf("%w: variant URI %q: %v", ErrMalformedManifest, variants[0].URI, err)
	}
	return absURL, nil
}

// absolutizeURL resolves a possibly relative playlist reference against the
// URL of the playlist it appeared in.
func absolutizeURL(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}
