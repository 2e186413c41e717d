// Package handlers provides the HTTP handlers for soundsproxy.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"soundsproxy/internal/bbc"
	"soundsproxy/internal/cache"
	"soundsproxy/internal/hls"
	"soundsproxy/internal/observability"
	"soundsproxy/internal/remux"
	"soundsproxy/internal/urlutil"
)

const (
	episodeContentType  = "audio/aac"
	episodeCacheControl = "public, max-age=604800"

	// streamChunkSize is the copy buffer for streaming responses. Each
	// chunk is flushed so clients start playback before the build ends.
	streamChunkSize = 32 * 1024
)

// EpisodeHandler streams episodes as ADTS audio and redirects bare episode
// links to the best listenable URL.
type EpisodeHandler struct {
	bbc      *bbc.Client
	resolver *hls.Resolver
	source   *hls.SegmentSource
	remuxer  *remux.Remuxer

	// coordinator is nil when no cache is configured; every request then
	// runs its own pipeline.
	coordinator  *cache.Coordinator
	cacheBaseURL string
	proxyBaseURL string
	logger       *slog.Logger
}

// NewEpisodeHandler creates the episode handler.
func NewEpisodeHandler(
	client *bbc.Client,
	resolver *hls.Resolver,
	source *hls.SegmentSource,
	remuxer *remux.Remuxer,
	coordinator *cache.Coordinator,
	cacheBaseURL string,
	proxyBaseURL string,
	logger *slog.Logger,
) *EpisodeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EpisodeHandler{
		bbc:          client,
		resolver:     resolver,
		source:       source,
		remuxer:      remuxer,
		coordinator:  coordinator,
		cacheBaseURL: strings.TrimRight(cacheBaseURL, "/"),
		proxyBaseURL: urlutil.NormalizeBaseURL(proxyBaseURL),
		logger:       logger,
	}
}

// Register mounts the episode routes. These serve raw byte streams, so they
// bypass the JSON API layer.
func (h *EpisodeHandler) Register(r chi.Router) {
	r.Get("/episode/{episodeID}.aac", h.StreamEpisode)
	r.Get("/episode/{episodeID}", h.RedirectEpisode)
}

// StreamEpisode serves the episode's audio as one continuous ADTS stream.
func (h *EpisodeHandler) StreamEpisode(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episodeID")
	ctx := r.Context()
	key := artifactKey(episodeID)

	// Public episodes have a non-DRM download; send clients straight there.
	publicURL, err := h.bbc.PublicDownloadURL(ctx, episodeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if publicURL != "" {
		http.Redirect(w, r, publicURL, http.StatusPermanentRedirect)
		return
	}

	// A cached artifact with a public URL needs no proxying at all.
	if h.coordinator != nil && h.cacheBaseURL != "" && h.coordinator.Cached(ctx, key) {
		http.Redirect(w, r, h.cacheBaseURL+"/"+key, http.StatusTemporaryRedirect)
		return
	}

	rc, size, err := h.openStream(ctx, episodeID, key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	// Sniff the first chunk before committing to a 200: pipeline failures
	// that happen before any audio is produced still get a proper status.
	buf := make([]byte, streamChunkSize)
	n, err := rc.Read(buf)
	if n == 0 && err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", episodeContentType)
	w.Header().Set("Cache-Control", episodeCacheControl)
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for {
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Warn("aborting episode stream",
					slog.String("episode_id", episodeID),
					slog.String("error", err.Error()),
				)
				// Headers are long gone. Dropping the connection without
				// the terminal chunk is the only way left to signal that
				// the stream is incomplete.
				panic(http.ErrAbortHandler)
			}
			return
		}
		n, err = rc.Read(buf)
	}
}

// RedirectEpisode sends the client to the best listenable URL for an
// episode: a public non-DRM download when one exists, the proxy stream
// otherwise.
func (h *EpisodeHandler) RedirectEpisode(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episodeID")

	if publicURL, err := h.bbc.PublicDownloadURL(r.Context(), episodeID); err == nil && publicURL != "" {
		http.Redirect(w, r, publicURL, http.StatusPermanentRedirect)
		return
	}
	http.Redirect(w, r, urlutil.JoinPath(h.proxyBaseURL, "/episode/"+episodeID+".aac"), http.StatusTemporaryRedirect)
}

// openStream returns a reader over the episode's ADTS bytes, either from the
// cache coordinator or from a dedicated pipeline run.
func (h *EpisodeHandler) openStream(ctx context.Context, episodeID, key string) (io.ReadCloser, int64, error) {
	if h.coordinator != nil {
		rc, size, err := h.coordinator.GetOrBuild(ctx, key, episodeContentType, func(buildCtx context.Context, bw io.Writer) error {
			return h.buildEpisode(buildCtx, episodeID, bw)
		})
		return rc, size, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(h.buildEpisode(ctx, episodeID, pw))
	}()
	return pr, -1, nil
}

// buildEpisode runs the full pipeline: media lookup, manifest resolution,
// segment download, remux to ADTS.
func (h *EpisodeHandler) buildEpisode(ctx context.Context, episodeID string, w io.Writer) error {
	defer observability.TimedOperation(ctx, h.logger.With(slog.String("episode_id", episodeID)), "episode build")()

	streamURL, err := h.bbc.ResolveStreamURL(ctx, episodeID)
	if err != nil {
		return err
	}

	manifest, err := h.resolver.Resolve(ctx, streamURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	segments, errc := h.source.Stream(ctx, manifest)
	return h.remuxer.Remux(ctx, segments, errc, w)
}

// writeError maps pipeline errors onto the HTTP surface.
func (h *EpisodeHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= 500 {
		observability.LoggerFromContext(r.Context()).Error("episode request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	http.Error(w, http.StatusText(status), status)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, bbc.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bbc.ErrUnsupportedMedia):
		return http.StatusNotImplemented
	case errors.Is(err, hls.ErrMalformedManifest), errors.Is(err, bbc.ErrBadResponse):
		return http.StatusServiceUnavailable
	case errors.Is(err, remux.ErrNoAudio),
		errors.Is(err, remux.ErrUnsupportedCodec),
		errors.Is(err, remux.ErrCorruptContainer),
		errors.Is(err, remux.ErrInconsistentParams),
		errors.Is(err, hls.ErrSegmentFetch),
		errors.Is(err, bbc.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// artifactKey is the blob store key for an episode artifact.
func artifactKey(episodeID string) string {
	return fmt.Sprintf("%s.aac", episodeID)
}
