package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"soundsproxy/internal/bbc"
	"soundsproxy/internal/feed"
	"soundsproxy/internal/observability"
)

const (
	feedContentType  = "application/rss+xml; charset=utf-8"
	feedCacheControl = "public, max-age=900"
)

// ShowHandler serves podcast feeds for shows.
type ShowHandler struct {
	bbc     *bbc.Client
	builder *feed.Builder
	logger  *slog.Logger
}

// NewShowHandler creates the show feed handler.
func NewShowHandler(client *bbc.Client, builder *feed.Builder, logger *slog.Logger) *ShowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShowHandler{bbc: client, builder: builder, logger: logger}
}

// Register mounts the show routes.
func (h *ShowHandler) Register(r chi.Router) {
	r.Get("/show/{showID}", h.GetFeed)
}

// GetFeed renders the show's episode list as an RSS podcast feed.
func (h *ShowHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showID")

	show, err := h.bbc.GetShow(r.Context(), showID)
	if err != nil {
		status := statusForError(err)
		if status >= 500 {
			observability.LoggerFromContext(r.Context()).Error("show lookup failed",
				slog.String("show_id", showID),
				slog.String("error", err.Error()),
			)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	out, err := h.builder.Build(show)
	if err != nil {
		h.logger.Error("feed rendering failed",
			slog.String("show_id", showID),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", feedContentType)
	w.Header().Set("Cache-Control", feedCacheControl)
	_, _ = w.Write(out)
}
