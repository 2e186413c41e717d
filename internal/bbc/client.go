// Package bbc implements the client for the BBC Sounds metadata APIs: the
// experience container API (show metadata and episode lists) and the media
// selector (episode media lookup).
package bbc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"soundsproxy/internal/httpclient"
)

// Production API endpoints.
const (
	DefaultContainerBaseURL     = "https://rms.api.bbc.co.uk/v2/experience/inline/container"
	DefaultMediaSelectorBaseURL = "https://open.live.bbc.co.uk/mediaselector/6"
)

// maxResponseBytes caps metadata response bodies. Container responses for
// long-running shows are a few hundred KB at most.
const maxResponseBytes = 8 << 20

// Client talks to the Sounds metadata APIs.
type Client struct {
	http                 *httpclient.Client
	containerBaseURL     string
	mediaSelectorBaseURL string
	logger               *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithContainerBaseURL overrides the container API base URL. Used in tests.
func WithContainerBaseURL(u string) Option {
	return func(c *Client) { c.containerBaseURL = strings.TrimRight(u, "/") }
}

// WithMediaSelectorBaseURL overrides the media selector base URL. Used in tests.
func WithMediaSelectorBaseURL(u string) Option {
	return func(c *Client) { c.mediaSelectorBaseURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Sounds API client on top of the given HTTP client.
func NewClient(hc *httpclient.Client, opts ...Option) *Client {
	c := &Client{
		http:                 hc,
		containerBaseURL:     DefaultContainerBaseURL,
		mediaSelectorBaseURL: DefaultMediaSelectorBaseURL,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetShow looks up a show (programme series) by its programme ID and returns
// the show metadata together with its episode list.
func (c *Client) GetShow(ctx context.Context, showID string) (*Show, error) {
	urn := "urn:bbc:radio:series:" + showID
	uri := fmt.Sprintf("%s/%s", c.containerBaseURL, url.PathEscape(urn))

	body, err := c.getJSON(ctx, uri)
	if err != nil {
		return nil, err
	}

	// The container response is a heterogeneous array discriminated by the
	// "id" field: one "container" entry with show info, one "container_list"
	// entry with episodes.
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	var show Show
	var haveInfo, haveList bool
	for _, raw := range envelope.Data {
		var kind struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &kind); err != nil {
			continue
		}
		switch kind.ID {
		case "container":
			var item struct {
				Data ShowInfo `json:"data"`
			}
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
			}
			show.Info = item.Data
			haveInfo = true
		case "container_list":
			var list struct {
				Data []Episode `json:"data"`
			}
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
			}
			show.Episodes = list.Data
			haveList = true
		}
	}

	if !haveInfo || !haveList {
		return nil, ErrBadResponse
	}

	c.logger.Debug("resolved show",
		slog.String("show_id", showID),
		slog.String("title", show.Info.Titles.Primary),
		slog.Int("episodes", len(show.Episodes)),
	)

	return &show, nil
}

// GetMedia looks up the media renditions for an episode (vpid) via the media
// selector, requesting HLS transfer format.
func (c *Client) GetMedia(ctx context.Context, episodeID string) (*MediaList, error) {
	uri := fmt.Sprintf(
		"%s/select/version/2.0/format/json/mediaset/mobile-phone-main/vpid/%s/transferformat/hls/",
		c.mediaSelectorBaseURL, url.PathEscape(episodeID),
	)

	body, err := c.getJSON(ctx, uri)
	if err != nil {
		return nil, err
	}

	var media MediaList
	if err := json.Unmarshal(body, &media); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	return &media, nil
}

// ResolveStreamURL returns the HLS playlist URL for an episode: the highest
// bitrate audio rendition, reached over its preferred connection. Episodes
// whose media is not delivered as an HLS playlist are rejected with
// ErrUnsupportedMedia.
func (c *Client) ResolveStreamURL(ctx context.Context, episodeID string) (string, error) {
	media, err := c.GetMedia(ctx, episodeID)
	if err != nil {
		return "", err
	}

	var audio []Media
	for _, m := range media.Media {
		if m.Kind == "audio" && len(m.Connection) > 0 {
			audio = append(audio, m)
		}
	}
	if len(audio) == 0 {
		return "", ErrNotFound
	}

	// Highest bitrate wins; unparseable bitrates sort lowest.
	sort.SliceStable(audio, func(i, j int) bool {
		return parseBitrate(audio[i].Bitrate) < parseBitrate(audio[j].Bitrate)
	})
	best := audio[len(audio)-1]

	// Prefer TLS connections; plain http sorts first and the last entry
	// is taken.
	conns := append([]Connection(nil), best.Connection...)
	sort.SliceStable(conns, func(i, j int) bool {
		return conns[i].Protocol == "http" && conns[j].Protocol != "http"
	})
	href := conns[len(conns)-1].Href

	if !strings.Contains(href, ".m3u8") {
		return "", fmt.Errorf("%w: episode %s: %s", ErrUnsupportedMedia, episodeID, href)
	}

	c.logger.Debug("resolved stream URL",
		slog.String("episode_id", episodeID),
		slog.String("bitrate", best.Bitrate),
	)

	return href, nil
}

// PublicDownloadURL probes for a public non-DRM download of the episode.
// Returns the URL when one exists, or "" when the episode is app-only and
// must be proxied.
func (c *Client) PublicDownloadURL(ctx context.Context, episodeID string) (string, error) {
	uri := fmt.Sprintf(
		"%s/redir/version/2.0/mediaset/audio-nondrm-download/proto/https/vpid/%s.mp3",
		c.mediaSelectorBaseURL, url.PathEscape(episodeID),
	)

	status, err := c.http.Head(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if status == http.StatusOK {
		return uri, nil
	}
	return "", nil
}

// getJSON fetches a URL and returns its body, mapping HTTP errors to the
// package error taxonomy.
func (c *Client) getJSON(ctx context.Context, uri string) ([]byte, error) {
	resp, err := c.http.Get(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}

func parseBitrate(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
