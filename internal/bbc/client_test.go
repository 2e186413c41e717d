package bbc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundsproxy/internal/httpclient"
)

const containerResponse = `{
	"data": [
		{
			"id": "container",
			"data": {
				"id": "b006qykl",
				"titles": {"primary": "In Our Time", "secondary": "Melvyn Bragg"},
				"synopses": {"short": "Short.", "medium": "Medium synopsis.", "long": "The long synopsis of the show."},
				"network": {"short_title": "Radio 4"},
				"image_url": "https://ichef.bbci.co.uk/images/ic/{recipe}/p01lcnwl.jpg"
			}
		},
		{
			"id": "container_list",
			"data": [
				{
					"id": "p0bzn8f1",
					"titles": {"primary": "In Our Time", "secondary": "The Davidian Revolution"},
					"synopses": {"short": "Ep short."},
					"duration": {"value": 3120},
					"release": {"date": "2022-03-17T10:15:00Z"},
					"download": {
						"type": "drm",
						"quality_variants": {
							"low": {"file_url": "https://example.org/low.mp3", "file_size": 12000000},
							"high": {"file_url": "https://example.org/high.mp3", "file_size": 48000000}
						}
					},
					"image_url": "https://ichef.bbci.co.uk/images/ic/{recipe}/p0bzn9g2.jpg"
				}
			]
		}
	]
}`

const mediaSelectorResponse = `{
	"media": [
		{
			"kind": "audio",
			"type": "audio/mp4",
			"bitrate": "96",
			"encoding": "aac",
			"connection": [
				{"protocol": "https", "href": "https://cdn.example.org/low/segments.m3u8", "transferFormat": "hls"}
			]
		},
		{
			"kind": "audio",
			"type": "audio/mp4",
			"bitrate": "320",
			"encoding": "aac",
			"connection": [
				{"protocol": "https", "href": "https://cdn-a.example.org/high/segments.m3u8", "transferFormat": "hls"},
				{"protocol": "http", "href": "http://cdn-b.example.org/high/segments.m3u8", "transferFormat": "hls"}
			]
		},
		{
			"kind": "captions",
			"type": "application/ttml+xml",
			"bitrate": "0",
			"connection": [
				{"protocol": "https", "href": "https://cdn.example.org/captions.xml", "transferFormat": "plain"}
			]
		}
	]
}`

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	hc := httpclient.New(httpclient.Config{RetryAttempts: 0})
	c := NewClient(hc,
		WithContainerBaseURL(srv.URL+"/container"),
		WithMediaSelectorBaseURL(srv.URL+"/mediaselector"),
	)
	return c, srv
}

func TestGetShow(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(containerResponse))
	}))

	show, err := c.GetShow(context.Background(), "b006qykl")
	require.NoError(t, err)
	assert.Contains(t, gotPath, "urn:bbc:radio:series:b006qykl")

	assert.Equal(t, "In Our Time", show.Info.Titles.Primary)
	assert.Equal(t, "Radio 4", show.Info.Network.ShortTitle)
	assert.Equal(t, "The long synopsis of the show.", show.Info.Synopses.Best())

	require.Len(t, show.Episodes, 1)
	ep := show.Episodes[0]
	assert.Equal(t, "p0bzn8f1", ep.ID)
	assert.Equal(t, int64(3120), ep.Duration.Value)
	best := ep.Download.QualityVariants.Best()
	require.NotNil(t, best)
	assert.Equal(t, "https://example.org/high.mp3", best.FileURL)
}

func TestGetShowNotFound(t *testing.T) {
	statuses := []int{http.StatusNotFound, http.StatusBadRequest}
	for _, status := range statuses {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		_, err := c.GetShow(context.Background(), "nosuchpid")
		assert.ErrorIs(t, err, ErrNotFound, "status %d", status)
	}
}

func TestGetShowUpstreamError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.GetShow(context.Background(), "b006qykl")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestGetShowMalformedPayload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))

	_, err := c.GetShow(context.Background(), "b006qykl")
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestResolveStreamURL(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/vpid/p0bzn8f1/")
		_, _ = w.Write([]byte(mediaSelectorResponse))
	}))

	href, err := c.ResolveStreamURL(context.Background(), "p0bzn8f1")
	require.NoError(t, err)

	// Highest bitrate rendition over its https connection.
	assert.Equal(t, "https://cdn-a.example.org/high/segments.m3u8", href)
}

func TestResolveStreamURLNotHLS(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"media": [{
				"kind": "audio",
				"bitrate": "128",
				"connection": [{"protocol": "https", "href": "https://cdn.example.org/file.mpd", "transferFormat": "dash"}]
			}]
		}`))
	}))

	_, err := c.ResolveStreamURL(context.Background(), "p0bzn8f1")
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestResolveStreamURLNoAudio(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"media": []}`))
	}))

	_, err := c.ResolveStreamURL(context.Background(), "p0bzn8f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublicDownloadURL(t *testing.T) {
	t.Run("available", func(t *testing.T) {
		c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
			w.WriteHeader(http.StatusOK)
		}))

		u, err := c.PublicDownloadURL(context.Background(), "p0bzn8f1")
		require.NoError(t, err)
		assert.Contains(t, u, srv.URL)
		assert.Contains(t, u, "p0bzn8f1.mp3")
	})

	t.Run("app only", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		u, err := c.PublicDownloadURL(context.Background(), "p0bzn8f1")
		require.NoError(t, err)
		assert.Empty(t, u)
	})
}
