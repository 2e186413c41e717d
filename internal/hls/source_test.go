package hls

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundsproxy/internal/httpclient"
)

func newSource(t *testing.T, handler http.Handler, prefetch int) (*SegmentSource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	hc := httpclient.New(httpclient.Config{RetryAttempts: 0})
	return NewSegmentSource(hc, prefetch, nil), srv
}

func segmentURLs(srv *httptest.Server, n int) *Manifest {
	m := &Manifest{}
	for i := 0; i < n; i++ {
		m.Segments = append(m.Segments, SegmentRef{
			URL:      fmt.Sprintf("%s/seg-%03d.ts", srv.URL, i),
			Duration: 6 * time.Second,
		})
	}
	return m
}

func TestStreamDeliversInOrder(t *testing.T) {
	s, srv := newSource(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("payload:" + req.URL.Path))
	}), 2)

	segments, errc := s.Stream(context.Background(), segmentURLs(srv, 5))

	var got []Segment
	for seg := range segments {
		got = append(got, seg)
	}
	require.NoError(t, <-errc)

	require.Len(t, got, 5)
	for i, seg := range got {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, fmt.Sprintf("payload:/seg-%03d.ts", i), string(seg.Data))
	}
}

func TestStreamByteRange(t *testing.T) {
	full := bytes.Repeat([]byte{0x47}, 400)
	var gotRange string
	s, srv := newSource(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotRange = req.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(full[100:300])
	}), 1)

	start, length := uint64(100), uint64(200)
	m := &Manifest{Segments: []SegmentRef{{
		URL:             srv.URL + "/all.ts",
		ByteRangeStart:  &start,
		ByteRangeLength: &length,
	}}}

	segments, errc := s.Stream(context.Background(), m)
	seg := <-segments
	require.NoError(t, <-errc)

	assert.Equal(t, "bytes=100-299", gotRange)
	assert.Len(t, seg.Data, 200)
}

func TestStreamByteRangeIgnoredByServer(t *testing.T) {
	full := []byte("0123456789")
	s, srv := newSource(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write(full)
	}), 1)

	start, length := uint64(3), uint64(4)
	m := &Manifest{Segments: []SegmentRef{{
		URL:             srv.URL + "/all.ts",
		ByteRangeStart:  &start,
		ByteRangeLength: &length,
	}}}

	segments, errc := s.Stream(context.Background(), m)
	seg := <-segments
	require.NoError(t, <-errc)

	assert.Equal(t, "3456", string(seg.Data))
}

func TestStreamFailFast(t *testing.T) {
	s, srv := newSource(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		idx, _ := strconv.Atoi(req.URL.Path[len("/seg-") : len("/seg-")+3])
		if idx == 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}), 4)

	segments, errc := s.Stream(context.Background(), segmentURLs(srv, 5))

	var got []Segment
	for seg := range segments {
		got = append(got, seg)
	}
	err := <-errc

	// Segments before the failure are delivered, nothing after it.
	assert.Len(t, got, 2)
	assert.ErrorIs(t, err, ErrSegmentFetch)
}

func TestStreamCancel(t *testing.T) {
	s, srv := newSource(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), 1)

	ctx, cancel := context.WithCancel(context.Background())
	segments, errc := s.Stream(ctx, segmentURLs(srv, 100))

	<-segments
	cancel()

	// Drain; the loop must terminate promptly after cancellation.
	for range segments {
	}
	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
}
