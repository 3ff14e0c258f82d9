package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(ClientOptions{
		Timeout:        5 * time.Second,
		ConnectTimeout: time.Second,
		UserAgent:      "lazyfeed-test",
		Headers:        map[string]string{"X-Custom": "yes"},
	})
}

func TestClient_FetchSendsHeadersAndReturnsETag(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	res, err := newTestClient().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)

	assert.Equal(t, Fetched, res.Status)
	assert.Equal(t, []byte("<rss/>"), res.Body)
	assert.Equal(t, `"v2"`, res.CacheToken)
	assert.Equal(t, "application/rss+xml", res.ContentType)

	assert.Equal(t, "lazyfeed-test", got.Get("User-Agent"))
	assert.Equal(t, "yes", got.Get("X-Custom"))
	assert.Contains(t, got.Get("Accept"), "application/rss+xml")
	assert.Empty(t, got.Get("If-None-Match"))
}

func TestClient_FetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	client := newTestClient()

	res, err := client.Fetch(context.Background(), srv.URL, `"v1"`)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res.Status)
	assert.Equal(t, `"v1"`, res.CacheToken)
	assert.Nil(t, res.Body)

	res, err = client.Fetch(context.Background(), srv.URL, `"stale"`)
	require.NoError(t, err)
	assert.Equal(t, Fetched, res.Status)
	assert.Equal(t, `"v1"`, res.CacheToken)
}

func TestClient_FetchWithoutETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	res, err := newTestClient().Fetch(context.Background(), srv.URL, `"old"`)
	require.NoError(t, err)
	assert.Equal(t, Fetched, res.Status)
	assert.Empty(t, res.CacheToken)
}

func TestClient_FetchAcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"proxied"`)
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	res, err := newTestClient().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, Fetched, res.Status)
	assert.Equal(t, []byte("<rss/>"), res.Body)
	assert.Equal(t, `"proxied"`, res.CacheToken)
}

func TestClient_FetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, "")
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestClient_FetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", maxBodySize+1)))
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, "")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "too large")
}

func TestClient_FetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient().Fetch(context.Background(), url, "")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.StatusCode)
}

func TestClient_FetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(ClientOptions{Timeout: 50 * time.Millisecond})
	_, err := client.Fetch(context.Background(), srv.URL, "")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestClient_FetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient().Fetch(ctx, srv.URL, "")
	assert.ErrorIs(t, err, context.Canceled)
}
