// SPDX-License-Identifier: MIT
package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/server"
	"github.com/con-org/annextube-sub000/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixtureVideo(id, title, relDir string, published time.Time) *archive.Video {
	v := archive.Placeholder(id, archive.WatchURL(id), archive.AvailabilityPublic,
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	v.Title = title
	v.ChannelName = "World Channel"
	v.Published = published
	v.Path = relDir
	return v
}

// newArchive builds a two-video tree with indices and returns its root.
func newArchive(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	v1 := fixtureVideo("videoaaaa01", "First", "videos/2024/01/2024-01-05_First",
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	v2 := fixtureVideo("videoaaaa02", "Second", "videos/2024/02/2024-02-10_Second",
		time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
	testutil.WriteVideo(t, root, v1)
	testutil.WriteVideo(t, root, v2)
	testutil.WriteVideoIndex(t, root, v1, v2)
	testutil.WritePlaylistIndex(t, root, archive.PlaylistRow{
		Title: "Mix", Channel: "World Channel", PlaylistID: "PLaaaaaaaaaaaaa", Path: "playlists/Mix",
	})
	return root
}

func newHandler(t *testing.T, root string) http.Handler {
	t.Helper()
	srv, err := server.New(root, server.Options{})
	require.NoError(t, err)
	return srv.Handler()
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatsEndpoint(t *testing.T) {
	h := newHandler(t, newArchive(t))

	rec := get(h, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var stats archive.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Videos)
	assert.Equal(t, 1, stats.Playlists)
	assert.Equal(t, 1, stats.Channels)
}

func TestStatsRefreshOnIndexChange(t *testing.T) {
	root := newArchive(t)
	srv, err := server.New(root, server.Options{})
	require.NoError(t, err)
	h := srv.Handler()

	// Prime the cache before the watcher exists.
	rec := get(h, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Watch(ctx) }()

	v3 := fixtureVideo("videoaaaa03", "Third", "videos/2024/03/2024-03-15_Third",
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	index, err := archive.EncodeVideosTSV([]archive.VideoRow{
		archive.RowFromVideo(fixtureVideo("videoaaaa01", "First", "videos/2024/01/2024-01-05_First",
			time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))),
		archive.RowFromVideo(fixtureVideo("videoaaaa02", "Second", "videos/2024/02/2024-02-10_Second",
			time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))),
		archive.RowFromVideo(v3),
	})
	require.NoError(t, err)
	indexPath := filepath.Join(root, filepath.FromSlash(archive.VideosTSV))

	// The first writes may land before the watcher registers, so keep
	// rewriting until a change is observed.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(indexPath, index, 0o644); err != nil {
			return false
		}
		rec := get(h, "/api/stats", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var stats archive.Stats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			return false
		}
		return stats.Videos == 3
	}, 5*time.Second, 25*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestServesIndexFile(t *testing.T) {
	root := newArchive(t)
	h := newHandler(t, root)

	want, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(archive.VideosTSV)))
	require.NoError(t, err)

	rec := get(h, "/videos/videos.tsv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/tab-separated-values")
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = get(h, "/videos/videos.tsv", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestServesThroughPlaylistSymlink(t *testing.T) {
	root := newArchive(t)
	linkDir := filepath.Join(root, "playlists", "Mix")
	require.NoError(t, os.MkdirAll(linkDir, 0o755))
	require.NoError(t, os.Symlink("../../videos/2024/01/2024-01-05_First",
		filepath.Join(linkDir, "0001_2024-01-05_First")))

	h := newHandler(t, root)
	rec := get(h, "/playlists/Mix/0001_2024-01-05_First/metadata.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, rec.Body.String(), "videoaaaa01")
}

func TestSymlinkEscapeDenied(t *testing.T) {
	root := newArchive(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	h := newHandler(t, root)
	rec := get(h, "/escape/secret.txt", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeniedAndMissingPaths(t *testing.T) {
	h := newHandler(t, newArchive(t))

	cases := []struct {
		name string
		path string
		code int
	}{
		{"git internals", "/.git/config", http.StatusForbidden},
		{"archive config", "/.annextube/config.toml", http.StatusForbidden},
		{"traversal", "/videos/../../../etc/passwd", http.StatusForbidden},
		{"root listing", "/", http.StatusForbidden},
		{"directory", "/videos", http.StatusForbidden},
		{"missing file", "/videos/nope.tsv", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(h, tc.path, nil)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHandler(t, newArchive(t))

	req := httptest.NewRequest(http.MethodPost, "/videos/videos.tsv", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimit(t *testing.T) {
	srv, err := server.New(newArchive(t), server.Options{RequestLimit: 2, Window: time.Minute})
	require.NoError(t, err)
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(h, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/healthz", nil).Code)

	rec := get(h, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHandler(t, newArchive(t))

	rec := get(h, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(h, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "annextube_serve_stats_refreshes_total")
}
