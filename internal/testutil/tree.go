// SPDX-License-Identifier: MIT

package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/con-org/annextube-sub000/internal/archive"
)

// WriteVideo materializes a video directory under root with its
// metadata.json and returns the absolute directory path. v.Path must
// already carry the repo-relative directory.
func WriteVideo(t *testing.T, root string, v *archive.Video) string {
	t.Helper()
	payload, err := archive.EncodeMetadata(v)
	if err != nil {
		t.Fatalf("encode metadata %s: %v", v.VideoID, err)
	}
	abs := filepath.Join(root, filepath.FromSlash(v.Path))
	mustWriteFile(t, filepath.Join(abs, archive.MetadataFile), payload)
	return abs
}

// WriteComments writes comments.json into a video directory given by
// its repo-relative path.
func WriteComments(t *testing.T, root, videoDir string, comments []archive.Comment) {
	t.Helper()
	payload, err := archive.EncodeComments(comments)
	if err != nil {
		t.Fatalf("encode comments: %v", err)
	}
	mustWriteFile(t, filepath.Join(root, filepath.FromSlash(videoDir), archive.CommentsFile), payload)
}

// WritePlaylist materializes a playlist directory with its
// playlist.json and returns the absolute directory path.
func WritePlaylist(t *testing.T, root string, p *archive.Playlist) string {
	t.Helper()
	payload, err := archive.EncodePlaylist(p)
	if err != nil {
		t.Fatalf("encode playlist %s: %v", p.PlaylistID, err)
	}
	abs := filepath.Join(root, filepath.FromSlash(p.Path))
	mustWriteFile(t, filepath.Join(abs, archive.PlaylistFile), payload)
	return abs
}

// WriteVideoIndex renders videos.tsv from the given records.
func WriteVideoIndex(t *testing.T, root string, videos ...*archive.Video) {
	t.Helper()
	rows := make([]archive.VideoRow, 0, len(videos))
	for _, v := range videos {
		rows = append(rows, archive.RowFromVideo(v))
	}
	payload, err := archive.EncodeVideosTSV(rows)
	if err != nil {
		t.Fatalf("encode videos.tsv: %v", err)
	}
	mustWriteFile(t, filepath.Join(root, filepath.FromSlash(archive.VideosTSV)), payload)
}

// WritePlaylistIndex renders playlists.tsv from the given rows.
func WritePlaylistIndex(t *testing.T, root string, rows ...archive.PlaylistRow) {
	t.Helper()
	payload, err := archive.EncodePlaylistsTSV(rows)
	if err != nil {
		t.Fatalf("encode playlists.tsv: %v", err)
	}
	mustWriteFile(t, filepath.Join(root, filepath.FromSlash(archive.PlaylistsTSV)), payload)
}

func mustWriteFile(t *testing.T, abs string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(abs), err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", abs, err)
	}
}
