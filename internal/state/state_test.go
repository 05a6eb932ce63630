// SPDX-License-Identifier: MIT
package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/con-org/annextube-sub000/internal/archive"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, data, 0o644))
}

func writeIndex(t *testing.T, root string, rows []archive.VideoRow) {
	t.Helper()
	payload, err := archive.EncodeVideosTSV(rows)
	require.NoError(t, err)
	writeFile(t, root, archive.VideosTSV, payload)
}

func TestDeriveColdArchive(t *testing.T) {
	s, err := Derive(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0, s.KnownCount())
	assert.False(t, s.Known("dQw4w9WgXcQ"))
	assert.True(t, s.LatestPublished("Tester").IsZero())
	assert.False(t, s.Unavailable("dQw4w9WgXcQ"))
	assert.True(t, s.LastCommentInstant("dQw4w9WgXcQ").IsZero())
}

func TestLatestPublishedIsPerChannel(t *testing.T) {
	root := t.TempDir()
	writeIndex(t, root, []archive.VideoRow{
		{Title: "a", Channel: "Tester", Published: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), VideoID: "aaaaaaaaaa1", Path: "videos/2024/01/a"},
		{Title: "b", Channel: "Tester", Published: time.Date(2024, 6, 7, 8, 9, 10, 0, time.UTC), VideoID: "aaaaaaaaaa2", Path: "videos/2024/06/b"},
		{Title: "c", Channel: "Other", Published: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), VideoID: "aaaaaaaaaa3", Path: "videos/2025/01/c"},
		// placeholder with hidden publication date must not move any cutoff
		{Title: "", Channel: "", VideoID: "aaaaaaaaaa4", Path: "videos/0000/00/d"},
	})

	s, err := Derive(root)
	require.NoError(t, err)

	assert.Equal(t, 4, s.KnownCount())
	assert.Equal(t, time.Date(2024, 6, 7, 8, 9, 10, 0, time.UTC), s.LatestPublished("Tester"))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), s.LatestPublished("Other"))
	assert.True(t, s.LatestPublished("Nobody").IsZero())
}

func TestChannelVideoIDsNewestFirst(t *testing.T) {
	root := t.TempDir()
	writeIndex(t, root, []archive.VideoRow{
		{Channel: "Tester", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), VideoID: "aaaaaaaaaa1"},
		{Channel: "Tester", Published: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), VideoID: "aaaaaaaaaa2"},
		{Channel: "Tester", VideoID: "aaaaaaaaaa3"}, // unknown date sinks
		{Channel: "Other", Published: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), VideoID: "aaaaaaaaaa4"},
	})

	s, err := Derive(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"aaaaaaaaaa2", "aaaaaaaaaa1", "aaaaaaaaaa3"}, s.ChannelVideoIDs("Tester"))
}

func TestVideoLoadsMetadataLazily(t *testing.T) {
	root := t.TempDir()
	v := &archive.Video{
		VideoID:           "aaaaaaaaaa1",
		Title:             "Kept private",
		Availability:      archive.AvailabilityPrivate,
		DownloadStatus:    archive.DownloadMetadataOnly,
		Tags:              []string{},
		Categories:        []string{},
		CaptionsAvailable: []string{},
		Path:              "videos/2024/01/2024-01-05_kept-private",
	}
	payload, err := archive.EncodeMetadata(v)
	require.NoError(t, err)
	writeFile(t, root, v.Path+"/"+archive.MetadataFile, payload)
	writeIndex(t, root, []archive.VideoRow{archive.RowFromVideo(v)})

	s, err := Derive(root)
	require.NoError(t, err)

	got, err := s.Video("aaaaaaaaaa1")
	require.NoError(t, err)
	assert.Equal(t, "Kept private", got.Title)
	assert.True(t, s.Unavailable("aaaaaaaaaa1"))

	// unknown ids and ids without a readable record count as available
	assert.False(t, s.Unavailable("zzzzzzzzzz9"))

	_, err = s.Video("zzzzzzzzzz9")
	assert.Error(t, err)
}

func TestUnavailableFalseForPublicRecord(t *testing.T) {
	root := t.TempDir()
	v := &archive.Video{
		VideoID:      "aaaaaaaaaa1",
		Title:        "Out there",
		Availability: archive.AvailabilityPublic,
		Path:         "videos/2024/02/2024-02-01_out-there",
	}
	payload, err := archive.EncodeMetadata(v)
	require.NoError(t, err)
	writeFile(t, root, v.Path+"/"+archive.MetadataFile, payload)
	writeIndex(t, root, []archive.VideoRow{archive.RowFromVideo(v)})

	s, err := Derive(root)
	require.NoError(t, err)
	assert.False(t, s.Unavailable("aaaaaaaaaa1"))
}

func TestLastCommentInstant(t *testing.T) {
	root := t.TempDir()
	dir := "videos/2024/03/2024-03-01_chatty"
	comments := []archive.Comment{
		{CommentID: "c1", Author: "amy", Text: "first", Published: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
		{CommentID: "c2", Author: "zoe", Text: "late", Published: time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)},
	}
	payload, err := archive.EncodeComments(comments)
	require.NoError(t, err)
	writeFile(t, root, dir+"/"+archive.CommentsFile, payload)
	writeIndex(t, root, []archive.VideoRow{
		{Title: "chatty", Channel: "Tester", VideoID: "aaaaaaaaaa1", Path: dir},
		{Title: "silent", Channel: "Tester", VideoID: "aaaaaaaaaa2", Path: "videos/2024/03/2024-03-02_silent"},
	})

	s, err := Derive(root)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC), s.LastCommentInstant("aaaaaaaaaa1"))
	assert.True(t, s.LastCommentInstant("aaaaaaaaaa2").IsZero())

	// cached: deleting the file must not change the answer within the run
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(dir), archive.CommentsFile)))
	assert.Equal(t, time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC), s.LastCommentInstant("aaaaaaaaaa1"))
}

func TestRecordFoldsNewVideoIntoView(t *testing.T) {
	s, err := Derive(t.TempDir())
	require.NoError(t, err)

	v := &archive.Video{
		VideoID:      "aaaaaaaaaa1",
		Title:        "Fresh",
		ChannelName:  "Tester",
		Published:    time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		Availability: archive.AvailabilityPublic,
		Path:         "videos/2025/05/2025-05-01_fresh",
	}
	s.Record(v)

	assert.True(t, s.Known("aaaaaaaaaa1"))
	assert.Equal(t, v.Published, s.LatestPublished("Tester"))
	assert.Equal(t, v.Path, s.Path("aaaaaaaaaa1"))

	got, err := s.Video("aaaaaaaaaa1")
	require.NoError(t, err)
	assert.Equal(t, "Fresh", got.Title)
}

func TestSetPathRedirectsLazyReads(t *testing.T) {
	root := t.TempDir()
	oldDir := "videos/2024/01/2024-01-01_before"
	newDir := "videos/2024/01/2024-01-01_after"

	v := &archive.Video{
		VideoID:      "aaaaaaaaaa1",
		Title:        "before",
		Availability: archive.AvailabilityPublic,
		Path:         oldDir,
	}
	payload, err := archive.EncodeMetadata(v)
	require.NoError(t, err)
	writeFile(t, root, oldDir+"/"+archive.MetadataFile, payload)
	writeIndex(t, root, []archive.VideoRow{archive.RowFromVideo(v)})

	s, err := Derive(root)
	require.NoError(t, err)

	got, err := s.Video("aaaaaaaaaa1")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Title)

	v.Title = "after"
	v.Path = newDir
	payload, err = archive.EncodeMetadata(v)
	require.NoError(t, err)
	writeFile(t, root, newDir+"/"+archive.MetadataFile, payload)
	s.SetPath("aaaaaaaaaa1", newDir)

	assert.Equal(t, newDir, s.Path("aaaaaaaaaa1"))
	got, err = s.Video("aaaaaaaaaa1")
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title, "cached decode dropped on move")
}

func TestPlaylistsFromIndexAndRecord(t *testing.T) {
	root := t.TempDir()
	writeIndex(t, root, []archive.VideoRow{
		{Channel: "Tester", Duration: 100, VideoID: "aaaaaaaaaa1"},
		{Channel: "Tester", Duration: 40, VideoID: "aaaaaaaaaa2"},
	})
	payload, err := archive.EncodePlaylistsTSV([]archive.PlaylistRow{
		{Title: "Old Hits", Channel: "Tester", VideoCount: 1, Path: "playlists/Old_Hits", PlaylistID: "PLold"},
	})
	require.NoError(t, err)
	writeFile(t, root, archive.PlaylistsTSV, payload)

	s, err := Derive(root)
	require.NoError(t, err)

	row, ok := s.PlaylistRow("PLold")
	require.True(t, ok)
	assert.Equal(t, "playlists/Old_Hits", row.Path)
	assert.Equal(t, "playlists/Old_Hits", s.PlaylistPath("PLold"))
	assert.Equal(t, "", s.PlaylistPath("PLmissing"))

	s.RecordPlaylist(&archive.Playlist{
		PlaylistID:  "PLnew",
		Title:       "New Mix",
		ChannelName: "Tester",
		Items:       []string{"aaaaaaaaaa1", "aaaaaaaaaa2", "notarchived"},
		Path:        "playlists/New_Mix",
		FetchedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	row, ok = s.PlaylistRow("PLnew")
	require.True(t, ok)
	assert.Equal(t, int64(3), row.VideoCount)
	assert.Equal(t, int64(140), row.TotalDuration, "only archived items contribute duration")
}

func TestPlaylistLoadsRecordLazily(t *testing.T) {
	root := t.TempDir()
	p := &archive.Playlist{
		PlaylistID:  "PLstored",
		Title:       "Stored Mix",
		ChannelName: "Tester",
		Items:       []string{"aaaaaaaaaa1", "aaaaaaaaaa2"},
		Path:        "playlists/Stored_Mix",
	}
	payload, err := archive.EncodePlaylist(p)
	require.NoError(t, err)
	writeFile(t, root, p.Path+"/"+archive.PlaylistFile, payload)
	idx, err := archive.EncodePlaylistsTSV([]archive.PlaylistRow{
		{Title: p.Title, Channel: p.ChannelName, VideoCount: 2, Path: p.Path, PlaylistID: p.PlaylistID},
	})
	require.NoError(t, err)
	writeFile(t, root, archive.PlaylistsTSV, idx)

	s, err := Derive(root)
	require.NoError(t, err)

	got, err := s.Playlist("PLstored")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa1", "aaaaaaaaaa2"}, got.Items)

	// cached: deleting the file must not change the answer within the run
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(p.Path), archive.PlaylistFile)))
	got, err = s.Playlist("PLstored")
	require.NoError(t, err)
	assert.Equal(t, "Stored Mix", got.Title)

	_, err = s.Playlist("PLmissing")
	assert.Error(t, err)
}
