// SPDX-License-Identifier: MIT
package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeVideosTSVOrdering(t *testing.T) {
	rows := []VideoRow{
		{Title: "old", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), VideoID: "vvvvvvvvvv1", Path: "videos/a"},
		{Title: "unknown date", VideoID: "vvvvvvvvvv2", Path: "videos/b"},
		{Title: "new", Published: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), VideoID: "vvvvvvvvvv3", Path: "videos/c"},
		{Title: "tie-b", Published: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), VideoID: "vvvvvvvvvv5", Path: "videos/d"},
		{Title: "tie-a", Published: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), VideoID: "vvvvvvvvvv4", Path: "videos/e"},
	}

	payload, err := EncodeVideosTSV(rows)
	require.NoError(t, err)

	got, err := DecodeVideosTSV(payload)
	require.NoError(t, err)
	require.Len(t, got, 5)

	order := make([]string, len(got))
	for i, r := range got {
		order[i] = r.Title
	}
	assert.Equal(t, []string{"new", "tie-a", "tie-b", "old", "unknown date"}, order)
}

func TestVideosTSVRoundTrip(t *testing.T) {
	v := sampleVideo()
	v.Normalize()
	rows := []VideoRow{RowFromVideo(v)}

	first, err := EncodeVideosTSV(rows)
	require.NoError(t, err)

	parsed, err := DecodeVideosTSV(first)
	require.NoError(t, err)

	second, err := EncodeVideosTSV(parsed)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	assert.Equal(t, int64(3), parsed[0].Captions, "captions column is a count")
	assert.Equal(t, v.Path, parsed[0].Path)
}

func TestDecodeVideosTSVRejectsForeignHeader(t *testing.T) {
	_, err := DecodeVideosTSV([]byte("id\ttitle\n"))
	assert.Error(t, err)
}

func TestEmptyVideosTSVKeepsHeader(t *testing.T) {
	payload, err := EncodeVideosTSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "title\tchannel\tpublished\tduration\tviews\tlikes\tcomments\tcaptions\tpath\tvideo_id\n", string(payload))

	rows, err := DecodeVideosTSV(payload)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPlaylistsTSVRoundTrip(t *testing.T) {
	rows := []PlaylistRow{
		{Title: "Zeta", Channel: "Tester", VideoCount: 2, TotalDuration: 400, LastUpdated: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Path: "playlists/Zeta", PlaylistID: "PLzzz"},
		{Title: "Alpha", Channel: "Tester", VideoCount: 1, TotalDuration: 100, Path: "playlists/Alpha", PlaylistID: "PLaaa"},
	}

	payload, err := EncodePlaylistsTSV(rows)
	require.NoError(t, err)

	got, err := DecodePlaylistsTSV(payload)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Title, "sorted by title")
	assert.Equal(t, int64(400), got[1].TotalDuration)
	assert.True(t, got[0].LastUpdated.IsZero())
}

func TestAuthorsTSVRoundTrip(t *testing.T) {
	rows := []AuthorRow{
		{Name: "Zoe", ChannelURL: ChannelURL("UCzzz"), VideoCount: 0, CommentCount: 3, AuthorID: "UCzzz",
			FirstSeen: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), LastSeen: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "Amy", ChannelURL: ChannelURL("UCaaa"), VideoCount: 4, CommentCount: 0, AuthorID: "UCaaa"},
	}

	payload, err := EncodeAuthorsTSV(rows)
	require.NoError(t, err)

	got, err := DecodeAuthorsTSV(payload)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "UCaaa", got[0].AuthorID, "sorted by author id")
	assert.Equal(t, int64(3), got[1].CommentCount)
}
