// SPDX-License-Identifier: MIT
package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptionsManifestRoundTrip(t *testing.T) {
	tracks := []CaptionTrack{
		{Language: "en-orig", AutoGenerated: false, Path: "video.en-orig.vtt", FetchedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{Language: "de", AutoGenerated: true, Path: "video.de.vtt", FetchedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
	}

	payload, err := EncodeCaptions(tracks)
	require.NoError(t, err)

	got, err := DecodeCaptions(payload)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "de", got[0].Language, "sorted by language")
	assert.True(t, got[0].AutoGenerated)
}

func TestNormalizedCaptionsEqual(t *testing.T) {
	a, err := EncodeCaptions([]CaptionTrack{
		{Language: "en", Path: "video.en.vtt", FetchedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	b, err := EncodeCaptions([]CaptionTrack{
		{Language: "en", Path: "video.en.vtt", FetchedAt: time.Date(2025, 6, 6, 6, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.True(t, NormalizedCaptionsEqual(a, b))

	c, err := EncodeCaptions([]CaptionTrack{
		{Language: "en", AutoGenerated: true, Path: "video.en.vtt", FetchedAt: time.Date(2025, 6, 6, 6, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.False(t, NormalizedCaptionsEqual(a, c))
}

func TestCaptionFileNames(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"en", "video.en.vtt"},
		{"en-orig", "video.en-orig.vtt"},
		{"en-cur1", "video.en-cur1.vtt"},
		{"zh/Hant", "video.zh-Hant.vtt"},
		{"", "video.und.vtt"},
	}
	for _, tt := range tests {
		got := CaptionFile(tt.lang)
		assert.Equal(t, tt.want, got)

		lang, ok := LangFromCaptionFile(got)
		assert.True(t, ok)
		assert.NotEmpty(t, lang)
	}

	_, ok := LangFromCaptionFile("metadata.json")
	assert.False(t, ok)
	_, ok = LangFromCaptionFile("video.mp4")
	assert.False(t, ok)
}

func TestContentEqualDispatch(t *testing.T) {
	meta1, _ := EncodeMetadata(sampleVideo())
	touched := sampleVideo()
	touched.UpdatedAt = touched.UpdatedAt.Add(time.Hour)
	meta2, _ := EncodeMetadata(touched)

	assert.True(t, ContentEqual("videos/2024/03/x/metadata.json", meta1, meta2))
	assert.False(t, ContentEqual("videos/videos.tsv", []byte("a"), []byte("b")))
	assert.True(t, ContentEqual("videos/videos.tsv", []byte("same"), []byte("same")))
}
