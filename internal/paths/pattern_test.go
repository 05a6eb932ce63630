// SPDX-License-Identifier: MIT
package paths

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/con-org/annextube-sub000/internal/archive"
)

func patternVideo() *archive.Video {
	return &archive.Video{
		VideoID:     "dQw4w9WgXcQ",
		Title:       "Never Gonna Give You Up",
		ChannelID:   "UCuAXFkgsw1L7xaCfnd5JJOw",
		ChannelName: "Rick Astley",
		Published:   time.Date(2009, 10, 25, 6, 57, 33, 0, time.UTC),
	}
}

func TestParseRejectsUnknownPlaceholder(t *testing.T) {
	_, err := Parse("{year}/{quarter}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{quarter}")
}

func TestParseRejectsBrokenSyntax(t *testing.T) {
	_, err := Parse("{year")
	assert.Error(t, err)

	_, err = Parse("{year}//x")
	assert.Error(t, err)

	_, err = Parse(`a\b`)
	assert.Error(t, err)
}

func TestExpandDefaultPattern(t *testing.T) {
	p, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPattern, p.String())

	got, err := p.Expand(patternVideo())
	require.NoError(t, err)
	assert.Equal(t, "2009/10/2009-10-25_Never-Gonna-Give-You-Up", got)
}

func TestExpandAllPlaceholders(t *testing.T) {
	p, err := Parse("{channel_name}/{channel_id}/{video_id}/{date}")
	require.NoError(t, err)

	got, err := p.Expand(patternVideo())
	require.NoError(t, err)
	assert.Equal(t, "Rick-Astley/UCuAXFkgsw1L7xaCfnd5JJOw/dQw4w9WgXcQ/2009-10-25", got)
}

func TestExpandUnknownPublished(t *testing.T) {
	v := patternVideo()
	v.Published = time.Time{}

	p, err := Parse("{year}/{month}/{date}_{sanitized_title}")
	require.NoError(t, err)

	got, err := p.Expand(v)
	require.NoError(t, err)
	assert.Equal(t, "0000/00/0000-00-00_Never-Gonna-Give-You-Up", got)
}

func TestExpandFallsBackToVideoID(t *testing.T) {
	v := patternVideo()
	v.Title = "///"

	p, err := Parse("{sanitized_title}")
	require.NoError(t, err)

	got, err := p.Expand(v)
	require.NoError(t, err)
	assert.Equal(t, v.VideoID, got)
}

func TestUses(t *testing.T) {
	p, err := Parse("{year}/{channel_id}-{sanitized_title}")
	require.NoError(t, err)

	assert.True(t, p.Uses("year"))
	assert.True(t, p.Uses("channel_id"))
	assert.True(t, p.Uses("sanitized_title"))
	assert.False(t, p.Uses("month"))
	assert.False(t, p.Uses("video_id"))
}

func TestExpandIsDeterministic(t *testing.T) {
	p, err := Parse(DefaultPattern)
	require.NoError(t, err)

	a, err := p.Expand(patternVideo())
	require.NoError(t, err)
	b, err := p.Expand(patternVideo())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"spaces", "Hello World", "Hello-World"},
		{"path separators", "a/b\\c", "a-b-c"},
		{"nul and controls", "bad\x00name\x1f!", "bad-name"},
		{"collapse runs", "a -- b", "a-b"},
		{"trim separators", "...leading and trailing---", "leading-and-trailing"},
		{"keep dots and underscores inside", "v1.2_final", "v1.2_final"},
		{"unicode preserved", "日本語 タイトル", "日本語-タイトル"},
		{"rtl preserved", "مرحبا بالعالم", "مرحبا-بالعالم"},
		{"emoji folded", "fun 🎉 time", "fun-time"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeCapsSegmentAtRuneBoundary(t *testing.T) {
	long := strings.Repeat("日", 100)
	got := Sanitize(long)
	assert.LessOrEqual(t, len(got), maxSegmentBytes)
	assert.True(t, strings.HasSuffix(got, "日"), "must cut at a rune boundary")
}

func TestExpandTitleRoundTripsThroughTSV(t *testing.T) {
	v := patternVideo()
	v.Title = "tabs\tand\nnewlines"
	p, err := Parse(DefaultPattern)
	require.NoError(t, err)

	rel, err := p.Expand(v)
	require.NoError(t, err)
	assert.NotContains(t, rel, "\t")
	assert.NotContains(t, rel, "\n")

	v.Path = archive.VideoDir(rel)
	payload, err := archive.EncodeVideosTSV([]archive.VideoRow{archive.RowFromVideo(v)})
	require.NoError(t, err)
	rows, err := archive.DecodeVideosTSV(payload)
	require.NoError(t, err)
	assert.Equal(t, v.Path, rows[0].Path)
	assert.Equal(t, v.Title, rows[0].Title)
}
