// SPDX-License-Identifier: MIT
package archive

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Column orders are the contract; consumers index by position.
var (
	VideosHeader    = []string{"title", "channel", "published", "duration", "views", "likes", "comments", "captions", "path", "video_id"}
	PlaylistsHeader = []string{"title", "channel", "video_count", "total_duration", "last_updated", "path", "playlist_id"}
	AuthorsHeader   = []string{"name", "channel_url", "first_seen", "last_seen", "video_count", "comment_count", "author_id"}
)

// VideoRow is one line of videos/videos.tsv.
type VideoRow struct {
	Title     string
	Channel   string
	Published time.Time
	Duration  int64
	Views     int64
	Likes     int64
	Comments  int64
	Captions  int64
	Path      string
	VideoID   string
}

// RowFromVideo projects a video record onto its index row. The path is the
// repo-relative video directory.
func RowFromVideo(v *Video) VideoRow {
	return VideoRow{
		Title:     v.Title,
		Channel:   v.ChannelName,
		Published: v.Published,
		Duration:  v.DurationSeconds,
		Views:     v.ViewCount,
		Likes:     v.LikeCount,
		Comments:  v.CommentCount,
		Captions:  int64(len(v.CaptionsAvailable)),
		Path:      v.Path,
		VideoID:   v.VideoID,
	}
}

func (r VideoRow) fields() []string {
	return []string{
		r.Title,
		r.Channel,
		formatInstant(r.Published),
		strconv.FormatInt(r.Duration, 10),
		strconv.FormatInt(r.Views, 10),
		strconv.FormatInt(r.Likes, 10),
		strconv.FormatInt(r.Comments, 10),
		strconv.FormatInt(r.Captions, 10),
		r.Path,
		r.VideoID,
	}
}

// SortVideoRows orders rows newest first; unknown publication dates sink to
// the bottom; ids break ties.
func SortVideoRows(rows []VideoRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.Published.IsZero() && b.Published.IsZero():
			return a.VideoID < b.VideoID
		case a.Published.IsZero():
			return false
		case b.Published.IsZero():
			return true
		case !a.Published.Equal(b.Published):
			return a.Published.After(b.Published)
		default:
			return a.VideoID < b.VideoID
		}
	})
}

// EncodeVideosTSV renders the full videos.tsv payload, sorting rows first.
func EncodeVideosTSV(rows []VideoRow) ([]byte, error) {
	SortVideoRows(rows)
	raw := make([][]string, len(rows))
	for i, r := range rows {
		raw[i] = r.fields()
	}
	return EncodeTable(VideosHeader, raw)
}

// DecodeVideosTSV parses videos.tsv. The header must match the contract.
func DecodeVideosTSV(data []byte) ([]VideoRow, error) {
	header, raw, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := checkHeader("videos.tsv", header, VideosHeader); err != nil {
		return nil, err
	}
	rows := make([]VideoRow, 0, len(raw))
	for i, f := range raw {
		published, err := parseInstant(f[2])
		if err != nil {
			return nil, fmt.Errorf("videos.tsv row %d: %w", i+1, err)
		}
		rows = append(rows, VideoRow{
			Title:     f[0],
			Channel:   f[1],
			Published: published,
			Duration:  parseCount(f[3]),
			Views:     parseCount(f[4]),
			Likes:     parseCount(f[5]),
			Comments:  parseCount(f[6]),
			Captions:  parseCount(f[7]),
			Path:      f[8],
			VideoID:   f[9],
		})
	}
	return rows, nil
}

// PlaylistRow is one line of playlists/playlists.tsv.
type PlaylistRow struct {
	Title         string
	Channel       string
	VideoCount    int64
	TotalDuration int64
	LastUpdated   time.Time
	Path          string
	PlaylistID    string
}

func (r PlaylistRow) fields() []string {
	return []string{
		r.Title,
		r.Channel,
		strconv.FormatInt(r.VideoCount, 10),
		strconv.FormatInt(r.TotalDuration, 10),
		formatInstant(r.LastUpdated),
		r.Path,
		r.PlaylistID,
	}
}

// EncodePlaylistsTSV renders playlists.tsv sorted by title, id as tiebreak.
func EncodePlaylistsTSV(rows []PlaylistRow) ([]byte, error) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Title != rows[j].Title {
			return rows[i].Title < rows[j].Title
		}
		return rows[i].PlaylistID < rows[j].PlaylistID
	})
	raw := make([][]string, len(rows))
	for i, r := range rows {
		raw[i] = r.fields()
	}
	return EncodeTable(PlaylistsHeader, raw)
}

// DecodePlaylistsTSV parses playlists.tsv.
func DecodePlaylistsTSV(data []byte) ([]PlaylistRow, error) {
	header, raw, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := checkHeader("playlists.tsv", header, PlaylistsHeader); err != nil {
		return nil, err
	}
	rows := make([]PlaylistRow, 0, len(raw))
	for i, f := range raw {
		updated, err := parseInstant(f[4])
		if err != nil {
			return nil, fmt.Errorf("playlists.tsv row %d: %w", i+1, err)
		}
		rows = append(rows, PlaylistRow{
			Title:         f[0],
			Channel:       f[1],
			VideoCount:    parseCount(f[2]),
			TotalDuration: parseCount(f[3]),
			LastUpdated:   updated,
			Path:          f[5],
			PlaylistID:    f[6],
		})
	}
	return rows, nil
}

// AuthorRow is one line of authors.tsv.
type AuthorRow struct {
	Name         string
	ChannelURL   string
	FirstSeen    time.Time
	LastSeen     time.Time
	VideoCount   int64
	CommentCount int64
	AuthorID     string
}

func (r AuthorRow) fields() []string {
	return []string{
		r.Name,
		r.ChannelURL,
		formatInstant(r.FirstSeen),
		formatInstant(r.LastSeen),
		strconv.FormatInt(r.VideoCount, 10),
		strconv.FormatInt(r.CommentCount, 10),
		r.AuthorID,
	}
}

// EncodeAuthorsTSV renders authors.tsv sorted by author id.
func EncodeAuthorsTSV(rows []AuthorRow) ([]byte, error) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].AuthorID < rows[j].AuthorID
	})
	raw := make([][]string, len(rows))
	for i, r := range rows {
		raw[i] = r.fields()
	}
	return EncodeTable(AuthorsHeader, raw)
}

// DecodeAuthorsTSV parses authors.tsv.
func DecodeAuthorsTSV(data []byte) ([]AuthorRow, error) {
	header, raw, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := checkHeader("authors.tsv", header, AuthorsHeader); err != nil {
		return nil, err
	}
	rows := make([]AuthorRow, 0, len(raw))
	for i, f := range raw {
		first, err := parseInstant(f[2])
		if err != nil {
			return nil, fmt.Errorf("authors.tsv row %d: %w", i+1, err)
		}
		last, err := parseInstant(f[3])
		if err != nil {
			return nil, fmt.Errorf("authors.tsv row %d: %w", i+1, err)
		}
		rows = append(rows, AuthorRow{
			Name:         f[0],
			ChannelURL:   f[1],
			FirstSeen:    first,
			LastSeen:     last,
			VideoCount:   parseCount(f[4]),
			CommentCount: parseCount(f[5]),
			AuthorID:     f[6],
		})
	}
	return rows, nil
}

func checkHeader(name string, got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%s: header has %d columns, want %d", name, len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%s: column %d is %q, want %q", name, i, got[i], want[i])
		}
	}
	return nil
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad instant %q: %w", s, err)
	}
	return t, nil
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
