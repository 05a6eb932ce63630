// SPDX-License-Identifier: MIT
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Stats summarizes an archive from its tabular indices. Everything here
// is derivable from the TSV files alone, so computing it never touches
// per-video JSON and stays cheap on large archives.
type Stats struct {
	Videos        int   `json:"videos"`
	Channels      int   `json:"channels"`
	Playlists     int   `json:"playlists"`
	Authors       int   `json:"authors"`
	CaptionTracks int64 `json:"caption_tracks"`

	TotalDurationSeconds int64 `json:"total_duration_seconds"`
	TotalViews           int64 `json:"total_views"`
	TotalLikes           int64 `json:"total_likes"`
	TotalComments        int64 `json:"total_comments"`

	OldestPublished time.Time `json:"oldest_published,omitzero"`
	NewestPublished time.Time `json:"newest_published,omitzero"`
}

// ComputeStats reads the indices under root. Missing indices read as
// empty; a cold archive yields zero stats, not an error.
func ComputeStats(root string) (*Stats, error) {
	s := &Stats{}

	videos, err := readIndex(root, VideosTSV, DecodeVideosTSV)
	if err != nil {
		return nil, err
	}
	channels := map[string]bool{}
	for _, r := range videos {
		s.Videos++
		if r.Channel != "" {
			channels[r.Channel] = true
		}
		s.CaptionTracks += r.Captions
		s.TotalDurationSeconds += r.Duration
		s.TotalViews += r.Views
		s.TotalLikes += r.Likes
		s.TotalComments += r.Comments
		if !r.Published.IsZero() {
			if s.OldestPublished.IsZero() || r.Published.Before(s.OldestPublished) {
				s.OldestPublished = r.Published
			}
			if r.Published.After(s.NewestPublished) {
				s.NewestPublished = r.Published
			}
		}
	}
	s.Channels = len(channels)

	playlists, err := readIndex(root, PlaylistsTSV, DecodePlaylistsTSV)
	if err != nil {
		return nil, err
	}
	s.Playlists = len(playlists)

	authors, err := readIndex(root, AuthorsTSV, DecodeAuthorsTSV)
	if err != nil {
		return nil, err
	}
	s.Authors = len(authors)

	return s, nil
}

func readIndex[T any](root, rel string, decode func([]byte) ([]T, error)) ([]T, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	rows, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rel, err)
	}
	return rows, nil
}
