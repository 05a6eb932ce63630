// SPDX-License-Identifier: MIT

// Package state derives incremental-sync state from the on-disk
// archive. The tabular indices and per-video JSON are the only source
// of truth: there is no separate sync database to corrupt, which means
// the exporter must have run for this view to be current.
package state

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/log"
)

// Snapshot is one run's view of the archive, built from videos.tsv and
// playlists.tsv up front and from per-video files on demand. The
// pipeline scheduler is its single writer; prefetch workers only read
// what the scheduler resolved before scheduling them.
type Snapshot struct {
	root string

	rows      map[string]archive.VideoRow
	playlists map[string]archive.PlaylistRow

	videos       map[string]*archive.Video
	playlistDocs map[string]*archive.Playlist
	lastComment  map[string]time.Time
}

// Derive reads the tabular indices under root. A missing index means a
// cold archive and yields an empty snapshot rather than an error.
func Derive(root string) (*Snapshot, error) {
	s := &Snapshot{
		root:         root,
		rows:         map[string]archive.VideoRow{},
		playlists:    map[string]archive.PlaylistRow{},
		videos:       map[string]*archive.Video{},
		playlistDocs: map[string]*archive.Playlist{},
		lastComment:  map[string]time.Time{},
	}

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(archive.VideosTSV)))
	switch {
	case os.IsNotExist(err):
		// cold start
	case err != nil:
		return nil, fmt.Errorf("read videos index: %w", err)
	default:
		rows, err := archive.DecodeVideosTSV(data)
		if err != nil {
			return nil, fmt.Errorf("parse videos index: %w", err)
		}
		for _, r := range rows {
			s.rows[r.VideoID] = r
		}
	}

	data, err = os.ReadFile(filepath.Join(root, filepath.FromSlash(archive.PlaylistsTSV)))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read playlists index: %w", err)
	default:
		rows, err := archive.DecodePlaylistsTSV(data)
		if err != nil {
			return nil, fmt.Errorf("parse playlists index: %w", err)
		}
		for _, r := range rows {
			s.playlists[r.PlaylistID] = r
		}
	}

	logger := log.WithComponent("state")
	logger.Debug().
		Int("videos", len(s.rows)).
		Int("playlists", len(s.playlists)).
		Str(log.FieldPath, root).
		Msg("derived archive state")
	return s, nil
}

// Known reports whether the video id is already archived.
func (s *Snapshot) Known(id string) bool {
	_, ok := s.rows[id]
	return ok
}

// KnownCount returns the number of archived videos.
func (s *Snapshot) KnownCount() int { return len(s.rows) }

// Row returns the index row for a video id.
func (s *Snapshot) Row(id string) (archive.VideoRow, bool) {
	r, ok := s.rows[id]
	return r, ok
}

// Path returns the repo-relative directory recorded for a video, or ""
// when unknown. Pattern drift is the difference between this and a
// fresh pattern expansion.
func (s *Snapshot) Path(id string) string {
	return s.rows[id].Path
}

// VideoIDs returns every archived video id in stable order.
func (s *Snapshot) VideoIDs() []string {
	return slices.Sorted(maps.Keys(s.rows))
}

// PathClaims returns the reverse directory → video id index. The
// scheduler seeds its collision guard with it so a fresh pattern
// expansion never lands in a directory another video owns.
func (s *Snapshot) PathClaims() map[string]string {
	claims := make(map[string]string, len(s.rows))
	for id, r := range s.rows {
		if r.Path != "" {
			claims[r.Path] = id
		}
	}
	return claims
}

// LatestPublished returns the newest publication instant recorded for
// a channel, keyed by the channel column of videos.tsv. Zero when the
// channel has no archived videos; incremental enumeration then scans
// the full upload history.
func (s *Snapshot) LatestPublished(channel string) time.Time {
	var latest time.Time
	for _, r := range s.rows {
		if r.Channel != channel {
			continue
		}
		if r.Published.After(latest) {
			latest = r.Published
		}
	}
	return latest
}

// ChannelVideoIDs returns the archived ids attributed to a channel,
// newest first. Social mode iterates these instead of enumerating the
// remote.
func (s *Snapshot) ChannelVideoIDs(channel string) []string {
	rows := make([]archive.VideoRow, 0)
	for _, r := range s.rows {
		if r.Channel == channel {
			rows = append(rows, r)
		}
	}
	archive.SortVideoRows(rows)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.VideoID
	}
	return ids
}

// Video loads the full metadata record for an archived id, caching the
// decode. Counts, availability, and channel id come from here when the
// index row is not enough.
func (s *Snapshot) Video(id string) (*archive.Video, error) {
	if v, ok := s.videos[id]; ok {
		return v, nil
	}
	row, ok := s.rows[id]
	if !ok || row.Path == "" {
		return nil, fmt.Errorf("video %s not in index", id)
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(row.Path), archive.MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata for %s: %w", id, err)
	}
	v, err := archive.DecodeMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", id, err)
	}
	s.videos[id] = v
	return v, nil
}

// Unavailable reports whether an archived id is recorded as anything
// but publicly fetchable. Unknown ids and unreadable records count as
// available so the pipeline probes them.
func (s *Snapshot) Unavailable(id string) bool {
	if !s.Known(id) {
		return false
	}
	v, err := s.Video(id)
	if err != nil {
		return false
	}
	return !v.Availability.Public()
}

// LastCommentInstant returns the newest archived comment timestamp for
// a video, zero when none are stored. Annexed comment payloads whose
// content is not present locally read as zero, which makes the next
// fetch start from the beginning; the merge deduplicates.
func (s *Snapshot) LastCommentInstant(id string) time.Time {
	if t, ok := s.lastComment[id]; ok {
		return t
	}
	var latest time.Time
	if row, ok := s.rows[id]; ok && row.Path != "" {
		data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(row.Path), archive.CommentsFile))
		if err == nil {
			latest = archive.LatestCommentInstant(data)
		}
	}
	s.lastComment[id] = latest
	return latest
}

// Counts returns the social counters recorded in the index row.
func (s *Snapshot) Counts(id string) (views, likes, comments int64, ok bool) {
	r, found := s.rows[id]
	if !found {
		return 0, 0, 0, false
	}
	return r.Views, r.Likes, r.Comments, true
}

// PlaylistRow returns the index row for a playlist id.
func (s *Snapshot) PlaylistRow(id string) (archive.PlaylistRow, bool) {
	r, ok := s.playlists[id]
	return r, ok
}

// PlaylistIDs returns every archived playlist id in stable order. The
// checkpoint symlink rebuild iterates these.
func (s *Snapshot) PlaylistIDs() []string {
	return slices.Sorted(maps.Keys(s.playlists))
}

// PlaylistPath returns the repo-relative playlist directory recorded
// in the index, or "".
func (s *Snapshot) PlaylistPath(id string) string {
	return s.playlists[id].Path
}

// Playlist loads the stored playlist record for an archived id,
// caching the decode. Social mode reads membership from here instead
// of enumerating the remote.
func (s *Snapshot) Playlist(id string) (*archive.Playlist, error) {
	if p, ok := s.playlistDocs[id]; ok {
		return p, nil
	}
	row, ok := s.playlists[id]
	if !ok || row.Path == "" {
		return nil, fmt.Errorf("playlist %s not in index", id)
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(row.Path), archive.PlaylistFile))
	if err != nil {
		return nil, fmt.Errorf("read playlist %s: %w", id, err)
	}
	p, err := archive.DecodePlaylist(data)
	if err != nil {
		return nil, fmt.Errorf("playlist %s: %w", id, err)
	}
	s.playlistDocs[id] = p
	return p, nil
}

// Record folds a freshly written video into the snapshot so later
// decisions in the same run see it. Called by the scheduler after the
// per-video files are on disk.
func (s *Snapshot) Record(v *archive.Video) {
	s.rows[v.VideoID] = archive.RowFromVideo(v)
	s.videos[v.VideoID] = v
}

// SetPath records a pattern-drift rename. The cached metadata decode
// is dropped because the record's path field changed on disk.
func (s *Snapshot) SetPath(id, newPath string) {
	row, ok := s.rows[id]
	if !ok {
		return
	}
	row.Path = newPath
	s.rows[id] = row
	delete(s.videos, id)
}

// SetLastComment updates the comment cursor after a comment write.
func (s *Snapshot) SetLastComment(id string, t time.Time) {
	s.lastComment[id] = t
}

// RecordPlaylist folds a freshly written playlist into the snapshot.
// Total duration sums only items that are archived; unarchived items
// contribute nothing, same as in the exporter.
func (s *Snapshot) RecordPlaylist(p *archive.Playlist) {
	var total int64
	for _, id := range p.Items {
		total += s.rows[id].Duration
	}
	s.playlistDocs[p.PlaylistID] = p
	s.playlists[p.PlaylistID] = archive.PlaylistRow{
		Title:         p.Title,
		Channel:       p.ChannelName,
		VideoCount:    int64(len(p.Items)),
		TotalDuration: total,
		LastUpdated:   p.FetchedAt,
		Path:          p.Path,
		PlaylistID:    p.PlaylistID,
	}
}
