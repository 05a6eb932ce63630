// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/discovery"
	"github.com/con-org/annextube-sub000/internal/paths"
	"github.com/con-org/annextube-sub000/internal/youtube"
)

type action int

const (
	actionNew action = iota
	actionRefresh
)

// unit is one video's worth of work: planned by the scheduler, fetched
// by a pool worker, applied back on the scheduler goroutine.
type unit struct {
	id   string
	stub youtube.Stub
	act  action

	wantMetadata bool
	wantComments bool
	wantCaptions bool
	wantThumb    bool

	sinceComments time.Time

	// Filled by the worker.
	video            *archive.Video
	missing          bool
	comments         []archive.Comment
	commentsDisabled bool
	captions         []youtube.Caption
	thumb            []byte
	thumbExt         string
	err              error
}

// progress feeds the n/N figures in commit messages: archived counts
// videos of this source present in the archive, total adds what the
// current run still plans to add.
type progress struct {
	title string
	kind  discovery.Kind

	archivedBefore int
	archivedRun    int
	plannedNew     int
}

func (p *progress) archived() int { return p.archivedBefore + p.archivedRun }
func (p *progress) total() int    { return p.archivedBefore + p.plannedNew }

// syncUploads enumerates a channel's uploads according to the mode and
// processes the planned units.
func (s *Scheduler) syncUploads(ctx context.Context, tgt discovery.Target, prog *progress) error {
	if s.opts.Mode == ModePlaylists {
		return nil
	}

	var units []*unit
	if s.opts.Mode == ModeSocial {
		for _, id := range s.snap.ChannelVideoIDs(tgt.ChannelName) {
			if u := s.planKnown(id); u != nil {
				units = append(units, u)
			}
		}
		return s.processUnits(ctx, units, prog)
	}

	var cutoff time.Time
	if s.opts.Mode == ModeVideosIncremental {
		cutoff = s.snap.LatestPublished(tgt.ChannelName)
	}

	newPlanned := 0
	err := s.withQuota(ctx, prog, func() error {
		return s.remote.ListChannelVideos(ctx, tgt.UploadsPlaylistID, cutoff, func(st youtube.Stub) error {
			u := s.planStub(st, prog)
			if u == nil {
				return nil
			}
			units = append(units, u)
			if u.act == actionNew {
				newPlanned++
				if s.opts.Limit > 0 && newPlanned >= s.opts.Limit {
					return youtube.ErrStop
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	return s.processUnits(ctx, units, prog)
}

// syncPlaylist refreshes one playlist's record and, outside playlists
// mode, archives or refreshes its members.
func (s *Scheduler) syncPlaylist(ctx context.Context, tgt discovery.Target, prog *progress) error {
	info := tgt.Playlist

	if s.opts.Mode == ModeSocial {
		stored, err := s.snap.Playlist(info.ID)
		if err != nil {
			// Social mode never enumerates; an unarchived playlist
			// waits for the next incremental run.
			return nil
		}
		var units []*unit
		for _, id := range stored.Items {
			if !s.snap.Known(id) {
				continue
			}
			if u := s.planKnown(id); u != nil {
				units = append(units, u)
			}
		}
		return s.processUnits(ctx, units, prog)
	}

	var stubs []youtube.Stub
	seen := make(map[string]bool)
	err := s.withQuota(ctx, prog, func() error {
		return s.remote.ListPlaylistItems(ctx, info.ID, func(st youtube.Stub) error {
			if st.VideoID == "" || seen[st.VideoID] {
				return nil
			}
			seen[st.VideoID] = true
			stubs = append(stubs, st)
			return nil
		})
	})
	if err != nil {
		return err
	}

	if prog.kind == discovery.KindPlaylist {
		before := 0
		for _, st := range stubs {
			if s.snap.Known(st.VideoID) {
				before++
			}
		}
		prog.archivedBefore = before
	}

	members := make([]string, len(stubs))
	for i, st := range stubs {
		members[i] = st.VideoID
	}
	p := &archive.Playlist{
		PlaylistID:  info.ID,
		Title:       info.Title,
		Description: info.Description,
		ChannelID:   info.ChannelID,
		ChannelName: info.ChannelName,
		Items:       members,
		Path:        s.playlistDir(info),
		FetchedAt:   time.Now().UTC(),
	}
	payload, err := archive.EncodePlaylist(p)
	if err != nil {
		return fmt.Errorf("encode playlist %s: %w", info.ID, err)
	}
	if err := s.store.AtomicWrite(ctx, p.Path+"/"+archive.PlaylistFile, payload); err != nil {
		return err
	}
	s.snap.RecordPlaylist(p)
	s.stats.Playlists++

	if s.opts.Mode == ModePlaylists {
		return nil
	}

	var units []*unit
	newPlanned := 0
	for _, st := range stubs {
		u := s.planStub(st, prog)
		if u == nil {
			continue
		}
		units = append(units, u)
		if u.act == actionNew {
			newPlanned++
			if s.opts.Limit > 0 && newPlanned >= s.opts.Limit {
				break
			}
		}
	}
	return s.processUnits(ctx, units, prog)
}

// syncVideoList archives an explicit id list. Listed videos that are
// already archived are refreshed in every mode: naming a video is an
// explicit request.
func (s *Scheduler) syncVideoList(ctx context.Context, tgt discovery.Target, prog *progress) error {
	if s.opts.Mode == ModePlaylists {
		return nil
	}

	if prog.kind == discovery.KindVideoList {
		before := 0
		for _, id := range tgt.VideoIDs {
			if s.snap.Known(id) {
				before++
			}
		}
		prog.archivedBefore = before
	}

	var units []*unit
	newPlanned := 0
	for _, id := range tgt.VideoIDs {
		if s.touched[id] {
			continue
		}
		if s.snap.Known(id) {
			if u := s.planKnown(id); u != nil {
				units = append(units, u)
			}
			continue
		}
		if s.opts.Mode == ModeSocial {
			continue
		}
		units = append(units, s.newUnit(id, youtube.Stub{VideoID: id}, prog))
		newPlanned++
		if s.opts.Limit > 0 && newPlanned >= s.opts.Limit {
			break
		}
	}
	return s.processUnits(ctx, units, prog)
}

// planStub decides what to do with one enumerated stub. It returns nil
// when the video needs no work in the current mode.
func (s *Scheduler) planStub(st youtube.Stub, prog *progress) *unit {
	id := st.VideoID
	if id == "" || s.touched[id] {
		return nil
	}

	if s.snap.Known(id) {
		if s.snap.Unavailable(id) && s.opts.Mode != ModeAllForce {
			s.stats.Skipped++
			return nil
		}
		switch s.opts.Mode {
		case ModeVideosIncremental, ModePlaylists:
			return nil
		case ModeAllIncremental:
			if st.Published.IsZero() || time.Since(st.Published) > s.opts.SocialWindow {
				return nil
			}
		}
		return s.refreshUnit(id, st)
	}

	if s.opts.Mode == ModeSocial || s.opts.Mode == ModePlaylists {
		return nil
	}
	if !s.dateOK(st.Published) {
		s.stats.Skipped++
		return nil
	}
	return s.newUnit(id, st, prog)
}

// planKnown builds a refresh unit for an archived video from its index
// row, outside any enumeration.
func (s *Scheduler) planKnown(id string) *unit {
	if s.touched[id] {
		return nil
	}
	if s.snap.Unavailable(id) && s.opts.Mode != ModeAllForce {
		s.stats.Skipped++
		return nil
	}
	row, ok := s.snap.Row(id)
	if !ok {
		return nil
	}
	st := youtube.Stub{
		VideoID:     id,
		Title:       row.Title,
		Published:   row.Published,
		ChannelName: row.Channel,
	}
	return s.refreshUnit(id, st)
}

func (s *Scheduler) newUnit(id string, st youtube.Stub, prog *progress) *unit {
	u := &unit{
		id:           id,
		stub:         st,
		act:          actionNew,
		wantMetadata: s.opts.FetchMetadata,
		wantComments: s.opts.CommentsDepth > 0,
		wantCaptions: s.opts.Captions,
		wantThumb:    s.opts.Thumbnails && s.opts.FetchMetadata,
	}
	s.touched[id] = true
	s.stats.Planned++
	prog.plannedNew++
	return u
}

func (s *Scheduler) refreshUnit(id string, st youtube.Stub) *unit {
	u := &unit{
		id:            id,
		stub:          st,
		act:           actionRefresh,
		wantMetadata:  s.opts.FetchMetadata,
		wantComments:  s.opts.CommentsDepth > 0,
		wantCaptions:  s.opts.Captions,
		sinceComments: s.snap.LastCommentInstant(id),
	}
	u.wantThumb = s.opts.Thumbnails && s.opts.FetchMetadata &&
		(s.opts.Mode == ModeAllForce || !s.hasThumbnail(id))
	if !u.wantMetadata && !u.wantComments && !u.wantCaptions && !u.wantThumb {
		return nil
	}
	s.touched[id] = true
	s.stats.Planned++
	return u
}

// playlistDir picks the directory for a playlist record. An archived
// playlist keeps its established directory even when its title drifts;
// new playlists claim a sanitized-title directory, suffixed with the id
// on collision.
func (s *Scheduler) playlistDir(info youtube.PlaylistInfo) string {
	if stored := s.snap.PlaylistPath(info.ID); stored != "" {
		return stored
	}
	name := paths.Sanitize(info.Title)
	if name == "" {
		name = info.ID
	}
	dir := archive.PlaylistDir(name)
	if owner, taken := s.playlistClaims[dir]; taken && owner != info.ID {
		dir = archive.PlaylistDir(name + "_" + info.ID)
	}
	s.playlistClaims[dir] = info.ID
	return dir
}

// admitVideo applies the metadata-dependent archive filters. Filters
// never apply to videos that are already archived.
func (s *Scheduler) admitVideo(v *archive.Video) bool {
	if !s.dateOK(v.Published) {
		return false
	}
	if lic := s.opts.License; lic != "" && !strings.EqualFold(lic, "any") && !strings.EqualFold(v.License, lic) {
		return false
	}
	if s.opts.MinDuration > 0 && v.DurationSeconds < int64(s.opts.MinDuration) {
		return false
	}
	if s.opts.MaxDuration > 0 && v.DurationSeconds > int64(s.opts.MaxDuration) {
		return false
	}
	if s.opts.ExcludeShorts && v.IsShort() {
		return false
	}
	return true
}

// dateOK checks the publication window. Unknown publication dates pass
// so placeholders and bare id lists are never dropped here.
func (s *Scheduler) dateOK(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	if !s.opts.DateStart.IsZero() && t.Before(s.opts.DateStart) {
		return false
	}
	if !s.opts.DateEnd.IsZero() && !t.Before(s.opts.DateEnd) {
		return false
	}
	return true
}

func (s *Scheduler) hasThumbnail(id string) bool {
	dir := s.snap.Path(id)
	if dir == "" {
		return false
	}
	entries, err := os.ReadDir(filepath.Join(s.store.Root(), filepath.FromSlash(dir)))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if archive.IsThumbnail(e.Name()) {
			return true
		}
	}
	return false
}

// videoFromStub synthesizes a minimal record when metadata fetching is
// disabled. The stub carries whatever the enumeration endpoint exposed.
func videoFromStub(st youtube.Stub, id string, now time.Time) *archive.Video {
	v := archive.Placeholder(id, archive.WatchURL(id), archive.AvailabilityPublic, now)
	if st.Title != "" {
		v.Title = st.Title
	}
	v.Published = st.Published
	v.ChannelID = st.ChannelID
	v.ChannelName = st.ChannelName
	return v
}
