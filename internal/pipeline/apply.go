// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/con-org/annextube-sub000/internal/annex"
	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/log"
	"github.com/con-org/annextube-sub000/internal/quota"
	"github.com/con-org/annextube-sub000/internal/youtube"
)

// applyUnit lands one fetched unit in the archive. It runs on the
// scheduler goroutine only. A non-nil return aborts the run; per-video
// failures are logged and absorbed.
func (s *Scheduler) applyUnit(ctx context.Context, u *unit, prog *progress) error {
	ctx = log.ContextWithVideoID(ctx, u.id)
	logger := log.WithComponentFromContext(ctx, "pipeline")

	if errors.Is(u.err, youtube.ErrQuotaExceeded) {
		// The prefetched failure may predate a suspension that already
		// happened; refetching serially disambiguates.
		u.err = s.withQuota(ctx, prog, func() error {
			return s.fetchUnit(ctx, u)
		})
		if errors.Is(u.err, quota.ErrGaveUp) || (u.err != nil && ctx.Err() != nil) {
			return u.err
		}
	}
	if u.err == nil && s.awaitRecovery {
		s.recovered()
	}

	if u.err != nil {
		logger.Warn().Err(u.err).Str(log.FieldVideoID, u.id).Msg("video skipped after fetch failure")
		s.stats.Processed++
		s.stats.Failed++
		s.sinceCheckpoint++
		videosProcessed.WithLabelValues("failed").Inc()
		return nil
	}

	now := time.Now().UTC()
	if u.missing {
		return s.applyMissing(ctx, u, prog, now)
	}

	var prev *archive.Video
	if s.snap.Known(u.id) {
		if v, err := s.snap.Video(u.id); err == nil {
			prev = v
		}
	}

	fresh := u.video
	if fresh == nil {
		// Metadata fetching is off: new videos get a stub-derived
		// record, known ones only move their social payloads.
		if u.act != actionNew {
			return s.applySocialOnly(ctx, u)
		}
		fresh = videoFromStub(u.stub, u.id, now)
	}

	if u.act == actionNew && u.wantMetadata && !s.admitVideo(fresh) {
		logger.Debug().Str(log.FieldVideoID, u.id).Msg("video filtered out")
		prog.plannedNew--
		s.stats.Skipped++
		videosProcessed.WithLabelValues("filtered").Inc()
		return nil
	}

	dir, err := s.resolveDir(ctx, u.id, fresh)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldVideoID, u.id).Msg("video skipped")
		s.stats.Processed++
		s.stats.Failed++
		s.sinceCheckpoint++
		videosProcessed.WithLabelValues("failed").Inc()
		return nil
	}

	v := fresh
	v.Path = dir
	v.UpdatedAt = now
	if v.SourceURL == "" {
		v.SourceURL = archive.WatchURL(u.id)
	}
	if prev != nil {
		v.FirstFetched = prev.FirstFetched
		v.DownloadStatus = prev.DownloadStatus
		v.Unknown = prev.Unknown
	}
	if v.FirstFetched.IsZero() {
		v.FirstFetched = now
	}
	if v.DownloadStatus == "" {
		v.DownloadStatus = archive.DownloadMetadataOnly
	}

	if u.wantCaptions && u.captions != nil {
		langs := make([]string, 0, len(u.captions))
		auto := false
		for _, tr := range u.captions {
			if tr.AutoGenerated {
				auto = true
				continue
			}
			langs = append(langs, tr.Language)
		}
		slices.Sort(langs)
		v.CaptionsAvailable = slices.Compact(langs)
		v.HasAutoCaptions = auto
	} else if prev != nil {
		v.CaptionsAvailable = prev.CaptionsAvailable
		v.HasAutoCaptions = prev.HasAutoCaptions
	}

	wrote := false

	if len(u.thumb) > 0 {
		rel := dir + "/" + archive.ThumbnailFile(u.thumbExt)
		if err := s.store.AtomicWrite(ctx, rel, u.thumb); err != nil {
			return err
		}
		if err := s.store.RegisterURL(ctx, rel, v.ThumbnailURL, annex.URLOptions{
			Tags: entryTags(v, archive.TagFiletypeThumbnail),
		}); err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, rel).Msg("thumbnail URL not registered")
		}
		wrote = true
	}

	if len(u.captions) > 0 {
		n, err := s.writeCaptions(ctx, dir, u.captions, now)
		if err != nil {
			return err
		}
		wrote = wrote || n > 0
	}

	if len(u.comments) > 0 {
		if err := s.writeComments(ctx, dir, u); err != nil {
			return err
		}
		wrote = true
	} else if u.commentsDisabled {
		logger.Debug().Msg("comments disabled upstream")
	}

	videoRel := dir + "/" + archive.VideoFile("mp4")
	if u.act == actionNew || v.DownloadStatus == archive.DownloadMetadataOnly {
		if err := s.store.RegisterURL(ctx, videoRel, v.SourceURL, annex.URLOptions{
			Relaxed: true,
			Tags:    entryTags(v, archive.TagFiletypeVideo),
		}); err != nil {
			return fmt.Errorf("register %s: %w", videoRel, err)
		}
		v.DownloadStatus = archive.DownloadTrackedURLOnly
	}
	if s.opts.DownloadVideos && v.DownloadStatus != archive.DownloadDownloaded {
		if err := s.store.Materialize(ctx, videoRel); err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, videoRel).Msg("video download failed; URL stays tracked")
		} else {
			v.DownloadStatus = archive.DownloadDownloaded
		}
	}

	// The metadata record lands last: its presence marks the video as
	// archived, so a crash mid-item never leaves a half-claimed entry.
	payload, err := archive.EncodeMetadata(v)
	if err != nil {
		logger.Error().Err(err).Msg("metadata not encodable; video skipped")
		s.stats.Processed++
		s.stats.Failed++
		s.sinceCheckpoint++
		videosProcessed.WithLabelValues("failed").Inc()
		return nil
	}
	if err := s.store.AtomicWrite(ctx, dir+"/"+archive.MetadataFile, payload); err != nil {
		return err
	}

	changed := prev != nil && (archive.ContentChanged(prev, v) || wrote)
	s.snap.Record(v)
	s.stats.Processed++
	s.sinceCheckpoint++
	switch {
	case u.act == actionNew:
		s.stats.New++
		prog.archivedRun++
		videosProcessed.WithLabelValues("new").Inc()
		logger.Info().Str(log.FieldAction, "archived").Str(log.FieldPath, dir).Msg("video archived")
	case changed:
		s.stats.Refreshed++
		videosProcessed.WithLabelValues("refreshed").Inc()
		logger.Debug().Str(log.FieldAction, "refreshed").Msg("video refreshed")
	default:
		s.stats.Unchanged++
		videosProcessed.WithLabelValues("unchanged").Inc()
	}
	return nil
}

// applyMissing handles ids the metadata endpoint no longer returns:
// known videos flip to removed, unknown ones get a placeholder record
// so the id keeps a home in the archive.
func (s *Scheduler) applyMissing(ctx context.Context, u *unit, prog *progress, now time.Time) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")

	if s.snap.Known(u.id) {
		prev, err := s.snap.Video(u.id)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldVideoID, u.id).Msg("record unreadable; availability not updated")
			s.stats.Processed++
			s.stats.Failed++
			s.sinceCheckpoint++
			videosProcessed.WithLabelValues("failed").Inc()
			return nil
		}
		v := prev.Clone()
		if v.Availability.Public() {
			v.Availability = archive.AvailabilityRemoved
		}
		v.UpdatedAt = now
		payload, err := archive.EncodeMetadata(v)
		if err != nil {
			return err
		}
		if err := s.store.AtomicWrite(ctx, v.Path+"/"+archive.MetadataFile, payload); err != nil {
			return err
		}
		s.snap.Record(v)
		s.stats.Processed++
		s.stats.Placeholders++
		s.sinceCheckpoint++
		videosProcessed.WithLabelValues("placeholder").Inc()
		logger.Info().Str(log.FieldVideoID, u.id).Str("availability", string(v.Availability)).Msg("video gone upstream")
		return nil
	}

	v := archive.Placeholder(u.id, archive.WatchURL(u.id), archive.AvailabilityRemoved, now)
	if u.stub.Title != "" {
		v.Title = u.stub.Title
	}
	v.Published = u.stub.Published
	v.ChannelID = u.stub.ChannelID
	v.ChannelName = u.stub.ChannelName

	dir, err := s.resolveDir(ctx, u.id, v)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldVideoID, u.id).Msg("placeholder skipped")
		s.stats.Processed++
		s.stats.Failed++
		s.sinceCheckpoint++
		videosProcessed.WithLabelValues("failed").Inc()
		return nil
	}
	v.Path = dir
	payload, err := archive.EncodeMetadata(v)
	if err != nil {
		return err
	}
	if err := s.store.AtomicWrite(ctx, dir+"/"+archive.MetadataFile, payload); err != nil {
		return err
	}
	s.snap.Record(v)
	s.stats.Processed++
	s.stats.Placeholders++
	s.sinceCheckpoint++
	prog.archivedRun++
	videosProcessed.WithLabelValues("placeholder").Inc()
	logger.Info().Str(log.FieldVideoID, u.id).Str(log.FieldPath, dir).Msg("placeholder archived")
	return nil
}

// applySocialOnly lands comment payloads for a known video when
// metadata fetching is disabled.
func (s *Scheduler) applySocialOnly(ctx context.Context, u *unit) error {
	dir := s.snap.Path(u.id)
	if dir == "" {
		return nil
	}
	wrote := false
	if len(u.comments) > 0 {
		if err := s.writeComments(ctx, dir, u); err != nil {
			return err
		}
		wrote = true
	}
	if len(u.captions) > 0 {
		n, err := s.writeCaptions(ctx, dir, u.captions, time.Now().UTC())
		if err != nil {
			return err
		}
		wrote = wrote || n > 0
	}
	s.stats.Processed++
	s.sinceCheckpoint++
	if wrote {
		s.stats.Refreshed++
		videosProcessed.WithLabelValues("refreshed").Inc()
	} else {
		s.stats.Unchanged++
		videosProcessed.WithLabelValues("unchanged").Inc()
	}
	return nil
}

// resolveDir returns the directory a video's files belong in, moving
// the existing directory when the pattern expansion drifted. A failed
// move keeps the old path and fails the item.
func (s *Scheduler) resolveDir(ctx context.Context, id string, v *archive.Video) (string, error) {
	rel, err := s.opts.Pattern.Expand(v)
	if err != nil {
		return "", err
	}
	want := archive.VideoDir(rel)
	cur := s.snap.Path(id)
	if cur == want {
		return cur, nil
	}
	if owner, taken := s.claims[want]; taken && owner != id {
		want += "_" + id
		if owner2, taken2 := s.claims[want]; taken2 && owner2 != id {
			return "", fmt.Errorf("path %s already claimed by %s", want, owner2)
		}
		if cur == want {
			return cur, nil
		}
	}
	if cur == "" {
		s.claims[want] = id
		return want, nil
	}

	if err := s.store.Move(ctx, cur, want); err != nil {
		return "", fmt.Errorf("move %s: %w", cur, err)
	}
	delete(s.claims, cur)
	s.claims[want] = id
	s.snap.SetPath(id, want)
	s.stats.Moved++
	logger := log.WithComponentFromContext(ctx, "pipeline")
	logger.Info().
		Str(log.FieldVideoID, id).
		Str(log.FieldOldPath, cur).
		Str(log.FieldNewPath, want).
		Msg("video moved")
	return want, nil
}

// writeCaptions lands fetched VTT payloads and refreshes the per-video
// track manifest. Tracks without payload were not selected and keep
// whatever is already stored.
func (s *Scheduler) writeCaptions(ctx context.Context, dir string, tracks []youtube.Caption, now time.Time) (int, error) {
	stored := make(map[string]archive.CaptionTrack)
	manifestRel := dir + "/" + archive.CaptionsManifest
	if data, err := os.ReadFile(filepath.Join(s.store.Root(), filepath.FromSlash(manifestRel))); err == nil {
		if existing, err := archive.DecodeCaptions(data); err == nil {
			for _, tr := range existing {
				stored[tr.Path] = tr
			}
		}
	}

	written := 0
	for _, tr := range tracks {
		if tr.VTT == nil {
			continue
		}
		lang := tr.Language
		if tr.AutoGenerated {
			lang += "-auto"
		}
		name := archive.CaptionFile(lang)
		if err := s.store.AtomicWrite(ctx, dir+"/"+name, tr.VTT); err != nil {
			return written, err
		}
		stored[name] = archive.CaptionTrack{
			Language:      tr.Language,
			AutoGenerated: tr.AutoGenerated,
			Path:          name,
			FetchedAt:     now,
		}
		written++
	}
	if written == 0 {
		return 0, nil
	}

	all := make([]archive.CaptionTrack, 0, len(stored))
	for _, tr := range stored {
		all = append(all, tr)
	}
	payload, err := archive.EncodeCaptions(all)
	if err != nil {
		return written, err
	}
	return written, s.store.AtomicWrite(ctx, manifestRel, payload)
}

// writeComments merges fresh comments into the stored thread set and
// tracks the newest instant for the next incremental fetch.
func (s *Scheduler) writeComments(ctx context.Context, dir string, u *unit) error {
	rel := dir + "/" + archive.CommentsFile
	var existing []archive.Comment
	if data, err := os.ReadFile(filepath.Join(s.store.Root(), filepath.FromSlash(rel))); err == nil {
		if have, err := archive.DecodeComments(data); err == nil {
			existing = have
		}
	}
	merged := archive.MergeComments(existing, u.comments)
	payload, err := archive.EncodeComments(merged)
	if err != nil {
		return err
	}
	if err := s.store.AtomicWrite(ctx, rel, payload); err != nil {
		return err
	}
	s.snap.SetLastComment(u.id, archive.LatestCommentInstant(payload))
	return nil
}

// entryTags builds the annex metadata attached to URL-backed entries,
// letting operators slice content by channel or date from plain git
// annex queries.
func entryTags(v *archive.Video, filetype string) []string {
	tags := []string{
		"filetype=" + filetype,
		"video_id=" + v.VideoID,
	}
	if v.ChannelName != "" {
		tags = append(tags, "channel="+v.ChannelName)
	}
	if !v.Published.IsZero() {
		tags = append(tags, "published="+v.Published.UTC().Format("2006-01-02"))
	}
	return tags
}
