// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"fmt"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/log"
)

// reconcilePaths moves every archived video whose directory no longer
// matches the configured pattern, then commits the reorganization on
// its own. Running before any remote work means enumeration cutoffs
// and collision claims see settled paths.
func (s *Scheduler) reconcilePaths(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")

	// Index rows carry everything the default placeholders need; only
	// channel_id forces the full record.
	needsRecord := s.opts.Pattern.Uses("channel_id")

	moved := 0
	for _, id := range s.snap.VideoIDs() {
		row, ok := s.snap.Row(id)
		if !ok || row.Path == "" {
			continue
		}
		v := &archive.Video{
			VideoID:     id,
			Title:       row.Title,
			ChannelName: row.Channel,
			Published:   row.Published,
		}
		if needsRecord {
			full, err := s.snap.Video(id)
			if err != nil {
				logger.Warn().Err(err).Str(log.FieldVideoID, id).Msg("record unreadable; keeping current path")
				continue
			}
			v = full
		}
		rel, err := s.opts.Pattern.Expand(v)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldVideoID, id).Msg("pattern expansion failed; keeping current path")
			continue
		}
		want := archive.VideoDir(rel)
		if want == row.Path {
			continue
		}
		if owner, taken := s.claims[want]; taken && owner != id {
			want += "_" + id
			if owner2, taken2 := s.claims[want]; taken2 && owner2 != id {
				continue
			}
			if want == row.Path {
				continue
			}
		}
		if err := s.store.Move(ctx, row.Path, want); err != nil {
			logger.Error().Err(err).
				Str(log.FieldVideoID, id).
				Str(log.FieldOldPath, row.Path).
				Str(log.FieldNewPath, want).
				Msg("move failed; keeping current path")
			continue
		}
		delete(s.claims, row.Path)
		s.claims[want] = id
		s.snap.SetPath(id, want)

		if full, err := s.snap.Video(id); err == nil {
			upd := full.Clone()
			upd.Path = want
			payload, err := archive.EncodeMetadata(upd)
			if err == nil {
				if err := s.store.AtomicWrite(ctx, want+"/"+archive.MetadataFile, payload); err != nil {
					return err
				}
				s.snap.Record(upd)
			}
		} else {
			logger.Warn().Err(err).Str(log.FieldVideoID, id).Msg("record not rewritten after move")
		}

		moved++
		s.stats.Moved++
		logger.Info().
			Str(log.FieldVideoID, id).
			Str(log.FieldOldPath, row.Path).
			Str(log.FieldNewPath, want).
			Msg("video moved")
	}

	if moved == 0 {
		return nil
	}
	return s.commitTree(ctx, fmt.Sprintf("Reorganize archive (%d moves)", moved))
}
