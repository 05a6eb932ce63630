// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/con-org/annextube-sub000/internal/log"
	"github.com/con-org/annextube-sub000/internal/youtube"
)

// processUnits prefetches payloads through a bounded pool and applies
// completed units in planning order on the calling goroutine. Each
// queued future receives exactly one unit, so draining after an early
// exit leaves no goroutine behind.
func (s *Scheduler) processUnits(ctx context.Context, units []*unit, prog *progress) error {
	if len(units) == 0 {
		return nil
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(pctx)
	g.SetLimit(s.opts.Workers)
	defer func() { _ = g.Wait() }()

	futures := make(chan chan *unit, s.opts.Workers*2)
	go func() {
		defer close(futures)
		for _, u := range units {
			fut := make(chan *unit, 1)
			select {
			case futures <- fut:
			case <-pctx.Done():
				return
			}
			g.Go(func() error {
				u.err = s.fetchUnit(gctx, u)
				fut <- u
				return nil
			})
		}
	}()

	drain := func() {
		cancel()
		for fut := range futures {
			<-fut
		}
	}

	for fut := range futures {
		u := <-fut
		if err := s.applyUnit(ctx, u, prog); err != nil {
			drain()
			return err
		}
		if s.sinceCheckpoint >= s.opts.CheckpointInterval {
			if err := s.checkpoint(ctx, prog); err != nil {
				drain()
				return err
			}
		}
		if s.interrupted() {
			drain()
			return s.stopAtInterrupt(ctx, prog)
		}
	}
	return nil
}

// fetchUnit gathers every payload the unit wants. Quota errors surface
// unretried so the applier can suspend; a disabled comment section is
// recorded rather than failed.
func (s *Scheduler) fetchUnit(ctx context.Context, u *unit) error {
	ctx = log.ContextWithVideoID(ctx, u.id)

	if u.wantMetadata {
		err := s.fetchWithRetry(ctx, "metadata", func() error {
			videos, missing, err := s.remote.FetchVideoMetadata(ctx, []string{u.id})
			if err != nil {
				return err
			}
			u.missing = len(missing) > 0
			if len(videos) > 0 {
				u.video = videos[0]
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
		if u.missing {
			return nil
		}
	}

	if u.wantComments {
		err := s.fetchWithRetry(ctx, "comments", func() error {
			comments, err := s.remote.FetchComments(ctx, u.id, s.opts.CommentsDepth, u.sinceComments)
			if err != nil {
				return err
			}
			u.comments = comments
			return nil
		})
		switch {
		case err == nil:
		case errors.Is(err, youtube.ErrUnavailable):
			u.commentsDisabled = true
		default:
			return fmt.Errorf("comments: %w", err)
		}
	}

	if u.wantCaptions {
		err := s.fetchWithRetry(ctx, "captions", func() error {
			captions, err := s.remote.FetchCaptions(ctx, u.id, s.opts.CaptionLangs, s.opts.AutoCaptions)
			if err != nil {
				return err
			}
			u.captions = captions
			return nil
		})
		if err != nil {
			return fmt.Errorf("captions: %w", err)
		}
	}

	if u.wantThumb && u.video != nil && u.video.ThumbnailURL != "" {
		err := s.fetchWithRetry(ctx, "thumbnail", func() error {
			thumb, err := s.remote.DownloadThumbnail(ctx, u.video.ThumbnailURL)
			if err != nil {
				return err
			}
			u.thumb = thumb
			return nil
		})
		switch {
		case err == nil:
			u.thumbExt = thumbExt(u.video.ThumbnailURL)
		case errors.Is(err, youtube.ErrNotFound):
			// Thumbnails rot independently of their videos.
			logger := log.WithComponentFromContext(ctx, "pipeline")
			logger.Debug().Str(log.FieldVideoID, u.id).Msg("thumbnail gone upstream")
		default:
			return fmt.Errorf("thumbnail: %w", err)
		}
	}
	return nil
}

// fetchWithRetry retries transient remote failures with a quadratic
// backoff. Quota exhaustion is never retried here; the scheduler
// handles it by suspending the whole run.
func (s *Scheduler) fetchWithRetry(ctx context.Context, op string, fn func() error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !youtube.Retryable(err) || attempt == maxAttempts {
			return err
		}
		delay := time.Duration(attempt*attempt) * 500 * time.Millisecond
		if ra := youtube.RetryAfter(err); ra > 0 {
			delay = ra
		}
		logger := log.WithComponentFromContext(ctx, "pipeline")
		logger.Warn().
			Err(err).
			Str(log.FieldEndpoint, op).
			Int(log.FieldAttempt, attempt).
			Dur("backoff", delay).
			Msg("remote call failed; retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func thumbExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "jpg"
	}
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	if ext == "" {
		return "jpg"
	}
	return strings.ToLower(ext)
}
