// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/con-org/annextube-sub000/internal/annex"
	"github.com/con-org/annextube-sub000/internal/discovery"
	"github.com/con-org/annextube-sub000/internal/export"
	"github.com/con-org/annextube-sub000/internal/log"
	"github.com/con-org/annextube-sub000/internal/organize"
	"github.com/con-org/annextube-sub000/internal/quota"
	"github.com/con-org/annextube-sub000/internal/state"
	"github.com/con-org/annextube-sub000/internal/youtube"
)

// Scheduler owns one sync run. All writes to the store happen on the
// goroutine calling Run; the worker pool only fetches.
type Scheduler struct {
	remote youtube.Remote
	store  annex.Store
	waiter QuotaWaiter
	opts   Options

	snap     *state.Snapshot
	exporter *export.Exporter

	// claims map directory paths to the video or playlist id that owns
	// them, so colliding expansions get deterministic suffixes.
	claims         map[string]string
	playlistClaims map[string]string

	// touched dedupes videos across targets and sources within a run.
	touched map[string]bool

	stats           Stats
	sinceCheckpoint int
	awaitRecovery   bool
}

// New builds a Scheduler. The waiter may be nil when quota suspension
// should fail the run immediately.
func New(remote youtube.Remote, store annex.Store, waiter QuotaWaiter, opts Options) (*Scheduler, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Scheduler{remote: remote, store: store, waiter: waiter, opts: opts}, nil
}

// Run syncs every source in order and returns run statistics alongside
// any error. Source failures are collected and do not stop later
// sources; interruption, quota give-up, and store failures do.
func (s *Scheduler) Run(ctx context.Context, sources []discovery.Source) (*Stats, error) {
	start := time.Now()
	s.stats = Stats{
		RunID:     uuid.NewString(),
		Mode:      s.opts.Mode,
		StartedAt: start,
		Sources:   len(sources),
	}
	defer func() { s.stats.Duration = time.Since(start) }()

	ctx = log.ContextWithRunID(ctx, s.stats.RunID)
	logger := log.WithComponentFromContext(ctx, "pipeline")
	logger.Info().
		Str(log.FieldMode, string(s.opts.Mode)).
		Int("sources", len(sources)).
		Msg("sync run started")

	snap, err := state.Derive(s.store.Root())
	if err != nil {
		return &s.stats, fmt.Errorf("derive state: %w", err)
	}
	s.snap = snap
	s.exporter = export.New(s.store)
	s.claims = snap.PathClaims()
	s.playlistClaims = make(map[string]string)
	for _, id := range snap.PlaylistIDs() {
		if p := snap.PlaylistPath(id); p != "" {
			s.playlistClaims[p] = id
		}
	}
	s.touched = make(map[string]bool)
	s.sinceCheckpoint = 0

	if err := s.reconcilePaths(ctx); err != nil {
		return &s.stats, err
	}

	var errs []error
	for _, src := range sources {
		if s.interrupted() {
			s.stats.Interrupted = true
			errs = append(errs, ErrInterrupted)
			break
		}
		err := s.syncSource(log.ContextWithSource(ctx, src.Label()), src)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if errors.Is(err, ErrInterrupted) || errors.Is(err, quota.ErrGaveUp) || ctx.Err() != nil {
			break
		}
		logger.Error().Err(err).Str(log.FieldSource, src.Label()).Msg("source failed")
	}

	logger.Info().
		Int(log.FieldProcessed, s.stats.Processed).
		Int(log.FieldTotal, s.stats.Planned).
		Int("new", s.stats.New).
		Int("refreshed", s.stats.Refreshed).
		Int("placeholders", s.stats.Placeholders).
		Int("failed", s.stats.Failed).
		Int("commits", s.stats.Commits).
		Bool("interrupted", s.stats.Interrupted).
		Msg("sync run finished")
	return &s.stats, errors.Join(errs...)
}

// syncSource expands one configured source and works through its
// targets. The source's tree state is committed even when individual
// targets fail.
func (s *Scheduler) syncSource(ctx context.Context, src discovery.Source) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")
	prog := &progress{title: src.Label(), kind: src.Kind}

	var exp *discovery.Expansion
	err := s.withQuota(ctx, prog, func() error {
		var err error
		exp, err = discovery.Expand(ctx, s.remote, src)
		return err
	})
	if err != nil {
		return fmt.Errorf("expand %s: %w", src.Label(), err)
	}
	prog.title = exp.Title
	if src.Kind == discovery.KindChannel {
		prog.archivedBefore = len(s.snap.ChannelVideoIDs(exp.Title))
	}

	logger.Info().
		Str(log.FieldSource, exp.Title).
		Str("kind", string(src.Kind)).
		Int("targets", len(exp.Targets)).
		Msg("source expanded")

	var skipped []error
	for _, tgt := range exp.Targets {
		if s.interrupted() {
			return s.stopAtInterrupt(ctx, prog)
		}
		var err error
		switch tgt.Kind {
		case discovery.TargetUploads:
			err = s.syncUploads(ctx, tgt, prog)
		case discovery.TargetPlaylist:
			err = s.syncPlaylist(ctx, tgt, prog)
		case discovery.TargetVideos:
			err = s.syncVideoList(ctx, tgt, prog)
		}
		if err == nil {
			continue
		}
		if targetSkippable(err) {
			logger.Warn().Err(err).Str(log.FieldSource, prog.title).Msg("target skipped")
			skipped = append(skipped, err)
			continue
		}
		if !errors.Is(err, ErrInterrupted) && !errors.Is(err, quota.ErrGaveUp) && ctx.Err() == nil {
			s.bestEffortCheckpoint(ctx, prog)
		}
		return err
	}

	if err := s.commitSource(ctx, prog); err != nil {
		return err
	}
	return errors.Join(skipped...)
}

// targetSkippable reports whether a target failure came from the remote
// side and should not abort the run. Local failures are fatal.
func targetSkippable(err error) bool {
	return errors.Is(err, youtube.ErrNotFound) ||
		errors.Is(err, youtube.ErrUnavailable) ||
		errors.Is(err, youtube.ErrMalformed) ||
		errors.Is(err, youtube.ErrTransient) ||
		errors.Is(err, youtube.ErrRateLimited)
}

// withQuota runs op, committing progress and suspending through the
// waiter whenever the remote reports quota exhaustion. op must be
// re-runnable; planning callbacks dedupe on the touched set so a
// repeated listing never double-counts.
func (s *Scheduler) withQuota(ctx context.Context, prog *progress, op func() error) error {
	for {
		err := op()
		if err == nil {
			if s.awaitRecovery {
				s.recovered()
			}
			return nil
		}
		if !errors.Is(err, youtube.ErrQuotaExceeded) {
			return err
		}
		if err := s.quotaPause(ctx, prog); err != nil {
			return err
		}
	}
}

// quotaPause checkpoints whatever has been archived so far, then blocks
// until the waiter declares quota recovered.
func (s *Scheduler) quotaPause(ctx context.Context, prog *progress) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")
	logger.Warn().Str(log.FieldSource, prog.title).Msg("quota exhausted; checkpointing before suspension")

	if err := s.checkpoint(ctx, prog); err != nil {
		return err
	}
	if s.waiter == nil {
		return quota.ErrGaveUp
	}
	if err := s.waiter.Suspend(ctx); err != nil {
		return err
	}
	s.awaitRecovery = true
	return nil
}

func (s *Scheduler) recovered() {
	s.awaitRecovery = false
	if s.waiter != nil {
		s.waiter.Recovered()
	}
}

func (s *Scheduler) interrupted() bool {
	return s.opts.Interrupter != nil && s.opts.Interrupter.Requested()
}

// stopAtInterrupt finalizes a graceful stop. With auto_commit enabled
// the partial batch is checkpointed; otherwise uncommitted work is left
// in the tree for the operator.
func (s *Scheduler) stopAtInterrupt(ctx context.Context, prog *progress) error {
	s.stats.Interrupted = true
	if s.opts.AutoCommitOnInterrupt {
		s.bestEffortCheckpoint(ctx, prog)
	}
	return ErrInterrupted
}

func (s *Scheduler) bestEffortCheckpoint(ctx context.Context, prog *progress) {
	if err := s.checkpoint(ctx, prog); err != nil {
		logger := log.WithComponentFromContext(ctx, "pipeline")
		logger.Error().Err(err).Msg("final checkpoint failed")
	}
}

func (s *Scheduler) checkpoint(ctx context.Context, prog *progress) error {
	msg := fmt.Sprintf("Checkpoint: %s (%d/%d videos)", prog.title, prog.archived(), prog.total())
	return s.commitTree(ctx, msg)
}

func (s *Scheduler) commitSource(ctx context.Context, prog *progress) error {
	msg := fmt.Sprintf("Backup %s: %s (%d/%d videos)", prog.kind, prog.title, prog.archived(), prog.total())
	return s.commitTree(ctx, msg)
}

// commitTree refreshes the derived surfaces and commits the working
// tree. The store suppresses the commit when nothing but volatile
// timestamps changed, so calling this on an idle tree is free.
func (s *Scheduler) commitTree(ctx context.Context, message string) error {
	checkpointsTotal.Inc()

	if err := s.exporter.Export(ctx, export.All()); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := s.relinkPlaylists(ctx); err != nil {
		return err
	}
	if err := s.store.AddAll(ctx); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	committed, err := s.store.Commit(ctx, message)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if committed {
		s.stats.Commits++
		logger := log.WithComponentFromContext(ctx, "pipeline")
		logger.Info().Str("message", message).Msg("committed")
	}
	s.sinceCheckpoint = 0
	return nil
}

// relinkPlaylists rebuilds the symlink directory of every known
// playlist from its stored record. Records that cannot be read are
// skipped; a link-prefix overflow aborts the run so the operator can
// widen the configured prefix.
func (s *Scheduler) relinkPlaylists(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")
	for _, id := range s.snap.PlaylistIDs() {
		p, err := s.snap.Playlist(id)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPlaylistID, id).Msg("playlist record unreadable; links not rebuilt")
			continue
		}
		n, err := organize.Rebuild(s.store.Root(), p, s.snap.Path, s.opts.Organize)
		if err != nil {
			if errors.Is(err, organize.ErrPrefixOverflow) {
				return fmt.Errorf("playlist %s: %w", id, err)
			}
			logger.Warn().Err(err).Str(log.FieldPlaylistID, id).Msg("playlist links not rebuilt")
			continue
		}
		logger.Debug().Str(log.FieldPlaylistID, id).Int("links", n).Msg("playlist links rebuilt")
	}
	return nil
}
