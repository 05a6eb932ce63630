// SPDX-License-Identifier: MIT
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/log"
)

// Watch invalidates the cached stats whenever one of the TSV indices
// changes, and returns when ctx is done. If the watcher cannot be
// established the cache is downgraded to per-request recomputation
// instead of failing the server.
func (s *Server) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.nocache.Store(true)
		s.log.Warn().Err(err).
			Str(log.FieldEvent, "serve.watch_unavailable").
			Msg("index watch unavailable; recomputing stats per request")
		return nil
	}
	defer func() { _ = watcher.Close() }()

	// The index directories may not exist yet on a cold archive; the
	// root watch picks up their creation below.
	videosDir := filepath.Join(s.root, archive.VideosDir)
	playlistsDir := filepath.Join(s.root, archive.PlaylistsDir)
	for _, dir := range []string{s.root, videosDir, playlistsDir} {
		if err := watcher.Add(dir); err != nil {
			s.log.Debug().Err(err).Str(log.FieldPath, dir).Msg("directory not watchable yet")
		}
	}

	indices := map[string]bool{
		filepath.Join(s.root, filepath.FromSlash(archive.VideosTSV)):    true,
		filepath.Join(s.root, filepath.FromSlash(archive.PlaylistsTSV)): true,
		filepath.Join(s.root, filepath.FromSlash(archive.AuthorsTSV)):   true,
	}
	indexDirs := map[string]bool{videosDir: true, playlistsDir: true}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if indexDirs[ev.Name] && ev.Op&fsnotify.Create != 0 {
				if err := watcher.Add(ev.Name); err != nil {
					s.log.Warn().Err(err).Str(log.FieldPath, ev.Name).Msg("watch add failed")
				}
				s.invalidate()
				continue
			}
			if indices[ev.Name] && ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.invalidate()
				s.log.Debug().
					Str(log.FieldEvent, "serve.index_changed").
					Str(log.FieldPath, ev.Name).
					Msg("stats cache invalidated")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("index watcher error")
		}
	}
}

// Run serves addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // annexed media streams at client pace
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Watch(gctx)
	})
	g.Go(func() error {
		s.log.Info().
			Str("addr", addr).
			Str(log.FieldPath, s.root).
			Str(log.FieldEvent, "serve.start").
			Msg("archive server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
