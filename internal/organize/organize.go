// SPDX-License-Identifier: MIT

// Package organize materializes playlists as directories of ordered
// symlinks into the canonical video tree. Links carry a zero-padded
// position prefix; the prefix is the video's playlist position, so
// numbers stay stable when unarchived members leave gaps.
package organize

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/fsutil"
	"github.com/con-org/annextube-sub000/internal/log"
)

// ErrPrefixOverflow marks a playlist whose member count does not fit
// the configured prefix width. It is a configuration error: widen
// organization.playlist_prefix_width.
var ErrPrefixOverflow = errors.New("playlist prefix width exhausted")

// Options control link naming.
type Options struct {
	// Width of the zero-padded position prefix. Default 4.
	Width int
	// Separator between prefix and video directory name. Default "_".
	Separator string
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 4
	}
	if o.Separator == "" {
		o.Separator = "_"
	}
	return o
}

// Rebuild recreates the symlinks of one playlist directory from
// scratch: every existing link is removed, then members are linked in
// playlist order. Members whose video directory cannot be resolved or
// does not exist yet are skipped; they appear on a later pass.
// Non-link entries (playlist.json) are left alone. Returns the number
// of links created.
func Rebuild(root string, p *archive.Playlist, resolve func(videoID string) string, opts Options) (int, error) {
	opts = opts.withDefaults()
	logger := log.WithComponent("organize")

	limit := 1
	for i := 0; i < opts.Width; i++ {
		limit *= 10
	}
	if len(p.Items) >= limit {
		return 0, fmt.Errorf("playlist %q has %d members but width %d allows at most %d; raise organization.playlist_prefix_width: %w",
			p.Title, len(p.Items), opts.Width, limit-1, ErrPrefixOverflow)
	}

	dirAbs, err := fsutil.ConfineRelPath(root, p.Path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dirAbs, 0o755); err != nil {
		return 0, fmt.Errorf("create playlist dir: %w", err)
	}

	entries, err := os.ReadDir(dirAbs)
	if err != nil {
		return 0, fmt.Errorf("read playlist dir: %w", err)
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if err := os.Remove(filepath.Join(dirAbs, e.Name())); err != nil {
			return 0, fmt.Errorf("remove stale link: %w", err)
		}
	}

	// Link targets are relative so the archive can be moved or cloned.
	upward := strings.Repeat("../", strings.Count(p.Path, "/")+1)

	created, skipped := 0, 0
	for pos, id := range p.Items {
		videoRel := resolve(id)
		if videoRel == "" {
			skipped++
			continue
		}
		videoAbs, err := fsutil.ConfineRelPath(root, videoRel)
		if err != nil {
			return created, err
		}
		if st, err := os.Stat(videoAbs); err != nil || !st.IsDir() {
			skipped++
			continue
		}

		name := fmt.Sprintf("%0*d%s%s", opts.Width, pos+1, opts.Separator, filepath.Base(videoAbs))
		target := filepath.FromSlash(upward + videoRel)
		if err := os.Symlink(target, filepath.Join(dirAbs, name)); err != nil {
			return created, fmt.Errorf("link %s: %w", name, err)
		}
		created++
	}

	logger.Debug().
		Str(log.FieldPath, p.Path).
		Int("links", created).
		Int("skipped", skipped).
		Msg("playlist links rebuilt")
	return created, nil
}
