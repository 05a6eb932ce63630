// SPDX-License-Identifier: MIT

// Package annex wraps git and git-annex for the archive repository.
//
// The repository routes small text files (tables, metadata, markdown)
// into regular git blobs and everything else (video containers,
// thumbnails, large comment dumps) into the annex, where entries appear
// as read-only symlinks whose content can be backed by nothing more
// than a recorded source URL.
package annex

import "context"

// URLOptions controls how a source URL is registered against a path.
type URLOptions struct {
	// Relaxed records the URL without contacting it, so the key carries
	// no size or checksum. Used for watch-page URLs that resolve through
	// an external downloader. When false the URL is probed once for its
	// size (addurl --fast).
	Relaxed bool

	// Tags are attached to the annexed entry as metadata.
	Tags []string
}

// DiffFunc reports whether old and new content of relPath are equal for
// commit purposes. Implementations may ignore volatile fields such as
// fetch timestamps.
type DiffFunc func(relPath string, old, new []byte) bool

// Store is the write surface of the archive repository. All paths are
// slash-separated and relative to Root. Every operation is idempotent
// and a failed operation leaves the store usable.
type Store interface {
	// Root returns the absolute path of the archive working tree.
	Root() string

	// Init creates the repository, its annex layer, and the attribute
	// rules that route files between git and the annex. Safe to call on
	// an already initialized archive.
	Init(ctx context.Context) error

	// AtomicWrite replaces the content of relPath. Annexed entries are
	// unlinked, rewritten, and re-added; after a failure either the new
	// content is present or the old entry is intact.
	AtomicWrite(ctx context.Context, relPath string, data []byte) error

	// RegisterURL records url as a content source for relPath. A missing
	// path becomes a URL-backed annex entry without downloading; an
	// existing entry gets the URL attached to its key.
	RegisterURL(ctx context.Context, relPath, url string, opts URLOptions) error

	// Materialize fetches annexed content for relPath from its recorded
	// sources, turning a URL-only entry into one whose bytes are present
	// locally. The git tree is unchanged afterwards; only content
	// location changes.
	Materialize(ctx context.Context, relPath string) error

	// Move renames a tracked path, preserving history.
	Move(ctx context.Context, oldRel, newRel string) error

	// AddAll stages every pending change in the working tree, including
	// deletions and new symlinks.
	AddAll(ctx context.Context) error

	// Commit records staged changes. It returns false without committing
	// when every staged modification is timestamp-only under the
	// configured diff filter; those paths are restored to their last
	// committed content.
	Commit(ctx context.Context, message string) (bool, error)

	// UncommittedChanges reports whether the working tree differs from
	// the last commit.
	UncommittedChanges(ctx context.Context) (bool, error)

	// ConfigureRemote registers or re-enables a special remote that
	// annexed content can be copied to.
	ConfigureRemote(ctx context.Context, name, kind string, params map[string]string) error
}
