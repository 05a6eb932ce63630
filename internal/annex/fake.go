// SPDX-License-Identifier: MIT

package annex

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/con-org/annextube-sub000/internal/fsutil"
)

// linkPrefix marks symlink entries in tree snapshots so a type change
// between file and link never passes the diff filter.
const linkPrefix = "link\x00"

// URLRecord captures one RegisterURL call.
type URLRecord struct {
	URL     string
	Relaxed bool
	Tags    []string
}

// FakeStore implements Store on a bare directory, without git. Writes
// hit the real filesystem so readers of the tree behave as they would
// against a working clone; commits, URL registrations, and moves are
// recorded in memory for assertions. The commit filter is emulated by
// diffing tree snapshots with the same DiffFunc the real store uses.
type FakeStore struct {
	Policy Policy

	mu        sync.Mutex
	root      string
	equal     DiffFunc
	baseline  map[string]string
	urlsDirty bool

	Commits      []string
	URLs         map[string]URLRecord
	Moves        [][2]string
	Remotes      map[string]map[string]string
	Materialized []string
}

var _ Store = (*FakeStore)(nil)

// NewFakeStore returns a fake store rooted at dir, usually a t.TempDir.
func NewFakeStore(dir string, equal DiffFunc) *FakeStore {
	if equal == nil {
		equal = func(_ string, old, new []byte) bool { return bytes.Equal(old, new) }
	}
	return &FakeStore{
		root:     dir,
		equal:    equal,
		baseline: map[string]string{},
		URLs:     map[string]URLRecord{},
		Remotes:  map[string]map[string]string{},
	}
}

func (f *FakeStore) Root() string { return f.root }

func (f *FakeStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return err
	}
	attrs := filepath.Join(f.root, ".gitattributes")
	if err := os.WriteFile(attrs, []byte(f.Policy.Attributes()), 0o644); err != nil {
		return err
	}
	_, err := f.Commit(ctx, "Initialize archive")
	return err
}

func (f *FakeStore) AtomicWrite(_ context.Context, relPath string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	abs, err := fsutil.ConfineRelPath(f.root, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	if fi, err := os.Lstat(abs); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(abs); err != nil {
			return err
		}
	}
	return os.WriteFile(abs, data, 0o644)
}

func (f *FakeStore) RegisterURL(_ context.Context, relPath, url string, opts URLOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := fsutil.ConfineRelPath(f.root, relPath); err != nil {
		return err
	}

	rec := f.URLs[relPath]
	next := URLRecord{URL: url, Relaxed: opts.Relaxed, Tags: mergeTags(rec.Tags, opts.Tags)}
	if rec.URL != next.URL || rec.Relaxed != next.Relaxed || !slices.Equal(rec.Tags, next.Tags) {
		f.urlsDirty = true
	}
	f.URLs[relPath] = next
	return nil
}

func mergeTags(existing, added []string) []string {
	merged := slices.Clone(existing)
	for _, t := range added {
		if !slices.Contains(merged, t) {
			merged = append(merged, t)
		}
	}
	slices.Sort(merged)
	return merged
}

// Materialize writes deterministic bytes derived from the registered
// URL. The file lands in the baseline too, mirroring how annex get
// changes content location without dirtying the git tree.
func (f *FakeStore) Materialize(_ context.Context, relPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	abs, err := fsutil.ConfineRelPath(f.root, relPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		f.Materialized = append(f.Materialized, relPath)
		return nil
	}
	rec, ok := f.URLs[relPath]
	if !ok {
		return fmt.Errorf("materialize %s: no content source", relPath)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	body := "content from " + rec.URL + "\n"
	if err := os.WriteFile(abs, []byte(body), 0o644); err != nil {
		return err
	}
	f.baseline[filepath.ToSlash(relPath)] = body
	f.Materialized = append(f.Materialized, relPath)
	return nil
}

func (f *FakeStore) Move(_ context.Context, oldRel, newRel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	oldAbs, err := fsutil.ConfineRelPath(f.root, oldRel)
	if err != nil {
		return err
	}
	newAbs, err := fsutil.ConfineRelPath(f.root, newRel)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(oldAbs); os.IsNotExist(err) {
		if _, lerr := os.Lstat(newAbs); lerr == nil {
			return nil
		}
		return fmt.Errorf("move %s: source does not exist", oldRel)
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return err
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return err
	}

	// URL records follow the entry like git-annex location data does.
	for rel, rec := range f.URLs {
		if rel == oldRel || strings.HasPrefix(rel, oldRel+"/") {
			delete(f.URLs, rel)
			f.URLs[newRel+strings.TrimPrefix(rel, oldRel)] = rec
		}
	}
	f.Moves = append(f.Moves, [2]string{oldRel, newRel})
	return nil
}

func (f *FakeStore) AddAll(context.Context) error { return nil }

func (f *FakeStore) Commit(_ context.Context, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.snapshot()
	if err != nil {
		return false, err
	}

	real := f.urlsDirty
	var volatile []string
	for rel, content := range cur {
		old, ok := f.baseline[rel]
		switch {
		case !ok:
			real = true
		case old == content:
			// unchanged
		case strings.HasPrefix(old, linkPrefix) || strings.HasPrefix(content, linkPrefix):
			real = true
		case f.equal(rel, []byte(old), []byte(content)):
			volatile = append(volatile, rel)
		default:
			real = true
		}
	}
	for rel := range f.baseline {
		if _, ok := cur[rel]; !ok {
			real = true
		}
	}

	if !real {
		for _, rel := range volatile {
			abs := filepath.Join(f.root, filepath.FromSlash(rel))
			if err := os.WriteFile(abs, []byte(f.baseline[rel]), 0o644); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	f.Commits = append(f.Commits, message)
	f.baseline = cur
	f.urlsDirty = false
	return true, nil
}

func (f *FakeStore) UncommittedChanges(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.urlsDirty {
		return true, nil
	}
	cur, err := f.snapshot()
	if err != nil {
		return false, err
	}
	return !maps.Equal(cur, f.baseline), nil
}

func (f *FakeStore) ConfigureRemote(_ context.Context, name, kind string, params map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged := map[string]string{"type": kind}
	maps.Copy(merged, params)
	f.Remotes[name] = merged
	return nil
}

// LastCommit returns the most recent commit message, or "".
func (f *FakeStore) LastCommit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Commits) == 0 {
		return ""
	}
	return f.Commits[len(f.Commits)-1]
}

func (f *FakeStore) snapshot() (map[string]string, error) {
	files := map[string]string{}
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(f.root, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if d.Type()&fs.ModeSymlink != 0 {
			target, lerr := os.Readlink(p)
			if lerr != nil {
				return lerr
			}
			files[rel] = linkPrefix + target
			return nil
		}
		b, rerr := os.ReadFile(p)
		if rerr != nil {
			return rerr
		}
		files[rel] = string(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
