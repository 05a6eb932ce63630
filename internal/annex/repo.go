// SPDX-License-Identifier: MIT

package annex

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/con-org/annextube-sub000/internal/fsutil"
	"github.com/con-org/annextube-sub000/internal/log"
)

var commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "annextube_commits_total",
	Help: "Total number of commit attempts by outcome",
}, []string{"result"})

// Repo is the git-annex backed Store implementation.
type Repo struct {
	root   string
	run    *Runner
	policy Policy
	equal  DiffFunc
}

var _ Store = (*Repo)(nil)

// NewRepo returns a Store rooted at root. equal filters staged diffs
// before commit; nil means plain byte equality.
func NewRepo(root string, policy Policy, equal DiffFunc) (*Repo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if equal == nil {
		equal = func(_ string, old, new []byte) bool { return bytes.Equal(old, new) }
	}
	return &Repo{
		root:   abs,
		run:    NewRunner(abs),
		policy: policy,
		equal:  equal,
	}, nil
}

func (r *Repo) Root() string { return r.root }

func (r *Repo) Init(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "annex")

	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return fmt.Errorf("create archive root: %w", err)
	}
	if _, err := r.run.Git(ctx, "init", "--quiet"); err != nil {
		return fmt.Errorf("git init: %w", err)
	}
	if _, err := r.run.Annex(ctx, "init", "--quiet", "annextube archive"); err != nil {
		return fmt.Errorf("annex init: %w", err)
	}

	attrs := filepath.Join(r.root, ".gitattributes")
	if err := renameio.WriteFile(attrs, []byte(r.policy.Attributes()), 0o644); err != nil {
		return fmt.Errorf("write .gitattributes: %w", err)
	}
	if _, err := r.run.Git(ctx, "add", "--", ".gitattributes"); err != nil {
		return fmt.Errorf("stage .gitattributes: %w", err)
	}
	committed, err := r.Commit(ctx, "Initialize archive")
	if err != nil {
		return err
	}

	logger.Info().Str(log.FieldPath, r.root).Bool("created", committed).Msg("archive initialized")
	return nil
}

func (r *Repo) AtomicWrite(ctx context.Context, relPath string, data []byte) error {
	abs, err := fsutil.ConfineRelPath(r.root, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", relPath, err)
	}

	// Annexed entries are read-only symlinks. Unlink first and remember
	// the target so a failed write can put the old entry back.
	var linkTarget string
	if fi, err := os.Lstat(abs); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		linkTarget, err = os.Readlink(abs)
		if err != nil {
			return fmt.Errorf("read link %s: %w", relPath, err)
		}
		if err := os.Remove(abs); err != nil {
			return fmt.Errorf("unlink %s: %w", relPath, err)
		}
	}

	if err := renameio.WriteFile(abs, data, 0o644); err != nil {
		if linkTarget != "" {
			if rerr := os.Symlink(linkTarget, abs); rerr != nil {
				logger := log.WithComponentFromContext(ctx, "annex")
				logger.Warn().
					Err(rerr).
					Str(log.FieldPath, relPath).
					Msg("failed to restore annex link after write failure")
			}
		}
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	// Routing between git and the annex is decided by the attribute
	// rules; annex add honors them for direct files too.
	if _, err := r.run.Annex(ctx, "add", "--quiet", "--", relPath); err != nil {
		return fmt.Errorf("annex add %s: %w", relPath, err)
	}
	return nil
}

func (r *Repo) RegisterURL(ctx context.Context, relPath, url string, opts URLOptions) error {
	abs, err := fsutil.ConfineRelPath(r.root, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", relPath, err)
	}

	if _, err := os.Lstat(abs); err == nil {
		// Entry exists: attach the URL to its key.
		keyOut, err := r.run.Annex(ctx, "lookupkey", "--", relPath)
		if err != nil {
			return fmt.Errorf("lookupkey %s: %w", relPath, err)
		}
		key := strings.TrimSpace(string(keyOut))
		if key == "" {
			return fmt.Errorf("no annex key for %s", relPath)
		}
		if _, err := r.run.Annex(ctx, "registerurl", "--quiet", key, url); err != nil {
			return fmt.Errorf("registerurl %s: %w", relPath, err)
		}
	} else {
		args := []string{"addurl", "--quiet", "--file", relPath}
		if opts.Relaxed {
			args = append(args, "--relaxed")
		} else {
			args = append(args, "--fast")
		}
		args = append(args, url)
		if _, err := r.run.Annex(ctx, args...); err != nil {
			return fmt.Errorf("addurl %s: %w", relPath, err)
		}
	}

	return r.setTags(ctx, relPath, opts.Tags)
}

func (r *Repo) setTags(ctx context.Context, relPath string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	sorted := slices.Clone(tags)
	slices.Sort(sorted)

	args := []string{"metadata", "--quiet"}
	for _, t := range sorted {
		args = append(args, "--tag", t)
	}
	args = append(args, "--", relPath)
	if _, err := r.run.Annex(ctx, args...); err != nil {
		return fmt.Errorf("tag %s: %w", relPath, err)
	}
	return nil
}

func (r *Repo) Materialize(ctx context.Context, relPath string) error {
	if _, err := fsutil.ConfineRelPath(r.root, relPath); err != nil {
		return err
	}
	if _, err := r.run.Annex(ctx, "get", "--quiet", "--", relPath); err != nil {
		return fmt.Errorf("annex get %s: %w", relPath, err)
	}
	return nil
}

func (r *Repo) Move(ctx context.Context, oldRel, newRel string) error {
	oldAbs, err := fsutil.ConfineRelPath(r.root, oldRel)
	if err != nil {
		return err
	}
	newAbs, err := fsutil.ConfineRelPath(r.root, newRel)
	if err != nil {
		return err
	}

	if _, err := os.Lstat(oldAbs); os.IsNotExist(err) {
		if _, lerr := os.Lstat(newAbs); lerr == nil {
			return nil // already moved
		}
		return fmt.Errorf("move %s: source does not exist", oldRel)
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", newRel, err)
	}
	if _, err := r.run.Git(ctx, "mv", "--", oldRel, newRel); err != nil {
		return fmt.Errorf("move %s to %s: %w", oldRel, newRel, err)
	}
	r.pruneEmptyDirs(filepath.Dir(oldAbs))

	logger := log.WithComponentFromContext(ctx, "annex")
	logger.Debug().
		Str(log.FieldOldPath, oldRel).
		Str(log.FieldNewPath, newRel).
		Msg("moved")
	return nil
}

// pruneEmptyDirs removes directories left empty by a move, walking up
// toward the archive root.
func (r *Repo) pruneEmptyDirs(dir string) {
	for strings.HasPrefix(dir, r.root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (r *Repo) AddAll(ctx context.Context) error {
	if _, err := r.run.Annex(ctx, "add", "--quiet", "."); err != nil {
		return fmt.Errorf("annex add all: %w", err)
	}
	// Deletions and plain symlinks are outside annex add's reach.
	if _, err := r.run.Git(ctx, "add", "--all"); err != nil {
		return fmt.Errorf("git add all: %w", err)
	}
	return nil
}

func (r *Repo) Commit(ctx context.Context, message string) (bool, error) {
	logger := log.WithComponentFromContext(ctx, "annex")

	out, err := r.run.Git(ctx, "diff", "--cached", "--name-status", "-z", "--no-renames")
	if err != nil {
		return false, fmt.Errorf("staged diff: %w", err)
	}
	entries, err := parseNameStatus(out)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	// Adds, deletions, and type changes are always real. Modifications
	// count only when they survive the diff filter, which treats
	// timestamp-only changes as equal.
	real := false
	var volatile []string
	for _, e := range entries {
		if e.status != "M" {
			real = true
			continue
		}
		committed, err := r.run.Git(ctx, "show", "HEAD:"+e.path)
		if err != nil {
			return false, fmt.Errorf("read committed %s: %w", e.path, err)
		}
		staged, err := r.run.Git(ctx, "show", ":"+e.path)
		if err != nil {
			return false, fmt.Errorf("read staged %s: %w", e.path, err)
		}
		if r.equal(e.path, committed, staged) {
			volatile = append(volatile, e.path)
		} else {
			real = true
		}
	}

	if !real {
		if len(volatile) > 0 {
			args := append([]string{"checkout", "--quiet", "HEAD", "--"}, volatile...)
			if _, err := r.run.Git(ctx, args...); err != nil {
				return false, fmt.Errorf("restore unchanged paths: %w", err)
			}
		}
		commitsTotal.WithLabelValues("filtered").Inc()
		logger.Debug().Int("paths", len(volatile)).Msg("commit skipped, only timestamp fields changed")
		return false, nil
	}

	if _, err := r.run.Git(ctx, "commit", "--quiet", "-m", message); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	commitsTotal.WithLabelValues("committed").Inc()
	logger.Info().Str("message", message).Int("paths", len(entries)).Msg("committed")
	return true, nil
}

func (r *Repo) UncommittedChanges(ctx context.Context) (bool, error) {
	out, err := r.run.Git(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

func (r *Repo) ConfigureRemote(ctx context.Context, name, kind string, params map[string]string) error {
	if _, err := r.run.Annex(ctx, "enableremote", name); err == nil {
		return nil
	}

	args := []string{"initremote", name, "type=" + kind}
	for _, k := range slices.Sorted(maps.Keys(params)) {
		args = append(args, k+"="+params[k])
	}
	if _, err := r.run.Annex(ctx, args...); err != nil {
		return fmt.Errorf("initremote %s: %w", name, err)
	}
	return nil
}

type statusEntry struct {
	status string
	path   string
}

// parseNameStatus decodes NUL-separated `git diff --name-status -z`
// output into status and path pairs.
func parseNameStatus(out []byte) ([]statusEntry, error) {
	fields := strings.Split(string(out), "\x00")
	if len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("unbalanced name-status output: %d fields", len(fields))
	}

	entries := make([]statusEntry, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		entries = append(entries, statusEntry{status: fields[i], path: fields[i+1]})
	}
	return entries, nil
}
