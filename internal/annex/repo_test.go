// SPDX-License-Identifier: MIT

package annex

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/con-org/annextube-sub000/internal/archive"
)

// newTestRepo initializes a throwaway archive with a hermetic git
// identity. Skips when git or git-annex is not installed.
func newTestRepo(t *testing.T, equal DiffFunc) *Repo {
	t.Helper()
	for _, bin := range []string{"git", "git-annex"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}

	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_AUTHOR_NAME", "annextube test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@localhost")
	t.Setenv("GIT_COMMITTER_NAME", "annextube test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@localhost")

	repo, err := NewRepo(t.TempDir(), Policy{}, equal)
	require.NoError(t, err)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func commitCount(t *testing.T, r *Repo) int {
	t.Helper()
	out, err := r.run.Git(context.Background(), "rev-list", "--count", "HEAD")
	require.NoError(t, err)
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	require.NoError(t, err)
	return n
}

func TestRepoInitIdempotent(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	attrs, err := os.ReadFile(filepath.Join(repo.Root(), ".gitattributes"))
	require.NoError(t, err)
	assert.Equal(t, Policy{}.Attributes(), string(attrs))
	first := commitCount(t, repo)

	require.NoError(t, repo.Init(ctx))
	assert.Equal(t, first, commitCount(t, repo))
}

func TestRepoAtomicWriteRouting(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	require.NoError(t, repo.AtomicWrite(ctx, "videos/2024/01/x/metadata.json", []byte(`{"title":"a"}`)))
	require.NoError(t, repo.AtomicWrite(ctx, "videos/2024/01/x/comments.json", []byte(`[]`)))

	meta, err := os.Lstat(filepath.Join(repo.Root(), "videos/2024/01/x/metadata.json"))
	require.NoError(t, err)
	assert.True(t, meta.Mode().IsRegular(), "metadata.json should be a plain git file")

	comments, err := os.Lstat(filepath.Join(repo.Root(), "videos/2024/01/x/comments.json"))
	require.NoError(t, err)
	assert.NotZero(t, comments.Mode()&os.ModeSymlink, "comments.json should be annexed")

	committed, err := repo.Commit(ctx, "add video")
	require.NoError(t, err)
	assert.True(t, committed)

	// Rewriting an annexed entry replaces the link and keeps the tree
	// committable.
	require.NoError(t, repo.AtomicWrite(ctx, "videos/2024/01/x/comments.json", []byte(`[{"comment_id":"c1"}]`)))
	committed, err = repo.Commit(ctx, "update comments")
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestRepoCommitFiltersTimestampOnlyChanges(t *testing.T) {
	repo := newTestRepo(t, archive.ContentEqual)
	ctx := context.Background()

	const rel = "videos/2024/01/x/metadata.json"
	orig := []byte(`{"title":"a","fetched_at":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, repo.AtomicWrite(ctx, rel, orig))
	committed, err := repo.Commit(ctx, "add video")
	require.NoError(t, err)
	require.True(t, committed)
	before := commitCount(t, repo)

	fresh := []byte(`{"title":"a","fetched_at":"2024-06-01T00:00:00Z"}`)
	require.NoError(t, repo.AtomicWrite(ctx, rel, fresh))
	committed, err = repo.Commit(ctx, "refetch")
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Equal(t, before, commitCount(t, repo))

	got, err := os.ReadFile(filepath.Join(repo.Root(), rel))
	require.NoError(t, err)
	assert.Equal(t, orig, got, "timestamp-only rewrite should be rolled back")

	changed := []byte(`{"title":"b","fetched_at":"2024-06-01T00:00:00Z"}`)
	require.NoError(t, repo.AtomicWrite(ctx, rel, changed))
	committed, err = repo.Commit(ctx, "retitle")
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, before+1, commitCount(t, repo))
}

func TestRepoMove(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	require.NoError(t, repo.AtomicWrite(ctx, "videos/2024/01/old-title/metadata.json", []byte(`{}`)))
	_, err := repo.Commit(ctx, "add")
	require.NoError(t, err)

	require.NoError(t, repo.Move(ctx, "videos/2024/01/old-title", "videos/2024/02/new-title"))

	assert.NoFileExists(t, filepath.Join(repo.Root(), "videos/2024/01/old-title/metadata.json"))
	assert.FileExists(t, filepath.Join(repo.Root(), "videos/2024/02/new-title/metadata.json"))
	assert.NoDirExists(t, filepath.Join(repo.Root(), "videos/2024/01"), "emptied parents are pruned")

	committed, err := repo.Commit(ctx, "rename")
	require.NoError(t, err)
	assert.True(t, committed)

	// Repeating the move is a no-op.
	require.NoError(t, repo.Move(ctx, "videos/2024/01/old-title", "videos/2024/02/new-title"))
}

func TestRepoUncommittedChanges(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	dirty, err := repo.UncommittedChanges(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, repo.AtomicWrite(ctx, "videos/videos.tsv", []byte("title\n")))
	dirty, err = repo.UncommittedChanges(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestRepoConfigureRemote(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	params := map[string]string{
		"directory":  t.TempDir(),
		"encryption": "none",
	}
	require.NoError(t, repo.ConfigureRemote(ctx, "mirror", "directory", params))

	// Second call goes through enableremote.
	require.NoError(t, repo.ConfigureRemote(ctx, "mirror", "directory", params))
}
