// SPDX-License-Identifier: MIT
package organize

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/con-org/annextube-sub000/internal/archive"
)

func mkVideoDir(t *testing.T, root, rel string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0o755))
}

func linkNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if e.Type()&os.ModeSymlink != 0 {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func TestRebuildCreatesOrderedLinks(t *testing.T) {
	root := t.TempDir()
	mkVideoDir(t, root, "videos/2024/01/2024-01-01_first")
	mkVideoDir(t, root, "videos/2024/03/2024-03-01_third")

	paths := map[string]string{
		"aaaaaaaaaa1": "videos/2024/01/2024-01-01_first",
		"aaaaaaaaaa3": "videos/2024/03/2024-03-01_third",
	}
	p := &archive.Playlist{
		Title: "Mix",
		Items: []string{"aaaaaaaaaa1", "aaaaaaaaaa2", "aaaaaaaaaa3"},
		Path:  "playlists/Mix",
	}

	created, err := Rebuild(root, p, func(id string) string { return paths[id] }, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	dir := filepath.Join(root, "playlists", "Mix")
	names := linkNames(t, dir)
	assert.Equal(t, []string{"0001_2024-01-01_first", "0003_2024-03-01_third"}, names,
		"missing member keeps its position as a gap")

	target, err := os.Readlink(filepath.Join(dir, "0001_2024-01-01_first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("../../videos/2024/01/2024-01-01_first"), target)

	// links must resolve from inside the playlist directory
	st, err := os.Stat(filepath.Join(dir, "0001_2024-01-01_first"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestRebuildReplacesStaleLinks(t *testing.T) {
	root := t.TempDir()
	mkVideoDir(t, root, "videos/2024/01/keeper")
	dir := filepath.Join(root, "playlists", "Mix")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.Symlink("../../videos/2024/01/gone", filepath.Join(dir, "0001_gone")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, archive.PlaylistFile), []byte("{}\n"), 0o644))

	p := &archive.Playlist{
		Title: "Mix",
		Items: []string{"aaaaaaaaaa1"},
		Path:  "playlists/Mix",
	}
	created, err := Rebuild(root, p, func(string) string { return "videos/2024/01/keeper" }, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	assert.Equal(t, []string{"0001_keeper"}, linkNames(t, dir), "stale link removed")
	_, err = os.Stat(filepath.Join(dir, archive.PlaylistFile))
	assert.NoError(t, err, "playlist record survives the rebuild")
}

func TestRebuildSkipsUnmaterializedDirs(t *testing.T) {
	root := t.TempDir()
	p := &archive.Playlist{
		Title: "Mix",
		Items: []string{"aaaaaaaaaa1"},
		Path:  "playlists/Mix",
	}
	// resolver knows a path, but nothing exists there yet
	created, err := Rebuild(root, p, func(string) string { return "videos/2024/01/pending" }, Options{})
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, linkNames(t, filepath.Join(root, "playlists", "Mix")))
}

func TestRebuildPrefixOverflow(t *testing.T) {
	root := t.TempDir()
	items := make([]string, 10)
	for i := range items {
		items[i] = "aaaaaaaaaa" + string(rune('0'+i))
	}
	p := &archive.Playlist{Title: "Big", Items: items, Path: "playlists/Big"}

	_, err := Rebuild(root, p, func(string) string { return "" }, Options{Width: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrefixOverflow)
	assert.Contains(t, err.Error(), "playlist_prefix_width")
}

func TestRebuildCustomNaming(t *testing.T) {
	root := t.TempDir()
	mkVideoDir(t, root, "videos/v")
	p := &archive.Playlist{Title: "Mix", Items: []string{"aaaaaaaaaa1"}, Path: "playlists/Mix"}

	_, err := Rebuild(root, p, func(string) string { return "videos/v" }, Options{Width: 2, Separator: "-"})
	require.NoError(t, err)
	assert.Equal(t, []string{"01-v"}, linkNames(t, filepath.Join(root, "playlists", "Mix")))
}
