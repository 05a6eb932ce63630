// SPDX-License-Identifier: MIT
package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"plain child", "videos/2024/01/2024-01-05_title", false},
		{"dot segments collapse inside", "videos/../videos/x", false},
		{"leading traversal", "../outside", true},
		{"bare dotdot", "..", true},
		{"absolute", "/etc/passwd", true},
		{"backslash", "videos\\x", true},
		{"dotdot in filename", "videos/rock..and..roll", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			rel, err := filepath.Rel(root, got)
			require.NoError(t, err)
			assert.False(t, filepath.IsAbs(rel))
		})
	}
}

func TestConfineRelPathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	require.NoError(t, os.Symlink(outside, filepath.Join(root, "exit")))

	// A file under a symlinked directory that leaves the root is rejected.
	_, err := ConfineRelPath(root, "exit/payload")
	assert.Error(t, err)
}

func TestConfineRelPathKeepsAnnexLinks(t *testing.T) {
	root := t.TempDir()

	// Annex-style entries are symlinks whose targets live under .git; the
	// entry path itself is what gets confined.
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "annex", "objects"), 0o755))
	blob := filepath.Join(root, ".git", "annex", "objects", "k")
	require.NoError(t, os.WriteFile(blob, []byte("x"), 0o644))
	link := filepath.Join(root, "thumbnail.jpg")
	require.NoError(t, os.Symlink(blob, link))

	got, err := ConfineRelPath(root, "thumbnail.jpg")
	require.NoError(t, err)
	assert.Equal(t, link, got)
}

func TestIsRegularFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.NoError(t, IsRegularFile(file))
	assert.Error(t, IsRegularFile(root))
	assert.Error(t, IsRegularFile(filepath.Join(root, "missing")))
}
