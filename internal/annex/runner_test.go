// SPDX-License-Identifier: MIT

package annex

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitErrorMessage(t *testing.T) {
	err := &GitError{
		Bin:      "git-annex",
		Args:     []string{"addurl", "--fast", "https://example.com"},
		ExitCode: 1,
		Stderr:   "addurl: failed\n",
	}
	assert.Equal(t, "git-annex addurl --fast https://example.com: exit 1: addurl: failed", err.Error())
}

func TestGitErrorMessageEmptyStderr(t *testing.T) {
	err := &GitError{Bin: "git", Args: []string{"mv", "a", "b"}, ExitCode: 128}
	assert.Contains(t, err.Error(), "no stderr output")
}

func TestTailString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short passes through", in: "abc", max: 10, want: "abc"},
		{name: "long keeps tail", in: "0123456789", max: 4, want: "6789"},
		{name: "multibyte boundary", in: "aaßß", max: 3, want: "ß"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tailString(tt.in, tt.max))
		})
	}
}

func TestRunnerExitError(t *testing.T) {
	requireGit(t)

	r := NewRunner(t.TempDir())
	_, err := r.Git(context.Background(), "rev-parse", "--verify", "HEAD")
	require.Error(t, err)

	var gerr *GitError
	require.True(t, errors.As(err, &gerr), "want *GitError, got %T", err)
	assert.Equal(t, "git", gerr.Bin)
	assert.NotZero(t, gerr.ExitCode)
	assert.NotEmpty(t, strings.TrimSpace(gerr.Stderr))
}

func TestRunnerCanceledContext(t *testing.T) {
	requireGit(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(t.TempDir())
	_, err := r.Git(ctx, "version")
	require.ErrorIs(t, err, context.Canceled)
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}
