// SPDX-License-Identifier: MIT

package annex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/con-org/annextube-sub000/internal/log"
	"github.com/con-org/annextube-sub000/internal/procgroup"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "annextube_git_commands_total",
	Help: "Total number of git and git-annex invocations",
}, []string{"bin", "result"})

// maxStderr caps how much subprocess stderr a GitError carries. The
// tail is kept because git prints the actual failure last.
const maxStderr = 4096

// GitError describes a git or git-annex invocation that exited nonzero.
type GitError struct {
	Bin      string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *GitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no stderr output"
	}
	return fmt.Sprintf("%s %s: exit %d: %s", e.Bin, strings.Join(e.Args, " "), e.ExitCode, msg)
}

// Runner executes git and git-annex commands inside one repository.
type Runner struct {
	dir      string
	gitBin   string
	annexBin string

	// waitDelay bounds how long a command may linger after its context
	// is canceled before the whole process group is killed.
	waitDelay time.Duration
}

// NewRunner returns a runner rooted at dir. Binaries are resolved from
// PATH as "git" and "git-annex".
func NewRunner(dir string) *Runner {
	return &Runner{
		dir:       dir,
		gitBin:    "git",
		annexBin:  "git-annex",
		waitDelay: 10 * time.Second,
	}
}

// Git runs a git command and returns its stdout.
func (r *Runner) Git(ctx context.Context, args ...string) ([]byte, error) {
	return r.run(ctx, r.gitBin, args...)
}

// Annex runs a git-annex command and returns its stdout.
func (r *Runner) Annex(ctx context.Context, args ...string) ([]byte, error) {
	return r.run(ctx, r.annexBin, args...)
}

func (r *Runner) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	logger := log.WithComponentFromContext(ctx, "annex")

	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"LC_ALL=C",
	)
	procgroup.Set(cmd)
	cmd.Cancel = func() error {
		return procgroup.Kill(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		commandsTotal.WithLabelValues(bin, "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			gerr := &GitError{
				Bin:      bin,
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   tailString(stderr.String(), maxStderr),
			}
			logger.Debug().
				Str("bin", bin).
				Strs("args", args).
				Int("exit_code", gerr.ExitCode).
				Dur("duration", dur).
				Msg("command failed")
			return nil, gerr
		}
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	commandsTotal.WithLabelValues(bin, "ok").Inc()
	logger.Trace().
		Str("bin", bin).
		Strs("args", args).
		Dur("duration", dur).
		Msg("command completed")
	return stdout.Bytes(), nil
}

// tailString keeps the last max bytes of s on a rune boundary.
func tailString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[len(s)-max:]
	for len(cut) > 0 && !utf8RuneStart(cut[0]) {
		cut = cut[1:]
	}
	return cut
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
