// SPDX-License-Identifier: MIT

// Package procgroup runs subprocesses in their own process group so
// that cancellation reaches the whole tree, not just the direct child.
// git-annex spawns helpers (downloaders, transfer processes) that would
// otherwise survive an interrupted run.
package procgroup
