// SPDX-License-Identifier: MIT
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/config"
	"github.com/con-org/annextube-sub000/internal/organize"
	"github.com/con-org/annextube-sub000/internal/pipeline"
	"github.com/con-org/annextube-sub000/internal/quota"
	"github.com/con-org/annextube-sub000/internal/testutil"
	"github.com/con-org/annextube-sub000/internal/version"
)

// runCommand executes the root command with args and returns its
// combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// writeArchiveFixture lays out a consistent two-video archive without
// a git layer underneath; info and check read the filesystem only.
func writeArchiveFixture(t *testing.T, root string) {
	t.Helper()
	first := &archive.Video{
		VideoID:           "aaaaaaaaaa1",
		Title:             "First",
		ChannelName:       "Tester",
		Published:         time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		DurationSeconds:   90,
		ViewCount:         1200,
		Availability:      archive.AvailabilityPublic,
		DownloadStatus:    archive.DownloadTrackedURLOnly,
		CaptionsAvailable: []string{},
		Tags:              []string{},
		Categories:        []string{},
		Path:              "videos/2024/03/2024-03-01_first",
	}
	second := &archive.Video{
		VideoID:           "aaaaaaaaaa2",
		Title:             "Second",
		ChannelName:       "Tester",
		Published:         time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC),
		DurationSeconds:   3700,
		ViewCount:         50,
		Availability:      archive.AvailabilityPublic,
		DownloadStatus:    archive.DownloadTrackedURLOnly,
		CaptionsAvailable: []string{},
		Tags:              []string{},
		Categories:        []string{},
		Path:              "videos/2024/04/2024-04-02_second",
	}
	testutil.WriteVideo(t, root, first)
	testutil.WriteVideo(t, root, second)
	testutil.WriteVideoIndex(t, root, first, second)
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"interrupted", fmt.Errorf("run: %w", pipeline.ErrInterrupted), 2},
		{"invalid config", fmt.Errorf("%w: bad mode", config.ErrInvalid), 3},
		{"prefix overflow", fmt.Errorf("rebuild: %w", organize.ErrPrefixOverflow), 3},
		{"quota gave up", fmt.Errorf("wait: %w", quota.ErrGaveUp), 4},
		{"anything else", errors.New("network down"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
	assert.Contains(t, out, "go:")
}

func TestInfoJSON(t *testing.T) {
	root := t.TempDir()
	writeArchiveFixture(t, root)

	out, err := runCommand(t, "-C", root, "info", "--json")
	require.NoError(t, err)

	var stats archive.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Videos)
	assert.Equal(t, 1, stats.Channels)
	assert.Equal(t, int64(3790), stats.TotalDurationSeconds)
	assert.Equal(t, int64(1250), stats.TotalViews)
}

func TestInfoHumanOutput(t *testing.T) {
	root := t.TempDir()
	writeArchiveFixture(t, root)

	out, err := runCommand(t, "-C", root, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Archive ")
	assert.Contains(t, out, "videos")
	assert.Contains(t, out, "total duration")
	assert.Contains(t, out, "1h03m")
	assert.Contains(t, out, "published")
	assert.Contains(t, out, "2024-03-01 to 2024-04-02")
}

func TestCheckCleanArchive(t *testing.T) {
	root := t.TempDir()
	writeArchiveFixture(t, root)

	out, err := runCommand(t, "-C", root, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
}

func TestCheckReportsProblems(t *testing.T) {
	root := t.TempDir()
	writeArchiveFixture(t, root)

	ghost := &archive.Video{
		VideoID:           "aaaaaaaaaa9",
		Title:             "Ghost",
		Availability:      archive.AvailabilityPublic,
		CaptionsAvailable: []string{},
		Tags:              []string{},
		Categories:        []string{},
		Path:              "videos/2024/05/ghost",
	}
	testutil.WriteVideo(t, root, ghost)

	out, err := runCommand(t, "-C", root, "check")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "videos/2024/05/ghost")
}

func TestCheckJSONReport(t *testing.T) {
	root := t.TempDir()
	writeArchiveFixture(t, root)

	out, err := runCommand(t, "-C", root, "check", "--json")
	require.NoError(t, err)

	var report archive.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.VideoDirs)
	assert.Empty(t, report.Problems)
}

func TestBackupWithoutConfig(t *testing.T) {
	_, err := runCommand(t, "-C", t.TempDir(), "backup")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Equal(t, 3, exitCode(err))
}

func TestBackupRejectsUnknownMode(t *testing.T) {
	_, err := runCommand(t, "-C", t.TempDir(), "backup", "--mode", "yearly")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "yearly")
}

func TestExportRejectsUnknownTarget(t *testing.T) {
	_, err := runCommand(t, "-C", t.TempDir(), "export", "channels")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))
}

func TestFormatSeconds(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{0, "0m00s"},
		{45, "0m45s"},
		{3600, "1h00m"},
		{5400, "1h30m"},
		{90061, "25h01m"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatSeconds(tc.seconds), "seconds=%d", tc.seconds)
	}
}
