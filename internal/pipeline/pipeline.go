// SPDX-License-Identifier: MIT

// Package pipeline runs archive sync: it expands configured sources
// into enumeration targets, plans per-video work according to the
// update mode, fetches payloads through a bounded worker pool, and
// applies every write from a single goroutine so checkpoints always
// capture a consistent tree.
package pipeline

import (
	"context"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/con-org/annextube-sub000/internal/organize"
	"github.com/con-org/annextube-sub000/internal/paths"
)

var (
	videosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annextube_videos_processed_total",
		Help: "Videos handled by sync runs, by outcome.",
	}, []string{"outcome"})

	checkpointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annextube_checkpoints_total",
		Help: "Checkpoint commits attempted by sync runs.",
	})
)

// QuotaWaiter suspends a run until the remote quota recovers. Suspend
// blocks through the waiting period and returns an error only when the
// run should give up; Recovered is called once the first request after
// a suspension succeeds.
type QuotaWaiter interface {
	Suspend(ctx context.Context) error
	Recovered()
}

// Options configure a sync run. Zero values select the documented
// defaults.
type Options struct {
	Mode    Mode
	Pattern *paths.Pattern

	// Organize controls playlist link prefixes.
	Organize organize.Options

	// Component toggles.
	DownloadVideos bool
	FetchMetadata  bool
	CommentsDepth  int
	Captions       bool
	CaptionLangs   *regexp.Regexp
	AutoCaptions   bool
	Thumbnails     bool

	// Filters applied to candidate videos. They gate new archival
	// only; videos already archived are always kept current.
	DateStart     time.Time
	DateEnd       time.Time
	License       string
	Limit         int
	MinDuration   int
	MaxDuration   int
	ExcludeShorts bool

	// Run shape.
	CheckpointInterval    int
	SocialWindow          time.Duration
	Workers               int
	AutoCommitOnInterrupt bool

	Interrupter *Interrupter
}

const (
	defaultCheckpointInterval = 50
	defaultSocialWindow       = 7 * 24 * time.Hour
	defaultWorkers            = 4
)

func (o Options) withDefaults() (Options, error) {
	if o.Mode == "" {
		o.Mode = ModeAllIncremental
	}
	if o.Pattern == nil {
		p, err := paths.Parse("")
		if err != nil {
			return o, err
		}
		o.Pattern = p
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = defaultCheckpointInterval
	}
	if o.SocialWindow <= 0 {
		o.SocialWindow = defaultSocialWindow
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	return o, nil
}

// Stats summarize one run.
type Stats struct {
	RunID     string        `json:"run_id"`
	Mode      Mode          `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Sources      int  `json:"sources"`
	Planned      int  `json:"planned"`
	Processed    int  `json:"processed"`
	New          int  `json:"new"`
	Refreshed    int  `json:"refreshed"`
	Unchanged    int  `json:"unchanged"`
	Placeholders int  `json:"placeholders"`
	Moved        int  `json:"moved"`
	Skipped      int  `json:"skipped"`
	Failed       int  `json:"failed"`
	Playlists    int  `json:"playlists"`
	Commits      int  `json:"commits"`
	Interrupted  bool `json:"interrupted"`
}
