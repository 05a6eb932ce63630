// SPDX-License-Identifier: MIT
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/con-org/annextube-sub000/internal/annex"
	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/config"
	"github.com/con-org/annextube-sub000/internal/log"
	"github.com/con-org/annextube-sub000/internal/pipeline"
	"github.com/con-org/annextube-sub000/internal/quota"
	"github.com/con-org/annextube-sub000/internal/ratelimit"
	"github.com/con-org/annextube-sub000/internal/telemetry"
	"github.com/con-org/annextube-sub000/internal/version"
	"github.com/con-org/annextube-sub000/internal/youtube"
)

func newBackupCmd() *cobra.Command {
	var (
		mode          string
		metricsListen string
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Sync the configured sources into the archive",
		Long: `Backup enumerates the configured sources and brings the archive up to
date, committing a checkpoint every few videos so an interrupted run
never loses completed work.

Update modes:

  videos-incremental  archive videos newer than the per-channel high
                      water mark; never touch stored records
  all-incremental     additionally refresh known videos still inside
                      the social window (the default)
  social              refresh counters, comments, and captions for
                      archived videos without enumerating sources
  all-force           refetch everything, including videos recorded
                      as unavailable
  playlists           refresh playlist records and links only

The first interrupt (Ctrl-C) stops the run at the next checkpoint
boundary; a second one aborts it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := pipeline.ParseMode(mode)
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrInvalid, err)
			}
			return runBackup(cmd, m, metricsListen)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "update mode (default all-incremental)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address for the run, e.g. 127.0.0.1:9090")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var metricsListen string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Sync new and recent content (backup --mode all-incremental)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackup(cmd, pipeline.ModeAllIncremental, metricsListen)
		},
	}
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address for the run, e.g. 127.0.0.1:9090")
	return cmd
}

func runBackup(cmd *cobra.Command, mode pipeline.Mode, metricsListen string) error {
	root, err := archiveRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.DefaultPath(root))
	if err != nil {
		return err
	}
	configureLogging(cfg.LogLevel)
	logger := log.WithComponent("cli")

	key, err := config.APIKey()
	if err != nil {
		return err
	}
	sources, err := cfg.CompileSources()
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("%w: no enabled sources", config.ErrInvalid)
	}
	pattern, err := cfg.PathPattern()
	if err != nil {
		return err
	}
	matcher, err := cfg.CaptionMatcher()
	if err != nil {
		return err
	}
	dateStart, dateEnd, err := cfg.DateRange()
	if err != nil {
		return err
	}
	rateCfg, err := cfg.RateConfig()
	if err != nil {
		return err
	}

	interrupter, ctx := pipeline.NewInterrupter(cmd.Context())
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigc)
		close(sigc)
	}()
	go func() {
		for range sigc {
			if interrupter.Interrupt() {
				logger.Warn().Msg("interrupt requested, stopping at the next checkpoint (repeat to abort)")
			} else {
				logger.Warn().Msg("aborting run")
			}
		}
	}()

	provider, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig(version.Version))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	if metricsListen != "" {
		stopMetrics := startMetricsListener(metricsListen, logger)
		defer stopMetrics()
	}

	remote, err := youtube.NewClient(ctx, youtube.Config{
		APIKey:   key,
		ProxyURL: cfg.Network.Proxy,
		Limiter:  ratelimit.New(rateCfg),
	})
	if err != nil {
		return err
	}
	store, err := annex.NewRepo(root, cfg.Policy(), archive.ContentEqual)
	if err != nil {
		return err
	}
	waiter, err := quota.New(cfg.QuotaConfig())
	if err != nil {
		return err
	}

	sched, err := pipeline.New(remote, store, waiter, pipeline.Options{
		Mode:     mode,
		Pattern:  pattern,
		Organize: cfg.OrganizeOptions(),

		DownloadVideos: cfg.Components.Videos,
		FetchMetadata:  cfg.Components.Metadata,
		CommentsDepth:  cfg.Components.CommentsDepth,
		Captions:       cfg.Components.Captions,
		CaptionLangs:   matcher,
		AutoCaptions:   cfg.Components.AutoTranslatedCaptions,
		Thumbnails:     cfg.Components.Thumbnails,

		DateStart:     dateStart,
		DateEnd:       dateEnd,
		License:       cfg.Filters.License,
		Limit:         cfg.Filters.Limit,
		MinDuration:   cfg.Filters.MinDuration,
		MaxDuration:   cfg.Filters.MaxDuration,
		ExcludeShorts: cfg.Filters.ExcludeShorts,

		CheckpointInterval:    cfg.Backup.CheckpointInterval,
		SocialWindow:          cfg.SocialWindow(),
		Workers:               cfg.Backup.Workers,
		AutoCommitOnInterrupt: cfg.Backup.AutoCommitOnInterrupt,

		Interrupter: interrupter,
	})
	if err != nil {
		return err
	}

	stats, err := sched.Run(ctx, sources)
	if stats != nil {
		printRunSummary(cmd.OutOrStdout(), stats)
	}
	return err
}

// startMetricsListener serves the process registry on addr for the
// duration of the run. Failures are logged, not fatal: a backup does
// not depend on its metrics being scraped.
func startMetricsListener(addr string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("metrics listener failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printRunSummary(w io.Writer, s *pipeline.Stats) {
	state := "finished"
	if s.Interrupted {
		state = "interrupted"
	}
	runID := s.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	fmt.Fprintf(w, "\n%s in %s (%s, run %s)\n",
		color.New(color.Bold).Sprintf("Backup %s", state),
		s.Duration.Round(time.Second), s.Mode, runID)

	rows := []struct {
		label string
		value int
	}{
		{"sources", s.Sources},
		{"planned", s.Planned},
		{"new", s.New},
		{"refreshed", s.Refreshed},
		{"unchanged", s.Unchanged},
		{"placeholders", s.Placeholders},
		{"moved", s.Moved},
		{"skipped", s.Skipped},
		{"failed", s.Failed},
		{"playlists", s.Playlists},
		{"commits", s.Commits},
	}
	for _, r := range rows {
		value := humanize.Comma(int64(r.value))
		if r.label == "failed" && r.value > 0 {
			value = color.RedString(value)
		}
		fmt.Fprintf(w, "  %-13s %s\n", r.label, value)
	}
}
