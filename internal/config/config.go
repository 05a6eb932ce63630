// SPDX-License-Identifier: MIT

// Package config loads and validates the archive configuration stored
// at .annextube/config.toml. Values resolve file first, then
// ANNEXTUBE_* environment variables, then built-in defaults. The
// YouTube API key is deliberately not a config key: it is read from
// ANNEXTUBE_API_KEY only, so a published archive can never leak it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/con-org/annextube-sub000/internal/annex"
	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/discovery"
	"github.com/con-org/annextube-sub000/internal/organize"
	"github.com/con-org/annextube-sub000/internal/paths"
	"github.com/con-org/annextube-sub000/internal/quota"
	"github.com/con-org/annextube-sub000/internal/ratelimit"
	"github.com/con-org/annextube-sub000/internal/telemetry"
)

// ErrInvalid tags every configuration failure, including a missing or
// unreadable file, so callers can map the whole class to one exit path.
var ErrInvalid = errors.New("invalid configuration")

// EnvAPIKey names the only supported source for the YouTube Data API
// key. Keeping it out of the file keeps it out of the git history.
const EnvAPIKey = "ANNEXTUBE_API_KEY"

var validate = validator.New()

// Config is the decoded configuration tree. Field defaults are applied
// during Load; a zero Config is not usable directly.
type Config struct {
	// LogLevel selects the zerolog level for the whole process.
	LogLevel string `mapstructure:"log_level" validate:"required"`

	Sources []Source `mapstructure:"sources" validate:"dive"`

	Components   Components   `mapstructure:"components"`
	Organization Organization `mapstructure:"organization"`
	Filters      Filters      `mapstructure:"filters"`
	Backup       Backup       `mapstructure:"backup"`
	API          API          `mapstructure:"api"`
	Network      Network      `mapstructure:"network"`
	Telemetry    Telemetry    `mapstructure:"telemetry"`
}

// Source is one [[sources]] entry: a channel, playlist, or explicit
// video list to archive.
type Source struct {
	// Name is an optional display label for logs and commit messages.
	Name string `mapstructure:"name"`

	// URL identifies the source: a channel URL or @handle, a playlist
	// URL or id, or a whitespace/comma separated list of video ids.
	URL string `mapstructure:"url" validate:"required"`

	// Kind forces the interpretation of URL. Empty means detect.
	Kind string `mapstructure:"kind" validate:"omitempty,oneof=channel playlist video-list"`

	// Enabled defaults to true when the key is absent.
	Enabled *bool `mapstructure:"enabled"`

	// IncludePlaylists is "all", "none" (default), or a regular
	// expression matched against playlist titles. Channel sources only.
	IncludePlaylists string `mapstructure:"include_playlists"`

	// ExcludePlaylists is a regular expression removing playlists from
	// whatever IncludePlaylists and IncludePodcasts selected.
	ExcludePlaylists string `mapstructure:"exclude_playlists"`

	// IncludePodcasts additionally selects the channel's podcast shelf.
	IncludePodcasts bool `mapstructure:"include_podcasts"`
}

// IsEnabled reports whether the source takes part in runs.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Components toggles what gets archived per video.
type Components struct {
	// Videos enables downloading media content through the annex.
	// Off by default: URL registration alone keeps archives lean.
	Videos bool `mapstructure:"videos"`

	// Metadata enables metadata.json refresh. Disabling it still
	// writes metadata for brand-new videos, since the archive layout
	// depends on it.
	Metadata bool `mapstructure:"metadata"`

	// CommentsDepth caps comments fetched per video; 0 disables.
	CommentsDepth int `mapstructure:"comments_depth" validate:"min=0"`

	// Captions enables caption track archival.
	Captions bool `mapstructure:"captions"`

	// CaptionLanguages is a regular expression selecting caption
	// languages; empty selects every track.
	CaptionLanguages string `mapstructure:"caption_languages"`

	// AutoTranslatedCaptions also stores auto-generated tracks.
	AutoTranslatedCaptions bool `mapstructure:"auto_translated_captions"`

	// Thumbnails enables thumbnail archival.
	Thumbnails bool `mapstructure:"thumbnails"`
}

// Organization controls the on-disk layout of the archive.
type Organization struct {
	// VideoPathPattern positions each video directory under videos/.
	VideoPathPattern string `mapstructure:"video_path_pattern" validate:"required"`

	// PlaylistPrefixWidth is the zero-padded width of the ordering
	// prefix on playlist symlinks.
	PlaylistPrefixWidth int `mapstructure:"playlist_prefix_width" validate:"min=1,max=9"`

	// PlaylistPrefixSeparator sits between the prefix and the name.
	PlaylistPrefixSeparator string `mapstructure:"playlist_prefix_separator" validate:"required"`

	// AnnexCaptions routes .vtt files into the annex instead of git.
	AnnexCaptions bool `mapstructure:"annex_captions"`
}

// Filters narrows which videos a run touches.
type Filters struct {
	// DateStart and DateEnd bound the published date, inclusive,
	// formatted YYYY-MM-DD. Empty means unbounded.
	DateStart string `mapstructure:"date_start"`
	DateEnd   string `mapstructure:"date_end"`

	// License keeps only videos with the given license.
	License string `mapstructure:"license" validate:"omitempty,oneof=any youtube creativeCommon"`

	// Limit caps new videos archived per source per run; 0 is no cap.
	Limit int `mapstructure:"limit" validate:"min=0"`

	// MinDuration and MaxDuration bound video length in seconds;
	// 0 means unbounded.
	MinDuration int `mapstructure:"min_duration" validate:"min=0"`
	MaxDuration int `mapstructure:"max_duration" validate:"min=0"`

	// ExcludeShorts skips videos detected as Shorts.
	ExcludeShorts bool `mapstructure:"exclude_shorts"`
}

// Backup tunes run mechanics.
type Backup struct {
	// CheckpointInterval is the number of completed videos between
	// intermediate commits.
	CheckpointInterval int `mapstructure:"checkpoint_interval" validate:"min=1"`

	// AutoCommitOnInterrupt commits completed work when a run is
	// interrupted instead of leaving the tree dirty.
	AutoCommitOnInterrupt bool `mapstructure:"auto_commit_on_interrupt"`

	// SocialWindowDays bounds the comment-refresh window in
	// incremental modes.
	SocialWindowDays int `mapstructure:"social_window_days" validate:"min=0"`

	// Workers sizes the metadata prefetch pool.
	Workers int `mapstructure:"workers" validate:"min=1,max=64"`
}

// API tunes quota-exhaustion handling.
type API struct {
	// QuotaAutoWait sleeps through quota exhaustion until the daily
	// reset instead of failing the run.
	QuotaAutoWait bool `mapstructure:"quota_auto_wait"`

	// QuotaMaxWaitHours caps the cumulative wait per episode.
	QuotaMaxWaitHours int `mapstructure:"quota_max_wait_hours" validate:"min=1"`

	// QuotaCheckIntervalMin is the minutes between wait progress logs.
	QuotaCheckIntervalMin int `mapstructure:"quota_check_interval_min" validate:"min=1"`

	// QuotaTimezone overrides the reset timezone. Empty means the
	// platform default (US Pacific).
	QuotaTimezone string `mapstructure:"quota_timezone"`
}

// Network tunes outbound HTTP behaviour.
type Network struct {
	// Proxy is a proxy URL (socks5://, http://) for all remote calls.
	Proxy string `mapstructure:"proxy"`

	// LimitRate caps content download throughput, e.g. "2.5MB".
	LimitRate string `mapstructure:"limit_rate"`

	// SleepInterval inserts a fixed pause between remote calls,
	// e.g. "500ms".
	SleepInterval string `mapstructure:"sleep_interval"`

	// RequestsPerSecond and Burst shape the API request limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

// Telemetry configures the optional OTLP trace exporter.
type Telemetry struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter" validate:"omitempty,oneof=grpc http"`
	Endpoint    string  `mapstructure:"endpoint"`
	Sampling    float64 `mapstructure:"sampling" validate:"min=0,max=1"`
	Environment string  `mapstructure:"environment"`
}

// DefaultPath returns the configuration location inside an archive.
func DefaultPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(archive.ConfigFile))
}

// Load reads, decodes, and validates the configuration at path.
// Every failure wraps ErrInvalid.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("ANNEXTUBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("components.videos", false)
	v.SetDefault("components.metadata", true)
	v.SetDefault("components.comments_depth", 0)
	v.SetDefault("components.captions", true)
	v.SetDefault("components.caption_languages", "")
	v.SetDefault("components.auto_translated_captions", false)
	v.SetDefault("components.thumbnails", true)

	v.SetDefault("organization.video_path_pattern", paths.DefaultPattern)
	v.SetDefault("organization.playlist_prefix_width", 4)
	v.SetDefault("organization.playlist_prefix_separator", "_")
	v.SetDefault("organization.annex_captions", false)

	v.SetDefault("filters.date_start", "")
	v.SetDefault("filters.date_end", "")
	v.SetDefault("filters.license", "any")
	v.SetDefault("filters.limit", 0)
	v.SetDefault("filters.min_duration", 0)
	v.SetDefault("filters.max_duration", 0)
	v.SetDefault("filters.exclude_shorts", false)

	v.SetDefault("backup.checkpoint_interval", 50)
	v.SetDefault("backup.auto_commit_on_interrupt", true)
	v.SetDefault("backup.social_window_days", 7)
	v.SetDefault("backup.workers", 4)

	v.SetDefault("api.quota_auto_wait", true)
	v.SetDefault("api.quota_max_wait_hours", 48)
	v.SetDefault("api.quota_check_interval_min", 30)
	v.SetDefault("api.quota_timezone", "")

	v.SetDefault("network.proxy", "")
	v.SetDefault("network.limit_rate", "")
	v.SetDefault("network.sleep_interval", "")
	v.SetDefault("network.requests_per_second", 4.0)
	v.SetDefault("network.burst", 8)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "grpc")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.sampling", 1.0)
	v.SetDefault("telemetry.environment", "production")
}

// Validate checks the whole tree, including everything the compile
// helpers would reject, so a bad config fails at load time rather than
// mid-run.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level %q: %v", ErrInvalid, c.LogLevel, err)
	}
	if strings.ContainsAny(c.Organization.PlaylistPrefixSeparator, "/\\\x00") {
		return fmt.Errorf("%w: organization.playlist_prefix_separator %q contains path characters",
			ErrInvalid, c.Organization.PlaylistPrefixSeparator)
	}
	if lo, hi := c.Filters.MinDuration, c.Filters.MaxDuration; hi > 0 && lo > hi {
		return fmt.Errorf("%w: filters.min_duration %d exceeds filters.max_duration %d", ErrInvalid, lo, hi)
	}
	if tz := c.API.QuotaTimezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: api.quota_timezone %q: %v", ErrInvalid, tz, err)
		}
	}
	if p := c.Network.Proxy; p != "" {
		u, err := url.Parse(p)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: network.proxy %q is not a URL", ErrInvalid, p)
		}
	}

	if _, err := c.CompileSources(); err != nil {
		return err
	}
	if _, err := c.PathPattern(); err != nil {
		return err
	}
	if _, err := c.CaptionMatcher(); err != nil {
		return err
	}
	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	if _, err := c.RateConfig(); err != nil {
		return err
	}
	return nil
}

// CompileSources turns the enabled [[sources]] entries into discovery
// sources. An empty result is legal; runs report it as nothing to do.
func (c *Config) CompileSources() ([]discovery.Source, error) {
	out := make([]discovery.Source, 0, len(c.Sources))
	for i, s := range c.Sources {
		if !s.IsEnabled() {
			continue
		}
		src, err := compileSource(s)
		if err != nil {
			return nil, fmt.Errorf("%w: sources[%d] %s: %v", ErrInvalid, i, s.URL, err)
		}
		out = append(out, src)
	}
	return out, nil
}

func compileSource(s Source) (discovery.Source, error) {
	kind := discovery.Kind(s.Kind)
	if s.Kind == "" {
		detected, err := discovery.DetectKind(s.URL)
		if err != nil {
			return discovery.Source{}, err
		}
		kind = detected
	}

	// Fail at load time when the URL cannot serve the declared kind.
	var err error
	switch kind {
	case discovery.KindChannel:
		_, err = discovery.ParseChannelRef(s.URL)
	case discovery.KindPlaylist:
		_, err = discovery.ParsePlaylistID(s.URL)
	case discovery.KindVideoList:
		_, err = discovery.ParseVideoIDs(s.URL)
	}
	if err != nil {
		return discovery.Source{}, err
	}

	sel := discovery.PlaylistSelection{Podcasts: s.IncludePodcasts}
	switch s.IncludePlaylists {
	case "", "none":
	case "all":
		sel.All = true
	default:
		re, err := regexp.Compile(s.IncludePlaylists)
		if err != nil {
			return discovery.Source{}, fmt.Errorf("include_playlists: %v", err)
		}
		sel.Include = re
	}
	if s.ExcludePlaylists != "" {
		re, err := regexp.Compile(s.ExcludePlaylists)
		if err != nil {
			return discovery.Source{}, fmt.Errorf("exclude_playlists: %v", err)
		}
		sel.Exclude = re
	}
	if kind != discovery.KindChannel && (sel.Enabled() || sel.Podcasts) {
		return discovery.Source{}, errors.New("playlist selection applies to channel sources only")
	}

	return discovery.Source{Name: s.Name, URL: s.URL, Kind: kind, Playlists: sel}, nil
}

// PathPattern compiles organization.video_path_pattern.
func (c *Config) PathPattern() (*paths.Pattern, error) {
	p, err := paths.Parse(c.Organization.VideoPathPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: organization.video_path_pattern: %v", ErrInvalid, err)
	}
	return p, nil
}

// CaptionMatcher compiles components.caption_languages. A nil matcher
// selects every track.
func (c *Config) CaptionMatcher() (*regexp.Regexp, error) {
	expr := c.Components.CaptionLanguages
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: components.caption_languages: %v", ErrInvalid, err)
	}
	return re, nil
}

// DateRange parses the published-date filter. Both bounds are
// inclusive UTC calendar days; the returned end is the first instant
// past the range so callers test with Before. Zero times mean unset.
func (c *Config) DateRange() (start, end time.Time, err error) {
	if raw := c.Filters.DateStart; raw != "" {
		start, err = time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: filters.date_start %q: expected YYYY-MM-DD", ErrInvalid, raw)
		}
	}
	if raw := c.Filters.DateEnd; raw != "" {
		end, err = time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: filters.date_end %q: expected YYYY-MM-DD", ErrInvalid, raw)
		}
		end = end.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: filters.date_end precedes filters.date_start", ErrInvalid)
	}
	return start, end, nil
}

// QuotaConfig maps the [api] section onto the quota manager.
func (c *Config) QuotaConfig() quota.Config {
	return quota.Config{
		AutoWait:      c.API.QuotaAutoWait,
		MaxWait:       time.Duration(c.API.QuotaMaxWaitHours) * time.Hour,
		CheckInterval: time.Duration(c.API.QuotaCheckIntervalMin) * time.Minute,
		Timezone:      c.API.QuotaTimezone,
	}
}

// RateConfig maps the [network] section onto the shared limiter.
func (c *Config) RateConfig() (ratelimit.Config, error) {
	rc := ratelimit.DefaultConfig()
	if c.Network.RequestsPerSecond > 0 {
		rc.RequestsPerSecond = rate.Limit(c.Network.RequestsPerSecond)
	}
	if c.Network.Burst > 0 {
		rc.Burst = c.Network.Burst
	}
	if raw := c.Network.SleepInterval; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return ratelimit.Config{}, fmt.Errorf("%w: network.sleep_interval %q: %v", ErrInvalid, raw, err)
		}
		if d < 0 {
			return ratelimit.Config{}, fmt.Errorf("%w: network.sleep_interval %q is negative", ErrInvalid, raw)
		}
		rc.SleepInterval = d
	}
	if raw := c.Network.LimitRate; raw != "" {
		n, err := humanize.ParseBytes(raw)
		if err != nil {
			return ratelimit.Config{}, fmt.Errorf("%w: network.limit_rate %q: %v", ErrInvalid, raw, err)
		}
		rc.BytesPerSecond = int(n)
	}
	return rc, nil
}

// TelemetryConfig maps the [telemetry] section onto the tracer
// provider. The binary injects its version.
func (c *Config) TelemetryConfig(serviceVersion string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "annextube",
		ServiceVersion: serviceVersion,
		Environment:    c.Telemetry.Environment,
		ExporterType:   c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		SamplingRate:   c.Telemetry.Sampling,
	}
}

// Policy maps organization toggles onto the annex routing policy.
func (c *Config) Policy() annex.Policy {
	return annex.Policy{AnnexVTT: c.Organization.AnnexCaptions}
}

// OrganizeOptions maps organization toggles onto playlist link naming.
func (c *Config) OrganizeOptions() organize.Options {
	return organize.Options{
		Width:     c.Organization.PlaylistPrefixWidth,
		Separator: c.Organization.PlaylistPrefixSeparator,
	}
}

// SocialWindow returns backup.social_window_days as a duration.
func (c *Config) SocialWindow() time.Duration {
	return time.Duration(c.Backup.SocialWindowDays) * 24 * time.Hour
}

// APIKey reads the YouTube Data API key from the environment.
func APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(EnvAPIKey))
	if key == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrInvalid, EnvAPIKey)
	}
	return key, nil
}
