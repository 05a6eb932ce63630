// SPDX-License-Identifier: MIT

package config

// Template is the starter configuration written by `annextube init`.
// Every key appears with its default so a fresh archive documents
// itself. It must stay loadable as-is; TestTemplateIsLoadable enforces
// that.
const Template = `# annextube configuration
#
# The YouTube Data API key is NOT configured here. Export it instead:
#
#   export ANNEXTUBE_API_KEY=...
#
# Any key below can also be overridden through the environment using
# the ANNEXTUBE_ prefix, e.g. ANNEXTUBE_BACKUP_WORKERS=8.

# Log verbosity: trace, debug, info, warn, error.
log_level = "info"

# Each [[sources]] block is one channel, playlist, or video list.
#
# [[sources]]
# name = "Example Channel"            # display label for logs and commits
# url = "@examplechannel"             # channel URL/@handle, playlist URL/id, or video ids
# kind = "channel"                    # channel | playlist | video-list; omit to detect
# enabled = true
# include_playlists = "none"          # all | none | regex on playlist titles
# exclude_playlists = ""              # regex removing playlists from the selection
# include_podcasts = false            # also archive the podcast shelf

[components]
# Register video URLs only; flip to true to also download media
# content into the annex.
videos = false
metadata = true
# Maximum comments per video; 0 disables comment archival.
comments_depth = 0
captions = true
# Regex on caption language codes; empty keeps every track.
caption_languages = ""
auto_translated_captions = false
thumbnails = true

[organization]
# Placeholders: {year} {month} {date} {video_id} {sanitized_title}
# {channel_id} {channel_name}
video_path_pattern = "{year}/{month}/{date}_{sanitized_title}"
playlist_prefix_width = 4
playlist_prefix_separator = "_"
# Route .vtt caption files into the annex instead of git.
annex_captions = false

[filters]
# Inclusive published-date bounds, YYYY-MM-DD; empty is unbounded.
date_start = ""
date_end = ""
# any | youtube | creativeCommon
license = "any"
# New videos per source per run; 0 is unlimited.
limit = 0
# Video length bounds in seconds; 0 is unbounded.
min_duration = 0
max_duration = 0
exclude_shorts = false

[backup]
# Commit after this many completed videos.
checkpoint_interval = 50
auto_commit_on_interrupt = true
# Days of comment refresh in incremental modes.
social_window_days = 7
# Metadata prefetch workers.
workers = 4

[api]
# Sleep through quota exhaustion until the daily reset.
quota_auto_wait = true
quota_max_wait_hours = 48
quota_check_interval_min = 30

[network]
# proxy = "socks5://127.0.0.1:9050"
# limit_rate = "2.5MB"
# sleep_interval = "500ms"
requests_per_second = 4.0
burst = 8

[telemetry]
enabled = false
# grpc | http
exporter = "grpc"
endpoint = ""
sampling = 1.0
environment = "production"
`
