// SPDX-License-Identifier: MIT

// Package discovery expands configured sources into the concrete
// targets the pipeline iterates: an uploads listing, a set of
// playlists, or a literal video list. Playlist include/exclude
// filtering happens here so the scheduler never sees unselected
// playlists.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/log"
	"github.com/con-org/annextube-sub000/internal/youtube"
)

// Kind classifies a configured source.
type Kind string

const (
	KindChannel   Kind = "channel"
	KindPlaylist  Kind = "playlist"
	KindVideoList Kind = "video-list"
)

// Valid reports whether k is a recognized source kind.
func (k Kind) Valid() bool {
	switch k {
	case KindChannel, KindPlaylist, KindVideoList:
		return true
	}
	return false
}

// PlaylistSelection is the compiled form of a source's playlist
// configuration. Include nil with All false means no regular playlists;
// the podcast shelf is selected independently and additively, subject
// only to the exclude pattern.
type PlaylistSelection struct {
	All      bool
	Include  *regexp.Regexp
	Exclude  *regexp.Regexp
	Podcasts bool
}

// Enabled reports whether any regular playlist can be selected.
func (s PlaylistSelection) Enabled() bool {
	return s.All || s.Include != nil
}

// selects applies the selection to one discovered playlist.
func (s PlaylistSelection) selects(info youtube.PlaylistInfo) bool {
	if s.Exclude != nil && s.Exclude.MatchString(info.Title) {
		return false
	}
	if info.Podcast && s.Podcasts {
		return true
	}
	if !s.Enabled() {
		return false
	}
	if s.Include != nil && !s.Include.MatchString(info.Title) {
		return false
	}
	return true
}

// Source is one configured archiving root, compiled for this run.
type Source struct {
	// Name is the display identity used in logs and commit messages.
	// Falls back to the URL when the configuration leaves it empty.
	Name      string
	URL       string
	Kind      Kind
	Playlists PlaylistSelection
}

// Label returns the source's display identity.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.URL
}

// TargetKind distinguishes the work-item flavors a source expands to.
type TargetKind string

const (
	// TargetUploads enumerates a channel's full upload history.
	TargetUploads TargetKind = "uploads"
	// TargetPlaylist archives one playlist's record and membership.
	TargetPlaylist TargetKind = "playlist"
	// TargetVideos archives an explicit list of video ids.
	TargetVideos TargetKind = "videos"
)

// Target is one concrete work item handed to the pipeline.
type Target struct {
	Kind TargetKind

	// Channel identity, set for uploads targets.
	ChannelID         string
	ChannelName       string
	UploadsPlaylistID string

	// Playlist metadata, set for playlist targets.
	Playlist youtube.PlaylistInfo

	// Explicit ids, set for video-list targets.
	VideoIDs []string
}

// Expansion is a fully resolved source: its display title plus the
// ordered targets to process. Uploads come before playlists so
// playlist membership can link videos archived earlier in the same
// run.
type Expansion struct {
	Source  Source
	Title   string
	Targets []Target
}

// Expand resolves a source against the remote. Resolution failures are
// returned unwrapped from the adapter so the caller can classify them.
func Expand(ctx context.Context, remote youtube.Remote, src Source) (*Expansion, error) {
	logger := log.WithComponentFromContext(ctx, "discovery")

	exp := &Expansion{Source: src, Title: src.Label()}

	switch src.Kind {
	case KindChannel:
		ref, err := ParseChannelRef(src.URL)
		if err != nil {
			return nil, err
		}
		ch, err := remote.ResolveChannel(ctx, ref)
		if err != nil {
			return nil, err
		}
		if ch.Title != "" {
			exp.Title = ch.Title
		}
		exp.Targets = append(exp.Targets, Target{
			Kind:              TargetUploads,
			ChannelID:         ch.ID,
			ChannelName:       ch.Title,
			UploadsPlaylistID: ch.UploadsPlaylistID,
		})

		if src.Playlists.Enabled() || src.Playlists.Podcasts {
			lists, err := remote.ListChannelPlaylists(ctx, ch.ID, src.Playlists.Podcasts)
			if err != nil {
				return nil, err
			}
			for _, info := range lists {
				if !src.Playlists.selects(info) {
					continue
				}
				if info.ChannelID == "" {
					info.ChannelID = ch.ID
				}
				if info.ChannelName == "" {
					info.ChannelName = ch.Title
				}
				exp.Targets = append(exp.Targets, Target{
					Kind:        TargetPlaylist,
					ChannelID:   info.ChannelID,
					ChannelName: info.ChannelName,
					Playlist:    info,
				})
			}
		}

	case KindPlaylist:
		id, err := ParsePlaylistID(src.URL)
		if err != nil {
			return nil, err
		}
		info, err := remote.GetPlaylist(ctx, id)
		if err != nil {
			return nil, err
		}
		if info.Title != "" {
			exp.Title = info.Title
		}
		exp.Targets = append(exp.Targets, Target{
			Kind:        TargetPlaylist,
			ChannelID:   info.ChannelID,
			ChannelName: info.ChannelName,
			Playlist:    *info,
		})

	case KindVideoList:
		ids, err := ParseVideoIDs(src.URL)
		if err != nil {
			return nil, err
		}
		exp.Targets = append(exp.Targets, Target{Kind: TargetVideos, VideoIDs: ids})

	default:
		return nil, fmt.Errorf("source %s: unknown kind %q", src.Label(), src.Kind)
	}

	logger.Debug().
		Str(log.FieldSource, exp.Title).
		Str("kind", string(src.Kind)).
		Int("targets", len(exp.Targets)).
		Msg("source expanded")
	return exp, nil
}

var (
	channelIDRe = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)
	handleRe    = regexp.MustCompile(`^@[A-Za-z0-9._-]{3,30}$`)
	// platform video ids are exactly 11 characters; playlist ids are
	// longer, so bare tokens stay unambiguous
	videoIDRe  = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	playlistRe = regexp.MustCompile(`^[0-9A-Za-z_-]{13,}$`)
	splitRe    = regexp.MustCompile(`[\s,]+`)
)

// DetectKind classifies a source URL when the configuration does not
// name a kind. Multiple whitespace- or comma-separated tokens always
// mean a video list.
func DetectKind(raw string) (Kind, error) {
	tokens := splitRe.Split(strings.TrimSpace(raw), -1)
	if len(tokens) > 1 {
		return KindVideoList, nil
	}
	if _, err := ParseChannelRef(raw); err == nil {
		return KindChannel, nil
	}
	if _, err := extractVideoID(raw); err == nil {
		return KindVideoList, nil
	}
	if _, err := ParsePlaylistID(raw); err == nil {
		return KindPlaylist, nil
	}
	return "", fmt.Errorf("cannot classify source %q: not a channel, playlist, or video reference", raw)
}

// ParseChannelRef extracts a channel reference from a URL, a bare
// channel id, or a bare @handle. Legacy /c/ custom URLs cannot be
// resolved with key-only API access and are rejected with advice.
func ParseChannelRef(raw string) (youtube.ChannelRef, error) {
	raw = strings.TrimSpace(raw)
	if channelIDRe.MatchString(raw) {
		return youtube.ChannelRef{ID: raw}, nil
	}
	if handleRe.MatchString(raw) {
		return youtube.ChannelRef{Handle: raw}, nil
	}

	u, err := parsePlatformURL(raw)
	if err != nil {
		return youtube.ChannelRef{}, err
	}
	segs := pathSegments(u)
	if len(segs) == 0 {
		return youtube.ChannelRef{}, fmt.Errorf("%q: no channel in url", raw)
	}

	switch {
	case segs[0] == "channel" && len(segs) > 1 && channelIDRe.MatchString(segs[1]):
		return youtube.ChannelRef{ID: segs[1]}, nil
	case strings.HasPrefix(segs[0], "@") && handleRe.MatchString(segs[0]):
		return youtube.ChannelRef{Handle: segs[0]}, nil
	case segs[0] == "user" && len(segs) > 1 && segs[1] != "":
		return youtube.ChannelRef{Username: segs[1]}, nil
	case segs[0] == "c":
		return youtube.ChannelRef{}, fmt.Errorf("%q: custom channel urls cannot be resolved; use the channel id or @handle", raw)
	}
	return youtube.ChannelRef{}, fmt.Errorf("%q: not a channel url", raw)
}

// ParsePlaylistID extracts a playlist id from a playlist URL, any URL
// carrying a list parameter, or a bare id.
func ParsePlaylistID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if playlistRe.MatchString(raw) && !channelIDRe.MatchString(raw) {
		return raw, nil
	}
	u, err := parsePlatformURL(raw)
	if err != nil {
		return "", err
	}
	if id := u.Query().Get("list"); id != "" && playlistRe.MatchString(id) {
		return id, nil
	}
	return "", fmt.Errorf("%q: no playlist id", raw)
}

// ParseVideoIDs parses a video-list source: whitespace- or
// comma-separated watch URLs and bare ids, deduplicated in order.
func ParseVideoIDs(raw string) ([]string, error) {
	var ids []string
	seen := map[string]bool{}
	for _, token := range splitRe.Split(strings.TrimSpace(raw), -1) {
		if token == "" {
			continue
		}
		id, err := extractVideoID(token)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("video list is empty")
	}
	return ids, nil
}

func extractVideoID(token string) (string, error) {
	if videoIDRe.MatchString(token) {
		return token, nil
	}
	u, err := parsePlatformURL(token)
	if err != nil {
		return "", err
	}

	if id := u.Query().Get("v"); id != "" {
		if err := archive.ValidateVideoID(id); err != nil {
			return "", fmt.Errorf("%q: %w", token, err)
		}
		return id, nil
	}

	segs := pathSegments(u)
	if u.Host == "youtu.be" && len(segs) > 0 {
		if err := archive.ValidateVideoID(segs[0]); err != nil {
			return "", fmt.Errorf("%q: %w", token, err)
		}
		return segs[0], nil
	}
	if len(segs) > 1 {
		switch segs[0] {
		case "shorts", "embed", "live", "v":
			if err := archive.ValidateVideoID(segs[1]); err != nil {
				return "", fmt.Errorf("%q: %w", token, err)
			}
			return segs[1], nil
		}
	}
	return "", fmt.Errorf("%q: no video id", token)
}

var platformHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

func parsePlatformURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if !platformHosts[strings.ToLower(u.Host)] {
		return nil, fmt.Errorf("%q: not a youtube url", raw)
	}
	return u, nil
}

func pathSegments(u *url.URL) []string {
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
