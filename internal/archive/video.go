// SPDX-License-Identifier: MIT
package archive

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"
)

// Availability states a video can be in. Anything but public lands the id in
// the unavailable registry.
type Availability string

const (
	AvailabilityPublic      Availability = "public"
	AvailabilityUnlisted    Availability = "unlisted"
	AvailabilityPrivate     Availability = "private"
	AvailabilityRemoved     Availability = "removed"
	AvailabilityMembersOnly Availability = "members-only"
)

// Public reports whether the video is fetchable without credentials.
func (a Availability) Public() bool {
	return a == AvailabilityPublic || a == AvailabilityUnlisted
}

// Valid reports whether a is a known availability state.
func (a Availability) Valid() bool {
	switch a {
	case AvailabilityPublic, AvailabilityUnlisted, AvailabilityPrivate,
		AvailabilityRemoved, AvailabilityMembersOnly:
		return true
	}
	return false
}

// DownloadStatus describes how the video binary is tracked.
type DownloadStatus string

const (
	DownloadTrackedURLOnly DownloadStatus = "tracked-url-only"
	DownloadDownloaded     DownloadStatus = "downloaded"
	DownloadMetadataOnly   DownloadStatus = "metadata-only"
)

// Video is the canonical per-video record, serialized as metadata.json.
// Instants carry timezones; list fields are kept sorted so diffs stay
// deterministic.
type Video struct {
	VideoID           string         `json:"video_id"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	ChannelID         string         `json:"channel_id"`
	ChannelName       string         `json:"channel_name"`
	Published         time.Time      `json:"published"`
	DurationSeconds   int64          `json:"duration_seconds"`
	ViewCount         int64          `json:"view_count"`
	LikeCount         int64          `json:"like_count"`
	CommentCount      int64          `json:"comment_count"`
	ThumbnailURL      string         `json:"thumbnail_url"`
	Tags              []string       `json:"tags"`
	Categories        []string       `json:"categories"`
	License           string         `json:"license"`
	Availability      Availability   `json:"availability"`
	CaptionsAvailable []string       `json:"captions_available"`
	HasAutoCaptions   bool           `json:"has_auto_captions"`
	DownloadStatus    DownloadStatus `json:"download_status"`
	SourceURL         string         `json:"source_url"`
	Path              string         `json:"path"`
	FirstFetched      time.Time      `json:"first_fetched"`
	UpdatedAt         time.Time      `json:"updated_at"`

	// Fields present in the file but unknown to this version survive a
	// read-modify-write cycle untouched.
	Unknown map[string]any `json:"-"`
}

// Clone returns a copy that shares nothing with v.
func (v *Video) Clone() *Video {
	if v == nil {
		return nil
	}
	out := *v
	out.Tags = slices.Clone(v.Tags)
	out.Categories = slices.Clone(v.Categories)
	out.CaptionsAvailable = slices.Clone(v.CaptionsAvailable)
	out.Unknown = maps.Clone(v.Unknown)
	return &out
}

// Normalize sorts every list-valued field in place. Callers must invoke it
// before any write or comparison.
func (v *Video) Normalize() {
	sort.Strings(v.Tags)
	sort.Strings(v.Categories)
	sort.Strings(v.CaptionsAvailable)
}

// Validate checks the fields other components key on.
func (v *Video) Validate() error {
	if err := ValidateVideoID(v.VideoID); err != nil {
		return err
	}
	if v.Availability == "" {
		return fmt.Errorf("video %s: empty availability", v.VideoID)
	}
	if !v.Availability.Valid() {
		return fmt.Errorf("video %s: unknown availability %q", v.VideoID, v.Availability)
	}
	return nil
}

// Placeholder builds the minimal record written for a video that turned out
// to be unavailable. Published may be zero when the platform hides it.
func Placeholder(videoID, sourceURL string, availability Availability, now time.Time) *Video {
	return &Video{
		VideoID:           videoID,
		Availability:      availability,
		DownloadStatus:    DownloadMetadataOnly,
		SourceURL:         sourceURL,
		Tags:              []string{},
		Categories:        []string{},
		CaptionsAvailable: []string{},
		FirstFetched:      now,
		UpdatedAt:         now,
	}
}

// IsShort applies the duration heuristic used by the shorts-exclusion filter.
func (v *Video) IsShort() bool {
	return v.DurationSeconds > 0 && v.DurationSeconds <= 60
}
