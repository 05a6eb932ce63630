// SPDX-License-Identifier: MIT

// Package archive defines the on-disk vocabulary of an annextube archive:
// the entity types, the metadata.json and comments.json codecs, the escaped
// TSV dialect, and the per-video file layout. Everything that reads or
// writes the tree goes through the contracts in this package.
package archive

import (
	"fmt"
	"path"
	"strings"
)

// Tree layout, relative to the archive root.
const (
	VideosDir    = "videos"
	PlaylistsDir = "playlists"

	VideosTSV    = "videos/videos.tsv"
	PlaylistsTSV = "playlists/playlists.tsv"
	AuthorsTSV   = "authors.tsv"

	ConfigDir  = ".annextube"
	ConfigFile = ".annextube/config.toml"

	// Per-video directory entries.
	MetadataFile     = "metadata.json"
	CommentsFile     = "comments.json"
	CaptionsManifest = "captions.tsv"

	// Per-playlist directory entries.
	PlaylistFile = "playlist.json"
)

// VideoDir returns the repo-relative directory for a video given the
// resolver's relative pattern expansion.
func VideoDir(patternRel string) string {
	return path.Join(VideosDir, patternRel)
}

// PlaylistDir returns the repo-relative directory for a playlist.
func PlaylistDir(sanitizedTitle string) string {
	return path.Join(PlaylistsDir, sanitizedTitle)
}

// ThumbnailFile names the thumbnail entry for a given extension ("jpg",
// "webp", ...).
func ThumbnailFile(ext string) string {
	return "thumbnail." + strings.TrimPrefix(ext, ".")
}

// CaptionFile names the WebVTT file for one caption language code. Language
// codes may carry vendor suffixes (en-orig, en-cur1); anything unsafe for a
// filename is folded to '-'.
func CaptionFile(lang string) string {
	return "video." + safeLang(lang) + ".vtt"
}

// VideoFile names the downloaded container for a video.
func VideoFile(container string) string {
	return "video." + strings.TrimPrefix(container, ".")
}

func safeLang(lang string) string {
	var b strings.Builder
	for _, r := range lang {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "und"
	}
	return b.String()
}

// IsThumbnail reports whether name is a thumbnail entry of a video dir.
func IsThumbnail(name string) bool {
	return strings.HasPrefix(name, "thumbnail.")
}

// LangFromCaptionFile inverts CaptionFile; ok is false for non-caption names.
func LangFromCaptionFile(name string) (lang string, ok bool) {
	if !strings.HasPrefix(name, "video.") || !strings.HasSuffix(name, ".vtt") {
		return "", false
	}
	lang = strings.TrimSuffix(strings.TrimPrefix(name, "video."), ".vtt")
	if lang == "" {
		return "", false
	}
	return lang, true
}

// TimestampFields are provenance fields that never count as content changes.
// Rewrites that differ only in these fields must not produce a commit.
var TimestampFields = []string{"fetched_at", "updated_at", "last_modified"}

// FiletypeTag values attached to indirect entries.
const (
	TagFiletypeVideo     = "video"
	TagFiletypeThumbnail = "thumbnail"
)

// TagFiletypeCaption returns the filetype tag for a caption language.
func TagFiletypeCaption(lang string) string {
	return "caption." + lang
}

// WatchURL returns the canonical watch URL used for URL-backed registration.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ChannelURL returns the canonical channel URL for an author/channel id.
func ChannelURL(channelID string) string {
	return "https://www.youtube.com/channel/" + channelID
}

// ValidateVideoID rejects ids that could not have come from the platform;
// they feed directory names and TSV keys.
func ValidateVideoID(id string) error {
	if id == "" {
		return fmt.Errorf("empty video id")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("video id %q contains invalid character %q", id, r)
		}
	}
	return nil
}
