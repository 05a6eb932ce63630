// SPDX-License-Identifier: MIT

// Package youtube is the single boundary to the video platform. It
// speaks the Data API v3 for listings, metadata, and comments, and the
// public timedtext endpoint for caption content. Binary video content
// is never fetched here; the pipeline registers watch URLs against the
// store instead.
package youtube

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/con-org/annextube-sub000/internal/archive"
)

// ErrStop halts enumeration early. Visit callbacks return it to stop
// paging without an error, the way fs.SkipAll works for walks.
var ErrStop = errors.New("stop enumeration")

// ChannelRef identifies a channel by exactly one of its identifiers.
// The most specific one set wins: ID, then handle, then legacy
// username.
type ChannelRef struct {
	ID       string
	Handle   string
	Username string
}

// Identity returns the identifier a log line should show.
func (r ChannelRef) Identity() string {
	switch {
	case r.ID != "":
		return r.ID
	case r.Handle != "":
		return r.Handle
	case r.Username != "":
		return r.Username
	default:
		return "unknown"
	}
}

// Channel is the resolved form of a ChannelRef.
type Channel struct {
	ID                string
	Title             string
	UploadsPlaylistID string
}

// Stub is the minimal listing entry used for incremental scans; full
// metadata is fetched separately in batches.
type Stub struct {
	VideoID     string
	Title       string
	Published   time.Time
	ChannelID   string
	ChannelName string
	Position    int64
}

// PlaylistInfo describes one channel playlist.
type PlaylistInfo struct {
	ID          string
	Title       string
	Description string
	ChannelID   string
	ChannelName string
	ItemCount   int64
	Podcast     bool
}

// Caption is one downloaded caption track.
type Caption struct {
	Language      string
	AutoGenerated bool
	VTT           []byte
}

// Remote is the platform adapter the pipeline consumes. Every method
// honors ctx and maps transport failures into the package's error
// taxonomy.
type Remote interface {
	// ResolveChannel resolves a channel reference to its id, title, and
	// uploads playlist.
	ResolveChannel(ctx context.Context, ref ChannelRef) (*Channel, error)

	// ListChannelVideos visits upload stubs newest first, stopping when
	// a stub published before since is reached (zero since means no
	// cutoff) or when visit returns ErrStop.
	ListChannelVideos(ctx context.Context, uploadsPlaylistID string, since time.Time, visit func(Stub) error) error

	// ListPlaylistItems visits playlist entries in playlist order.
	ListPlaylistItems(ctx context.Context, playlistID string, visit func(Stub) error) error

	// ListChannelPlaylists returns the channel's playlists, optionally
	// merging playlists surfaced on its podcast shelf.
	ListChannelPlaylists(ctx context.Context, channelID string, includePodcasts bool) ([]PlaylistInfo, error)

	// GetPlaylist resolves a single playlist id to its metadata.
	GetPlaylist(ctx context.Context, playlistID string) (*PlaylistInfo, error)

	// FetchVideoMetadata fetches full metadata for up to any number of
	// ids, batching requests internally. Ids absent from the response
	// (private or removed content) come back in the second return.
	FetchVideoMetadata(ctx context.Context, ids []string) ([]*archive.Video, []string, error)

	// FetchComments returns up to maxCount comments newer than since,
	// newest threads first. maxCount zero disables comment fetching.
	FetchComments(ctx context.Context, videoID string, maxCount int, since time.Time) ([]archive.Comment, error)

	// FetchCaptions returns the video's full caption-track inventory.
	// VTT content is populated only for tracks whose language matches
	// (nil matches everything), and for auto-generated tracks only when
	// includeAuto is set; auto-translated variants are never listed.
	FetchCaptions(ctx context.Context, videoID string, match *regexp.Regexp, includeAuto bool) ([]Caption, error)

	// DownloadThumbnail fetches thumbnail bytes through the adapter's
	// throttled transport.
	DownloadThumbnail(ctx context.Context, url string) ([]byte, error)
}
