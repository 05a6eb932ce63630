// SPDX-License-Identifier: MIT
package pipeline

import "fmt"

// Mode selects what a sync run enumerates and which archived videos it
// refreshes.
type Mode string

const (
	// ModeVideosIncremental archives videos published after the newest
	// archived instant per channel and never touches stored records.
	ModeVideosIncremental Mode = "videos-incremental"
	// ModeAllIncremental archives new videos and refreshes known ones
	// still inside the social window.
	ModeAllIncremental Mode = "all-incremental"
	// ModeSocial refreshes counters, comments, and captions for
	// archived videos without enumerating the remote.
	ModeSocial Mode = "social"
	// ModeAllForce refetches everything, including ids recorded as
	// unavailable.
	ModeAllForce Mode = "all-force"
	// ModePlaylists refreshes playlist records and links only, reusing
	// stored per-video metadata.
	ModePlaylists Mode = "playlists"
)

// ParseMode maps a flag or config value onto a Mode. Empty selects the
// default incremental mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeAllIncremental, nil
	case ModeVideosIncremental, ModeAllIncremental, ModeSocial, ModeAllForce, ModePlaylists:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown update mode %q", s)
	}
}
