// SPDX-License-Identifier: MIT
package archive

import (
	"encoding/json"
	"fmt"
	"time"
)

// Playlist is the per-playlist record, serialized as playlist.json inside
// the playlist directory. Items keep the platform's ordering; the symlink
// organizer numbers links from it.
type Playlist struct {
	PlaylistID  string    `json:"playlist_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	Items       []string  `json:"items"`
	ItemCount   int64     `json:"item_count"`
	Path        string    `json:"path"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// EncodePlaylist renders playlist.json with sorted keys and stable item
// order.
func EncodePlaylist(p *Playlist) ([]byte, error) {
	if p.Items == nil {
		p.Items = []string{}
	}
	p.ItemCount = int64(len(p.Items))

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode playlist %s: %w", p.PlaylistID, err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode playlist %s: %w", p.PlaylistID, err)
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode playlist %s: %w", p.PlaylistID, err)
	}
	return append(out, '\n'), nil
}

// DecodePlaylist parses playlist.json.
func DecodePlaylist(data []byte) (*Playlist, error) {
	var p Playlist
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode playlist: %w", err)
	}
	return &p, nil
}
