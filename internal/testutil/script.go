// SPDX-License-Identifier: MIT

// Package testutil carries fixtures shared across package tests:
// YAML-scripted remote worlds and archive tree builders. Scripts keep
// multi-video scenarios readable where programmatic FakeRemote setup
// would drown the test in struct literals.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/youtube"
)

// Script is the YAML shape of a scripted remote world.
type Script struct {
	Channels  []ScriptChannel  `yaml:"channels"`
	Videos    []ScriptVideo    `yaml:"videos"`
	Playlists []ScriptPlaylist `yaml:"playlists"`
}

// ScriptChannel declares one channel and its uploads playlist id.
type ScriptChannel struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Handle   string `yaml:"handle"`
	Username string `yaml:"username"`
	Uploads  string `yaml:"uploads"`
}

// ScriptVideo declares one video with optional comments, captions, and
// thumbnail bytes. Channel names backfill from the channels section.
type ScriptVideo struct {
	ID           string          `yaml:"id"`
	Title        string          `yaml:"title"`
	Description  string          `yaml:"description"`
	Channel      string          `yaml:"channel"`
	Published    time.Time       `yaml:"published"`
	Duration     int64           `yaml:"duration"`
	Views        int64           `yaml:"views"`
	Likes        int64           `yaml:"likes"`
	License      string          `yaml:"license"`
	Availability string          `yaml:"availability"`
	ThumbnailURL string          `yaml:"thumbnail_url"`
	Thumbnail    string          `yaml:"thumbnail"`
	Tags         []string        `yaml:"tags"`
	Comments     []ScriptComment `yaml:"comments"`
	Captions     []ScriptCaption `yaml:"captions"`
}

// ScriptComment declares one comment; parent names the thread for
// replies and stays empty for top-level comments.
type ScriptComment struct {
	ID        string    `yaml:"id"`
	Author    string    `yaml:"author"`
	AuthorID  string    `yaml:"author_id"`
	Text      string    `yaml:"text"`
	Published time.Time `yaml:"published"`
	Likes     int64     `yaml:"likes"`
	Parent    string    `yaml:"parent"`
}

// ScriptCaption declares one caption track.
type ScriptCaption struct {
	Language string `yaml:"language"`
	Auto     bool   `yaml:"auto"`
	VTT      string `yaml:"vtt"`
}

// ScriptPlaylist declares one playlist and its member video ids in
// playlist order.
type ScriptPlaylist struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Channel     string   `yaml:"channel"`
	Podcast     bool     `yaml:"podcast"`
	Items       []string `yaml:"items"`
}

// LoadScript builds a fake remote from a YAML world description.
func LoadScript(data []byte) (*youtube.FakeRemote, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}

	remote := youtube.NewFakeRemote()

	titles := map[string]string{}
	for _, ch := range s.Channels {
		titles[ch.ID] = ch.Title
		remote.AddChannel(youtube.FakeChannel{
			Channel:  youtube.Channel{ID: ch.ID, Title: ch.Title, UploadsPlaylistID: ch.Uploads},
			Handle:   ch.Handle,
			Username: ch.Username,
		})
	}

	for _, v := range s.Videos {
		video, err := scriptedVideo(v, titles)
		if err != nil {
			return nil, err
		}
		remote.AddVideo(video)

		if len(v.Comments) > 0 {
			comments := make([]archive.Comment, 0, len(v.Comments))
			for _, c := range v.Comments {
				comments = append(comments, archive.Comment{
					CommentID: c.ID,
					Author:    c.Author,
					AuthorID:  c.AuthorID,
					Text:      c.Text,
					Published: c.Published.UTC(),
					LikeCount: c.Likes,
					ParentID:  c.Parent,
				})
			}
			remote.SetComments(v.ID, comments...)
		}
		if len(v.Captions) > 0 {
			tracks := make([]youtube.Caption, 0, len(v.Captions))
			for _, tr := range v.Captions {
				tracks = append(tracks, youtube.Caption{
					Language:      tr.Language,
					AutoGenerated: tr.Auto,
					VTT:           []byte(tr.VTT),
				})
			}
			remote.SetCaptions(v.ID, tracks...)
		}
		if v.ThumbnailURL != "" && v.Thumbnail != "" {
			remote.SetThumbnail(v.ThumbnailURL, []byte(v.Thumbnail))
		}
	}

	for _, p := range s.Playlists {
		remote.AddPlaylist(youtube.PlaylistInfo{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			ChannelID:   p.Channel,
			ChannelName: titles[p.Channel],
			Podcast:     p.Podcast,
		}, p.Items...)
	}

	return remote, nil
}

// scriptedVideo maps a script entry onto the record shape the adapter
// produces: metadata-only download status, canonical source URL, UTC
// instants.
func scriptedVideo(v ScriptVideo, titles map[string]string) (*archive.Video, error) {
	if err := archive.ValidateVideoID(v.ID); err != nil {
		return nil, fmt.Errorf("script video: %w", err)
	}
	avail := archive.Availability(v.Availability)
	if v.Availability == "" {
		avail = archive.AvailabilityPublic
	}
	if !avail.Valid() {
		return nil, fmt.Errorf("script video %s: unknown availability %q", v.ID, v.Availability)
	}
	license := v.License
	if license == "" {
		license = "youtube"
	}

	video := &archive.Video{
		VideoID:         v.ID,
		Title:           v.Title,
		Description:     v.Description,
		ChannelID:       v.Channel,
		ChannelName:     titles[v.Channel],
		Published:       v.Published.UTC(),
		DurationSeconds: v.Duration,
		ViewCount:       v.Views,
		LikeCount:       v.Likes,
		License:         license,
		Availability:    avail,
		ThumbnailURL:    v.ThumbnailURL,
		Tags:            v.Tags,
		SourceURL:       archive.WatchURL(v.ID),
		DownloadStatus:  archive.DownloadMetadataOnly,
	}
	video.Normalize()
	return video, nil
}

// MustScript is LoadScript for tests.
func MustScript(t *testing.T, data string) *youtube.FakeRemote {
	t.Helper()
	remote, err := LoadScript([]byte(data))
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	return remote
}
