// SPDX-License-Identifier: MIT
package discovery

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/con-org/annextube-sub000/internal/youtube"
)

// stubRemote overrides only the calls a test expects; anything else
// panics through the nil embedded interface.
type stubRemote struct {
	youtube.Remote
	resolve     func(ref youtube.ChannelRef) (*youtube.Channel, error)
	listLists   func(channelID string, podcasts bool) ([]youtube.PlaylistInfo, error)
	getPlaylist func(id string) (*youtube.PlaylistInfo, error)
}

func (s *stubRemote) ResolveChannel(_ context.Context, ref youtube.ChannelRef) (*youtube.Channel, error) {
	return s.resolve(ref)
}

func (s *stubRemote) ListChannelPlaylists(_ context.Context, channelID string, podcasts bool) ([]youtube.PlaylistInfo, error) {
	return s.listLists(channelID, podcasts)
}

func (s *stubRemote) GetPlaylist(_ context.Context, id string) (*youtube.PlaylistInfo, error) {
	return s.getPlaylist(id)
}

const (
	testChannelID = "UCabcdefghijklmnopqrstuv"
	testUploads   = "UUabcdefghijklmnopqrstuv"
)

func TestDetectKind(t *testing.T) {
	cases := []struct {
		raw  string
		want Kind
	}{
		{"https://www.youtube.com/channel/" + testChannelID, KindChannel},
		{"https://www.youtube.com/@SomeCreator", KindChannel},
		{"https://www.youtube.com/user/oldname", KindChannel},
		{"@SomeCreator", KindChannel},
		{testChannelID, KindChannel},
		{"https://www.youtube.com/playlist?list=PLabcdefghijklmnop", KindPlaylist},
		{"PLabcdefghijklmnop", KindPlaylist},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", KindVideoList},
		{"https://youtu.be/dQw4w9WgXcQ", KindVideoList},
		{"dQw4w9WgXcQ", KindVideoList},
		{"dQw4w9WgXcQ, 9bZkp7q19f0", KindVideoList},
	}
	for _, tc := range cases {
		got, err := DetectKind(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := DetectKind("https://example.com/watch?v=dQw4w9WgXcQ")
	assert.Error(t, err, "foreign host")
}

func TestParseChannelRef(t *testing.T) {
	ref, err := ParseChannelRef("https://www.youtube.com/channel/" + testChannelID + "/videos")
	require.NoError(t, err)
	assert.Equal(t, testChannelID, ref.ID)

	ref, err = ParseChannelRef("https://www.youtube.com/@SomeCreator/streams")
	require.NoError(t, err)
	assert.Equal(t, "@SomeCreator", ref.Handle)

	ref, err = ParseChannelRef("youtube.com/user/oldname")
	require.NoError(t, err)
	assert.Equal(t, "oldname", ref.Username)

	_, err = ParseChannelRef("https://www.youtube.com/c/SomeCustomName")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel id or @handle")

	_, err = ParseChannelRef("https://vimeo.com/channel/whatever")
	assert.Error(t, err)
}

func TestParsePlaylistID(t *testing.T) {
	id, err := ParsePlaylistID("https://www.youtube.com/playlist?list=PLabcdefghijklmnop")
	require.NoError(t, err)
	assert.Equal(t, "PLabcdefghijklmnop", id)

	id, err = ParsePlaylistID("https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLabcdefghijklmnop&index=2")
	require.NoError(t, err)
	assert.Equal(t, "PLabcdefghijklmnop", id)

	id, err = ParsePlaylistID("PLabcdefghijklmnop")
	require.NoError(t, err)
	assert.Equal(t, "PLabcdefghijklmnop", id)

	// channel ids fit the playlist alphabet but are not playlists
	_, err = ParsePlaylistID(testChannelID)
	assert.Error(t, err)

	_, err = ParsePlaylistID("https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	assert.Error(t, err)
}

func TestParseVideoIDs(t *testing.T) {
	ids, err := ParseVideoIDs("dQw4w9WgXcQ https://youtu.be/9bZkp7q19f0,https://www.youtube.com/watch?v=dQw4w9WgXcQ https://www.youtube.com/shorts/kJQP7kiw5Fk")
	require.NoError(t, err)
	assert.Equal(t, []string{"dQw4w9WgXcQ", "9bZkp7q19f0", "kJQP7kiw5Fk"}, ids, "deduplicated in first-seen order")

	_, err = ParseVideoIDs("   ")
	assert.Error(t, err)

	_, err = ParseVideoIDs("dQw4w9WgXcQ notavideoid!")
	assert.Error(t, err)
}

func TestExpandChannelWithPlaylistSelection(t *testing.T) {
	remote := &stubRemote{
		resolve: func(ref youtube.ChannelRef) (*youtube.Channel, error) {
			assert.Equal(t, "@SomeCreator", ref.Handle)
			return &youtube.Channel{ID: testChannelID, Title: "Some Creator", UploadsPlaylistID: testUploads}, nil
		},
		listLists: func(channelID string, podcasts bool) ([]youtube.PlaylistInfo, error) {
			assert.Equal(t, testChannelID, channelID)
			assert.True(t, podcasts)
			return []youtube.PlaylistInfo{
				{ID: "PLtalks0000000001", Title: "Conference Talks"},
				{ID: "PLdrafts000000001", Title: "Drafts (WIP)"},
				{ID: "PLmisc00000000001", Title: "Miscellanea"},
				{ID: "PLpod000000000001", Title: "The Weekly Pod", Podcast: true},
			}, nil
		},
	}

	src := Source{
		Name: "creator",
		URL:  "https://www.youtube.com/@SomeCreator",
		Kind: KindChannel,
		Playlists: PlaylistSelection{
			Include:  regexp.MustCompile(`(?i)talks`),
			Exclude:  regexp.MustCompile(`WIP`),
			Podcasts: true,
		},
	}

	exp, err := Expand(context.Background(), remote, src)
	require.NoError(t, err)
	assert.Equal(t, "Some Creator", exp.Title)
	require.Len(t, exp.Targets, 3)

	assert.Equal(t, TargetUploads, exp.Targets[0].Kind)
	assert.Equal(t, testUploads, exp.Targets[0].UploadsPlaylistID)
	assert.Equal(t, "Some Creator", exp.Targets[0].ChannelName)

	assert.Equal(t, TargetPlaylist, exp.Targets[1].Kind)
	assert.Equal(t, "Conference Talks", exp.Targets[1].Playlist.Title)
	assert.Equal(t, testChannelID, exp.Targets[1].ChannelID, "channel identity backfilled")

	assert.Equal(t, "The Weekly Pod", exp.Targets[2].Playlist.Title, "podcast shelf is additive")
}

func TestExpandChannelExcludeAppliesToPodcasts(t *testing.T) {
	remote := &stubRemote{
		resolve: func(youtube.ChannelRef) (*youtube.Channel, error) {
			return &youtube.Channel{ID: testChannelID, Title: "Some Creator", UploadsPlaylistID: testUploads}, nil
		},
		listLists: func(string, bool) ([]youtube.PlaylistInfo, error) {
			return []youtube.PlaylistInfo{
				{ID: "PLpod000000000001", Title: "Members Pod", Podcast: true},
			}, nil
		},
	}
	src := Source{
		URL:  "https://www.youtube.com/@SomeCreator",
		Kind: KindChannel,
		Playlists: PlaylistSelection{
			Exclude:  regexp.MustCompile(`Members`),
			Podcasts: true,
		},
	}

	exp, err := Expand(context.Background(), remote, src)
	require.NoError(t, err)
	require.Len(t, exp.Targets, 1, "only uploads survive")
	assert.Equal(t, TargetUploads, exp.Targets[0].Kind)
}

func TestExpandChannelSkipsPlaylistCallWhenDisabled(t *testing.T) {
	remote := &stubRemote{
		resolve: func(youtube.ChannelRef) (*youtube.Channel, error) {
			return &youtube.Channel{ID: testChannelID, Title: "Some Creator", UploadsPlaylistID: testUploads}, nil
		},
		listLists: func(string, bool) ([]youtube.PlaylistInfo, error) {
			t.Fatal("playlist listing must not run for selection none")
			return nil, nil
		},
	}
	src := Source{URL: "@SomeCreator", Kind: KindChannel}

	exp, err := Expand(context.Background(), remote, src)
	require.NoError(t, err)
	require.Len(t, exp.Targets, 1)
}

func TestExpandPlaylistSource(t *testing.T) {
	remote := &stubRemote{
		getPlaylist: func(id string) (*youtube.PlaylistInfo, error) {
			assert.Equal(t, "PLabcdefghijklmnop", id)
			return &youtube.PlaylistInfo{
				ID: id, Title: "Lecture Series", ChannelID: testChannelID, ChannelName: "Some Creator", ItemCount: 12,
			}, nil
		},
	}
	src := Source{URL: "https://www.youtube.com/playlist?list=PLabcdefghijklmnop", Kind: KindPlaylist}

	exp, err := Expand(context.Background(), remote, src)
	require.NoError(t, err)
	assert.Equal(t, "Lecture Series", exp.Title)
	require.Len(t, exp.Targets, 1)
	assert.Equal(t, TargetPlaylist, exp.Targets[0].Kind)
	assert.Equal(t, "Some Creator", exp.Targets[0].ChannelName)
}

func TestExpandVideoListSource(t *testing.T) {
	src := Source{Name: "favorites", URL: "dQw4w9WgXcQ 9bZkp7q19f0", Kind: KindVideoList}

	exp, err := Expand(context.Background(), &stubRemote{}, src)
	require.NoError(t, err)
	assert.Equal(t, "favorites", exp.Title)
	require.Len(t, exp.Targets, 1)
	assert.Equal(t, TargetVideos, exp.Targets[0].Kind)
	assert.Equal(t, []string{"dQw4w9WgXcQ", "9bZkp7q19f0"}, exp.Targets[0].VideoIDs)
}

func TestExpandRejectsUnknownKind(t *testing.T) {
	_, err := Expand(context.Background(), &stubRemote{}, Source{URL: "x", Kind: Kind("nonsense")})
	assert.Error(t, err)
}
