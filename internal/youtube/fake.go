// SPDX-License-Identifier: MIT

package youtube

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/con-org/annextube-sub000/internal/archive"
)

// fakePageSize mirrors the adapter's page size so call counts and
// mid-listing failures land where they would against the Data API.
const fakePageSize = 50

// FakeChannel scripts one channel for a FakeRemote.
type FakeChannel struct {
	Channel
	Handle   string
	Username string
}

// FakeRemote implements Remote against scripted in-memory content. It
// reproduces the adapter's observable behaviour (newest-first upload
// listings, paged calls, missing ids for absent content, the error
// taxonomy) so callers exercise the same control flow the Data API
// produces. Quota and transient-failure knobs let tests script
// exhaustion and recovery.
type FakeRemote struct {
	mu sync.Mutex

	channels []FakeChannel
	byChan   map[string][]string
	lists    map[string]*PlaylistInfo
	items    map[string][]Stub
	videos   map[string]*archive.Video
	comments map[string][]archive.Comment
	captions map[string][]Caption
	thumbs   map[string][]byte

	noComments map[string]bool
	failures   map[string]int
	quotaLeft  int

	calls map[string]int
}

var _ Remote = (*FakeRemote)(nil)

// NewFakeRemote returns an empty fake with unlimited quota.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		byChan:     map[string][]string{},
		lists:      map[string]*PlaylistInfo{},
		items:      map[string][]Stub{},
		videos:     map[string]*archive.Video{},
		comments:   map[string][]archive.Comment{},
		captions:   map[string][]Caption{},
		thumbs:     map[string][]byte{},
		noComments: map[string]bool{},
		failures:   map[string]int{},
		quotaLeft:  -1,
		calls:      map[string]int{},
	}
}

// AddChannel registers a channel and its (initially empty) uploads
// playlist.
func (f *FakeRemote) AddChannel(ch FakeChannel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, ch)
	if ch.UploadsPlaylistID != "" {
		if _, ok := f.items[ch.UploadsPlaylistID]; !ok {
			f.items[ch.UploadsPlaylistID] = nil
		}
	}
}

// AddVideo registers full metadata for a video and lists it on its
// channel's uploads playlist when the channel is known.
func (f *FakeRemote) AddVideo(v *archive.Video) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos[v.VideoID] = v.Clone()
	for _, ch := range f.channels {
		if ch.ID == v.ChannelID && ch.UploadsPlaylistID != "" {
			f.items[ch.UploadsPlaylistID] = append(f.items[ch.UploadsPlaylistID], Stub{
				VideoID:     v.VideoID,
				Title:       v.Title,
				Published:   v.Published,
				ChannelID:   v.ChannelID,
				ChannelName: v.ChannelName,
			})
			break
		}
	}
}

// AddPlaylist registers a playlist and its members in playlist order.
// Members that AddVideo has seen contribute their title and publish
// instant to the listing stubs. info.Podcast marks the playlist as
// sitting on the channel's podcast shelf.
func (f *FakeRemote) AddPlaylist(info PlaylistInfo, videoIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if info.ItemCount == 0 {
		info.ItemCount = int64(len(videoIDs))
	}
	cp := info
	f.lists[info.ID] = &cp
	if info.ChannelID != "" {
		f.byChan[info.ChannelID] = append(f.byChan[info.ChannelID], info.ID)
	}

	stubs := make([]Stub, 0, len(videoIDs))
	for i, id := range videoIDs {
		s := Stub{VideoID: id, Position: int64(i), ChannelID: info.ChannelID, ChannelName: info.ChannelName}
		if v, ok := f.videos[id]; ok {
			s.Title = v.Title
			s.Published = v.Published
			s.ChannelID = v.ChannelID
			s.ChannelName = v.ChannelName
		}
		stubs = append(stubs, s)
	}
	f.items[info.ID] = stubs
}

// SetComments replaces the scripted comments for a video. Top-level
// comments carry an empty or "root" parent; replies name their thread.
func (f *FakeRemote) SetComments(videoID string, comments ...archive.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[videoID] = slices.Clone(comments)
}

// DisableComments makes comment fetches for the video fail the way the
// platform does when a creator turns comments off.
func (f *FakeRemote) DisableComments(videoID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noComments[videoID] = true
}

// SetCaptions replaces the scripted caption tracks for a video.
func (f *FakeRemote) SetCaptions(videoID string, tracks ...Caption) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captions[videoID] = slices.Clone(tracks)
}

// SetThumbnail scripts the bytes served for a thumbnail URL.
func (f *FakeRemote) SetThumbnail(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thumbs[url] = slices.Clone(data)
}

// RemoveVideo withdraws a video: metadata fetches report it missing
// and listings stop mentioning it, as when content is deleted or made
// private.
func (f *FakeRemote) RemoveVideo(videoID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.videos, videoID)
	for id, stubs := range f.items {
		f.items[id] = slices.DeleteFunc(stubs, func(s Stub) bool { return s.VideoID == videoID })
	}
}

// ExhaustQuotaAfter lets n more calls succeed, then fails every call
// with the quota-exceeded taxonomy until RestoreQuota.
func (f *FakeRemote) ExhaustQuotaAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotaLeft = n
}

// RestoreQuota lifts a scripted quota exhaustion.
func (f *FakeRemote) RestoreQuota() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotaLeft = -1
}

// FailNext makes the next n calls of op fail with a transient error.
func (f *FakeRemote) FailNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = n
}

// CallCount reports how many times op was attempted.
func (f *FakeRemote) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// begin accounts one call of op and applies the failure knobs.
func (f *FakeRemote) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++
	if n := f.failures[op]; n > 0 {
		f.failures[op] = n - 1
		return &RemoteError{Sentinel: ErrTransient, Op: op, Status: 503, Reason: "backendError"}
	}
	if f.quotaLeft == 0 {
		return &RemoteError{Sentinel: ErrQuotaExceeded, Op: op, Status: 403, Reason: "quotaExceeded"}
	}
	if f.quotaLeft > 0 {
		f.quotaLeft--
	}
	return nil
}

func (f *FakeRemote) ResolveChannel(ctx context.Context, ref ChannelRef) (*Channel, error) {
	if err := f.begin(ctx, "channels.list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.channels {
		var match bool
		switch {
		case ref.ID != "":
			match = ch.ID == ref.ID
		case ref.Handle != "":
			match = strings.EqualFold(strings.TrimPrefix(ch.Handle, "@"), strings.TrimPrefix(ref.Handle, "@"))
		case ref.Username != "":
			match = strings.EqualFold(ch.Username, ref.Username)
		}
		if match {
			out := ch.Channel
			return &out, nil
		}
	}
	return nil, &RemoteError{Sentinel: ErrNotFound, Op: "channels.list", Status: 404, Reason: ref.Identity()}
}

func (f *FakeRemote) ListChannelVideos(ctx context.Context, uploadsPlaylistID string, since time.Time, visit func(Stub) error) error {
	return f.visitStubs(ctx, uploadsPlaylistID, true, func(s Stub) error {
		if !since.IsZero() && !s.Published.IsZero() && !s.Published.After(since) {
			return ErrStop
		}
		return visit(s)
	})
}

func (f *FakeRemote) ListPlaylistItems(ctx context.Context, playlistID string, visit func(Stub) error) error {
	return f.visitStubs(ctx, playlistID, false, visit)
}

// visitStubs pages through a playlist the way the adapter does: one
// accounted call per page, failures surfacing between pages.
func (f *FakeRemote) visitStubs(ctx context.Context, playlistID string, newestFirst bool, visit func(Stub) error) error {
	f.mu.Lock()
	src, ok := f.items[playlistID]
	stubs := slices.Clone(src)
	f.mu.Unlock()

	if newestFirst {
		sort.SliceStable(stubs, func(i, j int) bool { return stubs[i].Published.After(stubs[j].Published) })
		for i := range stubs {
			stubs[i].Position = int64(i)
		}
	}

	for start := 0; ; start += fakePageSize {
		if err := f.begin(ctx, "playlistItems.list"); err != nil {
			return err
		}
		if !ok {
			return &RemoteError{Sentinel: ErrNotFound, Op: "playlistItems.list", Status: 404, Reason: playlistID}
		}
		end := min(start+fakePageSize, len(stubs))
		for _, s := range stubs[start:end] {
			if err := visit(s); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		if end >= len(stubs) {
			return nil
		}
	}
}

func (f *FakeRemote) ListChannelPlaylists(ctx context.Context, channelID string, includePodcasts bool) ([]PlaylistInfo, error) {
	if err := f.begin(ctx, "playlists.list"); err != nil {
		return nil, err
	}
	if includePodcasts {
		if err := f.begin(ctx, "channelSections.list"); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PlaylistInfo, 0, len(f.byChan[channelID]))
	for _, id := range f.byChan[channelID] {
		info := *f.lists[id]
		if !includePodcasts {
			// Without the shelf lookup the adapter cannot know.
			info.Podcast = false
		}
		out = append(out, info)
	}
	return out, nil
}

func (f *FakeRemote) GetPlaylist(ctx context.Context, playlistID string) (*PlaylistInfo, error) {
	if err := f.begin(ctx, "playlists.list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	info, ok := f.lists[playlistID]
	if !ok {
		return nil, &RemoteError{Sentinel: ErrNotFound, Op: "playlists.list", Status: 404, Reason: playlistID}
	}
	out := *info
	return &out, nil
}

func (f *FakeRemote) FetchVideoMetadata(ctx context.Context, ids []string) ([]*archive.Video, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	out := make([]*archive.Video, 0, len(ids))
	var missing []string
	for start := 0; start < len(ids); start += fakePageSize {
		if err := f.begin(ctx, "videos.list"); err != nil {
			return nil, nil, err
		}
		end := min(start+fakePageSize, len(ids))
		f.mu.Lock()
		for _, id := range ids[start:end] {
			if v, ok := f.videos[id]; ok {
				out = append(out, v.Clone())
			} else {
				missing = append(missing, id)
			}
		}
		f.mu.Unlock()
	}
	return out, missing, nil
}

func (f *FakeRemote) FetchComments(ctx context.Context, videoID string, maxCount int, since time.Time) ([]archive.Comment, error) {
	if maxCount <= 0 {
		return nil, nil
	}
	if err := f.begin(ctx, "commentThreads.list"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noComments[videoID] {
		return nil, &RemoteError{Sentinel: ErrUnavailable, Op: "commentThreads.list", Status: 403, Reason: "commentsDisabled"}
	}
	if _, ok := f.videos[videoID]; !ok {
		return nil, &RemoteError{Sentinel: ErrNotFound, Op: "commentThreads.list", Status: 404, Reason: videoID}
	}

	var tops []archive.Comment
	replies := map[string][]archive.Comment{}
	for _, c := range f.comments[videoID] {
		if c.ParentID == "" || c.ParentID == archive.RootParent {
			tops = append(tops, c)
			continue
		}
		replies[c.ParentID] = append(replies[c.ParentID], c)
	}
	sort.SliceStable(tops, func(i, j int) bool { return tops[i].Published.After(tops[j].Published) })

	var out []archive.Comment
	for _, top := range tops {
		// Threads page newest first, so the first one at or before the
		// cutoff ends the fetch.
		if !since.IsZero() && !top.Published.After(since) {
			break
		}
		out = append(out, top)
		out = append(out, replies[top.CommentID]...)
		if len(out) >= maxCount {
			out = out[:maxCount]
			break
		}
	}
	return out, nil
}

func (f *FakeRemote) FetchCaptions(ctx context.Context, videoID string, match *regexp.Regexp, includeAuto bool) ([]Caption, error) {
	if err := f.begin(ctx, "captions.list"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	tracks := slices.Clone(f.captions[videoID])
	f.mu.Unlock()

	out := make([]Caption, 0, len(tracks))
	for _, tr := range tracks {
		c := Caption{Language: tr.Language, AutoGenerated: tr.AutoGenerated}
		wanted := (match == nil || match.MatchString(tr.Language)) && (!tr.AutoGenerated || includeAuto)
		if wanted {
			if err := f.begin(ctx, "timedtext"); err != nil {
				return nil, err
			}
			c.VTT = slices.Clone(tr.VTT)
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *FakeRemote) DownloadThumbnail(ctx context.Context, url string) ([]byte, error) {
	if err := f.begin(ctx, "thumbnail"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.thumbs[url]
	if !ok {
		return nil, &RemoteError{Sentinel: ErrNotFound, Op: "thumbnail", Status: 404, Reason: url}
	}
	return slices.Clone(data), nil
}
