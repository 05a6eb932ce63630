// SPDX-License-Identifier: MIT

package youtube

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/proxy"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/log"
	"github.com/con-org/annextube-sub000/internal/ratelimit"
	"github.com/con-org/annextube-sub000/internal/version"
)

var apiCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "annextube_remote_calls_total",
	Help: "Total number of remote API calls by endpoint and result",
}, []string{"endpoint", "result"})

const defaultTimedtext = "https://www.youtube.com/api/timedtext"

// Config holds Client construction parameters.
type Config struct {
	// APIKey authenticates Data API calls. Read from the environment,
	// never from the archive config file.
	APIKey string

	// Endpoint overrides the Data API base URL; tests point it at a
	// local server.
	Endpoint string

	// TimedtextEndpoint overrides the caption content endpoint.
	TimedtextEndpoint string

	// ProxyURL routes all remote traffic through a socks5://, http://,
	// or https:// proxy.
	ProxyURL string

	// Limiter paces outbound requests per host. Optional.
	Limiter *ratelimit.Limiter

	// Retries bounds per-call retry attempts for transient failures.
	Retries int

	// PageSize caps listing page sizes; the API allows at most 50.
	PageSize int64

	// Timeout applies to individual API requests. Media downloads run
	// under the caller's context instead, since byte-rate throttling
	// can stretch them arbitrarily.
	Timeout time.Duration

	UserAgent string
}

// Client implements Remote against the public Data API.
type Client struct {
	svc       *ytapi.Service
	media     *http.Client
	limiter   *ratelimit.Limiter
	retries   int
	pageSize  int64
	timedtext string
}

var _ Remote = (*Client)(nil)

// NewClient builds the API client with tracing, rate limiting, and
// optional proxying on its transport.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 50 {
		cfg.PageSize = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "annextube/" + version.Version
	}

	base, err := baseTransport(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	// The API key is injected below the tracing layer so recorded span
	// URLs never carry it.
	apiClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &waitTransport{
			limiter:   cfg.Limiter,
			userAgent: cfg.UserAgent,
			base:      otelhttp.NewTransport(&keyTransport{key: cfg.APIKey, base: base}),
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(apiClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	media := &http.Client{
		Transport: &waitTransport{
			limiter:   cfg.Limiter,
			userAgent: cfg.UserAgent,
			base:      otelhttp.NewTransport(base),
		},
	}

	timedtext := cfg.TimedtextEndpoint
	if timedtext == "" {
		timedtext = defaultTimedtext
	}

	return &Client{
		svc:       svc,
		media:     media,
		limiter:   cfg.Limiter,
		retries:   cfg.Retries,
		pageSize:  cfg.PageSize,
		timedtext: timedtext,
	}, nil
}

func baseTransport(proxyURL string) (http.RoundTripper, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL == "" {
		return t, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	switch u.Scheme {
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks proxy: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks proxy: dialer lacks context support")
		}
		t.Proxy = nil
		t.DialContext = cd.DialContext
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return t, nil
}

// waitTransport paces requests through the limiter and sets the agent
// header. Sits outermost so waiting time is not attributed to spans.
type waitTransport struct {
	limiter   *ratelimit.Limiter
	userAgent string
	base      http.RoundTripper
}

func (t *waitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context(), req.URL.Host); err != nil {
			return nil, err
		}
	}
	r2 := req.Clone(req.Context())
	if t.userAgent != "" && r2.Header.Get("User-Agent") == "" {
		r2.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(r2)
}

type keyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key == "" {
		return t.base.RoundTrip(req)
	}
	r2 := req.Clone(req.Context())
	q := r2.URL.Query()
	q.Set("key", t.key)
	r2.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(r2)
}

// withRetry runs fn, classifying failures and retrying transient and
// rate-limited ones with jittered quadratic backoff. Rate-limit
// responses that name a delay get at least that delay.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	logger := log.WithComponentFromContext(ctx, "youtube")

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt*500) * time.Millisecond
			backoff += rand.N(backoff / 4)
			if ra := RetryAfter(lastErr); ra > backoff {
				backoff = ra
			}
			logger.Warn().
				Str(log.FieldEndpoint, op).
				Int(log.FieldAttempt, attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("retrying remote call")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			apiCallsTotal.WithLabelValues(op, "ok").Inc()
			return nil
		}
		err = Classify(op, err)
		apiCallsTotal.WithLabelValues(op, errorLabel(err)).Inc()
		if !Retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}

func (c *Client) ResolveChannel(ctx context.Context, ref ChannelRef) (*Channel, error) {
	var resp *ytapi.ChannelListResponse
	err := c.withRetry(ctx, "channels.list", func() error {
		call := c.svc.Channels.List([]string{"id", "snippet", "contentDetails"}).Context(ctx)
		switch {
		case ref.ID != "":
			call = call.Id(ref.ID)
		case ref.Handle != "":
			call = call.ForHandle(ref.Handle)
		case ref.Username != "":
			call = call.ForUsername(ref.Username)
		default:
			return &RemoteError{Sentinel: ErrMalformed, Op: "channels.list", Reason: "empty channel reference"}
		}
		r, err := call.Do()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, &RemoteError{Sentinel: ErrNotFound, Op: "channels.list", Reason: ref.Identity()}
	}

	ch := resp.Items[0]
	if ch.ContentDetails == nil || ch.ContentDetails.RelatedPlaylists == nil || ch.ContentDetails.RelatedPlaylists.Uploads == "" {
		return nil, &RemoteError{Sentinel: ErrMalformed, Op: "channels.list", Reason: "missing uploads playlist"}
	}
	title := ""
	if ch.Snippet != nil {
		title = ch.Snippet.Title
	}
	return &Channel{ID: ch.Id, Title: title, UploadsPlaylistID: ch.ContentDetails.RelatedPlaylists.Uploads}, nil
}

func (c *Client) ListChannelVideos(ctx context.Context, uploadsPlaylistID string, since time.Time, visit func(Stub) error) error {
	// Uploads playlists page newest first, so the first entry at or
	// before the cutoff ends the scan.
	return c.pagePlaylist(ctx, uploadsPlaylistID, func(s Stub) error {
		if !since.IsZero() && !s.Published.IsZero() && !s.Published.After(since) {
			return ErrStop
		}
		return visit(s)
	})
}

func (c *Client) ListPlaylistItems(ctx context.Context, playlistID string, visit func(Stub) error) error {
	return c.pagePlaylist(ctx, playlistID, visit)
}

func (c *Client) pagePlaylist(ctx context.Context, playlistID string, visit func(Stub) error) error {
	pageToken := ""
	for {
		var resp *ytapi.PlaylistItemListResponse
		err := c.withRetry(ctx, "playlistItems.list", func() error {
			call := c.svc.PlaylistItems.List([]string{"contentDetails", "snippet"}).
				PlaylistId(playlistID).
				MaxResults(c.pageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			r, err := call.Do()
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return err
		}

		for _, item := range resp.Items {
			stub, ok := stubFromItem(item)
			if !ok {
				continue
			}
			if err := visit(stub); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		if resp.NextPageToken == "" {
			return nil
		}
		pageToken = resp.NextPageToken
	}
}

func stubFromItem(item *ytapi.PlaylistItem) (Stub, bool) {
	if item == nil || item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
		return Stub{}, false
	}
	s := Stub{VideoID: item.ContentDetails.VideoId}
	if item.ContentDetails.VideoPublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt); err == nil {
			s.Published = t.UTC()
		}
	}
	if item.Snippet != nil {
		s.Title = item.Snippet.Title
		s.ChannelID = item.Snippet.VideoOwnerChannelId
		s.ChannelName = item.Snippet.VideoOwnerChannelTitle
		s.Position = item.Snippet.Position
	}
	return s, true
}

func (c *Client) ListChannelPlaylists(ctx context.Context, channelID string, includePodcasts bool) ([]PlaylistInfo, error) {
	var lists []PlaylistInfo
	seen := map[string]bool{}

	pageToken := ""
	for {
		var resp *ytapi.PlaylistListResponse
		err := c.withRetry(ctx, "playlists.list", func() error {
			call := c.svc.Playlists.List([]string{"snippet", "contentDetails"}).
				ChannelId(channelID).
				MaxResults(c.pageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			r, err := call.Do()
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Items {
			if p == nil || seen[p.Id] {
				continue
			}
			seen[p.Id] = true
			lists = append(lists, playlistInfo(p, false))
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if includePodcasts {
		podcastIDs, err := c.podcastPlaylistIDs(ctx, channelID)
		if err != nil {
			return nil, err
		}
		var extra []string
		for _, id := range podcastIDs {
			if seen[id] {
				for i := range lists {
					if lists[i].ID == id {
						lists[i].Podcast = true
					}
				}
				continue
			}
			seen[id] = true
			extra = append(extra, id)
		}
		if len(extra) > 0 {
			fetched, err := c.playlistsByID(ctx, extra)
			if err != nil {
				return nil, err
			}
			lists = append(lists, fetched...)
		}
	}
	return lists, nil
}

// podcastSectionRe matches the shelf channels use for their podcasts.
// The Data API has no dedicated podcast surface, so the shelf title is
// the only signal available with key-only access.
var podcastSectionRe = regexp.MustCompile(`(?i)podcast`)

func (c *Client) podcastPlaylistIDs(ctx context.Context, channelID string) ([]string, error) {
	var resp *ytapi.ChannelSectionListResponse
	err := c.withRetry(ctx, "channelSections.list", func() error {
		r, err := c.svc.ChannelSections.List([]string{"snippet", "contentDetails"}).
			ChannelId(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, s := range resp.Items {
		if s == nil || s.Snippet == nil || s.ContentDetails == nil {
			continue
		}
		if !podcastSectionRe.MatchString(s.Snippet.Title) {
			continue
		}
		ids = append(ids, s.ContentDetails.Playlists...)
	}
	return ids, nil
}

func (c *Client) playlistsByID(ctx context.Context, ids []string) ([]PlaylistInfo, error) {
	var lists []PlaylistInfo
	for chunk := range slices.Chunk(ids, int(c.pageSize)) {
		var resp *ytapi.PlaylistListResponse
		err := c.withRetry(ctx, "playlists.list", func() error {
			r, err := c.svc.Playlists.List([]string{"snippet", "contentDetails"}).
				Id(chunk...).
				MaxResults(c.pageSize).
				Context(ctx).
				Do()
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Items {
			if p == nil {
				continue
			}
			lists = append(lists, playlistInfo(p, true))
		}
	}
	return lists, nil
}

// GetPlaylist resolves a single playlist id.
func (c *Client) GetPlaylist(ctx context.Context, playlistID string) (*PlaylistInfo, error) {
	lists, err := c.playlistsByID(ctx, []string{playlistID})
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, &RemoteError{Sentinel: ErrNotFound, Op: "playlists.list", Reason: playlistID}
	}
	info := lists[0]
	info.Podcast = false
	return &info, nil
}

func playlistInfo(p *ytapi.Playlist, podcast bool) PlaylistInfo {
	info := PlaylistInfo{ID: p.Id, Podcast: podcast}
	if p.Snippet != nil {
		info.Title = p.Snippet.Title
		info.Description = p.Snippet.Description
		info.ChannelID = p.Snippet.ChannelId
		info.ChannelName = p.Snippet.ChannelTitle
	}
	if p.ContentDetails != nil {
		info.ItemCount = p.ContentDetails.ItemCount
	}
	return info
}

func (c *Client) FetchVideoMetadata(ctx context.Context, ids []string) ([]*archive.Video, []string, error) {
	logger := log.WithComponentFromContext(ctx, "youtube")

	videos := make([]*archive.Video, 0, len(ids))
	found := make(map[string]bool, len(ids))

	for chunk := range slices.Chunk(ids, int(c.pageSize)) {
		var resp *ytapi.VideoListResponse
		err := c.withRetry(ctx, "videos.list", func() error {
			r, err := c.svc.Videos.List([]string{"snippet", "contentDetails", "statistics", "status"}).
				Id(chunk...).
				MaxResults(c.pageSize).
				Context(ctx).
				Do()
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, nil, err
		}

		for _, item := range resp.Items {
			v, err := videoFromAPI(item)
			if err != nil {
				// Fatal for this item only; it surfaces as missing.
				logger.Warn().Err(err).Msg("skipping malformed video item")
				continue
			}
			videos = append(videos, v)
			found[v.VideoID] = true
		}
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return videos, missing, nil
}

func videoFromAPI(item *ytapi.Video) (*archive.Video, error) {
	if item == nil || item.Id == "" {
		return nil, fmt.Errorf("empty video item")
	}
	if item.Snippet == nil {
		return nil, fmt.Errorf("video %s: missing snippet", item.Id)
	}

	v := &archive.Video{
		VideoID:        item.Id,
		Title:          item.Snippet.Title,
		Description:    item.Snippet.Description,
		ChannelID:      item.Snippet.ChannelId,
		ChannelName:    item.Snippet.ChannelTitle,
		Tags:           slices.Clone(item.Snippet.Tags),
		ThumbnailURL:   bestThumbnail(item.Snippet.Thumbnails),
		SourceURL:      archive.WatchURL(item.Id),
		Availability:   archive.AvailabilityPublic,
		DownloadStatus: archive.DownloadMetadataOnly,
	}
	if item.Snippet.CategoryId != "" {
		v.Categories = []string{item.Snippet.CategoryId}
	}
	if item.Snippet.PublishedAt != "" {
		t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("video %s: published: %w", item.Id, err)
		}
		v.Published = t.UTC()
	}
	if item.ContentDetails != nil && item.ContentDetails.Duration != "" {
		d, err := parseISODuration(item.ContentDetails.Duration)
		if err != nil {
			return nil, fmt.Errorf("video %s: duration: %w", item.Id, err)
		}
		v.DurationSeconds = int64(d / time.Second)
	}
	if item.Statistics != nil {
		v.ViewCount = int64(item.Statistics.ViewCount)     // #nosec G115
		v.LikeCount = int64(item.Statistics.LikeCount)     // #nosec G115
		v.CommentCount = int64(item.Statistics.CommentCount) // #nosec G115
	}
	if item.Status != nil {
		v.License = item.Status.License
		switch item.Status.PrivacyStatus {
		case "private":
			v.Availability = archive.AvailabilityPrivate
		case "unlisted":
			v.Availability = archive.AvailabilityUnlisted
		}
	}

	v.Normalize()
	return v, nil
}

// bestThumbnail picks the largest variant the platform offers.
func bestThumbnail(t *ytapi.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, c := range []*ytapi.Thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if c != nil && c.Url != "" {
			return c.Url
		}
	}
	return ""
}

func (c *Client) FetchComments(ctx context.Context, videoID string, maxCount int, since time.Time) ([]archive.Comment, error) {
	if maxCount == 0 {
		return nil, nil
	}

	var comments []archive.Comment
	pageToken := ""

paging:
	for {
		var resp *ytapi.CommentThreadListResponse
		err := c.withRetry(ctx, "commentThreads.list", func() error {
			call := c.svc.CommentThreads.List([]string{"snippet", "replies"}).
				VideoId(videoID).
				Order("time").
				TextFormat("plainText").
				MaxResults(100).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			r, err := call.Do()
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, thread := range resp.Items {
			if thread == nil || thread.Snippet == nil || thread.Snippet.TopLevelComment == nil {
				continue
			}
			top, ok := commentFromAPI(thread.Snippet.TopLevelComment, archive.RootParent)
			if !ok {
				continue
			}
			// Threads arrive newest first; the first one at or before
			// the cutoff ends the scan.
			if !since.IsZero() && !top.Published.After(since) {
				break paging
			}
			comments = append(comments, top)

			replies, err := c.threadReplies(ctx, thread, top.CommentID)
			if err != nil {
				return nil, err
			}
			comments = append(comments, replies...)

			if maxCount > 0 && len(comments) >= maxCount {
				break paging
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if maxCount > 0 && len(comments) > maxCount {
		comments = comments[:maxCount]
	}
	return comments, nil
}

// threadReplies returns a thread's replies, paging through comments.list
// when the thread carries only a partial set inline.
func (c *Client) threadReplies(ctx context.Context, thread *ytapi.CommentThread, parentID string) ([]archive.Comment, error) {
	var inline []*ytapi.Comment
	if thread.Replies != nil {
		inline = thread.Replies.Comments
	}
	total := thread.Snippet.TotalReplyCount

	if int64(len(inline)) >= total {
		replies := make([]archive.Comment, 0, len(inline))
		for _, rc := range inline {
			if r, ok := commentFromAPI(rc, parentID); ok {
				replies = append(replies, r)
			}
		}
		return replies, nil
	}

	var replies []archive.Comment
	pageToken := ""
	for {
		var resp *ytapi.CommentListResponse
		err := c.withRetry(ctx, "comments.list", func() error {
			call := c.svc.Comments.List([]string{"snippet"}).
				ParentId(parentID).
				TextFormat("plainText").
				MaxResults(100).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			r, err := call.Do()
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, rc := range resp.Items {
			if r, ok := commentFromAPI(rc, parentID); ok {
				replies = append(replies, r)
			}
		}
		if resp.NextPageToken == "" {
			return replies, nil
		}
		pageToken = resp.NextPageToken
	}
}

func commentFromAPI(c *ytapi.Comment, parentID string) (archive.Comment, bool) {
	if c == nil || c.Id == "" || c.Snippet == nil {
		return archive.Comment{}, false
	}
	out := archive.Comment{
		CommentID: c.Id,
		Author:    c.Snippet.AuthorDisplayName,
		Text:      c.Snippet.TextDisplay,
		LikeCount: c.Snippet.LikeCount,
		ParentID:  parentID,
	}
	if c.Snippet.AuthorChannelId != nil {
		out.AuthorID = c.Snippet.AuthorChannelId.Value
	}
	if c.Snippet.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, c.Snippet.PublishedAt); err == nil {
			out.Published = t.UTC()
		}
	}
	return out, true
}
