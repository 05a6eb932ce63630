// SPDX-License-Identifier: MIT

package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"google.golang.org/api/googleapi"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/con-org/annextube-sub000/internal/log"
)

// maxCaptionBytes bounds a single subtitle download. Real tracks stay
// well under a megabyte.
const maxCaptionBytes = 16 << 20

// FetchCaptions lists a video's caption tracks and downloads the
// selected ones as WebVTT. Every track appears in the result so the
// caller can record the inventory; VTT content is populated only for
// tracks whose language matches (nil matches everything), and
// auto-generated tracks are downloaded only when includeAuto is set.
// Content comes from the public timedtext endpoint because
// captions.download requires channel-owner OAuth, which a key-only
// client does not have.
func (c *Client) FetchCaptions(ctx context.Context, videoID string, match *regexp.Regexp, includeAuto bool) ([]Caption, error) {
	logger := log.WithComponentFromContext(ctx, "youtube")

	var resp *ytapi.CaptionListResponse
	err := c.withRetry(ctx, "captions.list", func() error {
		r, err := c.svc.Captions.List([]string{"snippet"}, videoID).Context(ctx).Do()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	var captions []Caption
	seen := map[string]bool{}
	for _, item := range resp.Items {
		if item == nil || item.Snippet == nil || item.Snippet.Language == "" {
			continue
		}
		auto := item.Snippet.TrackKind == "asr"
		key := item.Snippet.Language
		if auto {
			key += "/asr"
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		track := Caption{Language: item.Snippet.Language, AutoGenerated: auto}
		wanted := (match == nil || match.MatchString(track.Language)) && (!auto || includeAuto)
		if wanted {
			vtt, err := c.fetchTimedtext(ctx, videoID, track.Language, auto)
			if err != nil {
				return nil, err
			}
			if len(vtt) == 0 {
				// timedtext answers 200 with an empty body for tracks it
				// cannot serve anonymously; the track stays listed.
				logger.Debug().
					Str(log.FieldVideoID, videoID).
					Str("language", track.Language).
					Bool("auto", auto).
					Msg("caption track empty, keeping inventory only")
			}
			track.VTT = vtt
		}
		captions = append(captions, track)
	}
	return captions, nil
}

func (c *Client) fetchTimedtext(ctx context.Context, videoID, lang string, auto bool) ([]byte, error) {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", lang)
	q.Set("fmt", "vtt")
	if auto {
		q.Set("kind", "asr")
	}
	endpoint := c.timedtext + "?" + q.Encode()

	var body []byte
	err := c.withRetry(ctx, "timedtext", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build timedtext request: %w", err)
		}
		resp, err := c.media.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
			return &googleapi.Error{Code: resp.StatusCode, Header: resp.Header}
		}
		data, err := io.ReadAll(io.LimitReader(c.throttled(ctx, resp.Body), maxCaptionBytes))
		if err != nil {
			return fmt.Errorf("read timedtext body: %w", err)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) throttled(ctx context.Context, r io.Reader) io.Reader {
	if c.limiter == nil {
		return r
	}
	return c.limiter.ThrottledReader(ctx, r)
}
