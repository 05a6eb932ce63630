// SPDX-License-Identifier: MIT

package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/googleapi"
)

// maxThumbnailBytes bounds a single thumbnail download. maxres JPEGs
// top out around a few hundred kilobytes.
const maxThumbnailBytes = 32 << 20

// DownloadThumbnail fetches thumbnail bytes. This is the only binary
// the adapter downloads itself; video and audio content is registered
// by URL and fetched later by git-annex.
func (c *Client) DownloadThumbnail(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := c.withRetry(ctx, "thumbnail", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("build thumbnail request: %w", err)
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
		data, err := io.ReadAll(io.LimitReader(c.throttled(ctx, resp.Body), maxThumbnailBytes))
		if err != nil {
			return fmt.Errorf("read thumbnail body: %w", err)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, &RemoteError{Sentinel: ErrUnavailable, Op: "thumbnail", Reason: "empty response body"}
	}
	return body, nil
}
