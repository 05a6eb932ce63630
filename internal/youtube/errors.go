// SPDX-License-Identifier: MIT

package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

// Sentinel errors for errors.Is checks at the boundary.
var (
	// ErrTransient covers network failures and HTTP 5xx; callers retry
	// with backoff.
	ErrTransient = errors.New("remote: transient failure")

	// ErrRateLimited is HTTP 429 or an explicit rate-limit reason;
	// retried after the server-provided delay when present.
	ErrRateLimited = errors.New("remote: rate limited")

	// ErrQuotaExceeded means the daily API quota is spent. Never
	// retried here; the quota manager owns the wait.
	ErrQuotaExceeded = errors.New("remote: daily quota exceeded")

	// ErrUnavailable marks content that exists but cannot be served:
	// private, removed, members-only, comments disabled.
	ErrUnavailable = errors.New("remote: content unavailable")

	// ErrNotFound marks identifiers the platform does not know.
	ErrNotFound = errors.New("remote: not found")

	// ErrMalformed covers invalid requests and unparseable responses;
	// fatal for the affected item only.
	ErrMalformed = errors.New("remote: malformed request or response")
)

// RemoteError wraps a sentinel with call context.
type RemoteError struct {
	Sentinel   error
	Op         string
	Status     int
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("youtube: %s: %v", e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Sentinel
}

// Classify maps an error from the API client onto the taxonomy.
// Context cancellation passes through untouched, and errors that are
// already classified are returned as is.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var already *RemoteError
	if errors.As(err, &already) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyAPI(op, apiErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RemoteError{Sentinel: ErrTransient, Op: op, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &RemoteError{Sentinel: ErrTransient, Op: op, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &RemoteError{Sentinel: ErrMalformed, Op: op, Err: err}
	}

	return &RemoteError{Sentinel: ErrTransient, Op: op, Err: err}
}

func classifyAPI(op string, apiErr *googleapi.Error) error {
	reason := ""
	if len(apiErr.Errors) > 0 {
		reason = apiErr.Errors[0].Reason
	}

	switch reason {
	case "quotaExceeded", "dailyLimitExceeded":
		return &RemoteError{Sentinel: ErrQuotaExceeded, Op: op, Status: apiErr.Code, Reason: reason, Err: apiErr}
	case "rateLimitExceeded", "userRateLimitExceeded":
		return &RemoteError{
			Sentinel:   ErrRateLimited,
			Op:         op,
			Status:     apiErr.Code,
			Reason:     reason,
			RetryAfter: retryAfterHeader(apiErr),
			Err:        apiErr,
		}
	case "commentsDisabled", "forbidden", "videoNotProcessed":
		return &RemoteError{Sentinel: ErrUnavailable, Op: op, Status: apiErr.Code, Reason: reason, Err: apiErr}
	}

	switch {
	case apiErr.Code == 404:
		return &RemoteError{Sentinel: ErrNotFound, Op: op, Status: apiErr.Code, Reason: reason, Err: apiErr}
	case apiErr.Code == 429:
		return &RemoteError{
			Sentinel:   ErrRateLimited,
			Op:         op,
			Status:     apiErr.Code,
			Reason:     reason,
			RetryAfter: retryAfterHeader(apiErr),
			Err:        apiErr,
		}
	case apiErr.Code >= 500:
		return &RemoteError{Sentinel: ErrTransient, Op: op, Status: apiErr.Code, Reason: reason, Err: apiErr}
	case apiErr.Code == 403:
		// 403 without a recognized reason is an access condition on the
		// content itself.
		return &RemoteError{Sentinel: ErrUnavailable, Op: op, Status: apiErr.Code, Reason: reason, Err: apiErr}
	default:
		return &RemoteError{Sentinel: ErrMalformed, Op: op, Status: apiErr.Code, Reason: reason, Err: apiErr}
	}
}

func retryAfterHeader(apiErr *googleapi.Error) time.Duration {
	if apiErr.Header == nil {
		return 0
	}
	v := apiErr.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Retryable reports whether the adapter should retry the call itself.
// Quota exhaustion is deliberately excluded: it suspends the whole run.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

// RetryAfter returns the server-requested delay, or zero.
func RetryAfter(err error) time.Duration {
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return rerr.RetryAfter
	}
	return 0
}

// UnavailableReason returns the platform's reason string for an
// unavailable item, or "".
func UnavailableReason(err error) string {
	var rerr *RemoteError
	if errors.As(err, &rerr) && errors.Is(err, ErrUnavailable) {
		return rerr.Reason
	}
	return ""
}
