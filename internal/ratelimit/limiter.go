// SPDX-License-Identifier: MIT

// Package ratelimit paces outbound traffic to the video platform. A leaky
// bucket per host gates every request; a fixed sleep interval and a byte
// throttle for media downloads compose with it.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var requestWaits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "annextube",
		Name:      "remote_request_waits_total",
		Help:      "Requests that blocked on the per-host rate limiter",
	},
	[]string{"host"},
)

// Config holds outbound pacing configuration.
type Config struct {
	// RequestsPerSecond and Burst shape the per-host bucket.
	RequestsPerSecond rate.Limit
	Burst             int

	// SleepInterval is an optional fixed pause applied after each wait.
	SleepInterval time.Duration

	// BytesPerSecond throttles bulk downloads (thumbnails, captions).
	// Zero disables the byte throttle.
	BytesPerSecond int
}

// DefaultConfig paces requests the way the platform tolerates during long
// archival runs.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 4,
		Burst:             8,
	}
}

// Limiter manages per-host buckets. Safe for concurrent use by the worker
// pool.
type Limiter struct {
	config Config

	mu      sync.Mutex
	perHost map[string]*rate.Limiter
}

// New creates a limiter with the given config.
func New(config Config) *Limiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = DefaultConfig().Burst
	}
	return &Limiter{
		config:  config,
		perHost: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host's bucket releases a slot, then applies the
// configured sleep interval. Cancelling ctx aborts the wait.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	bucket := l.hostBucket(host)
	if !bucket.Allow() {
		requestWaits.WithLabelValues(host).Inc()
		if err := bucket.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait for %s: %w", host, err)
		}
	}
	if l.config.SleepInterval > 0 {
		timer := time.NewTimer(l.config.SleepInterval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (l *Limiter) hostBucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.perHost[host]
	if !ok {
		bucket = rate.NewLimiter(l.config.RequestsPerSecond, l.config.Burst)
		l.perHost[host] = bucket
	}
	return bucket
}

// ThrottledReader wraps r with the byte-rate cap when one is configured.
func (l *Limiter) ThrottledReader(ctx context.Context, r io.Reader) io.Reader {
	if l.config.BytesPerSecond <= 0 {
		return r
	}
	burst := l.config.BytesPerSecond
	return &throttledReader{
		ctx:    ctx,
		inner:  r,
		bucket: rate.NewLimiter(rate.Limit(l.config.BytesPerSecond), burst),
		burst:  burst,
	}
}

type throttledReader struct {
	ctx    context.Context
	inner  io.Reader
	bucket *rate.Limiter
	burst  int
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if len(p) > t.burst {
		p = p[:t.burst]
	}
	n, err := t.inner.Read(p)
	if n <= 0 {
		return n, err
	}
	if werr := t.bucket.WaitN(t.ctx, n); werr != nil {
		return n, werr
	}
	return n, err
}
