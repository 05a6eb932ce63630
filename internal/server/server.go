// SPDX-License-Identifier: MIT

// Package server implements the read-only HTTP surface over an archive
// tree: the raw files (indices, metadata, captions, annexed media), an
// aggregate stats endpoint for frontend clients, and Prometheus metrics.
// It never writes to the archive.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/log"
)

var (
	fileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annextube_serve_requests_total",
		Help: "Archive file requests by outcome.",
	}, []string{"outcome"})

	statsRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annextube_serve_stats_refreshes_total",
		Help: "Recomputations of the /api/stats payload.",
	})
)

// Options tunes the server. The zero value picks sane defaults.
type Options struct {
	// RequestLimit caps requests per client IP per Window.
	RequestLimit int

	// Window is the rate-limit accounting window.
	Window time.Duration
}

func (o Options) withDefaults() Options {
	if o.RequestLimit <= 0 {
		o.RequestLimit = 600
	}
	if o.Window <= 0 {
		o.Window = time.Minute
	}
	return o
}

// Server serves one archive tree. Stats are computed from the TSV
// indices and cached until Watch sees an index change.
type Server struct {
	root     string // absolute archive root
	realRoot string // root with symlinks resolved, confinement base
	opts     Options
	log      zerolog.Logger

	mu    sync.Mutex
	stats *archive.Stats

	// nocache downgrades to per-request recomputation when the index
	// watcher could not be established.
	nocache atomic.Bool
}

// New prepares a server over the archive rooted at root.
func New(root string, opts Options) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive root %s is not a directory", root)
	}
	return &Server{
		root:     abs,
		realRoot: real,
		opts:     opts.withDefaults(),
		log:      log.WithComponent("server"),
	}, nil
}

// Handler builds the router: /healthz, /metrics, /api/stats, and the
// archive files on everything else.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.accessLog)
	r.Use(corsReadOnly)
	r.Use(httprate.Limit(s.opts.RequestLimit, s.opts.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests(s.opts.Window)),
	))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/api/stats", s.handleStats)
	r.Handle("/*", s.archiveFiles())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.archiveStats()
	if err != nil {
		s.log.Error().Err(err).Str(log.FieldEvent, "serve.stats_failed").Msg("stats computation failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.log.Warn().Err(err).Msg("stats response write failed")
	}
}

func (s *Server) archiveStats() (*archive.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats != nil && !s.nocache.Load() {
		return s.stats, nil
	}
	stats, err := archive.ComputeStats(s.root)
	if err != nil {
		return nil, err
	}
	statsRefreshes.Inc()
	s.stats = stats
	return stats, nil
}

func (s *Server) invalidate() {
	s.mu.Lock()
	s.stats = nil
	s.mu.Unlock()
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().
					Interface("panic", rec).
					Str(log.FieldPath, r.URL.Path).
					Msg("handler panic")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str(log.FieldPath, r.URL.Path).
			Int(log.FieldStatus, ww.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// corsReadOnly opens the archive to browser frontends on other origins.
// Everything served here is public read-only data.
func corsReadOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tooManyRequests(window time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
	}
}

// statusWriter captures the response status for the access log.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
