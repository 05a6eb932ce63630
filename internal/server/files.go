// SPDX-License-Identifier: MIT
package server

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/con-org/annextube-sub000/internal/log"
)

// archiveFiles serves the raw archive tree. Symlinks are followed as
// long as they resolve inside the root, which is what makes playlist
// links and annexed content reachable; dotfile segments are rejected so
// .git internals and .annextube configuration stay private.
func (s *Server) archiveFiles() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "server")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			fileRequests.WithLabelValues("denied").Inc()
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		rel, ok := cleanRequestPath(r.URL.Path)
		if !ok {
			logger.Warn().
				Str(log.FieldEvent, "serve.denied").
				Str(log.FieldPath, r.URL.Path).
				Msg("request path rejected")
			fileRequests.WithLabelValues("denied").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		real, err := filepath.EvalSymlinks(filepath.Join(s.root, filepath.FromSlash(rel)))
		if err != nil {
			if os.IsNotExist(err) {
				// Also the case for annexed entries whose content has
				// not been fetched: the symlink dangles until annex get.
				fileRequests.WithLabelValues("not_found").Inc()
				http.Error(w, "Not Found", http.StatusNotFound)
				return
			}
			logger.Error().Err(err).Str(log.FieldPath, rel).Msg("resolve failed")
			fileRequests.WithLabelValues("error").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if !s.confined(real) {
			logger.Warn().
				Str(log.FieldEvent, "serve.denied").
				Str(log.FieldPath, rel).
				Str("resolved", real).
				Msg("symlink escapes archive")
			fileRequests.WithLabelValues("denied").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		f, err := os.Open(real) // #nosec G304 -- confined to the archive root above
		if err != nil {
			logger.Error().Err(err).Str(log.FieldPath, rel).Msg("open failed")
			fileRequests.WithLabelValues("error").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			logger.Error().Err(err).Str(log.FieldPath, rel).Msg("stat failed")
			fileRequests.WithLabelValues("error").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if info.IsDir() {
			fileRequests.WithLabelValues("denied").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// Weak validator from modtime and size. Indices must revalidate
		// on every request so a running backup shows up immediately;
		// media and thumbnails are immutable enough to cache.
		etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
		w.Header().Set("ETag", etag)
		if isIndexFile(info.Name()) {
			w.Header().Set("Cache-Control", "no-cache")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		if r.Header.Get("If-None-Match") == etag {
			fileRequests.WithLabelValues("not_modified").Inc()
			w.WriteHeader(http.StatusNotModified)
			return
		}

		if ct := contentTypeFor(info.Name()); ct != "" {
			w.Header().Set("Content-Type", ct)
		}

		fileRequests.WithLabelValues("served").Inc()
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// confined reports whether a resolved path stays inside the archive.
// Annex object files live under .git/annex/objects and therefore pass.
func (s *Server) confined(real string) bool {
	rel, err := filepath.Rel(s.realRoot, real)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// cleanRequestPath validates a request path and returns it relative to
// the archive root.
func cleanRequestPath(p string) (string, bool) {
	if strings.Contains(p, "\x00") || strings.Contains(p, "..") {
		return "", false
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "", false
	}
	rel := strings.TrimPrefix(cleaned, "/")
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	return rel, true
}

func isIndexFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".tsv", ".json":
		return true
	}
	return false
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".tsv":
		return "text/tab-separated-values; charset=utf-8"
	case ".vtt":
		return "text/vtt; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	}
	return ""
}
