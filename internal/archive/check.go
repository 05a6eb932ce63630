// SPDX-License-Identifier: MIT
package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Problem is one invariant violation found by Check.
type Problem struct {
	Path   string `json:"path"`
	Detail string `json:"detail"`
}

// Report is the outcome of an archive consistency check.
type Report struct {
	VideoDirs    int       `json:"video_dirs"`
	IndexRows    int       `json:"index_rows"`
	PlaylistDirs int       `json:"playlist_dirs"`
	Symlinks     int       `json:"symlinks"`
	Problems     []Problem `json:"problems,omitempty"`
}

// Ok reports whether the archive satisfies every checked invariant.
func (r *Report) Ok() bool { return len(r.Problems) == 0 }

func (r *Report) add(path, format string, args ...any) {
	r.Problems = append(r.Problems, Problem{Path: path, Detail: fmt.Sprintf(format, args...)})
}

// Check verifies the store invariants that are decidable from the
// filesystem alone: id uniqueness, index↔tree closure, playlist link
// resolution, direct-vs-indirect placement, and per-record hygiene
// (sorted lists, path agreement, parseable JSON). Annex tag metadata
// is not reachable without the annex and is out of scope here.
func Check(root string) (*Report, error) {
	r := &Report{}

	indexPaths := map[string]string{}
	if data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(VideosTSV))); err == nil {
		rows, err := DecodeVideosTSV(data)
		if err != nil {
			r.add(VideosTSV, "unparseable index: %v", err)
		}
		for _, row := range rows {
			if _, dup := indexPaths[row.VideoID]; dup {
				r.add(VideosTSV, "video id %s listed more than once", row.VideoID)
				continue
			}
			indexPaths[row.VideoID] = row.Path
		}
		r.IndexRows = len(indexPaths)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", VideosTSV, err)
	}

	treeIDs, err := checkVideoTree(root, r, indexPaths)
	if err != nil {
		return nil, err
	}

	if r.VideoDirs > 0 && r.IndexRows == 0 {
		r.add(VideosTSV, "index missing or empty while %d video directories exist", r.VideoDirs)
	}
	for id, path := range indexPaths {
		if !treeIDs[id] {
			r.add(path, "video %s listed in index but %s not found on disk", id, MetadataFile)
		}
	}

	if err := checkPlaylists(root, r); err != nil {
		return nil, err
	}
	sort.Slice(r.Problems, func(i, j int) bool {
		if r.Problems[i].Path != r.Problems[j].Path {
			return r.Problems[i].Path < r.Problems[j].Path
		}
		return r.Problems[i].Detail < r.Problems[j].Detail
	})
	return r, nil
}

func checkVideoTree(root string, r *Report, indexPaths map[string]string) (map[string]bool, error) {
	treeIDs := map[string]bool{}
	videosRoot := filepath.Join(root, VideosDir)

	err := filepath.WalkDir(videosRoot, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, err := os.Lstat(filepath.Join(abs, MetadataFile)); err != nil {
			return nil
		}

		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		r.VideoDirs++
		checkVideoDir(root, rel, r, treeIDs, indexPaths)
		return filepath.SkipDir
	})
	if os.IsNotExist(err) {
		return treeIDs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walk video tree: %w", err)
	}
	return treeIDs, nil
}

func checkVideoDir(root, rel string, r *Report, treeIDs map[string]bool, indexPaths map[string]string) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	metaRel := rel + "/" + MetadataFile

	data, err := os.ReadFile(filepath.Join(abs, MetadataFile))
	if err != nil {
		r.add(metaRel, "unreadable: %v", err)
		return
	}
	v, err := DecodeMetadata(data)
	if err != nil {
		r.add(metaRel, "unparseable: %v", err)
		return
	}

	if err := v.Validate(); err != nil {
		r.add(metaRel, "%v", err)
	}
	if !sort.StringsAreSorted(v.CaptionsAvailable) {
		r.add(metaRel, "captions_available is not sorted")
	}
	if v.Path != rel {
		r.add(metaRel, "path field %q does not match location %q", v.Path, rel)
	}

	if v.VideoID != "" {
		if treeIDs[v.VideoID] {
			r.add(rel, "video id %s appears more than once in the tree", v.VideoID)
		}
		treeIDs[v.VideoID] = true

		if indexed, ok := indexPaths[v.VideoID]; !ok {
			if len(indexPaths) > 0 {
				r.add(rel, "video %s not listed in %s", v.VideoID, VideosTSV)
			}
		} else if indexed != rel {
			r.add(rel, "index records path %q for video %s", indexed, v.VideoID)
		}
	}

	checkDirEntries(root, rel, r)
}

// directEntries must live in direct storage; a symlink here means the
// attributes policy routed a text file into the indirect store.
var directEntries = map[string]bool{
	MetadataFile:     true,
	CaptionsManifest: true,
}

func checkDirEntries(root, rel string, r *Report) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	entries, err := os.ReadDir(abs)
	if err != nil {
		r.add(rel, "unreadable directory: %v", err)
		return
	}
	for _, e := range entries {
		entryRel := rel + "/" + e.Name()
		isLink := e.Type()&fs.ModeSymlink != 0

		if directEntries[e.Name()] {
			if isLink {
				r.add(entryRel, "must be stored directly, found a symlink")
			}
			continue
		}
		if !isLink {
			continue
		}
		r.Symlinks++
		target, err := os.Readlink(filepath.Join(abs, e.Name()))
		if err != nil {
			r.add(entryRel, "unreadable symlink: %v", err)
			continue
		}
		// Indirect entries dangle while their content is not present
		// locally; that is the normal lazy state, not a defect.
		if strings.Contains(filepath.ToSlash(target), ".git/annex/") {
			continue
		}
		if _, err := os.Stat(filepath.Join(abs, target)); err != nil {
			r.add(entryRel, "symlink target %q does not resolve", target)
		}
	}
}

func checkPlaylists(root string, r *Report) error {
	playlistsRoot := filepath.Join(root, PlaylistsDir)
	entries, err := os.ReadDir(playlistsRoot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read playlists dir: %w", err)
	}

	videosRoot := filepath.Join(root, VideosDir)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rel := PlaylistsDir + "/" + e.Name()
		abs := filepath.Join(playlistsRoot, e.Name())
		r.PlaylistDirs++

		if data, err := os.ReadFile(filepath.Join(abs, PlaylistFile)); err != nil {
			r.add(rel+"/"+PlaylistFile, "unreadable: %v", err)
		} else if _, err := DecodePlaylist(data); err != nil {
			r.add(rel+"/"+PlaylistFile, "unparseable: %v", err)
		}

		links, err := os.ReadDir(abs)
		if err != nil {
			r.add(rel, "unreadable directory: %v", err)
			continue
		}
		for _, l := range links {
			if l.Type()&fs.ModeSymlink == 0 {
				continue
			}
			r.Symlinks++
			linkRel := rel + "/" + l.Name()
			target, err := os.Readlink(filepath.Join(abs, l.Name()))
			if err != nil {
				r.add(linkRel, "unreadable symlink: %v", err)
				continue
			}
			resolved := filepath.Join(abs, target)
			st, err := os.Stat(resolved)
			if err != nil {
				r.add(linkRel, "symlink target %q does not resolve", target)
				continue
			}
			if !st.IsDir() {
				r.add(linkRel, "symlink target %q is not a video directory", target)
				continue
			}
			inside, err := filepath.Rel(videosRoot, resolved)
			if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
				r.add(linkRel, "symlink target %q escapes the video tree", target)
			}
		}
	}
	return nil
}
