// SPDX-License-Identifier: MIT

// Package export regenerates the tabular indices from the archive tree.
// The tree is the source of truth: every pass rewrites the tables in
// full from metadata.json, comments.json, and playlist.json, and the
// store's timestamp-aware commit logic decides whether anything real
// changed.
package export

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/con-org/annextube-sub000/internal/annex"
	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/log"
)

// Selection names the indices one export pass rewrites.
type Selection struct {
	Videos    bool
	Playlists bool
	Authors   bool
}

// All selects every index.
func All() Selection {
	return Selection{Videos: true, Playlists: true, Authors: true}
}

// ParseSelection maps the CLI target word to a selection.
func ParseSelection(target string) (Selection, error) {
	switch target {
	case "", "all":
		return All(), nil
	case "videos":
		return Selection{Videos: true}, nil
	case "playlists":
		return Selection{Playlists: true}, nil
	case "authors":
		return Selection{Authors: true}, nil
	}
	return Selection{}, fmt.Errorf("unknown export target %q (videos|playlists|authors|all)", target)
}

// Exporter walks the tree and writes indices through the store.
type Exporter struct {
	store annex.Store
}

// New returns an exporter bound to a store.
func New(store annex.Store) *Exporter {
	return &Exporter{store: store}
}

// Export rewrites the selected indices. Unparseable records abort the
// pass: silently dropping rows would break the index↔tree closure that
// incremental runs derive their state from.
func (e *Exporter) Export(ctx context.Context, sel Selection) error {
	logger := log.WithComponentFromContext(ctx, "export")
	root := e.store.Root()

	videos, err := collectVideos(ctx, root)
	if err != nil {
		return err
	}

	if sel.Videos {
		rows := make([]archive.VideoRow, len(videos))
		for i, v := range videos {
			rows[i] = archive.RowFromVideo(v)
		}
		payload, err := archive.EncodeVideosTSV(rows)
		if err != nil {
			return err
		}
		if err := e.store.AtomicWrite(ctx, archive.VideosTSV, payload); err != nil {
			return err
		}
		logger.Info().Int(log.FieldTotal, len(rows)).Str(log.FieldPath, archive.VideosTSV).Msg("index exported")
	}

	if sel.Playlists {
		rows, err := collectPlaylists(ctx, root, videos)
		if err != nil {
			return err
		}
		payload, err := archive.EncodePlaylistsTSV(rows)
		if err != nil {
			return err
		}
		if err := e.store.AtomicWrite(ctx, archive.PlaylistsTSV, payload); err != nil {
			return err
		}
		logger.Info().Int(log.FieldTotal, len(rows)).Str(log.FieldPath, archive.PlaylistsTSV).Msg("index exported")
	}

	if sel.Authors {
		rows, err := collectAuthors(ctx, root, videos)
		if err != nil {
			return err
		}
		payload, err := archive.EncodeAuthorsTSV(rows)
		if err != nil {
			return err
		}
		if err := e.store.AtomicWrite(ctx, archive.AuthorsTSV, payload); err != nil {
			return err
		}
		logger.Info().Int(log.FieldTotal, len(rows)).Str(log.FieldPath, archive.AuthorsTSV).Msg("index exported")
	}

	return nil
}

// collectVideos finds every video record in the tree. The row path is
// the directory's actual location, so an export pass self-heals stale
// path fields left behind by out-of-band moves.
func collectVideos(ctx context.Context, root string) ([]*archive.Video, error) {
	var videos []*archive.Video
	videosRoot := filepath.Join(root, archive.VideosDir)

	err := filepath.WalkDir(videosRoot, func(abs string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		metaPath := filepath.Join(abs, archive.MetadataFile)
		if _, err := os.Lstat(metaPath); err != nil {
			return nil
		}

		data, err := os.ReadFile(metaPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", metaPath, err)
		}
		v, err := archive.DecodeMetadata(data)
		if err != nil {
			return fmt.Errorf("%s: %w", metaPath, err)
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return err
		}
		v.Path = filepath.ToSlash(rel)
		videos = append(videos, v)
		return filepath.SkipDir
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walk video tree: %w", err)
	}
	return videos, nil
}

func collectPlaylists(ctx context.Context, root string, videos []*archive.Video) ([]archive.PlaylistRow, error) {
	durations := make(map[string]int64, len(videos))
	for _, v := range videos {
		durations[v.VideoID] = v.DurationSeconds
	}

	playlistsRoot := filepath.Join(root, archive.PlaylistsDir)
	entries, err := os.ReadDir(playlistsRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read playlists dir: %w", err)
	}

	var rows []archive.PlaylistRow
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		recordPath := filepath.Join(playlistsRoot, e.Name(), archive.PlaylistFile)
		data, err := os.ReadFile(recordPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", recordPath, err)
		}
		p, err := archive.DecodePlaylist(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", recordPath, err)
		}

		var total int64
		for _, id := range p.Items {
			total += durations[id]
		}
		rows = append(rows, archive.PlaylistRow{
			Title:         p.Title,
			Channel:       p.ChannelName,
			VideoCount:    int64(len(p.Items)),
			TotalDuration: total,
			LastUpdated:   p.FetchedAt,
			Path:          archive.PlaylistsDir + "/" + e.Name(),
			PlaylistID:    p.PlaylistID,
		})
	}
	return rows, nil
}

// author accumulates one authors.tsv row during aggregation.
type author struct {
	id           string
	name         string
	channelURL   string
	firstSeen    time.Time
	lastSeen     time.Time
	videoCount   int64
	commentCount int64
}

func (a *author) see(t time.Time) {
	if t.IsZero() {
		return
	}
	if a.firstSeen.IsZero() || t.Before(a.firstSeen) {
		a.firstSeen = t
	}
	if t.After(a.lastSeen) {
		a.lastSeen = t
	}
}

// collectAuthors aggregates uploaders and commenters. Rows are keyed by
// channel id; the rare comment without an author id is keyed by display
// name and carries no channel URL.
func collectAuthors(ctx context.Context, root string, videos []*archive.Video) ([]archive.AuthorRow, error) {
	authors := map[string]*author{}
	get := func(id, name string) *author {
		key := id
		if key == "" {
			key = "name:" + name
		}
		a, ok := authors[key]
		if !ok {
			a = &author{id: id, name: name}
			if id != "" {
				a.channelURL = archive.ChannelURL(id)
			}
			authors[key] = a
		}
		if a.name == "" {
			a.name = name
		}
		return a
	}

	for _, v := range videos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if v.ChannelID != "" || v.ChannelName != "" {
			a := get(v.ChannelID, v.ChannelName)
			a.videoCount++
			a.see(v.Published)
		}

		commentsPath := filepath.Join(root, filepath.FromSlash(v.Path), archive.CommentsFile)
		data, err := os.ReadFile(commentsPath)
		if err != nil {
			// absent, or an annex pointer without local content
			continue
		}
		comments, err := archive.DecodeComments(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", commentsPath, err)
		}
		for _, c := range comments {
			if c.AuthorID == "" && c.Author == "" {
				continue
			}
			a := get(c.AuthorID, c.Author)
			a.commentCount++
			a.see(c.Published)
		}
	}

	rows := make([]archive.AuthorRow, 0, len(authors))
	for _, a := range authors {
		rows = append(rows, archive.AuthorRow{
			Name:         a.name,
			ChannelURL:   a.channelURL,
			FirstSeen:    a.firstSeen,
			LastSeen:     a.lastSeen,
			VideoCount:   a.videoCount,
			CommentCount: a.commentCount,
			AuthorID:     a.id,
		})
	}
	// Name order breaks ties among id-less authors; the encoder's sort
	// by id is stable.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AuthorID != rows[j].AuthorID {
			return rows[i].AuthorID < rows[j].AuthorID
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}
