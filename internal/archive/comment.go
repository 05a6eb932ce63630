// SPDX-License-Identifier: MIT
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RootParent marks top-level comments. Wire payloads that omit the parent
// entirely are normalized to it on decode.
const RootParent = "root"

// Comment is one entry of a per-video comments.json array. Published is the
// platform's original instant, never the fetch time.
type Comment struct {
	CommentID string    `json:"comment_id"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Published time.Time `json:"published"`
	LikeCount int64     `json:"like_count"`
	ParentID  string    `json:"parent_id"`
}

// EncodeComments renders a deterministic comments.json payload: ascending by
// published instant, comment id as tiebreaker, two-space indentation.
func EncodeComments(comments []Comment) ([]byte, error) {
	sorted := make([]Comment, len(comments))
	copy(sorted, comments)
	SortComments(sorted)
	for i := range sorted {
		if sorted[i].ParentID == "" {
			sorted[i].ParentID = RootParent
		}
	}
	out, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode comments: %w", err)
	}
	return append(out, '\n'), nil
}

// DecodeComments parses comments.json. Missing parent ids become RootParent.
func DecodeComments(data []byte) ([]Comment, error) {
	var comments []Comment
	if err := json.Unmarshal(data, &comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	for i := range comments {
		if comments[i].ParentID == "" {
			comments[i].ParentID = RootParent
		}
	}
	return comments, nil
}

// SortComments orders ascending by published, id as tiebreaker.
func SortComments(comments []Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		a, b := comments[i], comments[j]
		if !a.Published.Equal(b.Published) {
			return a.Published.Before(b.Published)
		}
		return a.CommentID < b.CommentID
	})
}

// MergeComments folds freshly fetched comments into the existing set,
// deduplicating by comment id. Fresh entries win so edits and updated like
// counts propagate. The result is sorted.
func MergeComments(existing, fresh []Comment) []Comment {
	byID := make(map[string]Comment, len(existing)+len(fresh))
	for _, c := range existing {
		byID[c.CommentID] = c
	}
	for _, c := range fresh {
		byID[c.CommentID] = c
	}
	merged := make([]Comment, 0, len(byID))
	for _, c := range byID {
		merged = append(merged, c)
	}
	SortComments(merged)
	return merged
}

// LatestCommentInstant returns the newest published instant, zero when the
// payload is empty or unparseable. It feeds the since cursor of the next
// comment fetch.
func LatestCommentInstant(data []byte) time.Time {
	comments, err := DecodeComments(data)
	if err != nil || len(comments) == 0 {
		return time.Time{}
	}
	latest := comments[0].Published
	for _, c := range comments[1:] {
		if c.Published.After(latest) {
			latest = c.Published
		}
	}
	return latest
}

// CommentsEqual compares payloads byte-wise. Comment timestamps are original
// platform instants, so no normalization applies.
func CommentsEqual(old, new []byte) bool {
	return bytes.Equal(old, new)
}
