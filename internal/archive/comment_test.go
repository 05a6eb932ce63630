// SPDX-License-Identifier: MIT
package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommentsMissingParentBecomesRoot(t *testing.T) {
	payload := []byte(`[
  {"comment_id": "c1", "author": "A", "author_id": "UCa", "text": "hi", "published": "2024-01-01T00:00:00Z", "like_count": 3}
]`)
	comments, err := DecodeComments(payload)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, RootParent, comments[0].ParentID)
}

func TestMergeCommentsDedupAndOrder(t *testing.T) {
	existing := []Comment{
		{CommentID: "c2", Text: "second", Published: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), ParentID: RootParent},
		{CommentID: "c1", Text: "first", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ParentID: RootParent},
	}
	fresh := []Comment{
		{CommentID: "c2", Text: "second (edited)", LikeCount: 9, Published: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), ParentID: RootParent},
		{CommentID: "c3", Text: "third", Published: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), ParentID: "c1"},
	}

	merged := MergeComments(existing, fresh)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{merged[0].CommentID, merged[1].CommentID, merged[2].CommentID})
	assert.Equal(t, "second (edited)", merged[1].Text, "fresh entry wins")
	assert.Equal(t, "c1", merged[2].ParentID)
}

func TestEncodeCommentsDeterministic(t *testing.T) {
	comments := []Comment{
		{CommentID: "b", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{CommentID: "a", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	one, err := EncodeComments(comments)
	require.NoError(t, err)
	two, err := EncodeComments([]Comment{comments[1], comments[0]})
	require.NoError(t, err)
	assert.Equal(t, string(one), string(two))

	decoded, err := DecodeComments(one)
	require.NoError(t, err)
	assert.Equal(t, "a", decoded[0].CommentID)
	assert.Equal(t, RootParent, decoded[0].ParentID)
}

func TestLatestCommentInstant(t *testing.T) {
	payload, err := EncodeComments([]Comment{
		{CommentID: "c1", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{CommentID: "c2", Published: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), LatestCommentInstant(payload))
	assert.True(t, LatestCommentInstant([]byte("[]")).IsZero())
	assert.True(t, LatestCommentInstant([]byte("not json")).IsZero())
}
