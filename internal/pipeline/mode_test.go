// SPDX-License-Identifier: MIT
package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/con-org/annextube-sub000/internal/pipeline"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    pipeline.Mode
		wantErr bool
	}{
		{in: "", want: pipeline.ModeAllIncremental},
		{in: "all-incremental", want: pipeline.ModeAllIncremental},
		{in: "videos-incremental", want: pipeline.ModeVideosIncremental},
		{in: "social", want: pipeline.ModeSocial},
		{in: "all-force", want: pipeline.ModeAllForce},
		{in: "playlists", want: pipeline.ModePlaylists},
		{in: "everything", wantErr: true},
		{in: "Social", wantErr: true},
	}
	for _, tc := range cases {
		mode, err := pipeline.ParseMode(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, mode)
	}
}

func TestInterrupterTwoStage(t *testing.T) {
	interrupter, ctx := pipeline.NewInterrupter(context.Background())

	assert.False(t, interrupter.Requested())
	assert.True(t, interrupter.Interrupt(), "first request is graceful")
	assert.True(t, interrupter.Requested())
	require.NoError(t, ctx.Err(), "graceful stop must not cancel")

	assert.False(t, interrupter.Interrupt(), "second request cancels")
	assert.Error(t, ctx.Err())
}
