// SPDX-License-Identifier: MIT
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/con-org/annextube-sub000/internal/archive"
)

func newInfoCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print archive statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configureLogging("")
			root, err := archiveRoot()
			if err != nil {
				return err
			}
			stats, err := archive.ComputeStats(root)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			printStats(cmd.OutOrStdout(), root, stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}

func printStats(w io.Writer, root string, s *archive.Stats) {
	color.New(color.Bold).Fprintf(w, "Archive %s\n", root)

	rows := []struct {
		label string
		value string
	}{
		{"videos", humanize.Comma(int64(s.Videos))},
		{"channels", humanize.Comma(int64(s.Channels))},
		{"playlists", humanize.Comma(int64(s.Playlists))},
		{"authors", humanize.Comma(int64(s.Authors))},
		{"caption tracks", humanize.Comma(s.CaptionTracks)},
		{"total duration", formatSeconds(s.TotalDurationSeconds)},
		{"total views", humanize.Comma(s.TotalViews)},
		{"total likes", humanize.Comma(s.TotalLikes)},
		{"total comments", humanize.Comma(s.TotalComments)},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-15s %s\n", r.label, r.value)
	}
	if !s.OldestPublished.IsZero() {
		fmt.Fprintf(w, "  %-15s %s to %s\n", "published",
			s.OldestPublished.Format("2006-01-02"), s.NewestPublished.Format("2006-01-02"))
	}
}

// formatSeconds renders a duration as hours and minutes; archives
// accumulate far too much footage for the sub-minute precision of
// Duration.String to stay readable.
func formatSeconds(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int64(d.Minutes()), seconds%60)
	}
	return fmt.Sprintf("%dh%02dm", int64(d.Hours()), int64(d.Minutes())%60)
}
