// SPDX-License-Identifier: MIT
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/con-org/annextube-sub000/internal/archive"
)

func newCheckCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify archive layout and index consistency",
		Long: `Check verifies what is decidable from the filesystem alone: every
video directory appears in the index exactly once and vice versa,
playlist links resolve to archived videos, files sit on the right side
of the git/annex split, and per-video records parse. It reports
problems without modifying anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configureLogging("")
			root, err := archiveRoot()
			if err != nil {
				return err
			}
			report, err := archive.Check(root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Checked %s video directories, %s index rows, %s playlist links.\n",
					humanize.Comma(int64(report.VideoDirs)),
					humanize.Comma(int64(report.IndexRows)),
					humanize.Comma(int64(report.Symlinks)))
				for _, p := range report.Problems {
					fmt.Fprintf(out, "  %s: %s\n", p.Path, p.Detail)
				}
				if report.Ok() {
					fmt.Fprintln(out, color.GreenString("OK"))
				}
			}
			if !report.Ok() {
				return fmt.Errorf("found %s", english.Plural(len(report.Problems), "problem", ""))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
