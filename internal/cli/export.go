// SPDX-License-Identifier: MIT
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/con-org/annextube-sub000/internal/annex"
	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/config"
	"github.com/con-org/annextube-sub000/internal/export"
)

func newExportCmd() *cobra.Command {
	var commit bool
	cmd := &cobra.Command{
		Use:   "export [videos|playlists|authors|all]",
		Short: "Regenerate the tabular indices from stored records",
		Long: `Export walks the per-video and per-playlist records and rewrites the
selected TSV indices. Backup runs do this on every commit; export is
for rebuilding them after manual edits or for verifying that the
indices match the tree.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"videos", "playlists", "authors", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			sel, err := export.ParseSelection(target)
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrInvalid, err)
			}

			root, err := archiveRoot()
			if err != nil {
				return err
			}
			cfg, err := config.Load(config.DefaultPath(root))
			if err != nil {
				return err
			}
			configureLogging(cfg.LogLevel)

			store, err := annex.NewRepo(root, cfg.Policy(), archive.ContentEqual)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := export.New(store).Export(ctx, sel); err != nil {
				return err
			}
			if !commit {
				return nil
			}
			if err := store.AddAll(ctx); err != nil {
				return err
			}
			committed, err := store.Commit(ctx, "Regenerate indices")
			if err != nil {
				return err
			}
			if committed {
				fmt.Fprintln(cmd.OutOrStdout(), "Committed regenerated indices.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Indices already up to date.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", true, "commit the indices when they changed")
	return cmd
}
