// SPDX-License-Identifier: MIT
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/con-org/annextube-sub000/internal/annex"
	"github.com/con-org/annextube-sub000/internal/archive"
	"github.com/con-org/annextube-sub000/internal/config"
)

const starterReadme = `# Video archive

This directory is an [annextube](https://github.com/con/annextube-sub000)
archive. Metadata, comments, captions, and the tabular indices are
regular files under git; media content is tracked by git-annex and
backed by its source URL.

Common operations:

    annextube backup          # sync the configured sources
    annextube info            # archive statistics
    annextube serve           # browse the archive over HTTP
    git annex get <path>      # fetch media content locally

Configuration lives in .annextube/config.toml. The YouTube Data API
key is read from the ANNEXTUBE_API_KEY environment variable and is
never stored in the archive.
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create an archive repository with a starter configuration",
		Long: `Init creates a git repository with an annex layer, writes the
attribute rules that route files between git and the annex, and adds a
commented configuration template plus a starter README.

Running init on an existing archive is safe: it regenerates the
attribute rules from the current configuration and never overwrites a
configuration or README that is already present.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging("")

			dir := flagArchive
			if len(args) == 1 {
				dir = args[0]
			}
			root, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve archive path: %w", err)
			}

			// An existing configuration decides the attribute rules, so
			// re-running init after flipping annex_captions updates them.
			policy := annex.Policy{}
			cfgPath := config.DefaultPath(root)
			haveConfig := false
			if _, err := os.Stat(cfgPath); err == nil {
				cfg, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				policy = cfg.Policy()
				haveConfig = true
			} else if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", cfgPath, err)
			}

			store, err := annex.NewRepo(root, policy, archive.ContentEqual)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return err
			}

			created := false
			if !haveConfig {
				if err := store.AtomicWrite(ctx, archive.ConfigFile, []byte(config.Template)); err != nil {
					return err
				}
				created = true
			}
			if _, err := os.Stat(filepath.Join(root, "README.md")); errors.Is(err, fs.ErrNotExist) {
				if err := store.AtomicWrite(ctx, "README.md", []byte(starterReadme)); err != nil {
					return err
				}
				created = true
			}
			if created {
				if err := store.AddAll(ctx); err != nil {
					return err
				}
				if _, err := store.Commit(ctx, "Add starter configuration"); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized archive at %s\n", root)
			if !haveConfig {
				fmt.Fprintf(out, "Edit %s and export %s before the first backup.\n",
					archive.ConfigFile, config.EnvAPIKey)
			}
			return nil
		},
	}
}
