// SPDX-License-Identifier: MIT

// Package cli assembles the annextube command tree. Each subcommand
// wires the archive packages together; the policy lives there, not
// here.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/con-org/annextube-sub000/internal/config"
	"github.com/con-org/annextube-sub000/internal/log"
	"github.com/con-org/annextube-sub000/internal/organize"
	"github.com/con-org/annextube-sub000/internal/pipeline"
	"github.com/con-org/annextube-sub000/internal/quota"
)

var (
	flagArchive  string
	flagLogLevel string
)

// NewRootCmd returns the annextube root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "annextube",
		Short: "Archive YouTube channels and playlists into a git-annex repository",
		Long: `annextube keeps a self-describing archive of YouTube content in a git
repository. Metadata, comments, captions, and tabular indices live as
regular files under git; media content is tracked by git-annex and
backed by its source URL, so an archive stays small until content is
actually fetched.

The YouTube Data API key is read from the ` + config.EnvAPIKey + `
environment variable. It is never stored in the archive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flagArchive, "archive", "C", ".", "path to the archive root")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		newInitCmd(),
		newBackupCmd(),
		newUpdateCmd(),
		newExportCmd(),
		newInfoCmd(),
		newCheckCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree and maps the failure class onto the
// documented exit codes: 2 for an interrupted but checkpointed run,
// 3 for configuration errors, 4 when a quota wait gave up, 1 for
// everything else.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInterrupted):
		return 2
	case errors.Is(err, config.ErrInvalid), errors.Is(err, organize.ErrPrefixOverflow):
		return 3
	case errors.Is(err, quota.ErrGaveUp):
		return 4
	}
	return 1
}

// archiveRoot resolves the --archive flag to an absolute path.
func archiveRoot() (string, error) {
	root, err := filepath.Abs(flagArchive)
	if err != nil {
		return "", fmt.Errorf("resolve archive path: %w", err)
	}
	return root, nil
}

// configureLogging applies the first level that is set: the
// --log-level flag, then the config value, then the built-in default.
func configureLogging(configLevel string) {
	level := flagLogLevel
	if level == "" {
		level = configLevel
	}
	log.Configure(log.Config{Level: level})
}
