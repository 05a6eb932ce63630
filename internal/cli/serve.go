// SPDX-License-Identifier: MIT
package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/con-org/annextube-sub000/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		listen       string
		requestLimit int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the archive read-only over HTTP",
		Long: `Serve exposes the archive tree over HTTP without ever writing to it:
indices, per-video records, and fetched media stream straight from the
working tree, following the playlist symlinks. Endpoints:

  /                    archive files
  /api/stats           archive statistics as JSON
  /healthz             liveness probe
  /metrics             Prometheus metrics

Media that has not been fetched locally (annexed entries backed only
by their source URL) answers 404 until git annex get runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configureLogging("")
			root, err := archiveRoot()
			if err != nil {
				return err
			}
			srv, err := server.New(root, server.Options{RequestLimit: requestLimit})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "listen address")
	cmd.Flags().IntVar(&requestLimit, "request-limit", 0, "per-client requests per minute, 0 for the default")
	return cmd
}
