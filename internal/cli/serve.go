package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/potterlabs/mockapi/server"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mock API server",
		Long: `Run the mock API server until SIGINT or SIGTERM.

In-flight requests are given server.shutdown_timeout to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

			srv, err := server.New(cfg, server.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting mockapi",
				"version", Version,
				"repo_root", cfg.RepoRoot,
				"config", cfg.File,
				"watch", cfg.Watch.Enabled,
			)

			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("listen", "", "listen address (default: :4009)")
	cmd.Flags().Bool("watch", true, "invalidate cached schemas when their files change")

	return cmd
}
