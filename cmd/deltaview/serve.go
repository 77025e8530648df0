package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/justapithecus/deltaview/internal/metrics"
	"github.com/justapithecus/deltaview/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web browser and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, name, err := a.previewer(ctx)
			if err != nil {
				return err
			}
			srv, err := server.New(p, server.Config{
				Bucket:       name,
				Limits:       a.cfg.Limits(),
				PageSize:     a.cfg.ListPageSize,
				WriteTimeout: a.cfg.WriteTimeout,
			}, server.WithLogger(a.logger), server.WithMetrics(metrics.New()))
			if err != nil {
				return err
			}

			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			return srv.Serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default LISTEN_ADDR)")
	return cmd
}
