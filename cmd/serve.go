package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TFMV/specgraph/client"
	"github.com/TFMV/specgraph/ingest"
	"github.com/TFMV/specgraph/scene"
	"github.com/TFMV/specgraph/server"
	"github.com/TFMV/specgraph/store"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		dataset string
		viz     bool
		remote  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph and query API, optionally with a live view",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if dataset != "" {
				cfg.Server.Dataset = dataset
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ds, err := ingest.LoadDataset(cfg.Server.Dataset)
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("dataset not found, serving an empty graph", zap.String("path", cfg.Server.Dataset))
				ds = nil
			} else if err != nil {
				return err
			}

			srv := server.New(server.Config{
				Addr:           cfg.Server.Addr,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			}, ds, logger.Named("server"))

			if viz {
				var (
					fetcher store.Fetcher = srv
					querier scene.Querier = srv
				)
				if remote {
					c := client.New(cfg.API.BaseURL, cfg.API.Timeout.Duration, client.WithLogger(logger.Named("client")))
					fetcher, querier = c, c
				}
				sc, err := scene.New(store.New(fetcher, logger.Named("store")), querier, scene.FromConfig(cfg), logger.Named("scene"))
				if err != nil {
					return err
				}
				srv.Mount(sc)

				go func() {
					if err := sc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("scene stopped", zap.Error(err))
					}
				}()
				go func() {
					if err := sc.Reload(ctx); err != nil {
						logger.Warn("initial graph load failed", zap.Error(err))
					}
				}()
			}

			Brand.Printf("specgraph serving on %s\n", cfg.Server.Addr)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides [server] addr)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset file, JSON or CSV (overrides [server] dataset)")
	cmd.Flags().BoolVar(&viz, "viz", true, "Mount a live graph view under /viz")
	cmd.Flags().BoolVar(&remote, "remote", false, "Feed the live view from [api] base_url instead of the local dataset")
	return cmd
}
