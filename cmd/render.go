package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TFMV/specgraph/client"
	"github.com/TFMV/specgraph/ingest"
	"github.com/TFMV/specgraph/models"
	"github.com/TFMV/specgraph/render"
	"github.com/TFMV/specgraph/scene"
	"github.com/TFMV/specgraph/store"
)

func renderCmd() *cobra.Command {
	var (
		format    string
		out       string
		dataset   string
		highlight string
		query     string
		width     float64
		height    float64
		dark      bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Lay out the graph until it comes to rest and write one frame",
		Example: "  specgraph render --format svg --out graph.svg\n" +
			"  specgraph render --dataset data/unified_graph.json --query retry --format ascii",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var (
				fetcher store.Fetcher
				querier scene.Querier
			)
			if dataset != "" {
				ds, err := ingest.LoadDataset(dataset)
				if err != nil {
					return err
				}
				fetcher = store.FetcherFunc(func(context.Context) (*models.Snapshot, []error, error) {
					snap, warnings := ds.Snapshot()
					return snap, warnings, nil
				})
			} else {
				c := client.New(cfg.API.BaseURL, cfg.API.Timeout.Duration, client.WithLogger(logger.Named("client")))
				fetcher, querier = c, c
			}

			opts := scene.FromConfig(cfg)
			if width > 0 {
				opts.Width = width
			}
			if height > 0 {
				opts.Height = height
			}
			if dark {
				opts.Render.Palette = render.DarkPalette()
			}
			sc, err := scene.New(store.New(fetcher, logger.Named("store")), querier, opts, logger.Named("scene"))
			if err != nil {
				return err
			}
			if err := sc.Load(ctx); err != nil {
				return err
			}

			ids := splitIDs(highlight)
			if query != "" {
				if querier == nil {
					return fmt.Errorf("--query needs the query API; drop --dataset")
				}
				res, err := querier.Query(ctx, query)
				if err != nil {
					Bad.Fprintln(os.Stderr, scene.FallbackAnswer)
					return err
				}
				ids = append(ids, res.Highlight...)
			}
			sc.Highlights().Set(ids)

			settled, err := sc.Settle(ctx)
			if err != nil {
				logger.Warn("layout interrupted, rendering partial result", zap.Error(err))
			} else if !settled {
				logger.Warn("layout hit the tick limit before coming to rest")
			}

			frame, _, err := sc.Render(format)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = os.Stdout.Write(frame)
				return err
			}
			if err := os.WriteFile(out, frame, 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			Good.Fprintf(os.Stderr, "  wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "svg", "Output format: svg, ascii, json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Render a local dataset file instead of fetching from the API")
	cmd.Flags().StringVar(&highlight, "highlight", "", "Comma-separated node ids to highlight")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Highlight the nodes matching a question")
	cmd.Flags().Float64Var(&width, "width", 0, "Surface width (overrides [surface] width)")
	cmd.Flags().Float64Var(&height, "height", 0, "Surface height (overrides [surface] height)")
	cmd.Flags().BoolVar(&dark, "dark", false, "Use the dark palette")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Give up after this long")
	return cmd
}
