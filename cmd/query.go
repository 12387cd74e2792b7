package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TFMV/specgraph/client"
	"github.com/TFMV/specgraph/scene"
)

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <question>",
		Short: "Ask the query API a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout.Duration)
			defer cancel()

			c := client.New(cfg.API.BaseURL, cfg.API.Timeout.Duration, client.WithLogger(logger.Named("client")))
			res, err := c.Query(ctx, strings.Join(args, " "))
			if err != nil {
				Bad.Println(scene.FallbackAnswer)
				return err
			}

			printAnswer(res.Answer)
			if len(res.Highlight) > 0 {
				Subtle.Print("  highlight: ")
				Mark.Println(strings.Join(res.Highlight, ", "))
			}
			return nil
		},
	}
}

func printAnswer(answer string) {
	for _, line := range strings.Split(answer, "\n") {
		switch {
		case strings.HasPrefix(line, "🔹"):
			Info.Println(line)
		case strings.HasPrefix(strings.TrimSpace(line), "↪"):
			Subtle.Println(line)
		case line == "---":
			Subtle.Println(strings.Repeat("─", 40))
		default:
			Good.Println(line)
		}
	}
}
