package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/skipper/internal/probe"
)

func newProbeCmd(g *globals) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Fetch a page over HTTP and report the video its markup declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			p := probe.New(
				probe.WithTable(cfg.Table()),
				probe.WithMaxDepth(cfg.Engine.FrameMaxDepth),
				probe.WithLogger(g.logger),
			)
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			rep, err := p.Probe(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall probe timeout")
	return cmd
}
