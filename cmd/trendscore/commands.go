package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	app "github.com/okian/trendscore/internal/app"
	"github.com/okian/trendscore/internal/domain/types"
)

func recalculateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate",
		Short: "Recalculate the snapshots of every window once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.oneShot(cmd.Context(), func(svc *app.Service) error {
				summary, err := svc.Recalculate(cmd.Context())
				if summary.RunID != "" {
					if werr := writeJSON(cmd.OutOrStdout(), summary); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
}

func rankCmd(c *cli) *cobra.Command {
	var (
		lens       string
		period     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the ranking of a lens and period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.oneShot(cmd.Context(), func(svc *app.Service) error {
				return rank(cmd.Context(), cmd.OutOrStdout(), svc, lens, period, limit, jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&lens, "type", "trending", "lens: trending, today, for_sale, hot, new")
	cmd.Flags().StringVar(&period, "period", "7d", "window: 24h or 7d")
	cmd.Flags().IntVar(&limit, "limit", 0, "max items (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func rank(ctx context.Context, w io.Writer, svc *app.Service, lens, period string, limit int, jsonOutput bool) error {
	raw := ""
	if limit > 0 {
		raw = strconv.Itoa(limit)
	}

	resp, err := svc.Trending(ctx, svc.ResolveQuery(lens, period, raw))
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, resp)
	}
	return writeTable(w, resp)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, resp types.TrendingResponse) error {
	source := "snapshot"
	if !resp.SnapshotBased {
		source = "live"
	}
	if _, err := fmt.Fprintf(w, "%s / %s (%s)\n", resp.Type, resp.Window, source); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tSCORE\tWHY")
	for i, item := range resp.Items {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\n", i+1, item.ID, item.TrendScore, item.WhyTrending)
	}
	return tw.Flush()
}
