// Command seed-events fills the engine's SQLite database with synthetic
// listings and engagement events, triggers a recalculation on a running
// server and verifies the rankings it serves.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/trendscore/internal/seed"
)

// Default configuration constants.
const (
	defaultItems       = 500
	defaultEvents      = 20000
	defaultLimit       = 50
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfg     seed.Config
		logFile string
	)

	cmd := &cobra.Command{
		Use:          "seed-events",
		Short:        "Seed synthetic engagement and verify the served rankings",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			closeLog, err := seed.SetupLogging(logFile, cfg.Verbose)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTestTimeout)
			defer cancel()

			_, err = seed.Run(ctx, &cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.StringVar(&cfg.DatabasePath, "db", "trendscore.db", "SQLite database the service reads")
	f.IntVar(&cfg.Items, "items", defaultItems, "number of listings to generate")
	f.IntVar(&cfg.Events, "events", defaultEvents, "number of engagement events to generate")
	f.DurationVar(&cfg.Span, "span", seed.DefaultSpan, "events are spread over this period before now")
	f.IntVar(&cfg.Limit, "limit", defaultLimit, "ranking size requested per lens")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "number of concurrent HTTP workers")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.StringVar(&cfg.RecalculateToken, "token", os.Getenv("TRENDING_RECALCULATE_TOKEN"), "recalculate token")
	f.Uint64Var(&cfg.Seed, "seed", 0, "random seed (default: from the clock)")
	f.StringVar(&cfg.OutputFile, "output", "", "write the generated dataset to this JSON file")
	f.StringVar(&logFile, "log", "", "also write logs to this file")
	f.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")

	return cmd
}
