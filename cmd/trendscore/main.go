// Command trendscore runs the trending score engine: the HTTP API with its
// recalculation scheduler, or a one-off recalculation or ranking against the
// configured store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	app "github.com/okian/trendscore/internal/app"
	"github.com/okian/trendscore/internal/config"
	"github.com/okian/trendscore/pkg/logger"
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

// cli carries state shared by the subcommands once the root has loaded it.
type cli struct {
	cfgFile string
	cfg     *config.Config
}

func rootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "trendscore",
		Short:         "Rank marketplace items by decay-weighted engagement",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")

	root.AddCommand(serveCmd(c))
	root.AddCommand(recalculateCmd(c))
	root.AddCommand(rankCmd(c))

	return root
}

// load reads the configuration and initializes logging on stderr so command
// output on stdout stays machine readable.
func (c *cli) load(cmd *cobra.Command) error {
	if c.cfgFile != "" {
		if err := os.Setenv(config.EnvConfigFile, c.cfgFile); err != nil {
			return fmt.Errorf("set config path: %w", err)
		}
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}

	if err := logger.InitWithOptions(logger.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		Writer: cmd.ErrOrStderr(),
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	c.cfg = cfg
	return nil
}

// service builds a service from the loaded configuration. Extra options are
// applied last and win.
func (c *cli) service(extra ...app.Option) (*app.Service, error) {
	opts, err := app.OptionsFromConfig(c.cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, app.WithLogger(logger.Get()))
	opts = append(opts, extra...)
	return app.New(opts...), nil
}

// oneShot starts a service without its scheduler, runs fn and stops it.
func (c *cli) oneShot(ctx context.Context, fn func(*app.Service) error) error {
	svc, err := c.service(
		app.WithRecalculateInterval(0),
		app.WithRecalculateOnStart(false),
	)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	return fn(svc)
}
