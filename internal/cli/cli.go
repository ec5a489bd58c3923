// Package cli implements the command-line interface for bounce-stats.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bouncestorage/bounce-stats/pkg/config"
	"github.com/bouncestorage/bounce-stats/pkg/logging"
	"github.com/bouncestorage/bounce-stats/pkg/notify"
	"github.com/bouncestorage/bounce-stats/pkg/series"
	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
	"github.com/spf13/cobra"
)

const usage = "usage: bounce-stats <command> [options]\ncommands: collect, serve"

var errMissingConfig = errors.New("--config is required")

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

type globalOptions struct {
	configPath string
	debug      bool
	human      bool
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "bounce-stats",
		Short: "Aggregate object store usage from bounce operation series",
		Long: `bounce-stats rebuilds the size and object count of every configured object
store from the latest container snapshots plus the PUT and DELETE operations
recorded after them.

  # One aggregation, printed as a table:
  bounce-stats collect --config bounce-stats.yaml

  # Periodic aggregation with Prometheus metrics and a JSON endpoint:
  bounce-stats serve --config bounce-stats.yaml --listen :9464`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.Init(g.debug, g.human)
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file path")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "log every series query")
	root.PersistentFlags().BoolVar(&g.human, "human", false, "human-friendly console logs")

	root.AddCommand(newCollectCmd(g))
	root.AddCommand(newServeCmd(g))
	return root
}

func loadConfig(g *globalOptions) (*config.Config, error) {
	if g.configPath == "" {
		return nil, errMissingConfig
	}
	return config.Load(g.configPath)
}

// newQuerier builds the series client for cfg.
func newQuerier(cfg *config.Config) (*series.Client, error) {
	client, err := series.NewClient(cfg.SeriesClient())
	if err != nil {
		return nil, fmt.Errorf("create series client: %w", err)
	}
	return client, nil
}

// natsNotifier connects the completion publisher when one is configured.
// The returned close function is never nil.
func natsNotifier(cfg *config.Config) ([]usagestats.Option, func(), error) {
	if cfg.Notify.NATSURL == "" {
		return nil, func() {}, nil
	}
	pub, err := notify.Connect(cfg.Notify.NATSURL, cfg.Notify.Subject)
	if err != nil {
		return nil, nil, err
	}
	return []usagestats.Option{usagestats.WithNotifier(pub)}, pub.Close, nil
}
