package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/klevu/module-m2-indexing-sub002/config"
	"github.com/klevu/module-m2-indexing-sub002/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "indexing",
		Short:         "Discovers, diffs and syncs catalog records with the remote index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", ".", "directory holding config.yaml")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newDiscoverCommand(opts),
		newSyncCommand(opts),
		newConsolidateHistoryCommand(opts),
		newCleanHistoryCommand(opts),
	)
	return root
}

func (o *options) load() (*config.Config, ectologger.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withRuntime connects a runtime, runs fn and tears the runtime down.
func (o *options) withRuntime(ctx context.Context, migrate bool, fn func(ctx context.Context, r *app.Runtime) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	r := app.NewRuntime(cfg, logger)
	s := r.Startup(migrate)
	defer func() {
		if err := s.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies")
		}
	}()
	if err := s.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, r)
}
