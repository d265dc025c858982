package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/klevu/module-m2-indexing-sub002/internal/app"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			r := app.NewRuntime(cfg, logger)
			s := r.DatabaseStartup()
			if err := s.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = s.Stop(context.WithoutCancel(cmd.Context())) }()

			if err := r.Migrate(); err != nil {
				return err
			}
			logger.Info("Migrations applied")
			return nil
		},
	}
}
