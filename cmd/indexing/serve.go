package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/klevu/module-m2-indexing-sub002/internal/app"
	"github.com/klevu/module-m2-indexing-sub002/pkg/routes"
	"github.com/klevu/module-m2-indexing-sub002/pkg/startup"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the scheduled sync jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(ctx context.Context, opts *options) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	r := app.NewRuntime(cfg, logger)
	s := r.Startup(cfg.DatabaseMigrateOnStart)
	checker := r.HealthChecker()
	serverErr := make(chan error, 1)
	var server *http.Server

	if cfg.SchedulerEnabled {
		s.AddDependency(startup.Func{
			Name:      "scheduler",
			Requires:  []string{app.DependencyServices},
			StartFunc: func(ctx context.Context) error { return r.Services.Scheduler.Start(ctx) },
			StopFunc:  func(ctx context.Context) error { return r.Services.Scheduler.Stop(ctx) },
		})
	}
	s.AddDependency(startup.Func{
		Name:     "http",
		Requires: []string{app.DependencyServices},
		StartFunc: func(context.Context) error {
			e := routes.NewServer(cfg.AppName, r.Services.Handlers(checker), logger)
			server = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: e}
			go func() {
				logger.Infof("Starting HTTP server on :%d", cfg.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if server == nil {
				return nil
			}
			return server.Shutdown(ctx)
		},
	})

	if err := s.Start(ctx); err != nil {
		_ = s.Stop(context.WithoutCancel(ctx))
		return err
	}
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-serverErr:
		logger.WithError(err).Error("HTTP server failed")
	}

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if stopErr := s.Stop(shutdownCtx); stopErr != nil {
		return errors.Join(err, stopErr)
	}
	return err
}
