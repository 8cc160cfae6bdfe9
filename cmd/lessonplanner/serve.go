package main

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/lessonplanner/internal/app"
	"github.com/mohammad-safakhou/lessonplanner/internal/runtime"
	srv "github.com/mohammad-safakhou/lessonplanner/internal/server"
	"github.com/mohammad-safakhou/lessonplanner/session"
	"github.com/spf13/cobra"
)

var version = "dev"

func serveCMD(load loader) *cobra.Command {
	var serveAddr string
	var autoMigrate bool
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			tel, _, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceVersion: version})
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			if autoMigrate && cfg.Storage.Backend == string(session.PostgresStore) {
				if err := srv.Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Retrieval.WarmOnStartup {
				wctx, wcancel := context.WithTimeout(ctx, cfg.Retrieval.WarmTimeout)
				if err := a.Warm(wctx); err != nil {
					log.Warn("index warm-up incomplete", "error", err)
				}
				wcancel()
			}
			if a.Refresher != nil {
				a.Refresher.Start(ctx)
				log.Info("index refresh scheduled", "next", a.Refresher.Next())
			}

			addr := serveAddr
			if addr == "" {
				addr = cfg.Server.Address
			}
			go func() {
				runtime.WaitForShutdown(ctx, log, "lessonplanner")
				cancel()
			}()
			return srv.Run(ctx, a.HTTP(), addr, log)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serve.Flags().BoolVar(&autoMigrate, "migrate", false, "apply migrations before serving when the postgres backend is used")

	return serve
}
