package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finboard/internal/cli"
	apphttp "finboard/internal/http"
	"finboard/internal/log"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize application", err)
	}

	var opts []apphttp.Option
	if p, ok := app.Backend.Store.(pinger); ok {
		opts = append(opts, apphttp.WithReadiness(p.Ping))
	}
	srv := apphttp.NewServer(":"+cfg.Port, app.Service, logger, opts...)
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	})
	app.Caches.StartCleanup(ctx, cfg.CacheTTL)

	logger.Info("Starting finboard server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.ReportTimezone,
		"events", cfg.AMQPURL != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
