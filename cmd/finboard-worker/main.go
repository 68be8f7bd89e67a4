package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"finboard/internal/amqp"
	"finboard/internal/cli"
	"finboard/internal/log"
	"finboard/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting finboard-worker", "interval", cfg.RollupInterval.String())

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize application", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	}()
	app.Caches.StartCleanup(ctx, cfg.CacheTTL)

	rollups := worker.NewRollupWorker(app.Service, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rollups.Run(gctx, cfg.RollupInterval)
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		defer client.Close()

		g.Go(func() error {
			return client.ConsumeTransactionsChanged(gctx, rollups.Handle)
		})
	} else {
		logger.Info("AMQP_URL not set, running periodic refresh only")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		_ = app.Close()
		cli.Fatal(logger, "Worker stopped with error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
