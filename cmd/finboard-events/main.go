package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/cli"
	"finboard/internal/storage"
	"finboard/internal/worker"
)

func main() {
	envFile := flag.String("env", ".env", "env file to load before reading the configuration")
	days := flag.Int("days", 365, "days of history kept in the exported sheet")
	flag.Parse()

	cli.LoadEnvFile(*envFile)
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, os.Stdout)

	logger.Info("Starting finboard-events")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required")
		os.Exit(1)
	}

	exporters, err := cli.InitExporters(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize exporters", "error", err)
		os.Exit(1)
	}
	if len(exporters) == 0 {
		logger.Error("No export target configured (set EXPORT_DIR or GOOGLE_SPREADSHEET_ID)")
		os.Exit(1)
	}

	// The dashboard stores the session token; reuse it to read operations.
	prefs, closePrefs := cli.InitPrefs(logger, cfg)
	defer closePrefs()

	client := api.NewClient(cfg.APIURL, cfg.APITimeout, api.WithLogger(logger))
	client.OnUnauthorized(func(ctx context.Context) {
		logger.WarnContext(ctx, "Session token rejected, log in with finboard to resume syncing")
	})
	token, ok, err := prefs.Get(context.Background(), storage.KeyAuthToken)
	switch {
	case err != nil:
		logger.Error("Failed to read session token", "error", err)
		os.Exit(1)
	case !ok:
		logger.Warn("No session token stored, syncs fail until finboard logs in")
	default:
		client.SetToken(token)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(client, exporters, *days, cfg.HistoryLimit)

	parent, stop := context.WithCancel(context.Background())
	defer stop()
	ctx, done := cli.GracefulShutdown(parent, logger, 30*time.Second, nil)

	// Catch up on changes made while the worker was down.
	logger.Info("Performing startup sync...")
	if err := syncWorker.SyncHistory(ctx); err != nil {
		logger.Error("Startup sync failed", "error", err)
	}

	go func() {
		if err := amqpClient.ConsumeEvents(ctx, syncWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", "error", err)
			stop()
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
