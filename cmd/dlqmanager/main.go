package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"example.com/healthconnect/internal/config"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/outbox"
	"example.com/healthconnect/internal/storage/postgres"
	httptransport "example.com/healthconnect/internal/transport/http"
)

const batchSize = 50

func main() {
	logger.Init(logger.FromEnv())
	log := logger.Named("dlqmanager")
	cfg := config.Load()

	if cfg.StorageDriver != config.DriverPostgres {
		log.Fatal().Str("driver", cfg.StorageDriver).Msg("dlq manager needs the postgres change outbox")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer store.Close()

	metrics := httptransport.StartMetrics(cfg.MetricsAddress, log)

	manager := outbox.NewDLQManager(store.Pool(), cfg.DLQMaxRetries, cfg.DLQBaseDelay)
	log.Info().Dur("interval", cfg.DLQPollInterval).Int("max_retries", cfg.DLQMaxRetries).Msg("dlq manager started")
	if err := manager.Run(ctx, cfg.DLQPollInterval, batchSize); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("dlq manager stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown error")
	}
}
