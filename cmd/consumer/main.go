package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"

	"example.com/healthconnect/internal/app"
	"example.com/healthconnect/internal/config"
	"example.com/healthconnect/internal/consumer"
	"example.com/healthconnect/internal/logger"
	httptransport "example.com/healthconnect/internal/transport/http"
)

func main() {
	logger.Init(logger.FromEnv())
	log := logger.Named("consumer")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer rt.Close()

	metrics := httptransport.StartMetrics(cfg.MetricsAddress, log)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          cfg.MigrationTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, consumer.NewMigrationHandler(rt.Migrator), consumer.WithLogger(log))
	log.Info().Str("topic", cfg.MigrationTopic).Str("group", cfg.ConsumerGroup).Msg("consumer started")
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("consumer stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown error")
	}
}
