package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/healthconnect/internal/api"
	"example.com/healthconnect/internal/app"
	"example.com/healthconnect/internal/config"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/outbox"
	httptransport "example.com/healthconnect/internal/transport/http"
	"example.com/healthconnect/pkg/auth"
)

func main() {
	logger.Init(logger.FromEnv())
	log := logger.Named("api")
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer rt.Close()

	var dispatcher *outbox.Dispatcher
	if cfg.UsesKafka() && rt.Pool != nil {
		producer := outbox.NewPublisher(cfg.KafkaBrokers, outbox.WithPublisherLogger(logger.Named("publisher")))
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(rt.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithTopic(cfg.ChangesTopic), outbox.WithLogger(logger.Named("outbox")))
		go dispatcher.Start(ctx)
	}

	handler := api.NewHandler(rt.Service, api.WithOffsets(cfg.Offsets()), api.WithLogger(log))
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Mount("/", handler.Router(api.RouterConfig{
		Auth:           auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		AllowedOrigins: cfg.AllowedOrigins,
	}))

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.HTTPAddress).Str("driver", cfg.StorageDriver).Msg("health api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
