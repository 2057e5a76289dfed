package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MetricsServer exposes /metrics for the background workers.
type MetricsServer struct {
	srv *http.Server
}

// MetricsHandler serves the default Prometheus registry at /metrics.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// StartMetrics serves MetricsHandler on addr in the background. An empty
// addr disables it and returns nil; Shutdown on nil is a no-op.
func StartMetrics(addr string, log *zerolog.Logger) *MetricsServer {
	if addr == "" {
		return nil
	}
	m := &MetricsServer{srv: NewServer(DefaultServerConfig(addr), MetricsHandler())}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listening")
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	return m
}

// Shutdown stops the server gracefully.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
