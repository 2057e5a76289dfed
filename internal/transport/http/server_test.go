package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/logger"
)

func TestNewServerAppliesConfig(t *testing.T) {
	srv := NewServer(DefaultServerConfig(":9000"), http.NotFoundHandler())
	require.Equal(t, ":9000", srv.Addr)
	require.Equal(t, 2*time.Second, srv.ReadHeaderTimeout)
	require.Equal(t, 15*time.Second, srv.WriteTimeout)
}

func TestMetricsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartMetricsDisabled(t *testing.T) {
	m := StartMetrics("", logger.Nop())
	require.Nil(t, m)
	require.NoError(t, m.Shutdown(context.Background()))
}
