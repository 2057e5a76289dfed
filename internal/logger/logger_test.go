package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseLevel(" DEBUG "))
	require.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	require.Equal(t, zerolog.Disabled, parseLevel("off"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestFromAddsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Level: "debug", Format: "json", Service: "api", Writer: &buf})

	ctx := WithRequest(context.Background(), "req-1", "com.example.fit")
	From(ctx, base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "req-1", line["request_id"])
	require.Equal(t, "com.example.fit", line["caller_package"])
	require.Equal(t, "api", line["service"])
	require.Equal(t, "hello", line["message"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Writer: &buf})
	l.Info().Msg("dropped")
	require.Zero(t, buf.Len())
	l.Warn().Msg("kept")
	require.NotZero(t, buf.Len())
}
