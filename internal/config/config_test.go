package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/record"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, DriverSQLite, cfg.StorageDriver)
	require.Equal(t, "health_record_changes", cfg.ChangesTopic)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.UsesKafka())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("KAFKA_BROKERS", " a:1, ,b:2 ")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "nope")
	t.Setenv("OUTBOX_ENABLED", "true")

	cfg := Load()
	require.Equal(t, DriverPostgres, cfg.StorageDriver)
	require.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	require.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.True(t, cfg.UsesKafka())
}

func TestOffsets(t *testing.T) {
	require.Equal(t, record.SystemOffsets{}, Config{}.Offsets())
	require.Equal(t, record.FixedOffsets(-90*time.Minute), Config{DefaultOffset: "-1h30m"}.Offsets())
	require.Equal(t, record.SystemOffsets{}, Config{DefaultOffset: "garbage"}.Offsets())
}
