//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/migration"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/memory"
	"example.com/healthconnect/pkg/events"
)

func TestKafkaMigrationEntityStagesAppInfo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kc, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		testcontainers.WithEnv(map[string]string{"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true"}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kc.Terminate(context.Background()) })

	brokers, err := kc.Brokers(ctx)
	require.NoError(t, err)
	const topic = "health_migration_entities"

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	require.NoError(t, conn.Close())

	reg := migration.NewRegistry()
	eng := storage.New(memory.New(), storage.WithOracle(reg))
	mig := migration.New(eng, reg, reg, migration.WithLogger(logger.Nop()))
	require.NoError(t, mig.Start(ctx))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "migration-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = NewProcessor(reader, NewMigrationHandler(mig), WithLogger(logger.Nop())).Run(runCtx) }()

	payload, err := json.Marshal(events.MigrationEntity{
		EntityID: "app-1",
		AppInfo:  &events.MigratedAppInfo{PackageName: "com.example.legacy", AppName: "Legacy"},
	})
	require.NoError(t, err)

	writer := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, BatchTimeout: 10 * time.Millisecond}
	defer writer.Close()
	require.NoError(t, writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte("app-1"),
		Value:   events.Frame(3, payload),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeMigrationEntity)}},
	}))

	require.Eventually(t, func() bool {
		st, err := mig.State(ctx)
		return err == nil && st.Applied == 1
	}, 60*time.Second, 500*time.Millisecond)
}
