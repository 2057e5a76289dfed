//go:build integration

package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/postgres"
)

func TestDispatcherPublishesChanges(t *testing.T) {
	ctx := context.Background()
	eng, pool := setupStore(t, ctx)
	seedSteps(t, ctx, eng, 2)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 10)

	delivered := changesTotal.WithLabelValues(string(storage.ChangeUpsert), outcomeDelivered)
	before := testutil.ToFloat64(delivered)
	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, DefaultTopic, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, 1, registry.callCount())
	require.InDelta(t, before+2, testutil.ToFloat64(delivered), 0.0001)

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM changes WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, pending)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "nothing left to publish")
}

func TestDispatcherRoutesFailuresToDLQAndManagerRequeues(t *testing.T) {
	ctx := context.Background()
	eng, pool := setupStore(t, ctx)
	seedSteps(t, ctx, eng, 1)

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 10)

	deadLettered := dlqEvents.WithLabelValues(DefaultTopic, outcomeDeadLettered)
	beforeDLQ := testutil.ToFloat64(deadLettered)
	require.NoError(t, dispatcher.processBatch(ctx))
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(deadLettered), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM change_dlq`).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	manager := NewDLQManager(pool, 3, time.Millisecond)
	n, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM change_dlq`).Scan(&dlqCount))
	require.Zero(t, dlqCount)

	producer.setErr(nil)
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "requeued change is redelivered")
}

func TestDLQManagerQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	eng, pool := setupStore(t, ctx)
	seedSteps(t, ctx, eng, 1)

	var seq int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT MAX(seq) FROM changes`).Scan(&seq))
	_, err := pool.Exec(ctx, `INSERT INTO change_dlq (change_seq, topic, reason, retry_count, next_retry_at) VALUES ($1, $2, 'x', 3, NOW())`, seq, DefaultTopic)
	require.NoError(t, err)

	n, err := NewDLQManager(pool, 3, time.Minute).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM change_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
}

func TestDLQManagerQuarantinesPrunedChanges(t *testing.T) {
	ctx := context.Background()
	_, pool := setupStore(t, ctx)

	_, err := pool.Exec(ctx, `INSERT INTO change_dlq (change_seq, topic, reason, next_retry_at) VALUES (987654321, $1, 'x', NOW())`, DefaultTopic)
	require.NoError(t, err)

	n, err := NewDLQManager(pool, 3, time.Minute).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantine_reason FROM change_dlq`).Scan(&reason))
	require.Equal(t, "change no longer in log", reason)
}

func setupStore(t *testing.T, ctx context.Context) (*storage.Engine, *pgxpool.Pool) {
	t.Helper()
	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("health"),
		postgrescontainer.WithUsername("health"),
		postgrescontainer.WithPassword("health"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	store, err := postgres.Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return storage.New(store), store.Pool()
}

func seedSteps(t *testing.T, ctx context.Context, eng *storage.Engine, n int) {
	t.Helper()
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	recs := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		r, err := record.NewBuilder(&record.StepsData{Count: int64(100 + i)}).
			Between(at.Add(time.Duration(i)*time.Hour), at.Add(time.Duration(i)*time.Hour+time.Minute)).
			WithOrigin("com.example.fit").
			WithOffsetProvider(record.FixedOffsets(0)).
			Build()
		require.NoError(t, err)
		recs = append(recs, r)
	}
	_, err := eng.Insert(ctx, recs)
	require.NoError(t, err)
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	calls int
}

func (s *stubRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.id, nil
}

func (s *stubRegistry) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
