package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthconnect/internal/storage"
)

// deadLetter copies changes into change_dlq in one round trip. The DLQ
// manager picks them up immediately.
func deadLetter(ctx context.Context, pool *pgxpool.Pool, topic, reason string, changes []storage.Change) error {
	batch := &pgx.Batch{}
	for _, c := range changes {
		batch.Queue(`INSERT INTO change_dlq (change_seq, topic, reason, next_retry_at) VALUES ($1, $2, $3, NOW())`,
			c.Seq, topic, reason)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	dlqEvents.WithLabelValues(topic, outcomeDeadLettered).Add(float64(len(changes)))
	return nil
}
