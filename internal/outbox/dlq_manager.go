package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"example.com/healthconnect/internal/logger"
)

const maxBackoff = time.Hour

// DLQManager replays dead-lettered changes through the outbox. Entries past
// the retry budget, and entries whose change was pruned from the log, are
// quarantined.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	log        *zerolog.Logger
}

// NewDLQManager returns a manager allowing maxRetries replays per entry,
// spaced by exponential backoff from baseDelay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	m := &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, log: logger.Named("dlq")}
	if m.maxRetries <= 0 {
		m.maxRetries = 5
	}
	if m.baseDelay <= 0 {
		m.baseDelay = time.Minute
	}
	return m
}

// Run calls RunOnce every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		switch n, err := m.RunOnce(ctx, batchSize); {
		case err != nil && !errors.Is(err, context.Canceled):
			m.log.Error().Err(err).Msg("dlq pass failed")
		case n > 0:
			m.log.Info().Int("settled", n).Msg("dlq pass complete")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type dlqEntry struct {
	ID         int64  `db:"dlq_id"`
	ChangeSeq  int64  `db:"change_seq"`
	Topic      string `db:"topic"`
	RetryCount int    `db:"retry_count"`
}

// RunOnce settles up to batchSize due entries and reports how many were
// settled without error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, `SELECT dlq_id, change_seq, topic, retry_count
        FROM change_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1`, batchSize)
	if err != nil {
		return 0, err
	}
	due, err := pgx.CollectRows(rows, pgx.RowToStructByName[dlqEntry])
	if err != nil {
		return 0, err
	}

	settled := 0
	var errList []error
	for _, e := range due {
		err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error { return m.settle(ctx, tx, e) })
		if err != nil {
			errList = append(errList, err)
			continue
		}
		settled++
	}
	refreshBacklog(ctx, m.pool)
	return settled, errors.Join(errList...)
}

func (m *DLQManager) settle(ctx context.Context, tx pgx.Tx, e dlqEntry) error {
	log := m.log.With().Int64("change_seq", e.ChangeSeq).Int("retries", e.RetryCount).Logger()
	if e.RetryCount >= m.maxRetries {
		log.Warn().Msg("dlq entry quarantined")
		return m.quarantine(ctx, tx, e, "retry limit reached")
	}

	var tag pgconn.CommandTag
	err := pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) (err error) {
		tag, err = sp.Exec(ctx, `UPDATE changes SET published_at = NULL, claimed_at = NULL WHERE seq = $1`, e.ChangeSeq)
		return err
	})
	if err != nil {
		_, rerr := tx.Exec(ctx, `UPDATE change_dlq
            SET retry_count = retry_count + 1, last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval, reason = $2
            WHERE dlq_id = $3`, m.backoffDelay(e.RetryCount+1), err.Error(), e.ID)
		if rerr == nil {
			dlqEvents.WithLabelValues(e.Topic, dlqRescheduled).Inc()
		}
		return rerr
	}
	if tag.RowsAffected() == 0 {
		log.Warn().Msg("change pruned from log, quarantining")
		return m.quarantine(ctx, tx, e, "change no longer in log")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM change_dlq WHERE dlq_id = $1`, e.ID); err != nil {
		return err
	}
	dlqEvents.WithLabelValues(e.Topic, dlqRequeued).Inc()
	return nil
}

func (m *DLQManager) quarantine(ctx context.Context, tx pgx.Tx, e dlqEntry, reason string) error {
	_, err := tx.Exec(ctx, `UPDATE change_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, reason, e.ID)
	if err == nil {
		dlqEvents.WithLabelValues(e.Topic, dlqQuarantined).Inc()
	}
	return err
}

// backoffDelay doubles baseDelay per attempt, capped at maxBackoff.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	if attempt > 16 {
		return maxBackoff
	}
	return min(m.baseDelay<<(attempt-1), maxBackoff)
}
