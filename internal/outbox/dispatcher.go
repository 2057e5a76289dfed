// Package outbox delivers the change log to Kafka.
//
// The Postgres changes table doubles as the outbox: rows with published_at
// NULL are claimed in batches, framed for the schema registry and written to
// the changes topic. Batches that cannot be delivered are copied to
// change_dlq and retried by the DLQManager.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/postgres"
	"example.com/healthconnect/pkg/events"
)

// DefaultTopic receives record change events.
const DefaultTopic = "health_record_changes"

// claimTimeout releases claims left behind by a crashed dispatcher.
const claimTimeout = 5 * time.Minute

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Dispatcher drains unpublished changes and delivers them to Kafka.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	topic            string
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	log              *zerolog.Logger
	shutdownComplete chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(d *Dispatcher) {
		if topic != "" {
			d.topic = topic
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 25
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	d := &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		topic:            DefaultTopic,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		log:              logger.Named("outbox"),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled. Call it in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error().Err(err).Msg("outbox batch failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start returns.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	changes, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	if err := d.deliver(ctx, changes); err != nil {
		d.log.Warn().Err(err).Int("changes", len(changes)).Msg("delivery failed, routing to dlq")
		if dlqErr := deadLetter(ctx, d.pool, d.topic, err.Error(), changes); dlqErr != nil {
			return dlqErr
		}
		countChanges(changes, outcomeDeadLettered)
		return d.markPublished(ctx, changes)
	}

	countChanges(changes, outcomeDelivered)
	d.log.Debug().Int("changes", len(changes)).Int64("last_seq", changes[len(changes)-1].Seq).Msg("changes delivered")
	return d.markPublished(ctx, changes)
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) (changes []storage.Change, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || len(changes) == 0 {
			_ = tx.Rollback(ctx)
		}
	}()

	const query = `SELECT seq, op, kind, record_id, origin, body, at
        FROM changes
        WHERE published_at IS NULL AND (claimed_at IS NULL OR claimed_at < NOW() - $2::interval)
        ORDER BY seq
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize, claimTimeout)
	if err != nil {
		return nil, err
	}
	seqs := make([]int64, 0, d.batchSize)
	for rows.Next() {
		c, scanErr := postgres.ScanChange(rows)
		if scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		changes = append(changes, c)
		seqs = append(seqs, c.Seq)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE changes SET claimed_at = NOW() WHERE seq = ANY($1)`, seqs); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return changes, nil
}

func (d *Dispatcher) schemaID(ctx context.Context) (int, error) {
	subject := d.topic + "-value"
	if v, ok := d.schemaIDCache.Load(subject); ok {
		return v.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, recordChangedSchema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(subject, id)
	return id, nil
}

func (d *Dispatcher) deliver(ctx context.Context, changes []storage.Change) error {
	schemaID, err := d.schemaID(ctx)
	if err != nil {
		return err
	}
	msgs, err := buildMessages(schemaID, changes)
	if err != nil {
		return err
	}
	return d.producer.WriteMessages(ctx, d.topic, msgs...)
}

// buildMessages encodes changes as framed RecordChanged messages keyed by
// record id, so every change to one record lands on the same partition.
func buildMessages(schemaID int, changes []storage.Change) ([]kafka.Message, error) {
	out := make([]kafka.Message, 0, len(changes))
	for _, c := range changes {
		payload, err := json.Marshal(toEvent(c))
		if err != nil {
			return nil, fmt.Errorf("encode change %d: %w", c.Seq, err)
		}
		eventType := events.TypeRecordUpserted
		if c.Op == storage.ChangeDelete {
			eventType = events.TypeRecordDeleted
		}
		out = append(out, kafka.Message{
			Key:   []byte(c.RecordID),
			Value: events.Frame(schemaID, payload),
			Time:  c.At,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(eventType)},
				{Key: "record_kind", Value: []byte(c.Kind)},
			},
		})
	}
	return out, nil
}

func toEvent(c storage.Change) events.RecordChanged {
	evt := events.RecordChanged{
		ChangeSeq:  c.Seq,
		Op:         string(c.Op),
		Kind:       string(c.Kind),
		RecordID:   c.RecordID,
		DataOrigin: c.Origin,
		OccurredAt: c.At,
	}
	if c.Record != nil {
		if raw, err := record.Marshal(*c.Record); err == nil {
			evt.Record = raw
		}
	}
	return evt
}

func (d *Dispatcher) markPublished(ctx context.Context, changes []storage.Change) error {
	seqs := make([]int64, len(changes))
	for i, c := range changes {
		seqs[i] = c.Seq
	}
	_, err := d.pool.Exec(ctx, `UPDATE changes SET published_at = NOW() WHERE seq = ANY($1)`, seqs)
	return err
}
