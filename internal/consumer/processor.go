// Package consumer streams migration entities from Kafka into the store.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/healthconnect/internal/logger"
)

// Reader describes the kafka.Reader functions the processor interacts with.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler processes decoded Kafka messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message represents a decoded Kafka record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Payload   json.RawMessage
	Timestamp time.Time
	Headers   map[string]string
}

// PoisonError marks a message that can never succeed. The processor commits
// past it.
type PoisonError struct{ Err error }

func (e *PoisonError) Error() string { return "poison message: " + e.Err.Error() }
func (e *PoisonError) Unwrap() error { return e.Err }

// Poison wraps err as a PoisonError.
func Poison(err error) error {
	if err == nil {
		return nil
	}
	return &PoisonError{Err: err}
}

// Option configures processor behaviour.
type Option func(*Processor)

// WithLogger sets a custom logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRetry sets how often a failing message is retried before Run gives up.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// Processor coordinates the consumer loop.
type Processor struct {
	reader   Reader
	handler  Handler
	log      *zerolog.Logger
	attempts int
	backoff  time.Duration
}

// NewProcessor constructs a processor from a reader/handler pair.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		log:      logger.Named("consumer"),
		attempts: 5,
		backoff:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes messages until ctx is cancelled. Handled and poison messages
// are committed. A message that still fails after the retry budget stops
// Run uncommitted, so it is redelivered when the consumer restarts.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.log.Warn().Err(err).Msg("fetch failed")
			continue
		}

		decoded := decode(msg)
		log := p.log.With().Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()

		started := time.Now()
		err = p.handle(ctx, decoded)
		var poison *PoisonError
		switch {
		case err == nil:
			observeMessage(decoded, "ok", started)
			log.Debug().Msg("processed")
		case errors.As(err, &poison):
			observeMessage(decoded, "skipped", started)
			log.Warn().Err(err).Msg("skipping message")
		default:
			observeMessage(decoded, "failed", started)
			log.Error().Err(err).Msg("handler failed, stopping without commit")
			return err
		}

		if err := p.reader.CommitMessages(ctx, msg); err != nil {
			log.Warn().Err(err).Msg("commit failed")
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg Message) error {
	var err error
	delay := p.backoff
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = p.handler.Handle(ctx, msg)
		var poison *PoisonError
		if err == nil || errors.As(err, &poison) {
			return err
		}
		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func decode(msg kafka.Message) Message {
	decoded := Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Payload:   append(json.RawMessage{}, msg.Value...),
		Timestamp: msg.Time,
		Headers:   make(map[string]string, len(msg.Headers)),
	}
	for _, header := range msg.Headers {
		decoded.Headers[header.Key] = string(header.Value)
	}
	return decoded
}
