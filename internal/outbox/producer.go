package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/healthconnect/internal/logger"
)

// Publisher writes change events with one kafka.Writer per topic. Messages
// are hashed by key so a record's changes keep their order on a partition.
type Publisher struct {
	brokers      []string
	batchTimeout time.Duration
	log          *zerolog.Logger

	mu     sync.Mutex
	topics map[string]*kafka.Writer
	closed bool
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithBatchTimeout bounds how long a partial batch waits before flushing.
func WithBatchTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// WithPublisherLogger overrides the component logger.
func WithPublisherLogger(l *zerolog.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPublisher returns a Publisher for brokers.
func NewPublisher(brokers []string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		log:          logger.Named("publisher"),
		topics:       map[string]*kafka.Writer{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var errPublisherClosed = errors.New("publisher closed")

// WriteMessages delivers msgs to topic.
func (p *Publisher) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	w, err := p.writer(topic)
	if err != nil {
		return err
	}
	if err := w.WriteMessages(ctx, msgs...); err != nil {
		p.log.Warn().Err(err).Str("topic", topic).Int("messages", len(msgs)).Msg("kafka delivery failed")
		return err
	}
	return nil
}

func (p *Publisher) writer(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errPublisherClosed
	}
	if w := p.topics[topic]; w != nil {
		return w, nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: p.batchTimeout,
	}
	p.topics[topic] = w
	return w, nil
}

// Close flushes and closes every writer. Later writes fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var errList []error
	for topic, w := range p.topics {
		if err := w.Close(); err != nil {
			errList = append(errList, err)
		}
		delete(p.topics, topic)
	}
	return errors.Join(errList...)
}
