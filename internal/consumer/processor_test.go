package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/logger"
)

func TestProcessorCommitsHandledMessages(t *testing.T) {
	msg := kafka.Message{
		Topic:   "health_migration_entities",
		Offset:  12,
		Value:   json.RawMessage(`{"example":true}`),
		Time:    time.Now().UTC(),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("health.migration.entity")}},
	}
	reader := &stubReader{msgs: []kafka.Message{msg}, errAfter: context.Canceled}
	handler := &recordingHandler{}

	err := NewProcessor(reader, handler, WithLogger(logger.Nop())).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, handler.calls)
	require.Equal(t, "health.migration.entity", handler.last.Headers["event_type"])
	require.Equal(t, 1, reader.commitCount)
}

func TestProcessorCommitsPastPoisonMessages(t *testing.T) {
	reader := &stubReader{msgs: []kafka.Message{{Offset: 1}, {Offset: 2}}, errAfter: context.Canceled}
	handler := &recordingHandler{errs: []error{Poison(errors.New("bad json")), nil}}

	err := NewProcessor(reader, handler, WithLogger(logger.Nop())).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, handler.calls)
	require.Equal(t, 2, reader.commitCount)
}

func TestProcessorStopsWithoutCommitOnPersistentFailure(t *testing.T) {
	reader := &stubReader{msgs: []kafka.Message{{Offset: 1}}, errAfter: context.Canceled}
	boom := errors.New("database unavailable")
	handler := &recordingHandler{errs: []error{boom, boom, boom}}

	err := NewProcessor(reader, handler, WithLogger(logger.Nop()), WithRetry(3, time.Millisecond)).Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, handler.calls)
	require.Zero(t, reader.commitCount)
}

func TestProcessorRetriesTransientFailure(t *testing.T) {
	reader := &stubReader{msgs: []kafka.Message{{Offset: 1}}, errAfter: context.Canceled}
	handler := &recordingHandler{errs: []error{errors.New("blip"), nil}}

	err := NewProcessor(reader, handler, WithLogger(logger.Nop()), WithRetry(3, time.Millisecond)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, handler.calls)
	require.Equal(t, 1, reader.commitCount)
}

type stubReader struct {
	msgs        []kafka.Message
	idx         int
	commitCount int
	errAfter    error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.idx >= len(r.msgs) {
		return kafka.Message{}, r.errAfter
	}
	msg := r.msgs[r.idx]
	r.idx++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCount++
	return nil
}

func (r *stubReader) Close() error { return nil }

type recordingHandler struct {
	calls int
	errs  []error
	last  Message
}

var _ Handler = (*recordingHandler)(nil)

func (h *recordingHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}
