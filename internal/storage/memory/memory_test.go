package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Backend { return New() })
}

func TestFailedUpdateIsNotPublished(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	err := s.Update(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.PutMeta(ctx, "k", "v"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		_, ok, err := tx.Meta(ctx, "k")
		require.False(t, ok)
		return err
	}))
}

func TestViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.ErrorIs(t, s.View(ctx, func(tx storage.Tx) error { return tx.PutMeta(ctx, "k", "v") }), storage.ErrReadOnly)
}
