package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOfWalksWrappedChain(t *testing.T) {
	base := InvalidArgument("record %s not found", "abc").WithOp("update")
	wrapped := fmt.Errorf("batch: %w", base)

	require.Equal(t, CodeInvalidArgument, CodeOf(wrapped))
	require.True(t, Is(wrapped, CodeInvalidArgument))
	require.Equal(t, "update: record abc not found", base.Error())
	require.Equal(t, http.StatusBadRequest, HTTPStatus(CodeOf(wrapped)))
}

func TestWrapNilIsNil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "noop"))
	require.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
}

func TestEntityErrorSurfacesFailedEntityID(t *testing.T) {
	err := errors.Join(
		&EntityError{EntityID: "perm-1", Reason: "unknown permission"},
		&EntityError{EntityID: "perm-2", Reason: "unknown permission"},
	)

	id, ok := FailedEntityID(err)
	require.True(t, ok)
	require.Equal(t, "perm-1", id)
	require.Equal(t, CodeMigrateEntity, CodeOf(err))

	wire := ToWire(err)
	require.Equal(t, "migrate_entity", wire.Type)
	require.Equal(t, "perm-1", wire.Entity)
}
