package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFraming(t *testing.T) {
	framed := Frame(42, []byte(`{"a":1}`))
	require.Equal(t, []byte{0, 0, 0, 0, 42}, framed[:5])

	id, payload, ok := Unframe(framed)
	require.True(t, ok)
	require.Equal(t, 42, id)
	require.JSONEq(t, `{"a":1}`, string(payload))

	id, payload, ok = Unframe([]byte(`{"b":2}`))
	require.False(t, ok)
	require.Zero(t, id)
	require.Equal(t, `{"b":2}`, string(payload))
}
