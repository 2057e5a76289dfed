package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/units"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func steps(t *testing.T, origin, clientID string, start time.Time) record.Record {
	t.Helper()
	r, err := record.NewBuilder(&record.StepsData{Count: 100}).
		Between(start, start.Add(time.Hour)).
		WithOrigin(origin).
		WithClientID(clientID, 0).
		WithOffsetProvider(record.FixedOffsets(0)).
		Build()
	require.NoError(t, err)
	r.Metadata.ID = origin + "/" + clientID
	return r
}

func TestTimeRangeIsHalfOpen(t *testing.T) {
	tr := Between(base, base.Add(time.Hour))
	require.True(t, tr.Contains(base))
	require.True(t, tr.Contains(base.Add(59*time.Minute)))
	require.False(t, tr.Contains(base.Add(time.Hour)))
	require.False(t, tr.Contains(base.Add(-time.Nanosecond)))
	require.True(t, TimeRange{}.Contains(base))
	require.Equal(t, 30*time.Minute, tr.Overlap(base.Add(30*time.Minute), base.Add(2*time.Hour)))
	require.Zero(t, tr.Overlap(base.Add(2*time.Hour), base.Add(3*time.Hour)))
}

func TestSpecMatchesConjunction(t *testing.T) {
	a := steps(t, "com.a", "c1", base)
	b := steps(t, "com.b", "", base.Add(2*time.Hour))

	require.True(t, Spec{}.Matches(a))
	require.True(t, Spec{DataOrigins: []string{"com.a"}}.Matches(a))
	require.False(t, Spec{DataOrigins: []string{"COM.A"}}.Matches(a))
	require.False(t, Spec{Kinds: []record.Kind{record.KindWeight}}.Matches(a))
	require.True(t, Spec{ClientRecordIDs: []string{"c1"}}.Matches(a))
	require.False(t, Spec{ClientRecordIDs: []string{""}}.Matches(b))

	window := Spec{TimeRange: Between(base.Add(time.Hour), base.Add(3*time.Hour)), Kinds: []record.Kind{record.KindSteps}}
	require.False(t, window.Matches(a))
	require.True(t, window.Matches(b))
}

func TestVisibility(t *testing.T) {
	own := steps(t, "com.a", "c1", base)
	other := steps(t, "com.b", "c2", base)

	writer := ForCaller("com.a", []string{record.KindSteps.WritePermission()})
	require.True(t, writer.CanRead(own))
	require.False(t, writer.CanRead(other))
	require.True(t, writer.CanDelete(own))
	require.False(t, writer.CanDelete(other))

	reader := ForCaller("com.c", []string{record.KindSteps.ReadPermission()})
	require.True(t, reader.CanRead(other))
	require.False(t, reader.CanWrite(record.KindSteps))

	admin := ForCaller("com.settings", []string{record.PermissionManageHealthData})
	require.True(t, admin.CanDelete(other))

	w, err := record.NewBuilder(&record.WeightData{Weight: units.Kilograms(60)}).At(base).WithOrigin("com.a").Build()
	require.NoError(t, err)
	require.False(t, writer.CanRead(w))
}

func TestPageTokenRoundTrip(t *testing.T) {
	tok := &PageToken{Seq: 42, Descending: true}
	got, err := DecodePageToken(tok.Encode())
	require.NoError(t, err)
	require.Equal(t, tok, got)

	none, err := DecodePageToken("  ")
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = DecodePageToken("not-base64!")
	require.Error(t, err)
}
