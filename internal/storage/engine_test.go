package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/memory"
	"example.com/healthconnect/internal/units"
)

const cts = "android.healthconnect.cts"

var t0 = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

type fakeOracle map[string]string

func (f fakeOracle) Installed(_ context.Context, pkg string) (storage.AppInfo, bool) {
	name, ok := f[pkg]
	return storage.AppInfo{AppName: name}, ok
}

func newEngine(t *testing.T) *storage.Engine {
	t.Helper()
	return storage.New(memory.New(),
		storage.WithOracle(fakeOracle{cts: "CTS"}),
		storage.WithClock(func() time.Time { return t0.Add(time.Hour) }),
	)
}

func stepsRecord(t *testing.T, origin string, count int64, at time.Time) record.Record {
	t.Helper()
	r, err := record.NewBuilder(&record.StepsData{Count: count}).
		Between(at, at.Add(10*time.Minute)).
		WithOrigin(origin).
		WithOffsetProvider(record.FixedOffsets(time.Hour)).
		Build()
	require.NoError(t, err)
	return r
}

func ownVisibility(origin string, kinds ...record.Kind) filter.Visibility {
	var perms []string
	for _, k := range kinds {
		perms = append(perms, k.ReadPermission(), k.WritePermission())
	}
	return filter.ForCaller(origin, perms)
}

func TestInsertReadByIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	in := stepsRecord(t, cts, 42, t0)

	ids, err := eng.Insert(ctx, []record.Record{in})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	got, err := eng.ReadByIDs(ctx, ownVisibility(cts, record.KindSteps), []storage.RecordRef{{Kind: record.KindSteps, ID: ids[0]}})
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := in.Clone()
	want.Metadata.ID = ids[0]
	want.Metadata.LastModifiedTime = t0.Add(time.Hour)
	require.Equal(t, want, got[0])
}

func TestClientRecordIDKeepsLatestVersion(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	vis := ownVisibility(cts, record.KindSteps)

	v1 := stepsRecord(t, cts, 10, t0)
	v1.Metadata.ClientRecordID, v1.Metadata.ClientRecordVersion = "walk", 1
	v2 := stepsRecord(t, cts, 20, t0)
	v2.Metadata.ClientRecordID, v2.Metadata.ClientRecordVersion = "walk", 2
	stale := stepsRecord(t, cts, 5, t0)
	stale.Metadata.ClientRecordID, stale.Metadata.ClientRecordVersion = "walk", 0

	first, err := eng.Insert(ctx, []record.Record{v1})
	require.NoError(t, err)
	second, err := eng.Insert(ctx, []record.Record{v2})
	require.NoError(t, err)
	third, err := eng.Insert(ctx, []record.Record{stale})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, first, third)

	page, err := eng.ReadByFilter(ctx, vis, storage.ReadRequest{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, int64(20), page.Records[0].Data.(*record.StepsData).Count)
	require.Equal(t, int64(2), page.Records[0].Metadata.ClientRecordVersion)
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	vis := ownVisibility(cts, record.KindSteps)

	var recs []record.Record
	for i := 0; i < 3; i++ {
		recs = append(recs, stepsRecord(t, cts, int64(100+i), t0.Add(time.Duration(i)*time.Hour)))
	}
	ids, err := eng.Insert(ctx, recs)
	require.NoError(t, err)

	var batch []record.Record
	for i, id := range ids {
		r := stepsRecord(t, cts, 999, t0.Add(time.Duration(i)*time.Hour))
		r.Metadata.ID = id
		batch = append(batch, r)
	}
	missing := stepsRecord(t, cts, 999, t0)
	missing.Metadata.ID = "00000000-0000-0000-0000-000000000000"
	batch = append(batch, missing)

	err = eng.Update(ctx, batch)
	require.True(t, errs.Is(err, errs.CodeInvalidArgument), "got %v", err)

	page, err := eng.ReadByFilter(ctx, vis, storage.ReadRequest{})
	require.NoError(t, err)
	require.Len(t, page.Records, 3)
	for i, r := range page.Records {
		require.Equal(t, int64(100+i), r.Data.(*record.StepsData).Count)
	}
}

func TestUpdateReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	vis := ownVisibility(cts, record.KindSteps)

	ids, err := eng.Insert(ctx, []record.Record{stepsRecord(t, cts, 1, t0), stepsRecord(t, cts, 2, t0.Add(time.Hour))})
	require.NoError(t, err)

	upd := stepsRecord(t, cts, 50, t0)
	upd.Metadata.ID = ids[0]
	require.NoError(t, eng.Update(ctx, []record.Record{upd}))

	page, err := eng.ReadByFilter(ctx, vis, storage.ReadRequest{})
	require.NoError(t, err)
	require.Equal(t, ids[0], page.Records[0].ID())
	require.Equal(t, int64(50), page.Records[0].Data.(*record.StepsData).Count)
}

func TestUpdateRejectsForeignOrigin(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	ids, err := eng.Insert(ctx, []record.Record{stepsRecord(t, cts, 1, t0)})
	require.NoError(t, err)

	upd := stepsRecord(t, "com.other", 2, t0)
	upd.Metadata.ID = ids[0]
	require.True(t, errs.Is(eng.Update(ctx, []record.Record{upd}), errs.CodeInvalidArgument))
}

func TestReadByFilterOrigins(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	vis := ownVisibility(cts, record.KindSteps)
	_, err := eng.Insert(ctx, []record.Record{stepsRecord(t, cts, 1, t0), stepsRecord(t, cts, 2, t0.Add(time.Minute))})
	require.NoError(t, err)

	page, err := eng.ReadByFilter(ctx, vis, storage.ReadRequest{Spec: filter.Spec{DataOrigins: []string{"abc"}}})
	require.NoError(t, err)
	require.Empty(t, page.Records)

	page, err = eng.ReadByFilter(ctx, vis, storage.ReadRequest{Spec: filter.Spec{DataOrigins: []string{cts}}})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
}

func TestDeleteByFilterScope(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	vis := ownVisibility(cts, record.KindSteps)
	ids, err := eng.Insert(ctx, []record.Record{stepsRecord(t, cts, 1, t0)})
	require.NoError(t, err)
	_, err = eng.Insert(ctx, []record.Record{stepsRecord(t, "com.other", 1, t0)})
	require.NoError(t, err)

	n, err := eng.DeleteByFilter(ctx, vis, filter.Spec{DataOrigins: []string{"abc"}})
	require.NoError(t, err)
	require.Zero(t, n)
	got, err := eng.ReadByIDs(ctx, vis, []storage.RecordRef{{Kind: record.KindSteps, ID: ids[0]}})
	require.NoError(t, err)
	require.Len(t, got, 1)

	n, err = eng.DeleteByFilter(ctx, vis, filter.Spec{})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	all, err := eng.ReadByFilter(ctx, filter.Everything(), storage.ReadRequest{})
	require.NoError(t, err)
	require.Len(t, all.Records, 1)
	require.Equal(t, "com.other", all.Records[0].Origin())
}

func TestDeleteByIDsIgnoresUnknown(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	vis := ownVisibility(cts, record.KindSteps)
	r := stepsRecord(t, cts, 1, t0)
	r.Metadata.ClientRecordID = "c-1"
	_, err := eng.Insert(ctx, []record.Record{r})
	require.NoError(t, err)

	n, err := eng.DeleteByIDs(ctx, vis, []storage.RecordRef{
		{Kind: record.KindSteps, ID: "nope"},
		{Kind: record.KindSteps, ClientRecordID: "c-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestReadByFilterPagination(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	vis := ownVisibility(cts, record.KindSteps)
	var recs []record.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, stepsRecord(t, cts, int64(i+1), t0.Add(time.Duration(i)*time.Minute)))
	}
	_, err := eng.Insert(ctx, recs)
	require.NoError(t, err)

	var counts []int64
	token := ""
	for {
		page, err := eng.ReadByFilter(ctx, vis, storage.ReadRequest{PageSize: 2, PageToken: token})
		require.NoError(t, err)
		for _, r := range page.Records {
			counts = append(counts, r.Data.(*record.StepsData).Count)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5}, counts)

	desc, err := eng.ReadByFilter(ctx, vis, storage.ReadRequest{PageSize: 2, Descending: true})
	require.NoError(t, err)
	require.Equal(t, int64(5), desc.Records[0].Data.(*record.StepsData).Count)

	_, err = eng.ReadByFilter(ctx, vis, storage.ReadRequest{PageSize: storage.MaxPageSize + 1})
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestChangesFeed(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	vis := ownVisibility(cts, record.KindSteps)

	token, err := eng.ChangesToken(ctx, []record.Kind{record.KindSteps}, nil)
	require.NoError(t, err)

	ids, err := eng.Insert(ctx, []record.Record{stepsRecord(t, cts, 1, t0), stepsRecord(t, cts, 2, t0)})
	require.NoError(t, err)
	_, err = eng.DeleteByIDs(ctx, vis, []storage.RecordRef{{ID: ids[0]}})
	require.NoError(t, err)

	resp, err := eng.Changes(ctx, vis, token)
	require.NoError(t, err)
	require.Len(t, resp.Upserts, 2)
	require.Equal(t, []string{ids[0]}, resp.Deletions)
	require.False(t, resp.HasMore)

	again, err := eng.Changes(ctx, vis, resp.NextToken)
	require.NoError(t, err)
	require.Empty(t, again.Upserts)
	require.Empty(t, again.Deletions)
}

func TestContributingWriteUpdatesAppInfoAndPriority(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	_, err := eng.Insert(ctx, []record.Record{stepsRecord(t, cts, 1, t0), stepsRecord(t, "com.b", 1, t0)})
	require.NoError(t, err)

	prio, err := eng.Priority(ctx, record.CategoryActivity)
	require.NoError(t, err)
	require.Equal(t, []string{cts, "com.b"}, prio)

	require.NoError(t, eng.Read(ctx, func(tx storage.Tx) error {
		info, ok, err := tx.AppInfo(ctx, cts)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "CTS", info.AppName)
		_, ok, err = tx.AppInfo(ctx, "com.b")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))

	origins, err := eng.Origins(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{cts, "com.b"}, origins)
}

func TestInsertRejectsInvalidRecordWithoutWriting(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	bad := stepsRecord(t, cts, 1, t0)
	bad.Data = &record.StepsData{Count: 0}

	_, err := eng.Insert(ctx, []record.Record{stepsRecord(t, cts, 1, t0), bad})
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))

	page, err := eng.ReadByFilter(ctx, filter.Everything(), storage.ReadRequest{})
	require.NoError(t, err)
	require.Empty(t, page.Records)
}

func ExampleEngine_Insert() {
	eng := storage.New(memory.New())
	r, _ := record.NewBuilder(&record.WeightData{Weight: units.Kilograms(72)}).
		At(t0).WithOrigin("com.example.scale").WithOffsetProvider(record.FixedOffsets(0)).Build()
	ids, _ := eng.Insert(context.Background(), []record.Record{r})
	fmt.Println(len(ids))
	// Output: 1
}
