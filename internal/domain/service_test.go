package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/aggregate"
	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/migration"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/memory"
	"example.com/healthconnect/internal/units"
	"example.com/healthconnect/pkg/auth"
)

const (
	cts   = "android.healthconnect.cts"
	other = "com.example.other"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	reg := migration.NewRegistry()
	reg.Install(storage.AppInfo{PackageName: cts, AppName: "CTS"})
	eng := storage.New(memory.New(), storage.WithOracle(reg))
	m := migration.New(eng, reg, reg, migration.WithLogger(logger.Nop()))
	return NewService(eng, m, WithLogger(logger.Nop()))
}

func caller(pkg string, kinds ...record.Kind) Caller {
	c := Caller{Package: pkg}
	for _, k := range kinds {
		c.Permissions = append(c.Permissions, k.ReadPermission(), k.WritePermission())
	}
	return c
}

func admin() Caller {
	return Caller{Package: "com.android.healthconnect.controller", Permissions: []string{
		record.PermissionManageHealthData, record.PermissionMigrateHealthData,
	}}
}

func calories(t *testing.T, joules float64, at time.Time) record.Record {
	t.Helper()
	r, err := record.NewBuilder(&record.ActiveCaloriesBurnedData{Energy: units.Joules(joules)}).
		Between(at, at.Add(time.Minute)).
		WithOffsetProvider(record.FixedOffsets(0)).
		Build()
	require.NoError(t, err)
	return r
}

func steps(t *testing.T, n int64, at time.Time) record.Record {
	t.Helper()
	r, err := record.NewBuilder(&record.StepsData{Count: n}).
		Between(at, at.Add(time.Minute)).
		WithOffsetProvider(record.FixedOffsets(0)).
		Build()
	require.NoError(t, err)
	return r
}

// await is the blocking latch over a future with a fixed deadline.
func await[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "timed out waiting for result")
	return v, err
}

func TestInsertStampsCallerOrigin(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	c := caller(cts, record.KindSteps)

	ids, err := svc.Insert(ctx, c, []record.Record{steps(t, 10, t0)})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	got, err := svc.ReadByIDs(ctx, c, []storage.RecordRef{{ID: ids[0]}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, cts, got[0].Origin())
	require.False(t, got[0].Metadata.LastModifiedTime.IsZero())
}

func TestInsertRejectsForeignOrigin(t *testing.T) {
	svc := newService(t)
	r, err := record.FromRecord(steps(t, 1, t0)).WithOrigin(other).Build()
	require.NoError(t, err)

	_, err = svc.Insert(context.Background(), caller(cts, record.KindSteps), []record.Record{r})
	require.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
}

func TestInsertNeedsWritePermission(t *testing.T) {
	svc := newService(t)
	c := Caller{Package: cts, Permissions: []string{record.KindSteps.ReadPermission()}}

	_, err := svc.Insert(context.Background(), c, []record.Record{steps(t, 1, t0)})
	require.Equal(t, errs.CodeForbidden, errs.CodeOf(err))

	_, err = svc.Insert(context.Background(), Caller{}, []record.Record{steps(t, 1, t0)})
	require.Equal(t, errs.CodeUnauthenticated, errs.CodeOf(err))
}

func TestUpdateUnknownIDLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	c := caller(cts, record.KindSteps)

	ids, err := svc.Insert(ctx, c, []record.Record{steps(t, 10, t0)})
	require.NoError(t, err)

	changed := steps(t, 99, t0)
	changed.Metadata.ID = ids[0]
	missing := steps(t, 5, t0)
	missing.Metadata.ID = "no-such-record"

	err = svc.Update(ctx, c, []record.Record{changed, missing})
	require.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	got, err := svc.ReadByIDs(ctx, c, []storage.RecordRef{{ID: ids[0]}})
	require.NoError(t, err)
	require.Equal(t, int64(10), got[0].Data.(*record.StepsData).Count)
}

func TestDeleteByFilterOnlyTouchesCallerRecords(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	mine := caller(cts, record.KindSteps)
	theirs := caller(other, record.KindSteps)

	_, err := svc.Insert(ctx, mine, []record.Record{steps(t, 1, t0)})
	require.NoError(t, err)
	_, err = svc.Insert(ctx, theirs, []record.Record{steps(t, 2, t0)})
	require.NoError(t, err)

	n, err := svc.DeleteByFilter(ctx, mine, filter.Spec{Kinds: []record.Kind{record.KindSteps}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	page, err := svc.ReadByFilter(ctx, theirs, storage.ReadRequest{Spec: filter.Spec{Kinds: []record.Kind{record.KindSteps}}})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, other, page.Records[0].Origin())
}

func TestReadByFilterNeedsReadAccess(t *testing.T) {
	svc := newService(t)
	_, err := svc.ReadByFilter(context.Background(), caller(cts, record.KindSteps),
		storage.ReadRequest{Spec: filter.Spec{Kinds: []record.Kind{record.KindHeartRate}}})
	require.Equal(t, errs.CodeForbidden, errs.CodeOf(err))
}

func TestAggregateSumIsExact(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	c := caller(cts, record.KindActiveCaloriesBurned)
	req := AggregateRequest{
		Metrics:   []string{aggregate.ActiveCaloriesTotal.Name()},
		TimeRange: filter.Between(t0, t0.Add(24*time.Hour)),
	}

	_, err := svc.Insert(ctx, c, []record.Record{calories(t, 74.0, t0), calories(t, 100.5, t0.Add(time.Hour))})
	require.NoError(t, err)
	before, err := await(t, svc.AggregateAsync(ctx, c, req))
	require.NoError(t, err)

	_, err = svc.Insert(ctx, c, []record.Record{calories(t, 45.5, t0.Add(2*time.Hour))})
	require.NoError(t, err)
	after, err := await(t, svc.AggregateAsync(ctx, c, req))
	require.NoError(t, err)

	b, ok := aggregate.Get(before, aggregate.ActiveCaloriesTotal)
	require.True(t, ok)
	a, ok := aggregate.Get(after, aggregate.ActiveCaloriesTotal)
	require.True(t, ok)
	require.Equal(t, 45.5, a.InJoules()-b.InJoules())
	require.Equal(t, []string{cts}, after.DataOrigins(aggregate.ActiveCaloriesTotal))
}

func TestAggregateIgnoresRepeatedMetric(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	c := caller(cts, record.KindActiveCaloriesBurned)
	_, err := svc.Insert(ctx, c, []record.Record{calories(t, 45.5, t0)})
	require.NoError(t, err)

	name := aggregate.ActiveCaloriesTotal.Name()
	res, err := svc.Aggregate(ctx, c, AggregateRequest{
		Metrics:   []string{name, name},
		TimeRange: filter.Between(t0, t0.Add(time.Hour)),
	})
	require.NoError(t, err)
	total, ok := aggregate.Get(res, aggregate.ActiveCaloriesTotal)
	require.True(t, ok)
	require.Equal(t, 45.5, total.InJoules())
}

func TestAggregateOriginsFollowFilter(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.Insert(ctx, caller(cts, record.KindSteps), []record.Record{steps(t, 10, t0)})
	require.NoError(t, err)
	_, err = svc.Insert(ctx, caller(other, record.KindSteps), []record.Record{steps(t, 20, t0.Add(48*time.Hour))})
	require.NoError(t, err)

	reader := Caller{Package: cts, Permissions: []string{record.KindSteps.ReadPermission()}}
	res, err := svc.Aggregate(ctx, reader, AggregateRequest{
		Metrics:   []string{aggregate.StepsCountTotal.Name()},
		TimeRange: filter.Between(t0, t0.Add(time.Hour)),
	})
	require.NoError(t, err)
	total, ok := aggregate.Get(res, aggregate.StepsCountTotal)
	require.True(t, ok)
	require.Equal(t, int64(10), total)
	require.Equal(t, []string{cts}, res.DataOrigins(aggregate.StepsCountTotal))
}

func TestAggregateRejectsUnknownMetric(t *testing.T) {
	svc := newService(t)
	_, err := svc.Aggregate(context.Background(), caller(cts, record.KindSteps), AggregateRequest{
		Metrics: []string{"NOPE"},
	})
	require.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
}

func TestAggregateGroupByDuration(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	c := caller(cts, record.KindSteps)
	_, err := svc.Insert(ctx, c, []record.Record{steps(t, 10, t0), steps(t, 30, t0.Add(90*time.Minute))})
	require.NoError(t, err)

	buckets, err := svc.AggregateGroupByDuration(ctx, c, AggregateRequest{
		Metrics:   []string{aggregate.StepsCountTotal.Name()},
		TimeRange: filter.Between(t0, t0.Add(2*time.Hour)),
	}, time.Hour)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	first, _ := aggregate.Get(buckets[0].Result, aggregate.StepsCountTotal)
	second, _ := aggregate.Get(buckets[1].Result, aggregate.StepsCountTotal)
	require.Equal(t, int64(10), first)
	require.Equal(t, int64(30), second)

	_, err = svc.AggregateGroupByDuration(ctx, c, AggregateRequest{
		Metrics: []string{aggregate.StepsCountTotal.Name()},
	}, time.Hour)
	require.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
}

func TestMigrationBlocksDataAPI(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	c := caller(cts, record.KindSteps)

	require.NoError(t, svc.StartMigration(ctx, admin()))

	_, err := svc.Insert(ctx, c, []record.Record{steps(t, 1, t0)})
	require.True(t, errors.Is(err, ErrAPIBlocked))
	_, err = svc.ReadByFilter(ctx, c, storage.ReadRequest{})
	require.Equal(t, errs.CodeUnavailable, errs.CodeOf(err))
	_, err = svc.DeleteByFilter(ctx, c, filter.Spec{})
	require.Equal(t, errs.CodeUnavailable, errs.CodeOf(err))

	rec := steps(t, 7, t0)
	err = svc.WriteMigrationData(ctx, admin(), []migration.Entity{{
		ID:     "e1",
		Record: &migration.RecordPayload{OriginPackageName: cts, Record: rec},
	}})
	require.NoError(t, err)

	require.NoError(t, svc.FinishMigration(ctx, admin()))

	page, err := svc.ReadByFilter(ctx, c, storage.ReadRequest{Spec: filter.Spec{Kinds: []record.Kind{record.KindSteps}}})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, cts, page.Records[0].Origin())
}

func TestMigrationCallsNeedPermission(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	err := svc.StartMigration(ctx, caller(cts, record.KindSteps))
	require.Equal(t, errs.CodeForbidden, errs.CodeOf(err))
	err = svc.UpdatePriority(ctx, caller(cts), record.CategoryActivity, []string{cts})
	require.Equal(t, errs.CodeForbidden, errs.CodeOf(err))
}

func TestPriorityFollowsContributions(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.Insert(ctx, caller(cts, record.KindSteps), []record.Record{steps(t, 1, t0)})
	require.NoError(t, err)
	_, err = svc.Insert(ctx, caller(other, record.KindSteps), []record.Record{steps(t, 1, t0)})
	require.NoError(t, err)

	got, err := svc.Priority(ctx, admin(), record.CategoryActivity)
	require.NoError(t, err)
	require.Equal(t, []string{cts, other}, got)

	require.NoError(t, svc.UpdatePriority(ctx, admin(), record.CategoryActivity, []string{other, "com.unknown"}))
	got, err = svc.Priority(ctx, admin(), record.CategoryActivity)
	require.NoError(t, err)
	require.Equal(t, []string{other, cts}, got)

	_, err = svc.Priority(ctx, admin(), record.Category("BOGUS"))
	require.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
}

func TestCallerFromClaims(t *testing.T) {
	c := CallerFromClaims(&auth.Claims{
		Package:     cts,
		Permissions: []string{record.KindSteps.WritePermission()},
	})
	require.Equal(t, cts, c.Package)
	require.Equal(t, []string{record.KindSteps.WritePermission()}, c.Permissions)
	require.Equal(t, Caller{}, CallerFromClaims(nil))
}
