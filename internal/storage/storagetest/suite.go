// Package storagetest holds a conformance suite run against every backend.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/units"
)

var base = time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)

func heartRate(t *testing.T, origin, clientID string, version int64, at time.Time) record.Record {
	t.Helper()
	r, err := record.NewBuilder(&record.HeartRateData{Samples: []record.HeartRateSample{
		{Time: at, BeatsPerMinute: 61},
		{Time: at.Add(time.Minute), BeatsPerMinute: 72},
	}}).
		Between(at, at.Add(5*time.Minute)).
		WithOrigin(origin).
		WithClientID(clientID, version).
		WithOffsetProvider(record.FixedOffsets(-5 * time.Hour)).
		Build()
	require.NoError(t, err)
	return r
}

// Run exercises a backend through the engine. open must return a fresh,
// empty backend.
func Run(t *testing.T, open func(t *testing.T) storage.Backend) {
	t.Run("RoundTrip", func(t *testing.T) {
		ctx := context.Background()
		eng := storage.New(open(t))
		in := heartRate(t, "com.a", "", 0, base)
		ids, err := eng.Insert(ctx, []record.Record{in})
		require.NoError(t, err)

		got, err := eng.ReadByIDs(ctx, filter.Everything(), []storage.RecordRef{{ID: ids[0]}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, ids[0], got[0].ID())
		require.Equal(t, in.Data, got[0].Data)
		require.Equal(t, in.StartZoneOffset, got[0].StartZoneOffset)
		require.Equal(t, in.EndZoneOffset, got[0].EndZoneOffset)
		require.True(t, in.StartTime.Equal(got[0].StartTime))
	})

	t.Run("ClientIDVersioning", func(t *testing.T) {
		ctx := context.Background()
		eng := storage.New(open(t))
		a, err := eng.Insert(ctx, []record.Record{heartRate(t, "com.a", "hr", 1, base)})
		require.NoError(t, err)
		b, err := eng.Insert(ctx, []record.Record{heartRate(t, "com.a", "hr", 3, base.Add(time.Hour))})
		require.NoError(t, err)
		c, err := eng.Insert(ctx, []record.Record{heartRate(t, "com.a", "hr", 2, base.Add(2*time.Hour))})
		require.NoError(t, err)
		require.Equal(t, a, b)
		require.Equal(t, a, c)

		page, err := eng.ReadByFilter(ctx, filter.Everything(), storage.ReadRequest{})
		require.NoError(t, err)
		require.Len(t, page.Records, 1)
		require.Equal(t, int64(3), page.Records[0].Metadata.ClientRecordVersion)
		require.True(t, base.Add(time.Hour).Equal(page.Records[0].StartTime))
	})

	t.Run("AtomicUpdate", func(t *testing.T) {
		ctx := context.Background()
		eng := storage.New(open(t))
		ids, err := eng.Insert(ctx, []record.Record{heartRate(t, "com.a", "", 0, base), heartRate(t, "com.a", "", 0, base.Add(time.Hour))})
		require.NoError(t, err)

		upd := heartRate(t, "com.a", "", 0, base.Add(3*time.Hour))
		upd.Metadata.ID = ids[0]
		ghost := heartRate(t, "com.a", "", 0, base)
		ghost.Metadata.ID = "ghost"
		require.Error(t, eng.Update(ctx, []record.Record{upd, ghost}))

		got, err := eng.ReadByIDs(ctx, filter.Everything(), []storage.RecordRef{{ID: ids[0]}})
		require.NoError(t, err)
		require.True(t, base.Equal(got[0].StartTime))
	})

	t.Run("UpdateBatchNeverVisiblePartially", func(t *testing.T) {
		ctx := context.Background()
		eng := storage.New(open(t))
		const n = 8
		before := base
		after := base.Add(24 * time.Hour)
		var initial []record.Record
		for i := 0; i < n; i++ {
			initial = append(initial, heartRate(t, "com.a", "", 0, before))
		}
		ids, err := eng.Insert(ctx, initial)
		require.NoError(t, err)

		batchAt := func(at time.Time) []record.Record {
			out := make([]record.Record, n)
			for i, id := range ids {
				out[i] = heartRate(t, "com.a", "", 0, at)
				out[i].Metadata.ID = id
			}
			return out
		}
		toAfter, toBefore := batchAt(after), batchAt(before)
		refs := make([]storage.RecordRef, n)
		for i, id := range ids {
			refs[i] = storage.RecordRef{ID: id}
		}

		done := make(chan struct{})
		failure := make(chan string, 1)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				got, err := eng.ReadByIDs(ctx, filter.Everything(), refs)
				if err != nil {
					failure <- err.Error()
					return
				}
				old := 0
				for _, r := range got {
					if before.Equal(r.StartTime) {
						old++
					}
				}
				if len(got) != n || (old != 0 && old != n) {
					failure <- fmt.Sprintf("read %d records, %d from before the update", len(got), old)
					return
				}
			}
		}()

		for i := 0; i < 20; i++ {
			batch := toAfter
			if i%2 == 1 {
				batch = toBefore
			}
			require.NoError(t, eng.Update(ctx, batch))
		}
		close(done)
		wg.Wait()
		select {
		case msg := <-failure:
			t.Fatal(msg)
		default:
		}
	})

	t.Run("ConcurrentClientIDInsertsStoreOneRow", func(t *testing.T) {
		ctx := context.Background()
		eng := storage.New(open(t))
		recs := make([]record.Record, 16)
		for i := range recs {
			recs[i] = heartRate(t, "com.a", "shared", int64(i), base.Add(time.Duration(i)*time.Minute))
		}
		errc := make(chan error, len(recs))
		var wg sync.WaitGroup
		for _, r := range recs {
			wg.Add(1)
			go func(r record.Record) {
				defer wg.Done()
				_, err := eng.Insert(ctx, []record.Record{r})
				errc <- err
			}(r)
		}
		wg.Wait()
		close(errc)
		for err := range errc {
			require.NoError(t, err)
		}

		page, err := eng.ReadByFilter(ctx, filter.Everything(), storage.ReadRequest{})
		require.NoError(t, err)
		require.Len(t, page.Records, 1)
		require.Equal(t, int64(15), page.Records[0].Metadata.ClientRecordVersion)
	})

	t.Run("FilterAndPaging", func(t *testing.T) {
		ctx := context.Background()
		eng := storage.New(open(t))
		var recs []record.Record
		for i := 0; i < 4; i++ {
			origin := "com.a"
			if i%2 == 1 {
				origin = "com.b"
			}
			recs = append(recs, heartRate(t, origin, "", 0, base.Add(time.Duration(i)*time.Hour)))
		}
		w, err := record.NewBuilder(&record.WeightData{Weight: units.Kilograms(80)}).At(base).WithOrigin("com.a").Build()
		require.NoError(t, err)
		recs = append(recs, w)
		_, err = eng.Insert(ctx, recs)
		require.NoError(t, err)

		spec := filter.Spec{
			Kinds:       []record.Kind{record.KindHeartRate},
			DataOrigins: []string{"com.a"},
			TimeRange:   filter.Between(base, base.Add(3*time.Hour)),
		}
		page, err := eng.ReadByFilter(ctx, filter.Everything(), storage.ReadRequest{Spec: spec, PageSize: 1})
		require.NoError(t, err)
		require.Len(t, page.Records, 1)
		require.NotEmpty(t, page.NextPageToken)

		next, err := eng.ReadByFilter(ctx, filter.Everything(), storage.ReadRequest{Spec: spec, PageSize: 1, PageToken: page.NextPageToken})
		require.NoError(t, err)
		require.Len(t, next.Records, 1)
		require.Empty(t, next.NextPageToken)
		require.True(t, base.Add(2*time.Hour).Equal(next.Records[0].StartTime))
	})

	t.Run("DeleteAndChanges", func(t *testing.T) {
		ctx := context.Background()
		eng := storage.New(open(t))
		token, err := eng.ChangesToken(ctx, nil, nil)
		require.NoError(t, err)

		ids, err := eng.Insert(ctx, []record.Record{heartRate(t, "com.a", "x", 0, base), heartRate(t, "com.b", "", 0, base)})
		require.NoError(t, err)
		vis := filter.ForCaller("com.a", []string{record.KindHeartRate.ReadPermission()})
		n, err := eng.DeleteByFilter(ctx, vis, filter.Spec{})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		resp, err := eng.Changes(ctx, vis, token)
		require.NoError(t, err)
		require.Len(t, resp.Upserts, 2)
		require.Equal(t, []string{ids[0]}, resp.Deletions)

		origins, err := eng.Origins(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"com.b"}, origins)
	})

	t.Run("AppInfoAndMeta", func(t *testing.T) {
		ctx := context.Background()
		b := open(t)
		require.NoError(t, b.Update(ctx, func(tx storage.Tx) error {
			if err := tx.PutAppInfo(ctx, storage.AppInfo{PackageName: "com.x", AppName: "X", Icon: []byte{1, 2}, Staged: true, UpdatedAt: base}); err != nil {
				return err
			}
			if err := tx.PutAppInfo(ctx, storage.AppInfo{PackageName: "com.y", AppName: "Y", UpdatedAt: base}); err != nil {
				return err
			}
			return tx.PutMeta(ctx, "k", "v")
		}))
		require.NoError(t, b.Update(ctx, func(tx storage.Tx) error { return tx.DeleteStagedAppInfo(ctx) }))
		require.NoError(t, b.View(ctx, func(tx storage.Tx) error {
			infos, err := tx.ListAppInfo(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 1)
			require.Equal(t, "Y", infos[0].AppName)
			v, ok, err := tx.Meta(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "v", v)
			return nil
		}))
	})
}
