package record

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/units"
)

var t0 = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

func TestBuildResolvesUnsetOffsetsFromProvider(t *testing.T) {
	rec, err := NewBuilder(&StepsData{Count: 120}).
		Between(t0, t0.Add(time.Hour)).
		WithOrigin("com.example.fit").
		WithEndZoneOffset(OffsetSeconds(7200)).
		WithOffsetProvider(FixedOffsets(time.Hour)).
		Build()
	require.NoError(t, err)
	require.True(t, rec.StartZoneOffset.IsSet())
	require.Equal(t, 3600, rec.StartZoneOffset.Seconds())
	require.Equal(t, 7200, rec.EndZoneOffset.Seconds())
	require.Equal(t, KindSteps, rec.Kind())
}

func TestClearedOffsetFallsBackToProvider(t *testing.T) {
	rec, err := NewBuilder(&WeightData{Weight: units.Kilograms(70)}).
		At(t0).
		WithZoneOffset(OffsetSeconds(-18000)).
		ClearStartZoneOffset().
		WithOffsetProvider(FixedOffsets(30 * time.Minute)).
		Build()
	require.NoError(t, err)
	require.Equal(t, 1800, rec.ZoneOffset().Seconds())
	require.True(t, rec.EndTime.IsZero())
}

func TestBuildRejectsStartAfterEnd(t *testing.T) {
	_, err := NewBuilder(&StepsData{Count: 10}).Between(t0, t0.Add(-time.Second)).Build()
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestBuildRejectsSampleOutsideInterval(t *testing.T) {
	_, err := NewBuilder(&HeartRateData{Samples: []HeartRateSample{
		{Time: t0.Add(time.Minute), BeatsPerMinute: 80},
		{Time: t0.Add(2 * time.Hour), BeatsPerMinute: 90},
	}}).Between(t0, t0.Add(time.Hour)).Build()
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))
	require.Contains(t, err.Error(), "samples[1]")
}

func TestValueRanges(t *testing.T) {
	cases := []struct {
		name string
		data Data
		ok   bool
	}{
		{"speed just below bound", &SpeedData{Samples: []SpeedSample{{Time: t0, Speed: units.MetersPerSecond(999_999)}}}, true},
		{"speed at exclusive bound", &SpeedData{Samples: []SpeedSample{{Time: t0, Speed: units.MetersPerSecond(1_000_000)}}}, false},
		{"speed NaN", &SpeedData{Samples: []SpeedSample{{Time: t0, Speed: units.MetersPerSecond(math.NaN())}}}, false},
		{"weight NaN", &WeightData{Weight: units.Kilograms(math.NaN())}, false},
		{"zero steps", &StepsData{Count: 0}, false},
		{"max steps", &StepsData{Count: 1_000_000}, true},
		{"heart rate zero", &HeartRateData{Samples: []HeartRateSample{{Time: t0, BeatsPerMinute: 0}}}, false},
		{"resting heart rate zero", &RestingHeartRateData{BeatsPerMinute: 0}, true},
		{"diastolic too low", &BloodPressureData{Systolic: units.MillimetersOfMercury(120), Diastolic: units.MillimetersOfMercury(5)}, false},
		{"oxygen over 100", &OxygenSaturationData{Percentage: units.Percent(101)}, false},
		{"hydration", &HydrationData{Volume: units.Milliliters(500)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder(tc.data).WithOffsetProvider(FixedOffsets(0))
			if tc.data.Kind().HasInterval() {
				b.Between(t0, t0.Add(time.Minute))
			} else {
				b.At(t0)
			}
			_, err := b.Build()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.True(t, errs.Is(err, errs.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestNegativeClientVersionRejected(t *testing.T) {
	_, err := NewBuilder(&HeightData{Height: units.Meters(1.8)}).At(t0).WithClientID("h1", -1).Build()
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestCodecRoundTrip(t *testing.T) {
	rec, err := NewBuilder(&SleepSessionData{
		Title:  "night",
		Stages: []SleepStage{{Start: t0, End: t0.Add(30 * time.Minute), Stage: SleepStageDeep}},
	}).
		Between(t0, t0.Add(8*time.Hour)).
		WithOrigin("com.example.sleep").
		WithClientID("s-1", 3).
		WithOffsetProvider(FixedOffsets(time.Hour)).
		Build()
	require.NoError(t, err)
	rec.Metadata.ID = "7f1f6c1e-2b4c-4f44-9f9b-0c9b1c7a2f00"

	b, err := Marshal(rec)
	require.NoError(t, err)
	require.Contains(t, string(b), `"kind":"SleepSession"`)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestUnmarshalUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"Mood","start_time":"2024-03-10T08:00:00Z","data":{}}`))
	require.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestPermissions(t *testing.T) {
	require.Equal(t, "android.permission.health.READ_STEPS", KindSteps.ReadPermission())
	require.Equal(t, "android.permission.health.WRITE_HEART_RATE", KindHeartRate.WritePermission())
	require.True(t, KnownPermission("android.permission.health.READ_MENSTRUATION"))
	require.True(t, KnownPermission(PermissionManageHealthData))
	require.False(t, KnownPermission("android.permission.health.READ_MOOD"))
}

func TestCategories(t *testing.T) {
	require.Equal(t, []Kind{KindMenstruationFlow, KindMenstruationPeriod}, KindsIn(CategoryCycleTracking))
	c, ok := ParseCategory("vitals")
	require.True(t, ok)
	require.Equal(t, CategoryVitals, c)
	require.True(t, KindHeartRate.HasSamples())
	require.False(t, KindWeight.HasInterval())
}
