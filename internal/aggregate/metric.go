// Package aggregate reduces record sets into typed SUM, MIN, MAX, AVG and
// COUNT results with origin attribution.
package aggregate

import (
	"math"
	"time"

	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/units"
)

// Op is the reducer applied by a metric.
type Op int

const (
	OpSum Op = iota
	OpMin
	OpMax
	OpAvg
	OpCount
)

func (o Op) String() string {
	switch o {
	case OpSum:
		return "SUM"
	case OpMin:
		return "MIN"
	case OpMax:
		return "MAX"
	case OpAvg:
		return "AVG"
	case OpCount:
		return "COUNT"
	}
	return "UNKNOWN"
}

type point struct {
	at time.Time
	v  float64
}

// AnyMetric is a Metric of any result type.
type AnyMetric interface {
	Name() string
	Kind() record.Kind
	Op() Op
	observe(r record.Record, tr filter.TimeRange) []float64
}

// Metric binds a reducer to one field of one record kind.
type Metric[T any] struct {
	name   string
	kind   record.Kind
	op     Op
	total  func(record.Record) float64
	points func(record.Record) []point
	wrap   func(float64) T
}

func (m Metric[T]) Name() string      { return m.name }
func (m Metric[T]) Kind() record.Kind { return m.kind }
func (m Metric[T]) Op() Op            { return m.op }

func (m Metric[T]) observe(r record.Record, tr filter.TimeRange) []float64 {
	if r.Kind() != m.kind {
		return nil
	}
	if m.op == OpSum {
		v, ok := prorate(m.total(r), r.Time(), r.End(), tr)
		if !ok {
			return nil
		}
		return []float64{v}
	}
	var out []float64
	for _, p := range m.points(r) {
		if tr.Contains(p.at) {
			out = append(out, p.v)
		}
	}
	return out
}

// prorate scales v by the share of [start, end) inside tr.
func prorate(v float64, start, end time.Time, tr filter.TimeRange) (float64, bool) {
	span := end.Sub(start)
	if span <= 0 {
		return v, tr.Contains(start)
	}
	overlap := tr.Overlap(start, end)
	switch {
	case overlap <= 0:
		return 0, false
	case overlap == span:
		return v, true
	default:
		return v * float64(overlap) / float64(span), true
	}
}

func sum[T any](name string, k record.Kind, total func(record.Data) float64, wrap func(float64) T) Metric[T] {
	return Metric[T]{
		name: name, kind: k, op: OpSum,
		total: func(r record.Record) float64 { return total(r.Data) },
		wrap:  wrap,
	}
}

func stat[T any](name string, k record.Kind, op Op, points func(record.Record) []point, wrap func(float64) T) Metric[T] {
	return Metric[T]{name: name, kind: k, op: op, points: points, wrap: wrap}
}

func single(v func(record.Data) float64) func(record.Record) []point {
	return func(r record.Record) []point { return []point{{at: r.Time(), v: v(r.Data)}} }
}

func roundInt(v float64) int64 { return int64(math.Round(v)) }

func identity(v float64) float64 { return v }

func heartRatePoints(r record.Record) []point {
	d := r.Data.(*record.HeartRateData)
	out := make([]point, 0, len(d.Samples))
	for _, s := range d.Samples {
		out = append(out, point{at: s.Time, v: float64(s.BeatsPerMinute)})
	}
	return out
}

func speedPoints(r record.Record) []point {
	d := r.Data.(*record.SpeedData)
	out := make([]point, 0, len(d.Samples))
	for _, s := range d.Samples {
		out = append(out, point{at: s.Time, v: s.Speed.InMetersPerSecond()})
	}
	return out
}

func cadencePoints(r record.Record) []point {
	d := r.Data.(*record.StepsCadenceData)
	out := make([]point, 0, len(d.Samples))
	for _, s := range d.Samples {
		out = append(out, point{at: s.Time, v: s.Rate})
	}
	return out
}

func powerPoints(r record.Record) []point {
	d := r.Data.(*record.PowerData)
	out := make([]point, 0, len(d.Samples))
	for _, s := range d.Samples {
		out = append(out, point{at: s.Time, v: s.Power.InWatts()})
	}
	return out
}

var (
	restingBpm = single(func(d record.Data) float64 { return float64(d.(*record.RestingHeartRateData).BeatsPerMinute) })
	weightG    = single(func(d record.Data) float64 { return d.(*record.WeightData).Weight.InGrams() })
	heightM    = single(func(d record.Data) float64 { return d.(*record.HeightData).Height.InMeters() })
)

var (
	StepsCountTotal = sum("STEPS_COUNT_TOTAL", record.KindSteps,
		func(d record.Data) float64 { return float64(d.(*record.StepsData).Count) }, roundInt)
	DistanceTotal = sum("DISTANCE_TOTAL", record.KindDistance,
		func(d record.Data) float64 { return d.(*record.DistanceData).Distance.InMeters() }, units.Meters)
	ActiveCaloriesTotal = sum("ACTIVE_CALORIES_TOTAL", record.KindActiveCaloriesBurned,
		func(d record.Data) float64 { return d.(*record.ActiveCaloriesBurnedData).Energy.InJoules() }, units.Joules)
	EnergyTotal = sum("ENERGY_TOTAL", record.KindTotalCaloriesBurned,
		func(d record.Data) float64 { return d.(*record.TotalCaloriesBurnedData).Energy.InJoules() }, units.Joules)
	HydrationVolumeTotal = sum("HYDRATION_VOLUME_TOTAL", record.KindHydration,
		func(d record.Data) float64 { return d.(*record.HydrationData).Volume.InLiters() }, units.Liters)
	// SleepDurationTotal sums the part of each session inside the range.
	SleepDurationTotal = Metric[time.Duration]{
		name: "SLEEP_DURATION_TOTAL", kind: record.KindSleepSession, op: OpSum,
		total: func(r record.Record) float64 { return float64(r.End().Sub(r.Time())) },
		wrap:  func(v float64) time.Duration { return time.Duration(math.Round(v)) },
	}

	HeartRateBpmMin            = stat("HEART_RATE_BPM_MIN", record.KindHeartRate, OpMin, heartRatePoints, roundInt)
	HeartRateBpmMax            = stat("HEART_RATE_BPM_MAX", record.KindHeartRate, OpMax, heartRatePoints, roundInt)
	HeartRateBpmAvg            = stat("HEART_RATE_BPM_AVG", record.KindHeartRate, OpAvg, heartRatePoints, roundInt)
	HeartRateMeasurementsCount = stat("HEART_RATE_MEASUREMENTS_COUNT", record.KindHeartRate, OpCount, heartRatePoints, roundInt)

	RestingHeartRateBpmMin = stat("RESTING_HEART_RATE_BPM_MIN", record.KindRestingHeartRate, OpMin, restingBpm, roundInt)
	RestingHeartRateBpmMax = stat("RESTING_HEART_RATE_BPM_MAX", record.KindRestingHeartRate, OpMax, restingBpm, roundInt)
	RestingHeartRateBpmAvg = stat("RESTING_HEART_RATE_BPM_AVG", record.KindRestingHeartRate, OpAvg, restingBpm, roundInt)

	SpeedMin = stat("SPEED_MIN", record.KindSpeed, OpMin, speedPoints, units.MetersPerSecond)
	SpeedMax = stat("SPEED_MAX", record.KindSpeed, OpMax, speedPoints, units.MetersPerSecond)
	SpeedAvg = stat("SPEED_AVG", record.KindSpeed, OpAvg, speedPoints, units.MetersPerSecond)

	StepsCadenceRateMin = stat("STEPS_CADENCE_RATE_MIN", record.KindStepsCadence, OpMin, cadencePoints, identity)
	StepsCadenceRateMax = stat("STEPS_CADENCE_RATE_MAX", record.KindStepsCadence, OpMax, cadencePoints, identity)
	StepsCadenceRateAvg = stat("STEPS_CADENCE_RATE_AVG", record.KindStepsCadence, OpAvg, cadencePoints, identity)

	PowerMin = stat("POWER_MIN", record.KindPower, OpMin, powerPoints, units.Watts)
	PowerMax = stat("POWER_MAX", record.KindPower, OpMax, powerPoints, units.Watts)
	PowerAvg = stat("POWER_AVG", record.KindPower, OpAvg, powerPoints, units.Watts)

	WeightMin = stat("WEIGHT_MIN", record.KindWeight, OpMin, weightG, units.Grams)
	WeightMax = stat("WEIGHT_MAX", record.KindWeight, OpMax, weightG, units.Grams)
	WeightAvg = stat("WEIGHT_AVG", record.KindWeight, OpAvg, weightG, units.Grams)

	HeightMin = stat("HEIGHT_MIN", record.KindHeight, OpMin, heightM, units.Meters)
	HeightMax = stat("HEIGHT_MAX", record.KindHeight, OpMax, heightM, units.Meters)
	HeightAvg = stat("HEIGHT_AVG", record.KindHeight, OpAvg, heightM, units.Meters)
)

// All lists every metric by name.
var All = map[string]AnyMetric{}

func register(ms ...AnyMetric) {
	for _, m := range ms {
		All[m.Name()] = m
	}
}

func init() {
	register(
		StepsCountTotal, DistanceTotal, ActiveCaloriesTotal, EnergyTotal, HydrationVolumeTotal, SleepDurationTotal,
		HeartRateBpmMin, HeartRateBpmMax, HeartRateBpmAvg, HeartRateMeasurementsCount,
		RestingHeartRateBpmMin, RestingHeartRateBpmMax, RestingHeartRateBpmAvg,
		SpeedMin, SpeedMax, SpeedAvg,
		StepsCadenceRateMin, StepsCadenceRateMax, StepsCadenceRateAvg,
		PowerMin, PowerMax, PowerAvg,
		WeightMin, WeightMax, WeightAvg,
		HeightMin, HeightMax, HeightAvg,
	)
}

// Lookup returns the metric registered under name.
func Lookup(name string) (AnyMetric, bool) {
	m, ok := All[name]
	return m, ok
}
