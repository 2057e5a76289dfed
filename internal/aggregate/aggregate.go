package aggregate

import (
	"sort"
	"time"

	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/record"
)

type accumulator struct {
	op      Op
	sum     float64
	min     float64
	max     float64
	count   int64
	origins map[string]struct{}
}

func (a *accumulator) add(vs []float64) {
	for _, v := range vs {
		if a.count == 0 || v < a.min {
			a.min = v
		}
		if a.count == 0 || v > a.max {
			a.max = v
		}
		a.sum += v
		a.count++
	}
}

func (a *accumulator) value() float64 {
	switch a.op {
	case OpMin:
		return a.min
	case OpMax:
		return a.max
	case OpAvg:
		return a.sum / float64(a.count)
	case OpCount:
		return float64(a.count)
	default:
		return a.sum
	}
}

// Result holds the outcome of one aggregation request.
type Result struct {
	Range    filter.TimeRange
	acc      map[string]*accumulator
	earliest time.Time
	offset   record.ZoneOffset
}

// Aggregate reduces records into one accumulator per metric. Interval sums
// are prorated by the share of each record inside tr; extrema and averages
// use samples and single values whose instant lies in tr. A metric listed
// more than once is reduced once.
func Aggregate(metrics []AnyMetric, tr filter.TimeRange, records []record.Record) Result {
	res := Result{Range: tr, acc: make(map[string]*accumulator, len(metrics))}
	unique := metrics[:0:0]
	for _, m := range metrics {
		if _, dup := res.acc[m.Name()]; dup {
			continue
		}
		res.acc[m.Name()] = &accumulator{op: m.Op(), origins: map[string]struct{}{}}
		unique = append(unique, m)
	}
	metrics = unique
	for _, r := range records {
		contributed := false
		for _, m := range metrics {
			vs := m.observe(r, tr)
			if len(vs) == 0 {
				continue
			}
			a := res.acc[m.Name()]
			a.add(vs)
			a.origins[r.Origin()] = struct{}{}
			contributed = true
		}
		if contributed && (res.earliest.IsZero() || r.Time().Before(res.earliest)) {
			res.earliest = r.Time()
			res.offset = r.ZoneOffset()
		}
	}
	return res
}

// Get returns the value of m, or false when no record contributed.
func Get[T any](res Result, m Metric[T]) (T, bool) {
	var zero T
	a, ok := res.acc[m.name]
	if !ok || a.count == 0 {
		return zero, false
	}
	return m.wrap(a.value()), true
}

// Raw returns the canonical float value of the metric named name.
func (r Result) Raw(name string) (float64, bool) {
	a, ok := r.acc[name]
	if !ok || a.count == 0 {
		return 0, false
	}
	return a.value(), true
}

// DataOrigins returns the sorted distinct packages that contributed to m.
func (r Result) DataOrigins(m AnyMetric) []string {
	a, ok := r.acc[m.Name()]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(a.origins))
	for o := range a.origins {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// ZoneOffset returns the offset of the earliest contributing record.
func (r Result) ZoneOffset() record.ZoneOffset { return r.offset }

// Bucket is one slice of a grouped aggregation.
type Bucket struct {
	Range  filter.TimeRange
	Result Result
}

// GroupByDuration aggregates consecutive slices of tr. The final slice is
// truncated at tr.End.
func GroupByDuration(metrics []AnyMetric, tr filter.TimeRange, slice time.Duration, records []record.Record) []Bucket {
	if slice <= 0 || tr.Start.IsZero() || tr.End.IsZero() {
		return nil
	}
	return group(metrics, tr, func(t time.Time) time.Time { return t.Add(slice) }, records)
}

// Period is a calendar step.
type Period struct {
	Months int
	Days   int
}

// GroupByPeriod aggregates calendar slices of tr, stepping in loc.
func GroupByPeriod(metrics []AnyMetric, tr filter.TimeRange, p Period, loc *time.Location, records []record.Record) []Bucket {
	if (p.Months <= 0 && p.Days <= 0) || tr.Start.IsZero() || tr.End.IsZero() {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	return group(metrics, tr, func(t time.Time) time.Time { return t.In(loc).AddDate(0, p.Months, p.Days) }, records)
}

func group(metrics []AnyMetric, tr filter.TimeRange, next func(time.Time) time.Time, records []record.Record) []Bucket {
	var out []Bucket
	for start := tr.Start; start.Before(tr.End); {
		end := next(start)
		if end.After(tr.End) {
			end = tr.End
		}
		sub := filter.Between(start, end)
		out = append(out, Bucket{Range: sub, Result: Aggregate(metrics, sub, records)})
		start = end
	}
	return out
}
