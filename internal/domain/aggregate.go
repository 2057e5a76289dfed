package domain

import (
	"context"
	"time"

	"example.com/healthconnect/internal/aggregate"
	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
)

// AggregateRequest names the metrics to compute over a time range,
// optionally restricted to some data origins.
type AggregateRequest struct {
	Metrics     []string
	TimeRange   filter.TimeRange
	DataOrigins []string
}

func (s *Service) resolveMetrics(c Caller, req AggregateRequest) ([]aggregate.AnyMetric, error) {
	if len(req.Metrics) == 0 {
		return nil, errs.InvalidArgument("at least one aggregation metric is required")
	}
	if !req.TimeRange.Valid() {
		return nil, errs.InvalidArgument("time range end is before start")
	}
	vis := c.visibility()
	out := make([]aggregate.AnyMetric, 0, len(req.Metrics))
	seen := make(map[string]bool, len(req.Metrics))
	for _, name := range req.Metrics {
		if seen[name] {
			continue
		}
		seen[name] = true
		m, ok := aggregate.Lookup(name)
		if !ok {
			return nil, errs.InvalidArgument("unknown aggregation metric %q", name)
		}
		if !vis.CanReadAny(m.Kind()) {
			return nil, errs.Newf(errs.CodeForbidden, "caller may not read %s", m.Kind())
		}
		out = append(out, m)
	}
	return out, nil
}

// candidates loads the visible records of the metric kinds. The time range
// is applied by the aggregation itself so that intervals straddling a bound
// are prorated rather than dropped.
func (s *Service) candidates(ctx context.Context, c Caller, metrics []aggregate.AnyMetric, origins []string) ([]record.Record, error) {
	seen := map[record.Kind]bool{}
	var kinds []record.Kind
	for _, m := range metrics {
		if !seen[m.Kind()] {
			seen[m.Kind()] = true
			kinds = append(kinds, m.Kind())
		}
	}
	vis := c.visibility()
	var rows []storage.Row
	err := s.eng.Read(ctx, func(tx storage.Tx) error {
		var err error
		rows, err = tx.Select(ctx, storage.Query{
			Spec: filter.Spec{Kinds: kinds, DataOrigins: origins},
			Keep: vis.CanRead,
		})
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeInternal, "select records")
	}
	out := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Record)
	}
	return out, nil
}

func (s *Service) prepare(ctx context.Context, c Caller, req AggregateRequest) ([]aggregate.AnyMetric, []record.Record, error) {
	if err := requireCaller(c); err != nil {
		return nil, nil, err
	}
	metrics, err := s.resolveMetrics(c, req)
	if err != nil {
		return nil, nil, err
	}
	if err := s.guard(ctx); err != nil {
		return nil, nil, err
	}
	recs, err := s.candidates(ctx, c, metrics, req.DataOrigins)
	if err != nil {
		return nil, nil, err
	}
	return metrics, recs, nil
}

// Aggregate computes the requested metrics over req.TimeRange.
func (s *Service) Aggregate(ctx context.Context, c Caller, req AggregateRequest) (res aggregate.Result, err error) {
	defer func(start time.Time) { s.observe(ctx, "aggregate", start, err) }(s.now())
	metrics, recs, err := s.prepare(ctx, c, req)
	if err != nil {
		return aggregate.Result{}, err
	}
	return aggregate.Aggregate(metrics, req.TimeRange, recs), nil
}

// AggregateGroupByDuration computes the metrics for consecutive slices of
// req.TimeRange.
func (s *Service) AggregateGroupByDuration(ctx context.Context, c Caller, req AggregateRequest, slice time.Duration) (out []aggregate.Bucket, err error) {
	defer func(start time.Time) { s.observe(ctx, "aggregate_group_by_duration", start, err) }(s.now())
	if slice <= 0 {
		return nil, errs.InvalidArgument("slice duration must be positive")
	}
	if req.TimeRange.Start.IsZero() || req.TimeRange.End.IsZero() {
		return nil, errs.InvalidArgument("grouped aggregation needs a bounded time range")
	}
	metrics, recs, err := s.prepare(ctx, c, req)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupByDuration(metrics, req.TimeRange, slice, recs), nil
}

// AggregateGroupByPeriod computes the metrics for calendar slices of
// req.TimeRange measured in loc.
func (s *Service) AggregateGroupByPeriod(ctx context.Context, c Caller, req AggregateRequest, p aggregate.Period, loc *time.Location) (out []aggregate.Bucket, err error) {
	defer func(start time.Time) { s.observe(ctx, "aggregate_group_by_period", start, err) }(s.now())
	if p.Months < 0 || p.Days < 0 || (p.Months == 0 && p.Days == 0) {
		return nil, errs.InvalidArgument("period must step forward by days or months")
	}
	if req.TimeRange.Start.IsZero() || req.TimeRange.End.IsZero() {
		return nil, errs.InvalidArgument("grouped aggregation needs a bounded time range")
	}
	metrics, recs, err := s.prepare(ctx, c, req)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupByPeriod(metrics, req.TimeRange, p, loc, recs), nil
}
