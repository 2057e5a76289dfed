// Package filter evaluates record queries: time ranges, attribute filters,
// caller visibility and page cursors.
package filter

import (
	"time"

	"example.com/healthconnect/internal/record"
)

// TimeRange is the half-open interval [Start, End). A zero bound is open.
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Between returns the range [start, end).
func Between(start, end time.Time) TimeRange { return TimeRange{Start: start, End: end} }

// Contains reports whether t lies in the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// Overlap returns how much of [start, end) falls inside the range.
func (r TimeRange) Overlap(start, end time.Time) time.Duration {
	lo, hi := start, end
	if !r.Start.IsZero() && r.Start.After(lo) {
		lo = r.Start
	}
	if !r.End.IsZero() && r.End.Before(hi) {
		hi = r.End
	}
	if !hi.After(lo) {
		return 0
	}
	return hi.Sub(lo)
}

// Unbounded reports whether neither bound is set.
func (r TimeRange) Unbounded() bool { return r.Start.IsZero() && r.End.IsZero() }

// Valid reports whether the bounds are ordered.
func (r TimeRange) Valid() bool {
	return r.Start.IsZero() || r.End.IsZero() || !r.End.Before(r.Start)
}

// Spec is a conjunction of optional record predicates. An empty axis does
// not restrict.
type Spec struct {
	Kinds           []record.Kind `json:"kinds,omitempty"`
	TimeRange       TimeRange     `json:"time_range"`
	DataOrigins     []string      `json:"data_origins,omitempty"`
	IDs             []string      `json:"ids,omitempty"`
	ClientRecordIDs []string      `json:"client_record_ids,omitempty"`
}

// Matches evaluates the spec against r's start instant and metadata.
func (s Spec) Matches(r record.Record) bool {
	if len(s.Kinds) > 0 && !contains(s.Kinds, r.Kind()) {
		return false
	}
	if !s.TimeRange.Contains(r.Time()) {
		return false
	}
	if len(s.DataOrigins) > 0 && !contains(s.DataOrigins, r.Origin()) {
		return false
	}
	if len(s.IDs) > 0 && !contains(s.IDs, r.Metadata.ID) {
		return false
	}
	if len(s.ClientRecordIDs) > 0 {
		if r.Metadata.ClientRecordID == "" || !contains(s.ClientRecordIDs, r.Metadata.ClientRecordID) {
			return false
		}
	}
	return true
}

// MatchesKind reports whether records of k can satisfy the spec.
func (s Spec) MatchesKind(k record.Kind) bool {
	return len(s.Kinds) == 0 || contains(s.Kinds, k)
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
