// Package record defines health records: kinds, metadata, payloads and the
// invariants every stored record satisfies.
package record

import (
	"time"

	"example.com/healthconnect/internal/errs"
)

// Record is one health measurement. Instant kinds use StartTime and
// StartZoneOffset only.
type Record struct {
	Metadata        Metadata
	StartTime       time.Time
	EndTime         time.Time
	StartZoneOffset ZoneOffset
	EndZoneOffset   ZoneOffset
	Data            Data
}

// Kind returns the kind of the record's payload.
func (r Record) Kind() Kind {
	if r.Data == nil {
		return ""
	}
	return r.Data.Kind()
}

// Time returns the record's authoritative instant (the start for intervals).
func (r Record) Time() time.Time { return r.StartTime }

// ZoneOffset returns the offset of the authoritative instant.
func (r Record) ZoneOffset() ZoneOffset { return r.StartZoneOffset }

// ID is a shortcut for Metadata.ID.
func (r Record) ID() string { return r.Metadata.ID }

// Origin is a shortcut for the contributing package name.
func (r Record) Origin() string { return r.Metadata.DataOrigin.PackageName }

// End returns the end of the record's span; instants end where they start.
func (r Record) End() time.Time {
	if r.Kind().HasInterval() {
		return r.EndTime
	}
	return r.StartTime
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	cp := r
	if r.Data != nil {
		cp.Data = cloneData(r.Data)
	}
	return cp
}

// Validate checks the record against its kind's invariants.
func (r Record) Validate() error {
	if r.Data == nil {
		return errs.InvalidArgument("record has no data")
	}
	k := r.Data.Kind()
	if !k.Valid() {
		return errs.InvalidArgument("unsupported record kind %q", k)
	}
	if r.StartTime.IsZero() {
		return errs.InvalidArgument("%s record has no time", k)
	}
	if r.Metadata.ClientRecordVersion < 0 {
		return errs.InvalidArgument("client record version must be >= 0, got %d", r.Metadata.ClientRecordVersion)
	}
	end := r.StartTime
	if k.HasInterval() {
		if r.EndTime.IsZero() {
			return errs.InvalidArgument("%s record has no end time", k)
		}
		if r.EndTime.Before(r.StartTime) {
			return errs.InvalidArgument("%s start time must not be after end time", k)
		}
		end = r.EndTime
	}
	if err := r.Data.validate(r.StartTime, end); err != nil {
		if e, ok := errs.As(err); ok {
			return e.WithOp(string(k))
		}
		return err
	}
	return nil
}

// Builder assembles a Record and resolves unset zone offsets on Build.
type Builder struct {
	rec     Record
	offsets OffsetProvider
}

// NewBuilder starts a record around data.
func NewBuilder(data Data) *Builder {
	return &Builder{rec: Record{Data: data}, offsets: SystemOffsets{}}
}

// FromRecord starts a builder pre-populated with r.
func FromRecord(r Record) *Builder {
	return &Builder{rec: r.Clone(), offsets: SystemOffsets{}}
}

// At sets the instant of an instant-kind record.
func (b *Builder) At(t time.Time) *Builder {
	b.rec.StartTime = t
	return b
}

// Between sets the span of an interval or series record.
func (b *Builder) Between(start, end time.Time) *Builder {
	b.rec.StartTime = start
	b.rec.EndTime = end
	return b
}

// WithMetadata replaces the record metadata wholesale.
func (b *Builder) WithMetadata(m Metadata) *Builder {
	b.rec.Metadata = m
	return b
}

// WithOrigin sets the package that wrote the record.
func (b *Builder) WithOrigin(pkg string) *Builder {
	b.rec.Metadata.DataOrigin = DataOrigin{PackageName: pkg}
	return b
}

// WithClientID sets the client record id and its version.
func (b *Builder) WithClientID(id string, version int64) *Builder {
	b.rec.Metadata.ClientRecordID = id
	b.rec.Metadata.ClientRecordVersion = version
	return b
}

// WithStartZoneOffset sets the offset of the start time.
func (b *Builder) WithStartZoneOffset(z ZoneOffset) *Builder {
	b.rec.StartZoneOffset = z
	return b
}

// WithEndZoneOffset sets the offset of the end time.
func (b *Builder) WithEndZoneOffset(z ZoneOffset) *Builder {
	b.rec.EndZoneOffset = z
	return b
}

// WithZoneOffset sets the offset of an instant record.
func (b *Builder) WithZoneOffset(z ZoneOffset) *Builder { return b.WithStartZoneOffset(z) }

// ClearStartZoneOffset unsets the start offset so Build resolves a default.
func (b *Builder) ClearStartZoneOffset() *Builder {
	b.rec.StartZoneOffset.Clear()
	return b
}

// ClearEndZoneOffset unsets the end offset so Build resolves a default.
func (b *Builder) ClearEndZoneOffset() *Builder {
	b.rec.EndZoneOffset.Clear()
	return b
}

// WithOffsetProvider replaces the source of default offsets.
func (b *Builder) WithOffsetProvider(p OffsetProvider) *Builder {
	if p != nil {
		b.offsets = p
	}
	return b
}

// Build validates and returns the record. Every returned record carries
// explicit zone offsets and canonical UTC millisecond times.
func (b *Builder) Build() (Record, error) {
	r := b.rec.Clone()
	if r.Data == nil {
		return Record{}, errs.InvalidArgument("record has no data")
	}
	r.StartTime = canonicalTime(r.StartTime)
	r.EndTime = canonicalTime(r.EndTime)
	r.Metadata.LastModifiedTime = canonicalTime(r.Metadata.LastModifiedTime)
	r.Data.normalize()
	if !r.Kind().HasInterval() {
		r.EndTime = time.Time{}
		r.EndZoneOffset = ZoneOffset{}
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	if !r.StartZoneOffset.IsSet() {
		r.StartZoneOffset = b.offsets.OffsetAt(r.StartTime)
	}
	if r.Kind().HasInterval() && !r.EndZoneOffset.IsSet() {
		r.EndZoneOffset = b.offsets.OffsetAt(r.EndTime)
	}
	return r, nil
}
