package record

import (
	"encoding/json"
	"time"
)

// ZoneOffset is a UTC offset that is either unset or explicit. Unset offsets
// are resolved by Builder.Build through an OffsetProvider.
type ZoneOffset struct {
	seconds int32
	set     bool
}

// Offset returns an explicit offset of d, truncated to whole seconds.
func Offset(d time.Duration) ZoneOffset {
	return ZoneOffset{seconds: int32(d / time.Second), set: true}
}

// OffsetSeconds returns an explicit offset of s seconds east of UTC.
func OffsetSeconds(s int) ZoneOffset {
	return ZoneOffset{seconds: int32(s), set: true}
}

// IsSet reports whether the offset is explicit.
func (z ZoneOffset) IsSet() bool { return z.set }

// Seconds returns the offset in seconds east of UTC.
func (z ZoneOffset) Seconds() int { return int(z.seconds) }

// Duration returns the offset as a duration.
func (z ZoneOffset) Duration() time.Duration { return time.Duration(z.seconds) * time.Second }

// Clear resets the offset to unset.
func (z *ZoneOffset) Clear() { *z = ZoneOffset{} }

// Location returns a fixed zone for the offset, or UTC when unset.
func (z ZoneOffset) Location() *time.Location {
	if !z.set {
		return time.UTC
	}
	return time.FixedZone("", int(z.seconds))
}

func (z ZoneOffset) MarshalJSON() ([]byte, error) {
	if !z.set {
		return []byte("null"), nil
	}
	return json.Marshal(z.seconds)
}

func (z *ZoneOffset) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*z = ZoneOffset{}
		return nil
	}
	var s int32
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*z = ZoneOffset{seconds: s, set: true}
	return nil
}

// OffsetProvider supplies the offset used for unset zone fields.
type OffsetProvider interface {
	OffsetAt(t time.Time) ZoneOffset
}

// SystemOffsets resolves offsets from the process's local time zone.
type SystemOffsets struct{}

// OffsetAt returns the local zone's offset at t.
func (SystemOffsets) OffsetAt(t time.Time) ZoneOffset {
	_, secs := t.In(time.Local).Zone()
	return OffsetSeconds(secs)
}

// FixedOffsets always resolves to the same offset.
type FixedOffsets time.Duration

// OffsetAt returns the fixed offset.
func (f FixedOffsets) OffsetAt(time.Time) ZoneOffset { return Offset(time.Duration(f)) }
