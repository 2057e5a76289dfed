package record

import (
	"encoding/json"
	"time"

	"example.com/healthconnect/internal/errs"
)

type wireRecord struct {
	Kind            Kind            `json:"kind"`
	Metadata        Metadata        `json:"metadata"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	StartZoneOffset ZoneOffset      `json:"start_zone_offset"`
	EndZoneOffset   *ZoneOffset     `json:"end_zone_offset,omitempty"`
	Data            json.RawMessage `json:"data"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Data == nil {
		return nil, errs.InvalidArgument("record has no data")
	}
	payload, err := json.Marshal(r.Data)
	if err != nil {
		return nil, err
	}
	w := wireRecord{
		Kind:            r.Kind(),
		Metadata:        r.Metadata,
		StartTime:       r.StartTime,
		StartZoneOffset: r.StartZoneOffset,
		Data:            payload,
	}
	if r.Kind().HasInterval() {
		end, off := r.EndTime, r.EndZoneOffset
		w.EndTime, w.EndZoneOffset = &end, &off
	}
	return json.Marshal(w)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return errs.Wrap(err, errs.CodeInvalidArgument, "decode record")
	}
	info, ok := kinds[w.Kind]
	if !ok {
		return errs.InvalidArgument("unsupported record kind %q", w.Kind)
	}
	data := info.newData()
	if len(w.Data) > 0 && string(w.Data) != "null" {
		if err := json.Unmarshal(w.Data, data); err != nil {
			return errs.Wrap(err, errs.CodeInvalidArgument, "decode "+string(w.Kind)+" payload")
		}
	}
	data.normalize()
	out := Record{
		Metadata:        w.Metadata,
		StartTime:       canonicalTime(w.StartTime),
		StartZoneOffset: w.StartZoneOffset,
		Data:            data,
	}
	out.Metadata.LastModifiedTime = canonicalTime(out.Metadata.LastModifiedTime)
	if w.EndTime != nil {
		out.EndTime = canonicalTime(*w.EndTime)
	}
	if w.EndZoneOffset != nil {
		out.EndZoneOffset = *w.EndZoneOffset
	}
	*r = out
	return nil
}

// Marshal encodes r with its kind discriminator.
func Marshal(r Record) ([]byte, error) { return json.Marshal(r) }

// Unmarshal decodes a record produced by Marshal.
func Unmarshal(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// NewData returns an empty payload for k, ready to be decoded into.
func NewData(k Kind) (Data, error) {
	info, ok := kinds[k]
	if !ok {
		return nil, errs.InvalidArgument("unsupported record kind %q", k)
	}
	return info.newData(), nil
}
