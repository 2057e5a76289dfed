// Package events defines the payloads the health platform exchanges over Kafka.
package events

import (
	"encoding/binary"
	"encoding/json"
	"time"
)

// Event types carried in the event_type header.
const (
	TypeRecordUpserted  = "health.record.upserted"
	TypeRecordDeleted   = "health.record.deleted"
	TypeMigrationEntity = "health.migration.entity"
)

// RecordChanged is emitted for every committed record upsert or delete.
type RecordChanged struct {
	ChangeSeq  int64           `json:"change_seq"`
	Op         string          `json:"op"`
	Kind       string          `json:"kind"`
	RecordID   string          `json:"record_id"`
	DataOrigin string          `json:"data_origin"`
	OccurredAt time.Time       `json:"occurred_at"`
	Record     json.RawMessage `json:"record,omitempty"`
}

// MigrationEntity is one staged migration unit submitted by a donor device.
// Exactly one of Record, Permission and AppInfo is set.
type MigrationEntity struct {
	EntityID   string              `json:"entity_id"`
	Record     *MigratedRecord     `json:"record,omitempty"`
	Permission *MigratedPermission `json:"permission,omitempty"`
	AppInfo    *MigratedAppInfo    `json:"app_info,omitempty"`
}

// MigratedRecord carries a record in the platform's record codec.
type MigratedRecord struct {
	OriginPackageName string          `json:"origin_package_name"`
	OriginAppName     string          `json:"origin_app_name,omitempty"`
	Record            json.RawMessage `json:"record"`
}

type MigratedPermission struct {
	HoldingPackageName string    `json:"holding_package_name"`
	Permissions        []string  `json:"permissions"`
	FirstGrantTime     time.Time `json:"first_grant_time"`
}

type MigratedAppInfo struct {
	PackageName string `json:"package_name"`
	AppName     string `json:"app_name"`
	Icon        []byte `json:"icon,omitempty"`
}

// Frame applies Confluent framing: magic byte 0 and a big-endian schema id.
func Frame(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// Unframe strips Confluent framing when present. Unframed JSON passes
// through with a zero schema id.
func Unframe(b []byte) (schemaID int, payload []byte, framed bool) {
	if len(b) >= 5 && b[0] == 0x00 {
		return int(binary.BigEndian.Uint32(b[1:5])), b[5:], true
	}
	return 0, b, false
}
