package record

import "time"

// RecordingMethod describes how a record was captured.
type RecordingMethod int

const (
	RecordingMethodUnknown RecordingMethod = iota
	RecordingMethodActivelyRecorded
	RecordingMethodAutomaticallyRecorded
	RecordingMethodManualEntry
)

// DeviceType classifies the recording device.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeWatch
	DeviceTypePhone
	DeviceTypeScale
	DeviceTypeRing
	DeviceTypeHeadMounted
	DeviceTypeFitnessBand
	DeviceTypeChestStrap
	DeviceTypeSmartDisplay
)

// Device identifies the hardware that produced a record.
type Device struct {
	Manufacturer string     `json:"manufacturer,omitempty"`
	Model        string     `json:"model,omitempty"`
	Type         DeviceType `json:"type"`
}

// DataOrigin names the package that contributed a record.
type DataOrigin struct {
	PackageName string `json:"package_name"`
}

// Metadata is the envelope shared by every record kind.
//
// ID is assigned by storage unless the record is an update. (DataOrigin,
// ClientRecordID) is unique per kind when ClientRecordID is set.
type Metadata struct {
	ID                  string          `json:"id,omitempty"`
	ClientRecordID      string          `json:"client_record_id,omitempty"`
	ClientRecordVersion int64           `json:"client_record_version"`
	DataOrigin          DataOrigin      `json:"data_origin"`
	Device              Device          `json:"device"`
	RecordingMethod     RecordingMethod `json:"recording_method"`
	LastModifiedTime    time.Time       `json:"last_modified_time"`
}
