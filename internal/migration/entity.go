package migration

import (
	"time"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/record"
)

// Entity is one staged unit of migrated data. Exactly one payload is set.
type Entity struct {
	ID         string             `json:"entity_id" yaml:"entity_id"`
	Record     *RecordPayload     `json:"record,omitempty" yaml:"record,omitempty"`
	Permission *PermissionPayload `json:"permission,omitempty" yaml:"permission,omitempty"`
	AppInfo    *AppInfoPayload    `json:"app_info,omitempty" yaml:"app_info,omitempty"`
}

// RecordPayload migrates one record on behalf of OriginPackageName.
type RecordPayload struct {
	OriginPackageName string        `json:"origin_package_name" yaml:"origin_package_name"`
	OriginAppName     string        `json:"origin_app_name,omitempty" yaml:"origin_app_name,omitempty"`
	Record            record.Record `json:"record" yaml:"-"`
}

// PermissionPayload grants health permissions to a package.
type PermissionPayload struct {
	HoldingPackageName string    `json:"holding_package_name" yaml:"holding_package_name"`
	Permissions        []string  `json:"permissions" yaml:"permissions"`
	FirstGrantTime     time.Time `json:"first_grant_time" yaml:"first_grant_time"`
}

// AppInfoPayload stages display info for a package that may not be installed.
type AppInfoPayload struct {
	PackageName string `json:"package_name" yaml:"package_name"`
	AppName     string `json:"app_name" yaml:"app_name"`
	Icon        []byte `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// PayloadType names the payload carried by e, for logs and metrics.
func (e Entity) PayloadType() string {
	switch {
	case e.Record != nil:
		return "record"
	case e.Permission != nil:
		return "permission"
	case e.AppInfo != nil:
		return "app_info"
	default:
		return "none"
	}
}

func (e Entity) check() error {
	if e.ID == "" {
		return errs.InvalidArgument("entity id is required")
	}
	n := 0
	for _, set := range []bool{e.Record != nil, e.Permission != nil, e.AppInfo != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errs.InvalidArgument("entity must carry exactly one payload, got %d", n)
	}
	return nil
}
