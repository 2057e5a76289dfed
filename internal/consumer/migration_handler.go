package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/migration"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/pkg/events"
)

// EntityWriter applies migration entities.
type EntityWriter interface {
	WriteData(ctx context.Context, entities []migration.Entity) error
}

// MigrationHandler applies framed MigrationEntity messages.
type MigrationHandler struct {
	writer EntityWriter
}

// NewMigrationHandler constructs a handler writing through w.
func NewMigrationHandler(w EntityWriter) Handler {
	return &MigrationHandler{writer: w}
}

// Handle decodes and applies one entity. Undecodable messages and entities
// the store rejects are poison; storage failures are returned for retry.
func (h *MigrationHandler) Handle(ctx context.Context, msg Message) error {
	if t, ok := msg.Headers["event_type"]; ok && t != events.TypeMigrationEntity {
		return nil
	}

	_, payload, _ := events.Unframe(msg.Payload)
	var evt events.MigrationEntity
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Poison(fmt.Errorf("decode migration entity: %w", err))
	}
	entity, err := ToEntity(evt)
	if err != nil {
		return Poison(err)
	}

	err = h.writer.WriteData(ctx, []migration.Entity{entity})
	if err == nil {
		return nil
	}
	switch errs.CodeOf(err) {
	case errs.CodeMigrateEntity, errs.CodeIllegalState, errs.CodeInvalidArgument:
		return Poison(err)
	}
	return err
}

// ToEntity converts the wire form into a migration entity.
func ToEntity(evt events.MigrationEntity) (migration.Entity, error) {
	e := migration.Entity{ID: evt.EntityID}
	if r := evt.Record; r != nil {
		rec, err := record.Unmarshal(r.Record)
		if err != nil {
			return migration.Entity{}, fmt.Errorf("entity %s: %w", evt.EntityID, err)
		}
		e.Record = &migration.RecordPayload{OriginPackageName: r.OriginPackageName, OriginAppName: r.OriginAppName, Record: rec}
	}
	if p := evt.Permission; p != nil {
		e.Permission = &migration.PermissionPayload{
			HoldingPackageName: p.HoldingPackageName,
			Permissions:        append([]string(nil), p.Permissions...),
			FirstGrantTime:     p.FirstGrantTime,
		}
	}
	if a := evt.AppInfo; a != nil {
		e.AppInfo = &migration.AppInfoPayload{PackageName: a.PackageName, AppName: a.AppName, Icon: a.Icon}
	}
	return e, nil
}
