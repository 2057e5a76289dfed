package domain

import (
	"context"
	"time"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/migration"
	"example.com/healthconnect/internal/record"
)

func requirePermission(c Caller, perm string) error {
	if err := requireCaller(c); err != nil {
		return err
	}
	if !c.has(perm) {
		return errs.Newf(errs.CodeForbidden, "caller lacks %s", perm)
	}
	return nil
}

// StartMigration blocks the data API and opens the migration window.
func (s *Service) StartMigration(ctx context.Context, c Caller) (err error) {
	defer func(start time.Time) { s.observe(ctx, "start_migration", start, err) }(s.now())
	if err := requirePermission(c, record.PermissionMigrateHealthData); err != nil {
		return err
	}
	return s.migrator.Start(ctx)
}

// WriteMigrationData applies entities. Failed entities come back as
// *errs.EntityError values joined into the error.
func (s *Service) WriteMigrationData(ctx context.Context, c Caller, entities []migration.Entity) (err error) {
	defer func(start time.Time) { s.observe(ctx, "write_migration_data", start, err) }(s.now())
	if err := requirePermission(c, record.PermissionMigrateHealthData); err != nil {
		return err
	}
	return s.migrator.WriteData(ctx, entities)
}

// FinishMigration closes the migration window and unblocks the data API.
func (s *Service) FinishMigration(ctx context.Context, c Caller) (err error) {
	defer func(start time.Time) { s.observe(ctx, "finish_migration", start, err) }(s.now())
	if err := requirePermission(c, record.PermissionMigrateHealthData); err != nil {
		return err
	}
	return s.migrator.Finish(ctx)
}

// MigrationState reports the current migration phase and counters.
func (s *Service) MigrationState(ctx context.Context, c Caller) (migration.State, error) {
	if err := requireCaller(c); err != nil {
		return migration.State{}, err
	}
	return s.migrator.State(ctx)
}

// DeleteAllStagedData drops migrated app info that was never claimed and
// resets the migration state.
func (s *Service) DeleteAllStagedData(ctx context.Context, c Caller) (err error) {
	defer func(start time.Time) { s.observe(ctx, "delete_all_staged_data", start, err) }(s.now())
	if err := requirePermission(c, record.PermissionManageHealthData); err != nil {
		return err
	}
	return s.migrator.DeleteAllStagedData(ctx)
}

// ContributorApplications lists display info for every package that has
// contributed records.
func (s *Service) ContributorApplications(ctx context.Context, c Caller) (out []migration.ContributorApp, err error) {
	defer func(start time.Time) { s.observe(ctx, "contributor_applications", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return nil, err
	}
	return s.migrator.ContributorApplications(ctx)
}

// Priority returns the origins of cat, highest priority first.
func (s *Service) Priority(ctx context.Context, c Caller, cat record.Category) (out []string, err error) {
	defer func(start time.Time) { s.observe(ctx, "get_priority", start, err) }(s.now())
	if err := requirePermission(c, record.PermissionManageHealthData); err != nil {
		return nil, err
	}
	if err := checkCategory(cat); err != nil {
		return nil, err
	}
	return s.migrator.Priority(ctx, cat)
}

// UpdatePriority reorders the origins of cat.
func (s *Service) UpdatePriority(ctx context.Context, c Caller, cat record.Category, origins []string) (err error) {
	defer func(start time.Time) { s.observe(ctx, "update_priority", start, err) }(s.now())
	if err := requirePermission(c, record.PermissionManageHealthData); err != nil {
		return err
	}
	if err := checkCategory(cat); err != nil {
		return err
	}
	return s.migrator.UpdatePriority(ctx, cat, origins)
}

func checkCategory(c record.Category) error {
	if _, ok := record.ParseCategory(string(c)); !ok {
		return errs.InvalidArgument("unknown record category %q", c)
	}
	return nil
}
