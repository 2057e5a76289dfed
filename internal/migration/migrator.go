// Package migration applies staged data migrations and owns the per-category
// data origin priority lists.
package migration

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/observability"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
)

// Oracle reports installed packages and their display info.
type Oracle interface {
	storage.PackageOracle
}

// PermissionSink receives migrated permission grants.
type PermissionSink interface {
	Grant(ctx context.Context, pkg string, permissions []string, firstGrant time.Time) error
}

// Migrator drives the migration state machine and applies entities.
type Migrator struct {
	eng    *storage.Engine
	oracle Oracle
	perms  PermissionSink
	now    func() time.Time
	log    *zerolog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger overrides the component logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides the state timestamps.
func WithClock(now func() time.Time) Option { return func(m *Migrator) { m.now = now } }

// New constructs a Migrator. oracle and perms are required.
func New(eng *storage.Engine, oracle Oracle, perms PermissionSink, opts ...Option) *Migrator {
	m := &Migrator{
		eng:    eng,
		oracle: oracle,
		perms:  perms,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Named("migration"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Gate returns the API gate backed by the same store.
func (m *Migrator) Gate() Gate { return NewGate(m.eng) }

// State returns the current migration state.
func (m *Migrator) State(ctx context.Context) (State, error) {
	var s State
	err := m.eng.Read(ctx, func(tx storage.Tx) error {
		var err error
		s, err = LoadState(ctx, tx)
		return err
	})
	return s, err
}

// Start moves the store into the migrating phase and blocks the data API.
func (m *Migrator) Start(ctx context.Context) error {
	err := m.eng.Transact(ctx, func(tx storage.Tx) error {
		s, err := LoadState(ctx, tx)
		if err != nil {
			return err
		}
		if s.Phase == PhaseInProgress {
			return errs.New(errs.CodeIllegalState, "migration already in progress").WithOp("start_migration")
		}
		return saveState(ctx, tx, State{Phase: PhaseInProgress, StartedAt: m.now()})
	})
	if err != nil {
		return err
	}
	observability.SetMigrationInProgress(true)
	m.log.Info().Msg("migration started")
	return nil
}

// Finish completes the migration and releases the data API.
func (m *Migrator) Finish(ctx context.Context) error {
	var final State
	err := m.eng.Transact(ctx, func(tx storage.Tx) error {
		s, err := LoadState(ctx, tx)
		if err != nil {
			return err
		}
		if s.Phase != PhaseInProgress {
			return errs.New(errs.CodeIllegalState, "no migration in progress").WithOp("finish_migration")
		}
		s.Phase = PhaseComplete
		s.FinishedAt = m.now()
		final = s
		return saveState(ctx, tx, s)
	})
	if err != nil {
		return err
	}
	observability.SetMigrationInProgress(false)
	m.log.Info().Int("applied", final.Applied).Int("failed", final.Failed).Msg("migration finished")
	return nil
}

// WriteData applies entities one transaction each. Entities that fail are
// reported as *errs.EntityError joined into the returned error; the rest
// stay committed.
func (m *Migrator) WriteData(ctx context.Context, entities []Entity) error {
	st, err := m.State(ctx)
	if err != nil {
		return err
	}
	if st.Phase != PhaseInProgress {
		return errs.New(errs.CodeIllegalState, "write requires a migration in progress").WithOp("write_migration_data")
	}

	var failures []error
	applied := 0
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		err := m.apply(ctx, e)
		observability.MigrationEntity(e.PayloadType(), err)
		if err != nil {
			m.log.Warn().Err(err).Str("entity_id", e.ID).Str("payload", e.PayloadType()).Msg("migration entity failed")
			failures = append(failures, &errs.EntityError{EntityID: e.ID, Reason: e.PayloadType(), Err: err})
			continue
		}
		applied++
	}

	if err := m.eng.Transact(ctx, func(tx storage.Tx) error {
		s, err := LoadState(ctx, tx)
		if err != nil {
			return err
		}
		s.Applied += applied
		s.Failed += len(entities) - applied
		return saveState(ctx, tx, s)
	}); err != nil {
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

func (m *Migrator) apply(ctx context.Context, e Entity) error {
	if err := e.check(); err != nil {
		return err
	}
	switch {
	case e.Record != nil:
		return m.applyRecord(ctx, e.Record)
	case e.Permission != nil:
		return m.applyPermission(ctx, e.Permission)
	default:
		return m.applyAppInfo(ctx, e.AppInfo)
	}
}

func (m *Migrator) applyRecord(ctx context.Context, p *RecordPayload) error {
	if p.OriginPackageName == "" {
		return errs.InvalidArgument("origin package name is required")
	}
	rec, err := record.FromRecord(p.Record).WithOrigin(p.OriginPackageName).Build()
	if err != nil {
		return err
	}
	_, installed := m.oracle.Installed(ctx, p.OriginPackageName)
	return m.eng.Transact(ctx, func(tx storage.Tx) error {
		if _, err := m.eng.InsertTx(ctx, tx, []record.Record{rec}); err != nil {
			return err
		}
		if installed || p.OriginAppName == "" {
			return nil
		}
		_, ok, err := tx.AppInfo(ctx, p.OriginPackageName)
		if err != nil || ok {
			return err
		}
		return tx.PutAppInfo(ctx, storage.AppInfo{
			PackageName: p.OriginPackageName,
			AppName:     p.OriginAppName,
			Staged:      true,
			UpdatedAt:   m.now(),
		})
	})
}

func (m *Migrator) applyPermission(ctx context.Context, p *PermissionPayload) error {
	if p.HoldingPackageName == "" {
		return errs.InvalidArgument("holding package name is required")
	}
	for _, perm := range p.Permissions {
		if !record.KnownPermission(perm) {
			return errs.Newf(errs.CodeMigrateEntity, "unknown permission %q", perm)
		}
	}
	return m.perms.Grant(ctx, p.HoldingPackageName, p.Permissions, p.FirstGrantTime)
}

func (m *Migrator) applyAppInfo(ctx context.Context, p *AppInfoPayload) error {
	if p.PackageName == "" {
		return errs.InvalidArgument("package name is required")
	}
	if _, installed := m.oracle.Installed(ctx, p.PackageName); installed {
		m.log.Debug().Str("package", p.PackageName).Msg("installed app keeps its own info")
		return nil
	}
	return m.eng.Transact(ctx, func(tx storage.Tx) error {
		return tx.PutAppInfo(ctx, storage.AppInfo{
			PackageName: p.PackageName,
			AppName:     p.AppName,
			Icon:        append([]byte(nil), p.Icon...),
			Staged:      true,
			UpdatedAt:   m.now(),
		})
	})
}

// DeleteAllStagedData drops staged app info and resets the state machine.
func (m *Migrator) DeleteAllStagedData(ctx context.Context) error {
	err := m.eng.Transact(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteStagedAppInfo(ctx); err != nil {
			return errs.Wrap(err, errs.CodeInternal, "delete staged app info")
		}
		return saveState(ctx, tx, State{Phase: PhaseIdle})
	})
	if err != nil {
		return err
	}
	observability.SetMigrationInProgress(false)
	m.log.Info().Msg("staged migration data deleted")
	return nil
}

// ContributorApp is display info for a package with stored records.
type ContributorApp struct {
	PackageName string `json:"package_name"`
	AppName     string `json:"app_name"`
	Icon        []byte `json:"icon,omitempty"`
}

// ContributorApplications lists every origin with at least one stored record.
// Installed packages report the oracle's info; others the migrated info,
// falling back to the package name.
func (m *Migrator) ContributorApplications(ctx context.Context) ([]ContributorApp, error) {
	var (
		origins []string
		stored  map[string]storage.AppInfo
	)
	err := m.eng.Read(ctx, func(tx storage.Tx) error {
		var err error
		if origins, err = tx.Origins(ctx); err != nil {
			return err
		}
		infos, err := tx.ListAppInfo(ctx)
		if err != nil {
			return err
		}
		stored = make(map[string]storage.AppInfo, len(infos))
		for _, info := range infos {
			stored[info.PackageName] = info
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeInternal, "list contributors")
	}

	out := make([]ContributorApp, 0, len(origins))
	for _, pkg := range origins {
		app := ContributorApp{PackageName: pkg, AppName: pkg}
		if info, ok := m.oracle.Installed(ctx, pkg); ok {
			app.AppName, app.Icon = nonEmpty(info.AppName, pkg), info.Icon
		} else if info, ok := stored[pkg]; ok {
			app.AppName, app.Icon = nonEmpty(info.AppName, pkg), info.Icon
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out, nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
