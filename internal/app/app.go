// Package app assembles storage, migration and the domain service from
// configuration for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"example.com/healthconnect/internal/config"
	"example.com/healthconnect/internal/domain"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/migration"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/memory"
	"example.com/healthconnect/internal/storage/postgres"
	"example.com/healthconnect/internal/storage/sqlite"
)

// Runtime holds the wired components. Pool is nil unless the backend is
// Postgres.
type Runtime struct {
	Backend  storage.Backend
	Pool     *pgxpool.Pool
	Registry *migration.Registry
	Engine   *storage.Engine
	Migrator *migration.Migrator
	Service  *domain.Service
}

// OpenBackend opens the storage backend named by cfg.StorageDriver.
func OpenBackend(ctx context.Context, cfg config.Config) (storage.Backend, *pgxpool.Pool, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return memory.New(), nil, nil
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Pool(), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// LoadRegistry reads the package manifest, or returns an empty registry
// when none is configured.
func LoadRegistry(cfg config.Config) (*migration.Registry, error) {
	if cfg.PackageManifest == "" {
		return migration.NewRegistry(), nil
	}
	return migration.LoadManifest(cfg.PackageManifest)
}

// Open wires a Runtime from cfg.
func Open(ctx context.Context, cfg config.Config, log *zerolog.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.Get()
	}
	reg, err := LoadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("load package manifest: %w", err)
	}
	backend, pool, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	eng := storage.New(backend, storage.WithOracle(reg))
	mig := migration.New(eng, reg, reg, migration.WithLogger(log))
	svc := domain.NewService(eng, mig, domain.WithLogger(log))
	log.Info().Str("driver", cfg.StorageDriver).Msg("storage opened")
	return &Runtime{
		Backend:  backend,
		Pool:     pool,
		Registry: reg,
		Engine:   eng,
		Migrator: mig,
		Service:  svc,
	}, nil
}

// Close releases the backend.
func (r *Runtime) Close() error { return r.Backend.Close() }
