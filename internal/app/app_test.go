package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/config"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/migration"
)

func TestOpenMemory(t *testing.T) {
	rt, err := Open(context.Background(), config.Config{StorageDriver: config.DriverMemory}, logger.Nop())
	require.NoError(t, err)
	defer rt.Close()
	require.Nil(t, rt.Pool)

	st, err := rt.Migrator.State(context.Background())
	require.NoError(t, err)
	require.Equal(t, migration.PhaseIdle, st.Phase)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.db")
	rt, err := Open(context.Background(), config.Config{StorageDriver: config.DriverSQLite, SQLitePath: path}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, rt.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StorageDriver: "cassandra"}, logger.Nop())
	require.Error(t, err)
}

func TestLoadRegistryFromManifest(t *testing.T) {
	reg, err := LoadRegistry(config.Config{PackageManifest: "../migration/testdata/manifest.yaml"})
	require.NoError(t, err)
	_, ok := reg.Installed(context.Background(), "android.healthconnect.cts")
	require.True(t, ok)
}
