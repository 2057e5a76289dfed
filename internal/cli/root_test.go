package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/healthconnect/internal/app"
	"example.com/healthconnect/internal/config"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/migration"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "healthctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	paths := [][]string{
		{"migrate", "start"},
		{"migrate", "write"},
		{"migrate", "finish"},
		{"migrate", "status"},
		{"priority", "get"},
		{"priority", "set"},
		{"contributors"},
		{"purge-staged"},
		{"token"},
	}
	for _, p := range paths {
		t.Run(p[len(p)-1], func(t *testing.T) {
			sub, _, err := cmd.Find(p)
			require.NoError(t, err)
			assert.Equal(t, p[len(p)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	require.NotNil(t, cmd.PersistentFlags().Lookup("driver"))

	tok, _, err := cmd.Find([]string{"token"})
	require.NoError(t, err)
	require.NotNil(t, tok.Flags().Lookup("package"))
	require.NotNil(t, tok.Flags().Lookup("perm"))
}

// testRoot runs commands against one shared in-memory runtime.
func testRoot(t *testing.T) func(args ...string) (string, error) {
	t.Helper()
	rt, err := app.Open(context.Background(), config.Config{StorageDriver: config.DriverMemory}, logger.Nop())
	require.NoError(t, err)
	opts := &RootOptions{Open: func(context.Context, config.Config) (*app.Runtime, error) { return rt, nil }}
	return func(args ...string) (string, error) {
		cmd := newRoot(opts)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}
}

func TestInvalidFormat(t *testing.T) {
	run := testRoot(t)
	_, err := run("--format", "xml", "migrate", "status")
	require.ErrorContains(t, err, "invalid format")
}

const entitiesYAML = `entities:
  - entity_id: app-1
    app_info:
      package_name: com.example.legacy
      app_name: Legacy Fit
  - entity_id: steps-1
    record:
      origin_package_name: com.example.legacy
      record:
        kind: Steps
        start_time: 2024-03-10T08:00:00Z
        start_zone_offset: 0
        end_time: 2024-03-10T08:10:00Z
        end_zone_offset: 0
        data:
          count: 120
`

func TestParseEntities(t *testing.T) {
	entities, err := ParseEntities([]byte(entitiesYAML))
	require.NoError(t, err)
	require.Len(t, entities, 2)
	require.Equal(t, "Legacy Fit", entities[0].AppInfo.AppName)
	require.NotNil(t, entities[1].Record)
	require.Equal(t, "com.example.legacy", entities[1].Record.OriginPackageName)
}

func TestMigrationFlow(t *testing.T) {
	run := testRoot(t)
	path := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(entitiesYAML), 0o600))

	out, err := run("migrate", "start")
	require.NoError(t, err)
	require.Contains(t, out, "phase=IN_PROGRESS")

	_, err = run("migrate", "write", path)
	require.NoError(t, err)

	out, err = run("--format", "json", "migrate", "finish")
	require.NoError(t, err)
	var st migration.State
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	require.Equal(t, migration.PhaseComplete, st.Phase)
	require.Equal(t, 2, st.Applied)

	out, err = run("contributors")
	require.NoError(t, err)
	require.Contains(t, out, "com.example.legacy\tLegacy Fit")
}

func TestPriorityRejectsUnknownCategory(t *testing.T) {
	run := testRoot(t)
	_, err := run("priority", "get", "bogus")
	require.Error(t, err)
}

func TestTokenRequiresPackage(t *testing.T) {
	run := testRoot(t)
	_, err := run("token")
	require.Error(t, err)

	out, err := run("token", "--package", "com.example.fit", "--perm", "android.permission.health.READ_STEPS")
	require.NoError(t, err)
	require.NotEmpty(t, out)
}
