package app_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemstep/example/users/app"
	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/database"
)

const usersFile = "name;email;age\nJohn Doe;john.doe@email.com;33\n\nbad;row\nJane Roe;jane@email.com;28\n"

type fixture struct {
	dir   string
	input string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "users.txt")
	require.NoError(t, os.WriteFile(input, []byte(usersFile), 0o644))
	return fixture{dir: dir, input: input}
}

func (f fixture) writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(f.dir, "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunApplication_FileWriter(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "out")
	prom := filepath.Join(f.dir, "itemstep.prom")
	cfgPath := f.writeConfig(t, fmt.Sprintf(`
steps:
  - {id: 1, name: upper, path: %q, delimiter: ";"}
  - {id: 2, name: raw, path: %q, delimiter: ";", processing: false}
writer:
  type: file
  output_dir: %q
batch:
  parallelism: 2
system:
  metrics:
    enabled: true
    textfile: %q
`, f.input, f.input, out, prom))

	code := app.RunApplication(context.Background(), app.Options{ConfigPath: cfgPath})
	require.Equal(t, 0, code)

	upper, err := os.ReadFile(filepath.Join(out, "upper.txt"))
	require.NoError(t, err)
	assert.Equal(t, "name;email;age\nJOHN DOE;JOHN.DOE@EMAIL.COM;33\nJANE ROE;JANE@EMAIL.COM;28\n", string(upper))

	raw, err := os.ReadFile(filepath.Join(out, "raw.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "John Doe;john.doe@email.com;33")

	metrics, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `itemstep_step_runs_total{status="OK",step="upper"} 1`)
}

func TestRunApplication_DatabaseWriter(t *testing.T) {
	f := newFixture(t)
	migrations, err := filepath.Abs("../resources/migrations")
	require.NoError(t, err)
	dbPath := filepath.Join(f.dir, "users.db")
	cfgPath := f.writeConfig(t, fmt.Sprintf(`
steps:
  - {id: 1, name: users, path: %q, delimiter: ";"}
writer:
  type: database
  table: users
database:
  type: sqlite
  path: %q
  app_migration_path: %q
`, f.input, dbPath, migrations))

	require.Equal(t, 0, app.RunApplication(context.Background(), app.Options{ConfigPath: cfgPath}))

	conn, err := database.NewDBConnectionFromConfig(context.Background(), config.DatabaseConfig{Type: "sqlite", Path: dbPath})
	require.NoError(t, err)
	defer conn.Close()

	var n int
	require.NoError(t, conn.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM users WHERE name = upper(name)`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestRunApplication_FilterAndTracing(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "out")
	cfgPath := f.writeConfig(t, fmt.Sprintf(`
steps:
  - {id: 1, name: adults, path: %q, delimiter: ";", filter: "Age >= 30"}
writer:
  type: file
  output_dir: %q
system:
  tracing:
    enabled: true
`, f.input, out))

	require.Equal(t, 0, app.RunApplication(context.Background(), app.Options{ConfigPath: cfgPath}))

	got, err := os.ReadFile(filepath.Join(out, "adults.txt"))
	require.NoError(t, err)
	assert.Equal(t, "name;email;age\nJOHN DOE;JOHN.DOE@EMAIL.COM;33\n", string(got))
}

func TestBuildSteps_InvalidFilter(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Steps = []config.StepConfig{{ID: 1, Name: "a", Path: "a.txt", Delimiter: ";", Filter: "Height > 2"}}

	_, err := app.BuildSteps(cfg, nil)
	assert.Error(t, err)
}

func TestRunApplication_KOExitCode(t *testing.T) {
	f := newFixture(t)
	cfgPath := f.writeConfig(t, fmt.Sprintf(`
steps:
  - {id: 1, name: ok, path: %q, delimiter: ";"}
  - {id: 2, name: missing, path: %q, delimiter: ";"}
`, f.input, filepath.Join(f.dir, "missing.txt")))

	assert.Equal(t, 1, app.RunApplication(context.Background(), app.Options{ConfigPath: cfgPath}))
}

func TestRunApplication_InvalidConfig(t *testing.T) {
	assert.Equal(t, 1, app.RunApplication(context.Background(), app.Options{EmbeddedConfig: []byte("steps: []\n")}))
}

func TestRunApplication_DuplicateStepNames(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "out")
	cfgPath := f.writeConfig(t, fmt.Sprintf(`
steps:
  - {id: 1, name: same, path: %q, delimiter: ";"}
  - {id: 2, name: same, path: %q, delimiter: ";"}
writer:
  type: file
  output_dir: %q
batch:
  parallelism: 2
`, f.input, f.input, out))

	assert.Equal(t, 1, app.RunApplication(context.Background(), app.Options{ConfigPath: cfgPath}))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "ステップは実行されない")
}

func TestBuildSteps(t *testing.T) {
	f := newFixture(t)
	disabled := false
	cfg := config.NewConfig()
	cfg.Steps = []config.StepConfig{
		{ID: 1, Name: "a", Path: f.input, Delimiter: ";"},
		{ID: 2, Name: "b", Path: f.input, Delimiter: ";", Processing: &disabled},
	}

	steps, err := app.BuildSteps(cfg, nil)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	for _, s := range steps {
		require.NoError(t, s.Run(context.Background()))
		assert.Equal(t, core.StatusOK, s.Status())
	}
	assert.Equal(t, core.StatusProcessing, steps[0].LastStage())
	assert.Equal(t, "JOHN DOE", steps[0].Items()[0].Name)
	assert.Equal(t, core.StatusReading, steps[1].LastStage())
	assert.Equal(t, "John Doe", steps[1].Items()[0].Name)

	cfg.Writer.Type = config.WriterDatabase
	_, err = app.BuildSteps(cfg, nil)
	assert.Error(t, err, "接続なしで database writer は作れない")
}

func TestLoadConfig_Embedded(t *testing.T) {
	raw, err := os.ReadFile("../resources/application.yaml")
	require.NoError(t, err)

	cfg, err := app.LoadConfig(app.Options{EmbeddedConfig: raw})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Steps)
}
