package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/config"
	"go.uber.org/zap/zaptest"
)

// newTree builds "testengine apitest run" with the configurator wired in the
// same way as the real commands.
func newTree(t *testing.T) (*cobra.Command, *config.Config) {
	t.Helper()
	cfg := config.New()
	c := NewCmdConfigurator(zaptest.NewLogger(t), cfg)

	root := &cobra.Command{Use: "testengine", SilenceUsage: true, SilenceErrors: true}
	require.NoError(t, c.AddFlags(root))
	parent := &cobra.Command{Use: "apitest"}
	run := &cobra.Command{
		Use: "run",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.Validate(context.Background(), cmd)
		},
		RunE: func(*cobra.Command, []string) error { return nil },
	}
	parent.AddCommand(run)
	require.NoError(t, c.AddFlags(run))
	root.AddCommand(parent)
	return root, cfg
}

func execute(t *testing.T, root *cobra.Command, args ...string) error {
	t.Helper()
	root.SetArgs(args)
	return root.Execute()
}

func TestCommandPath(t *testing.T) {
	root, _ := newTree(t)
	run, _, err := root.Find([]string{"apitest", "run"})
	require.NoError(t, err)

	assert.Equal(t, "apitest run", commandPath(run))
	assert.Equal(t, "", commandPath(root))
}

func TestValidate_FlagsOverrideDefaults(t *testing.T) {
	root, cfg := newTree(t)

	err := execute(t, root, "apitest", "run", "--suite", "smoke", "--timeout", "3s", "-t", "a,b", "--parallel", "--environment", "staging")
	require.NoError(t, err)

	assert.Equal(t, "smoke", cfg.APITest.Suite)
	assert.Equal(t, 3*time.Second, cfg.APITest.Timeout)
	assert.Equal(t, []string{"a", "b"}, cfg.APITest.TestCases)
	assert.True(t, cfg.APITest.Parallel)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "memory", cfg.MockData.Store)
}

func TestValidate_ConfigFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apiTest:
  timeout: 2s
  suite: from-file
  baseUrl: http://file.local
load:
  thresholds:
    - metric: http_req_duration_p95
      condition: "<500ms"
`), 0o644))
	t.Setenv("TESTENGINE_APITEST_SUITE", "from-env")

	root, cfg := newTree(t)
	err := execute(t, root, "apitest", "run", "--configPath", path, "--baseUrl", "http://flag.local")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.APITest.Timeout)
	assert.Equal(t, "from-env", cfg.APITest.Suite)
	assert.Equal(t, "http://flag.local", cfg.APITest.BaseURL)
	require.Len(t, cfg.Load.Thresholds, 1)
	assert.Equal(t, "<500ms", cfg.Load.Thresholds[0].Condition)
}

func TestValidate_MissingExplicitConfigFile(t *testing.T) {
	root, _ := newTree(t)
	err := execute(t, root, "apitest", "run", "--configPath", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate_RejectsInvalidConfig(t *testing.T) {
	root, _ := newTree(t)
	err := execute(t, root, "apitest", "run", "--timeout", "0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiTest.timeout must be positive")
}

func TestAddFlags_UnknownCommand(t *testing.T) {
	c := NewCmdConfigurator(zaptest.NewLogger(t), config.New())
	err := c.AddFlags(&cobra.Command{Use: "bogus"})
	assert.EqualError(t, err, `unknown command "bogus"`)
}

func TestLoadConfig(t *testing.T) {
	cfg := config.New()
	cfg.Load.Thresholds = []config.Threshold{{Metric: "throughput", Condition: ">10", Severity: "warn"}}

	lc := LoadConfig(cfg.Load)
	assert.Equal(t, cfg.Load.Users, lc.Users)
	assert.Equal(t, cfg.Load.RampUp, lc.RampUp)
	require.Len(t, lc.Thresholds, 1)
	assert.Equal(t, "throughput", lc.Thresholds[0].Metric)
	assert.Equal(t, "warn", lc.Thresholds[0].Severity)
}

func TestGetService(t *testing.T) {
	cfg := config.New()
	p := NewServiceProvider(zaptest.NewLogger(t), cfg)
	ctx := context.Background()

	api, err := p.GetService(ctx, "apitest")
	require.NoError(t, err)
	again, err := p.GetService(ctx, "apitest")
	require.NoError(t, err)
	assert.Same(t, api, again)

	_, err = p.GetService(ctx, "mock")
	require.NoError(t, err)
	_, err = p.GetService(ctx, "scenario")
	require.NoError(t, err)
	_, err = p.GetService(ctx, "load")
	require.NoError(t, err)

	_, err = p.GetService(ctx, "record")
	assert.EqualError(t, err, `invalid command "record"`)
}
