package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rearrange/placement"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	alg, err := c.Algorithm()
	require.NoError(t, err)
	assert.Equal(t, placement.AlgoOuter, alg)
	assert.Equal(t, 5*time.Minute, c.Search.Timeout)
	assert.Equal(t, 10, c.Placement.BatchSize)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "rearrange.yaml", `
search:
  timeout: 30s
placement:
  algorithm: middle
  workers: 4
  seed: 42
planning:
  max_steps: 6
server:
  log_level: debug
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.Search.Timeout)
	assert.Equal(t, "middle", c.Placement.Algorithm)
	assert.Equal(t, 4, c.Placement.Workers)
	assert.Equal(t, int64(42), c.Placement.Seed)
	assert.Equal(t, 6, c.Planning.MaxSteps)
	assert.Equal(t, slog.LevelDebug, c.Server.Level())
	assert.Equal(t, 10, c.Placement.BatchSize, "unset keys keep defaults")
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "rearrange.json", `{"placement":{"algorithm":"inner","batch_size":25}}`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "inner", c.Placement.Algorithm)
	assert.Equal(t, 25, c.Placement.BatchSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "rearrange.yaml", "placement:\n  algorithm: middle\n  workers: 2\n")
	t.Setenv("REARRANGE_ALGORITHM", "random_sample")
	t.Setenv("REARRANGE_WORKERS", "8")
	t.Setenv("REARRANGE_TIMEOUT", "2s")
	t.Setenv("REARRANGE_OPTIMIZE_GRID", "false")
	t.Setenv("REARRANGE_SEED", "not a number")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "random_sample", c.Placement.Algorithm)
	assert.Equal(t, 8, c.Placement.Workers)
	assert.Equal(t, 2*time.Second, c.Search.Timeout)
	assert.False(t, c.Planning.OptimizeGrid)
	assert.Equal(t, int64(1), c.Placement.Seed, "unparseable values are ignored")
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"algorithm": "placement:\n  algorithm: annealing\n",
		"workers":   "placement:\n  workers: 0\n",
		"precision": "placement:\n  precision: 0\n",
		"timeout":   "search:\n  timeout: 0s\n",
		"log level": "server:\n  log_level: loud\n",
		"syntax":    "placement: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestSettings(t *testing.T) {
	c := Default()
	c.Placement.Workers = 3
	c.Placement.Threshold = 0.05
	set := c.Settings(slog.Default())
	assert.Equal(t, 3, set.Workers)
	assert.Equal(t, c.Search.Timeout, set.Timeout)
	assert.True(t, set.Start.IsZero())
	require.NotNil(t, set.Rand)

	// the same seed gives the same stream
	again := c.Settings(slog.Default())
	assert.Equal(t, set.Rand.Int63(), again.Rand.Int63())

	opts := c.PlanOptions(nil, slog.Default())
	assert.Equal(t, c.Planning.IncludeNews, opts.IncludeNews)
	assert.Equal(t, c.Placement.Precision, opts.Precision)
}
