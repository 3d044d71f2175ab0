package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	path := writeConfig(t, `
oracle:
  model: gpt-4o
  timeout: 15s
walk:
  max_steps: 6
  tag_affinity: 0.5
augment:
  split: 0.4
sandbox:
  categories:
    Chess: gaming
  identity_args: [handle]
export:
  sqlite: out.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Oracle.Model)
	assert.Equal(t, 15*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 3, cfg.Oracle.MaxAttempts, "untouched keys keep their defaults")
	assert.Equal(t, 6, cfg.Walk.MaxSteps)
	assert.Equal(t, 3, cfg.Walk.WalksPerNode)
	assert.InDelta(t, 0.5, cfg.Walk.TagAffinity, 1e-9)
	assert.InDelta(t, 0.4, cfg.Augment.Split, 1e-9)
	assert.InDelta(t, 0.5, cfg.Augment.Insert, 1e-9)
	assert.Equal(t, map[string]string{"Chess": "gaming"}, cfg.Sandbox.Categories)
	assert.Equal(t, []string{"handle"}, cfg.Sandbox.IdentityArgs)
	assert.Equal(t, "out.db", cfg.Export.SQLite)
	assert.Equal(t, "paths.jsonl", cfg.Export.JSONL)
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "from-env")
	path := writeConfig(t, "oracle:\n  api_key: from-file\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Oracle.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvAPIKey, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "reading config")

	_, err = Load(writeConfig(t, "walk: [unterminated"))
	require.ErrorContains(t, err, "parsing config")

	_, err = Load(writeConfig(t, "augment:\n  merge: 1.5\n"))
	require.ErrorContains(t, err, "augment.merge")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative probability", func(c *Config) { c.Augment.Insert = -0.1 }, "augment.insert"},
		{"probability above one", func(c *Config) { c.Augment.Long = 2 }, "augment.long"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"zero candidates", func(c *Config) { c.Graph.MaxCandidates = 0 }, "graph.max_candidates"},
		{"negative steps", func(c *Config) { c.Walk.MaxSteps = -1 }, "walk.max_steps"},
		{"empty model", func(c *Config) { c.Oracle.Model = "" }, "oracle.model"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"negative affinity", func(c *Config) { c.Walk.TagAffinity = -1 }, "walk.tag_affinity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Workers = 0
	cfg.Augment.Merge = 3
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.workers")
	assert.Contains(t, err.Error(), "augment.merge")
}

func TestOptions_Translate(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.WalkOptions(nil), 4)
	cfg.Walk.TagAffinity = 1
	assert.Len(t, cfg.WalkOptions(nil), 5)

	assert.Len(t, cfg.GraphOptions(nil, nil), 4)
	assert.Len(t, cfg.SandboxOptions(nil), 1)
	cfg.Sandbox.TransientFields = []string{"status"}
	assert.Len(t, cfg.SandboxOptions(nil), 2)
	assert.NotEmpty(t, cfg.RunnerOptions(nil))
	assert.Len(t, cfg.GuardOptions(nil), 4)
	assert.Len(t, cfg.NormalizerOptions(nil), 4)
}
