package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "screener/pkg/domain-errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screener.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenDefaultFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, path := range []string{"", DefaultPath} {
		cfg, err := Load(path)
		require.NoError(t, err, "path %q", path)
		assert.Equal(t, Default(), cfg)
		assert.Equal(t, 0.85, cfg.Decision.Block)
		assert.Equal(t, 0.70, cfg.Decision.Escalate)
		assert.Equal(t, 500*time.Millisecond, cfg.Snapshot.Debounce)
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.True(t, dErrors.IsConfiguration(err))
	assert.ErrorContains(t, err, "absent.yaml")
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
decision:
  block: 0.9
  escalate: 0.75
matching:
  max_candidates: 5
  weights:
    edit_distance: 0.4
    token_set: 0.4
    phonetic: 0.2
snapshot:
  path: /var/lib/screener/entries.json
  debounce: 2s
cache:
  backend: none
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Decision.Block)
	assert.Equal(t, 0.05, cfg.Decision.ClusterMargin, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Matching.MaxCandidates)
	assert.Equal(t, 0.5, cfg.Matching.Floor)
	assert.Equal(t, 0.2, cfg.Matching.Weights.Phonetic)
	assert.Equal(t, 2*time.Second, cfg.Snapshot.Debounce)
	assert.Equal(t, "none", cfg.Cache.Backend)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "decision:\n  block: 0.9\n")
	t.Setenv("SCREENER_BLOCK_THRESHOLD", "0.95")
	t.Setenv("SCREENER_AUDIT_SINK", "kafka")
	t.Setenv("SCREENER_KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.95, cfg.Decision.Block)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_RejectsMalformedInput(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "decision: [not, a, map]"))
		assert.True(t, dErrors.IsConfiguration(err))
	})
	t.Run("env", func(t *testing.T) {
		t.Setenv("SCREENER_MAX_CANDIDATES", "ten")
		_, err := Load("")
		assert.True(t, dErrors.IsConfiguration(err))
		assert.ErrorContains(t, err, "SCREENER_MAX_CANDIDATES")
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"escalate equals block", func(c *Config) { c.Decision.Escalate = c.Decision.Block }},
		{"escalate above block", func(c *Config) { c.Decision.Escalate = 0.9 }},
		{"block above one", func(c *Config) { c.Decision.Block = 1.2 }},
		{"escalate zero", func(c *Config) { c.Decision.Escalate = 0 }},
		{"floor at escalate", func(c *Config) { c.Matching.Floor = c.Decision.Escalate }},
		{"negative floor", func(c *Config) { c.Matching.Floor = -0.1 }},
		{"zero max candidates", func(c *Config) { c.Matching.MaxCandidates = 0 }},
		{"zero length ratio", func(c *Config) { c.Matching.LengthRatio = 0 }},
		{"weights do not sum to one", func(c *Config) { c.Matching.Weights.Phonetic = 0.5 }},
		{"unknown snapshot source", func(c *Config) { c.Snapshot.Source = "s3" }},
		{"postgres source without dsn", func(c *Config) { c.Snapshot.Source = "postgres" }},
		{"redis cache without url", func(c *Config) { c.Cache.Backend = "redis" }},
		{"kafka sink without brokers", func(c *Config) { c.Audit.Sink = "kafka" }},
		{"sample rate above one", func(c *Config) { c.Audit.OpsSampleRate = 2 }},
		{"filter ceiling above one", func(c *Config) { c.Filter.CommonNameCeiling = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.True(t, dErrors.IsConfiguration(cfg.Validate()))
		})
	}

	require.NoError(t, Default().Validate())
}

func TestFingerprint(t *testing.T) {
	fingerprint := func(c *Config) string {
		t.Helper()
		fp, err := c.Fingerprint()
		require.NoError(t, err)
		require.NotEmpty(t, fp)
		return fp
	}
	a, b := Default(), Default()
	assert.Equal(t, fingerprint(a), fingerprint(b))

	b.Matching.Workers = 32
	b.Server.Addr = ":9999"
	assert.Equal(t, fingerprint(a), fingerprint(b), "throughput and transport settings do not change decisions")

	b.Decision.Block = 0.9
	assert.NotEqual(t, fingerprint(a), fingerprint(b))

	c := Default()
	c.Filter.Enabled = false
	assert.NotEqual(t, fingerprint(a), fingerprint(c), "disabling the filter changes decisions")
}

func TestLoad_FilterSection(t *testing.T) {
	path := writeConfig(t, `
filter:
  enabled: false
  common_name_ceiling: 0.7
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Filter.Enabled)
	assert.Equal(t, 0.7, cfg.Filter.CommonNameCeiling)
	assert.Equal(t, 0.75, cfg.Filter.GeographicCeiling, "unset keys keep defaults")

	t.Run("disabled filter is not validated", func(t *testing.T) {
		cfg := Default()
		cfg.Filter.Enabled = false
		cfg.Filter.ShortNameLength = -1
		assert.NoError(t, cfg.Validate())
	})
}
