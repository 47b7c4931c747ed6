package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Automation.Enabled)
	assert.Equal(t, 0.7, cfg.Automation.MinRuleSuccessRate)
	assert.Equal(t, 0.8, cfg.Automation.LowRisk.MinConfidence)
	assert.Equal(t, 10000.0, cfg.Automation.LowRisk.MaxAmount)
	assert.Equal(t, 0.9, cfg.Automation.MediumRisk.MinConfidence)
	assert.Equal(t, 2500.0, cfg.Automation.MediumRisk.MaxAmount)
}

func TestLoad(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "comply init")
	})

	t.Run("written config round-trips", func(t *testing.T) {
		dir := t.TempDir()
		cfg := Default()
		cfg.SQLite.Path = "/tmp/custom.db"
		cfg.Automation.MinRuleSuccessRate = 0.9
		require.NoError(t, cfg.Write(dir))

		loaded, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/custom.db", loaded.SQLite.Path)
		assert.Equal(t, 0.9, loaded.Automation.MinRuleSuccessRate)
		assert.True(t, loaded.Automation.Enabled)
	})

	t.Run("empty path defaults into the config dir", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Default().Write(dir))

		loaded, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, DatabasePath(dir), loaded.SQLite.Path)
	})

	t.Run("partial file keeps defaults for the rest", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(ConfigDir(dir), 0o755))
		require.NoError(t, os.WriteFile(ConfigFilePath(dir),
			[]byte("automation:\n  enabled: true\n  min_rule_success_rate: 0.85\n"), 0o644))

		loaded, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, 0.85, loaded.Automation.MinRuleSuccessRate)
		assert.Equal(t, 2500.0, loaded.Automation.MediumRisk.MaxAmount)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(ConfigDir(dir), 0o755))
		require.NoError(t, os.WriteFile(ConfigFilePath(dir), []byte("{not yaml"), 0o644))

		_, err := Load(dir)
		assert.Error(t, err)
	})
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Default().Write(dir))

	t.Run("db path override", func(t *testing.T) {
		t.Setenv("COMPLY_DB_PATH", "/var/lib/comply/override.db")

		loaded, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/comply/override.db", loaded.SQLite.Path)
	})

	t.Run("automation kill switch", func(t *testing.T) {
		for _, v := range []string{"0", "false"} {
			t.Setenv("COMPLY_AUTOMATION", v)
			loaded, err := Load(dir)
			require.NoError(t, err)
			assert.False(t, loaded.Automation.Enabled, "COMPLY_AUTOMATION=%s", v)
		}
	})

	t.Run("other values leave automation on", func(t *testing.T) {
		t.Setenv("COMPLY_AUTOMATION", "1")
		loaded, err := Load(dir)
		require.NoError(t, err)
		assert.True(t, loaded.Automation.Enabled)
	})
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(dir))

	require.NoError(t, Default().Write(dir))
	assert.True(t, Exists(dir))
	assert.Equal(t, filepath.Join(dir, DefaultConfigDir, DefaultConfigFile), ConfigFilePath(dir))
}
