package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirOverrideWins(t *testing.T) {
	assert.Equal(t, "/custom", Dir("/custom"))
}

func TestDirFallsBackToSystem(t *testing.T) {
	// Point the user config base at an empty directory so no runic
	// subdirectory exists.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	assert.Equal(t, SystemConfigDir, Dir(""))
}

func TestDirPrefersExistingUserDir(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "runic")
	require.NoError(t, os.Mkdir(dir, 0o755))
	t.Setenv("XDG_CONFIG_HOME", base)

	assert.Equal(t, dir, Dir(""))
}

func TestLoadParsesConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
provider = "/usr/libexec/runic-provider"
plugins = ["apps.so", "/opt/runic/shell.so"]
max_entries = 10
show_results_immediately = true
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/usr/libexec/runic-provider", cfg.Provider)
	assert.Equal(t, []string{"apps.so", "/opt/runic/shell.so"}, cfg.Plugins)
	assert.Equal(t, 10, cfg.MaxEntries)
	assert.True(t, cfg.ShowResultsImmediately)
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
max_entries = 5
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxEntries)
	assert.Equal(t, Default().Provider, cfg.Provider)
	assert.Equal(t, Default().Plugins, cfg.Plugins)
}

func TestLoadMissingFileDegradesToDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadInvalidTOMLDegradesToDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("max_entries = ["), 0o644))

	cfg, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, Default(), cfg)
}
