// Package config loads the launcher configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// SystemConfigDir is the fallback when no user config directory exists.
const SystemConfigDir = "/etc/runic"

// Config is the contents of config.toml in the config directory.
type Config struct {
	// Provider is the provider executable spawned per session.
	Provider string `toml:"provider"`
	// Plugins are the plugin references loaded by the provider, absolute
	// paths or names resolved against the plugin search directories.
	Plugins []string `toml:"plugins"`
	// MaxEntries caps the combined number of displayed matches. Zero
	// means unlimited.
	MaxEntries int `toml:"max_entries"`
	// ShowResultsImmediately issues an empty query at startup.
	ShowResultsImmediately bool `toml:"show_results_immediately"`
}

// Default is the configuration used when no config file can be read.
func Default() Config {
	return Config{
		Provider: "runic-provider",
		Plugins:  []string{"websearch.so", "stdin.so"},
	}
}

// Dir resolves the config directory: the override if given, else the
// user's config directory when it exists, else the system-wide one.
func Dir(override string) string {
	if override != "" {
		return override
	}
	if base, err := os.UserConfigDir(); err == nil {
		dir := filepath.Join(base, "runic")
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
	}
	return SystemConfigDir
}

// Load reads config.toml from dir. A missing or invalid file degrades to
// the default config; the returned error describes why, for the caller to
// log, and is never fatal.
func Load(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, "config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config file, using defaults")
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), errors.Wrap(err, "failed to parse config file, using defaults")
	}
	return cfg, nil
}
