// Package loader resolves plugin references to loaded modules and binds
// them to the plugin contract.
package loader

import (
	"os"
	"path/filepath"
	goplugin "plugin"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/runic-sh/runic/lib/plugin"
)

// SystemPluginDir is searched last for relative plugin references.
const SystemPluginDir = "/etc/runic/plugins"

// PluginPathEnv overrides the search path list, colon separated. Entries
// take priority over the config and system directories.
const PluginPathEnv = "RUNIC_PLUGINS"

// SearchPaths returns the ordered list of directories a relative plugin
// reference is resolved against: RUNIC_PLUGINS entries first, then the
// user config directory, then the system-wide directory.
func SearchPaths(configDir string) []string {
	var paths []string
	if env := os.Getenv(PluginPathEnv); env != "" {
		for _, p := range strings.Split(env, ":") {
			if p != "" {
				paths = append(paths, p)
			}
		}
	}
	paths = append(paths, filepath.Join(configDir, "plugins"), SystemPluginDir)
	return paths
}

// Resolve maps a plugin reference to a file path. Absolute references are
// used directly; otherwise the first search path containing the file wins.
func Resolve(ref string, searchPaths []string) (string, error) {
	if filepath.IsAbs(ref) {
		return ref, nil
	}
	for _, dir := range searchPaths {
		path := filepath.Join(dir, ref)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Newf("plugin %q not found in %v", ref, searchPaths)
}

// Load resolves ref, opens the module, verifies its version tag, binds the
// contract entry points and runs Init with the config directory.
//
// Every failure is fatal to this plugin only; callers are expected to log
// it and continue with the remaining plugins.
func Load(ref, configDir string) (plugin.Plugin, error) {
	path, err := Resolve(ref, SearchPaths(configDir))
	if err != nil {
		return nil, err
	}

	mod, err := goplugin.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open plugin %s", path)
	}

	versionSym, err := mod.Lookup(plugin.VersionSymbol)
	if err != nil {
		return nil, errors.Wrapf(err, "plugin %s has no version tag", path)
	}
	version, ok := versionSym.(*uint32)
	if !ok {
		return nil, errors.Newf("plugin %s version tag has type %T, want *uint32", path, versionSym)
	}
	if *version != plugin.ABIVersion {
		return nil, errors.Newf("plugin %s implements contract version %d, host expects %d",
			path, *version, plugin.ABIVersion)
	}

	pluginSym, err := mod.Lookup(plugin.PluginSymbol)
	if err != nil {
		return nil, errors.Wrapf(err, "plugin %s exports no %s symbol", path, plugin.PluginSymbol)
	}
	p, ok := pluginSym.(*plugin.Plugin)
	if !ok {
		return nil, errors.Newf("plugin %s %s symbol has type %T, want *plugin.Plugin",
			path, plugin.PluginSymbol, pluginSym)
	}
	if *p == nil {
		return nil, errors.Newf("plugin %s %s symbol is nil", path, plugin.PluginSymbol)
	}

	(*p).Init(configDir)
	return *p, nil
}
