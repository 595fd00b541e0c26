// Package home manages the inkframe data directory layout.
//
// The data directory owns all persistent state: the daemon config, the
// instance and schedule stores, and per-instance plugin scratch space.
//
// Layout:
//
//	<root>/
//	  config.json              (daemon configuration)
//	  config.json.bak          (previous config, written on save)
//	  plugin_instances.json    (instance store)
//	  schedules.json           (schedule store)
//	  plugins/
//	    <plugin-id>/
//	      <instance-id>/       (plugin-owned scratch space, opaque to the core)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents an inkframe data directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/inkframe
//   - macOS:   ~/Library/Application Support/inkframe
//   - Windows: %APPDATA%/inkframe
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "inkframe")}, nil
}

// Root returns the data directory path.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the daemon config file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.json")
}

// ConfigBackupPath returns the path the previous config is copied to on save.
func (d Dir) ConfigBackupPath() string {
	return filepath.Join(d.root, "config.json.bak")
}

// InstancesPath returns the path to the plugin-instance store file.
func (d Dir) InstancesPath() string {
	return filepath.Join(d.root, "plugin_instances.json")
}

// SchedulesPath returns the path to the schedule store file.
func (d Dir) SchedulesPath() string {
	return filepath.Join(d.root, "schedules.json")
}

// PluginDataDir returns the scratch directory owned by one plugin instance.
// The core never looks inside it.
func (d Dir) PluginDataDir(pluginID, instanceID string) string {
	return filepath.Join(d.root, "plugins", pluginID, instanceID)
}

// EnsureExists creates the data directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create data directory %s: %w", d.root, err)
	}
	return nil
}
