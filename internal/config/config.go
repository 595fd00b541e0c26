// Package config holds the daemon configuration and its persistence rules.
//
// The config file is small and explicit: updates via the API mutate the
// in-memory copy only, saving is a separate operation that keeps a backup
// of the previous file, and revert re-reads whatever is on disk.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"inkframe/internal/kvfile"
)

// Defaults applied where the file or an update leaves fields empty.
const (
	DefaultTimezone        = "UTC"
	DefaultListenAddr      = ":8272"
	DefaultPluginsDir      = "plugins.d"
	DefaultDriver          = "null"
	DefaultMinPushInterval = 5 * time.Second
	DefaultDeepCleanCron   = "0 4 * * *"
	DefaultRescanCron      = "0 */6 * * *"
)

// DisplayConfig holds panel-facing settings.
type DisplayConfig struct {
	// MinPushInterval is the minimum spacing between panel refreshes,
	// as a Go duration string (e.g. "5s").
	MinPushInterval string `json:"min_push_interval,omitempty"`
	// Rotation is the panel rotation in degrees: 0, 90, 180 or 270.
	Rotation int `json:"rotation"`
}

// MaintenanceConfig holds cron expressions for background maintenance jobs.
type MaintenanceConfig struct {
	DeepCleanCron string `json:"deep_clean_cron,omitempty"`
	RescanCron    string `json:"rescan_cron,omitempty"`
}

// Config is the daemon configuration as persisted in config.json.
type Config struct {
	Timezone    string            `json:"timezone"`
	ListenAddr  string            `json:"listen_addr"`
	PluginsDir  string            `json:"plugins_dir"`
	Driver      string            `json:"driver"`
	Display     DisplayConfig     `json:"display"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

// withDefaults returns a copy with empty fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.PluginsDir == "" {
		c.PluginsDir = DefaultPluginsDir
	}
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.Display.MinPushInterval == "" {
		c.Display.MinPushInterval = DefaultMinPushInterval.String()
	}
	if c.Maintenance.DeepCleanCron == "" {
		c.Maintenance.DeepCleanCron = DefaultDeepCleanCron
	}
	if c.Maintenance.RescanCron == "" {
		c.Maintenance.RescanCron = DefaultRescanCron
	}
	return c
}

// Validate checks the config for boot-blocking mistakes.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q", c.Timezone)
	}
	switch c.Display.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("invalid rotation %d: must be 0, 90, 180 or 270", c.Display.Rotation)
	}
	if c.Display.MinPushInterval != "" {
		d, err := time.ParseDuration(c.Display.MinPushInterval)
		if err != nil {
			return fmt.Errorf("invalid min_push_interval %q: %w", c.Display.MinPushInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("min_push_interval must not be negative")
		}
	}
	return nil
}

// RestartFields lists the fields changed between old and new that are read
// once at boot and only take effect on the next start.
func RestartFields(old, new Config) []string {
	var fields []string
	if old.Timezone != new.Timezone {
		fields = append(fields, "timezone")
	}
	if old.ListenAddr != new.ListenAddr {
		fields = append(fields, "listen_addr")
	}
	if old.Driver != new.Driver {
		fields = append(fields, "driver")
	}
	if old.PluginsDir != new.PluginsDir {
		fields = append(fields, "plugins_dir")
	}
	return fields
}

// MinPushInterval returns the parsed display push spacing.
func (c Config) MinPushInterval() time.Duration {
	d, err := time.ParseDuration(c.Display.MinPushInterval)
	if err != nil || d < 0 {
		return DefaultMinPushInterval
	}
	return d
}

// Manager owns the live config and mediates the update/save/revert cycle.
type Manager struct {
	path       string
	backupPath string

	mu  sync.Mutex
	cur Config
}

// NewManager loads the config from path, applying defaults for a missing or
// damaged file. It fails only on an invalid loaded config (e.g. an unknown
// timezone), which is a fatal boot error by design.
func NewManager(path, backupPath string) (*Manager, error) {
	var cfg Config
	kvfile.Load(path, &cfg)
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{path: path, backupPath: backupPath, cur: cfg}, nil
}

// Current returns a copy of the live config.
func (m *Manager) Current() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Update validates the candidate and swaps the in-memory config.
// It does not touch the disk; call Save for that.
func (m *Manager) Update(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
	return nil
}

// Save persists the live config, copying the previous file to the backup
// path first so an operator can recover a working config by hand.
func (m *Manager) Save() error {
	m.mu.Lock()
	cfg := m.cur
	m.mu.Unlock()

	if prev, err := os.ReadFile(m.path); err == nil {
		if err := os.WriteFile(m.backupPath, prev, 0o644); err != nil {
			return fmt.Errorf("write config backup: %w", err)
		}
	}
	return kvfile.Save(m.path, cfg)
}

// Revert replaces the live config with whatever is on disk.
func (m *Manager) Revert() error {
	var cfg Config
	kvfile.Load(m.path, &cfg)
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config on disk is invalid: %w", err)
	}
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
	return nil
}
