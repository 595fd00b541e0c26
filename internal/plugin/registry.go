package plugin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"inkframe/internal/kvfile"
	"inkframe/internal/logging"
)

// Metadata describes one plugin as loaded from its manifest.
type Metadata struct {
	// PluginID is the stable identifier; defaults to the manifest's
	// directory name.
	PluginID string `json:"plugin_id"`
	// Name is the human-readable display name.
	Name string `json:"name"`
	// Impl is the implementation handle. With compile-time factories it is
	// informational: the factory table keys on PluginID.
	Impl string `json:"impl,omitempty"`
	// SettingsSchema is opaque to the core; the UI consumes it.
	SettingsSchema json.RawMessage `json:"settings_schema,omitempty"`
	// Version of the plugin.
	Version string `json:"version,omitempty"`
	// Icon hint for the UI.
	Icon string `json:"icon,omitempty"`
}

// Factory constructs a plugin implementation.
type Factory func(logger *slog.Logger) (Plugin, error)

// manifestFile is the per-plugin manifest filename under the plugins root.
const manifestFile = "manifest.json"

// Registry holds plugin metadata and constructed implementations.
//
// The implementation table is fixed at construction. LoadAll and Reload
// scan the plugins root for manifests and atomically replace the metadata
// view; a manifest without a registered factory loads as metadata-only (its
// instances fail resolution), and a factory without a manifest gets
// synthesized default metadata so built-ins work on an empty root.
type Registry struct {
	factories map[string]Factory
	logger    *slog.Logger

	mu      sync.RWMutex
	root    string
	meta    map[string]Metadata
	plugins map[string]Plugin
}

// NewRegistry creates a Registry over a compile-time factory table.
func NewRegistry(factories map[string]Factory, logger *slog.Logger) *Registry {
	return &Registry{
		factories: factories,
		logger:    logging.Default(logger).With("component", "registry"),
		meta:      make(map[string]Metadata),
		plugins:   make(map[string]Plugin),
	}
}

// LoadAll scans the plugins root and replaces the registry content.
// It returns the number of plugins available afterwards. A missing root is
// not an error: only built-ins are available then.
func (r *Registry) LoadAll(root string) (int, error) {
	meta := make(map[string]Metadata)

	entries, err := os.ReadDir(root)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("read plugins root %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), manifestFile)
		var m Metadata
		if !kvfile.Load(path, &m) {
			if _, err := os.Stat(path); err == nil {
				r.logger.Warn("skipping unparseable manifest", "path", path)
			}
			continue
		}
		if m.PluginID == "" {
			m.PluginID = entry.Name()
		}
		if m.Name == "" {
			m.Name = m.PluginID
		}
		meta[m.PluginID] = m
	}

	// Built-ins without a manifest still register with default metadata.
	for id := range r.factories {
		if _, ok := meta[id]; !ok {
			meta[id] = Metadata{PluginID: id, Name: id, Version: "builtin"}
		}
	}

	// Construct implementations for every id that has a factory.
	plugins := make(map[string]Plugin)
	for id := range meta {
		factory, ok := r.factories[id]
		if !ok {
			r.logger.Warn("manifest has no registered implementation", "plugin", id)
			continue
		}
		p, err := factory(r.logger.With("plugin", id))
		if err != nil {
			return 0, fmt.Errorf("construct plugin %s: %w", id, err)
		}
		plugins[id] = p
	}

	r.mu.Lock()
	r.root = root
	r.meta = meta
	r.plugins = plugins
	r.mu.Unlock()

	r.logger.Info("plugins loaded", "count", len(meta), "implemented", len(plugins))
	return len(meta), nil
}

// Reload re-scans the last loaded root and atomically replaces the registry.
func (r *Registry) Reload() (int, error) {
	r.mu.RLock()
	root := r.root
	r.mu.RUnlock()
	return r.LoadAll(root)
}

// Get returns the implementation for a plugin id.
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// Metadata returns the metadata for a plugin id.
func (r *Registry) Metadata(id string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meta[id]
	return m, ok
}

// ListMetadata returns all plugin metadata sorted by id.
func (r *Registry) ListMetadata() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.meta))
	for _, m := range r.meta {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PluginID < out[j].PluginID })
	return out
}

// IsLoaded reports whether a plugin id is known to the registry.
func (r *Registry) IsLoaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.meta[id]
	return ok
}
