// Package instance owns plugin-instance records.
//
// The store is the only mutator of PluginInstance records. It mediates the
// plugin lifecycle callbacks: validation gates create/update, the On*
// callbacks fire best-effort on transitions, and every successful mutation
// is persisted before it is visible. A failed save aborts the mutation and
// restores the prior map.
package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"

	"inkframe/internal/clock"
	"inkframe/internal/display"
	"inkframe/internal/kvfile"
	"inkframe/internal/logging"
	"inkframe/internal/plugin"
)

var (
	// ErrNotFound is returned for an unknown instance id.
	ErrNotFound = errors.New("instance not found")
	// ErrUnknownPlugin is returned when the referenced plugin has no
	// implementation in the registry.
	ErrUnknownPlugin = errors.New("unknown plugin")
)

// PluginInstance is a named, settings-bound use of a plugin.
type PluginInstance struct {
	ID        string          `json:"id"`
	PluginID  string          `json:"plugin_id"`
	Name      string          `json:"name"`
	Settings  plugin.Settings `json:"settings"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// clone returns a copy whose settings the caller may hand out safely.
func (pi PluginInstance) clone() PluginInstance {
	pi.Settings = pi.Settings.Clone()
	return pi
}

// Resolver looks up plugin implementations. The registry implements it.
type Resolver interface {
	Get(pluginID string) (plugin.Plugin, bool)
}

// fileState is the on-disk shape of plugin_instances.json.
type fileState struct {
	Instances   []PluginInstance `json:"instances"`
	LastUpdated time.Time        `json:"last_updated"`
}

// Store holds and persists plugin-instance records.
type Store struct {
	path    string
	clock   *clock.Service
	plugins Resolver
	logger  *slog.Logger

	mu        sync.Mutex
	instances map[string]PluginInstance
}

// NewStore creates a Store persisted at path, loading any existing records.
func NewStore(path string, clk *clock.Service, plugins Resolver, logger *slog.Logger) *Store {
	s := &Store{
		path:      path,
		clock:     clk,
		plugins:   plugins,
		logger:    logging.Default(logger).With("component", "instances"),
		instances: make(map[string]PluginInstance),
	}
	var state fileState
	if kvfile.Load(path, &state) {
		for _, pi := range state.Instances {
			s.instances[pi.ID] = pi
		}
	}
	s.logger.Info("loaded instances", "count", len(s.instances))
	return s
}

// save persists the current map. Caller must hold s.mu.
func (s *Store) save() error {
	state := fileState{
		Instances:   make([]PluginInstance, 0, len(s.instances)),
		LastUpdated: s.clock.Now(),
	}
	for _, pi := range s.instances {
		state.Instances = append(state.Instances, pi)
	}
	sort.Slice(state.Instances, func(i, j int) bool {
		return state.Instances[i].CreatedAt.Before(state.Instances[j].CreatedAt)
	})
	return kvfile.Save(s.path, state)
}

// callback invokes a best-effort lifecycle hook, logging instead of
// propagating failures: a throwing plugin must not corrupt store state.
func (s *Store) callback(ctx context.Context, name, instanceID string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("plugin callback panicked", "callback", name, "instance", instanceID, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn("plugin callback failed", "callback", name, "instance", instanceID, "error", err)
	}
}

// Create registers a new instance of a plugin.
//
// It is rejected when the plugin is unknown or the plugin rejects the
// settings. On success the instance starts enabled and OnEnable fires
// best-effort. An empty name gets a generated one.
func (s *Store) Create(ctx context.Context, pluginID, name string, settings plugin.Settings) (PluginInstance, error) {
	p, ok := s.plugins.Get(pluginID)
	if !ok {
		return PluginInstance{}, fmt.Errorf("%w: %q", ErrUnknownPlugin, pluginID)
	}
	if err := p.ValidateSettings(settings.Clone()); err != nil {
		return PluginInstance{}, fmt.Errorf("%w: %w", plugin.ErrValidation, err)
	}
	if name == "" {
		name = petname.Generate(2, "-")
	}

	now := s.clock.Now()
	pi := PluginInstance{
		ID:        uuid.Must(uuid.NewV7()).String(),
		PluginID:  pluginID,
		Name:      name,
		Settings:  settings.Clone(),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	prev := maps.Clone(s.instances)
	s.instances[pi.ID] = pi
	if err := s.save(); err != nil {
		s.instances = prev
		s.mu.Unlock()
		return PluginInstance{}, fmt.Errorf("save instances: %w", err)
	}
	s.mu.Unlock()

	// Creation succeeded; a failing callback is reported, not undone.
	s.callback(ctx, "on_enable", pi.ID, func() error {
		return p.OnEnable(ctx, pi.Settings.Clone())
	})

	s.logger.Info("instance created", "id", pi.ID, "plugin", pluginID, "name", name)
	return pi.clone(), nil
}

// Update changes an instance's name and/or settings. Nil arguments leave
// the corresponding field untouched.
func (s *Store) Update(ctx context.Context, id string, name *string, settings plugin.Settings) (PluginInstance, error) {
	s.mu.Lock()
	cur, ok := s.instances[id]
	s.mu.Unlock()
	if !ok {
		return PluginInstance{}, ErrNotFound
	}

	p, pok := s.plugins.Get(cur.PluginID)
	if settings != nil {
		if !pok {
			return PluginInstance{}, fmt.Errorf("%w: %q", ErrUnknownPlugin, cur.PluginID)
		}
		if err := p.ValidateSettings(settings.Clone()); err != nil {
			return PluginInstance{}, fmt.Errorf("%w: %w", plugin.ErrValidation, err)
		}
	}

	s.mu.Lock()
	cur, ok = s.instances[id]
	if !ok {
		s.mu.Unlock()
		return PluginInstance{}, ErrNotFound
	}
	oldSettings := cur.Settings
	updated := cur
	if name != nil {
		updated.Name = *name
	}
	if settings != nil {
		updated.Settings = settings.Clone()
	}
	updated.UpdatedAt = s.clock.Now()

	prev := maps.Clone(s.instances)
	s.instances[id] = updated
	if err := s.save(); err != nil {
		s.instances = prev
		s.mu.Unlock()
		return PluginInstance{}, fmt.Errorf("save instances: %w", err)
	}
	s.mu.Unlock()

	if settings != nil && pok {
		s.callback(ctx, "on_settings_change", id, func() error {
			return p.OnSettingsChange(ctx, oldSettings.Clone(), updated.Settings.Clone())
		})
	}
	return updated.clone(), nil
}

// Enable marks an instance enabled. Idempotent: OnEnable fires only on the
// disabled→enabled transition.
func (s *Store) Enable(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, true)
}

// Disable marks an instance disabled. Idempotent: OnDisable fires only on
// the enabled→disabled transition.
func (s *Store) Disable(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, false)
}

func (s *Store) setEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	cur, ok := s.instances[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if cur.Enabled == enabled {
		s.mu.Unlock()
		return nil
	}

	updated := cur
	updated.Enabled = enabled
	updated.UpdatedAt = s.clock.Now()

	prev := maps.Clone(s.instances)
	s.instances[id] = updated
	if err := s.save(); err != nil {
		s.instances = prev
		s.mu.Unlock()
		return fmt.Errorf("save instances: %w", err)
	}
	s.mu.Unlock()

	if p, ok := s.plugins.Get(cur.PluginID); ok {
		if enabled {
			s.callback(ctx, "on_enable", id, func() error {
				return p.OnEnable(ctx, updated.Settings.Clone())
			})
		} else {
			s.callback(ctx, "on_disable", id, func() error {
				return p.OnDisable(ctx, updated.Settings.Clone())
			})
		}
	}
	s.logger.Info("instance toggled", "id", id, "enabled", enabled)
	return nil
}

// Delete removes an instance. A still-enabled instance gets a best-effort
// OnDisable first; no callbacks are observed after Delete returns.
// Schedule slots pointing at the instance are left alone: they resolve to
// empty at evaluation time.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	cur, ok := s.instances[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	prev := maps.Clone(s.instances)
	delete(s.instances, id)
	if err := s.save(); err != nil {
		s.instances = prev
		s.mu.Unlock()
		return fmt.Errorf("save instances: %w", err)
	}
	s.mu.Unlock()

	if cur.Enabled {
		if p, ok := s.plugins.Get(cur.PluginID); ok {
			s.callback(ctx, "on_disable", id, func() error {
				return p.OnDisable(ctx, cur.Settings.Clone())
			})
		}
	}
	s.logger.Info("instance deleted", "id", id, "plugin", cur.PluginID)
	return nil
}

// Get returns an instance by id.
func (s *Store) Get(id string) (PluginInstance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi, ok := s.instances[id]
	if !ok {
		return PluginInstance{}, false
	}
	return pi.clone(), true
}

// List returns instances, optionally filtered by plugin id, ordered by
// creation time.
func (s *Store) List(pluginID string) []PluginInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PluginInstance, 0, len(s.instances))
	for _, pi := range s.instances {
		if pluginID != "" && pi.PluginID != pluginID {
			continue
		}
		out = append(out, pi.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListEnabled returns all enabled instances ordered by creation time.
func (s *Store) ListEnabled() []PluginInstance {
	all := s.List("")
	out := all[:0]
	for _, pi := range all {
		if pi.Enabled {
			out = append(out, pi)
		}
	}
	return out
}

// Count returns the number of instances.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Test renders one frame for validation. It never touches the display.
func (s *Store) Test(ctx context.Context, id string, dev display.DeviceConfig) (display.Frame, error) {
	pi, ok := s.Get(id)
	if !ok {
		return display.Frame{}, ErrNotFound
	}
	p, ok := s.plugins.Get(pi.PluginID)
	if !ok {
		return display.Frame{}, fmt.Errorf("%w: %q", ErrUnknownPlugin, pi.PluginID)
	}
	frame, err := p.GenerateImage(ctx, pi.Settings.Clone(), dev)
	if err != nil {
		return display.Frame{}, fmt.Errorf("generate image: %w", err)
	}
	frame.Provenance = display.Provenance{
		PluginID:     pi.PluginID,
		InstanceID:   pi.ID,
		InstanceName: pi.Name,
		GeneratedAt:  s.clock.Now(),
	}
	return frame, nil
}
