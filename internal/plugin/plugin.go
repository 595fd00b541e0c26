// Package plugin defines the content-plugin contract and the registry that
// loads plugin metadata from a directory tree.
//
// Implementations are compile-time: a factory table maps plugin IDs to
// constructors. On-disk manifests contribute metadata only (display name,
// version, settings schema), never code.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inkframe/internal/display"
)

// Settings is a plugin instance's opaque configuration.
// The core never interprets it beyond handing copies to the plugin.
type Settings map[string]any

// Clone returns a deep copy, so plugin mutation cannot leak back into a store.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// Sink is where a plugin pushes frames. The display controller implements
// it; tests substitute recorders.
type Sink interface {
	DisplayImage(ctx context.Context, frame display.Frame) error
}

// Plugin is the stable lifecycle contract the core relies on.
//
// ValidateSettings and GenerateImage must be pure with respect to core
// state (GenerateImage may do its own network I/O). The On* callbacks are
// best-effort: the stores swallow and log their errors.
type Plugin interface {
	// ValidateSettings checks a settings map. Called on create and update.
	ValidateSettings(settings Settings) error

	// GenerateImage renders one frame for the given settings and panel.
	GenerateImage(ctx context.Context, settings Settings, dev display.DeviceConfig) (display.Frame, error)

	// CacheTTL advises how long a generated frame stays fresh.
	// Zero means never cache: redraw each cycle.
	CacheTTL(settings Settings) time.Duration

	// OnEnable is called when an instance transitions to enabled.
	OnEnable(ctx context.Context, settings Settings) error

	// OnDisable is called when an instance transitions to disabled,
	// including on delete.
	OnDisable(ctx context.Context, settings Settings) error

	// OnSettingsChange is called after an instance's settings change.
	OnSettingsChange(ctx context.Context, old, new Settings) error
}

// ActiveRunner is the optional worker-body capability. Plugins that manage
// their own refresh cadence implement it; everyone else gets
// DefaultRunActive.
type ActiveRunner interface {
	// RunActive is the worker body: it owns the panel (through sink) for as
	// long as ctx is live and must observe ctx.Done() at least once per
	// minute of wall clock.
	RunActive(ctx context.Context, sink Sink, settings Settings, dev display.DeviceConfig, prov display.Provenance) error
}

// DefaultRunActive is the worker body for plugins without an ActiveRunner:
// generate one frame, push it, then hold the slot until cancelled.
func DefaultRunActive(ctx context.Context, p Plugin, sink Sink, settings Settings, dev display.DeviceConfig, prov display.Provenance) error {
	frame, err := p.GenerateImage(ctx, settings, dev)
	if err != nil {
		return fmt.Errorf("generate image: %w", err)
	}
	frame.Provenance = prov
	if err := sink.DisplayImage(ctx, frame); err != nil {
		return fmt.Errorf("display image: %w", err)
	}
	<-ctx.Done()
	return nil
}

// Run dispatches to the plugin's own RunActive when it has one, otherwise
// to DefaultRunActive.
func Run(ctx context.Context, p Plugin, sink Sink, settings Settings, dev display.DeviceConfig, prov display.Provenance) error {
	if ar, ok := p.(ActiveRunner); ok {
		return ar.RunActive(ctx, sink, settings, dev, prov)
	}
	return DefaultRunActive(ctx, p, sink, settings, dev, prov)
}

// Base provides no-op lifecycle callbacks and a zero cache TTL. Embed it so
// a plugin only implements what it cares about.
type Base struct{}

func (Base) CacheTTL(Settings) time.Duration { return 0 }

func (Base) OnEnable(context.Context, Settings) error { return nil }

func (Base) OnDisable(context.Context, Settings) error { return nil }

func (Base) OnSettingsChange(_ context.Context, _, _ Settings) error { return nil }

// ErrValidation marks settings rejected by a plugin's ValidateSettings.
var ErrValidation = errors.New("invalid settings")
