package orchestrator

import (
	"context"
	"fmt"

	"inkframe/internal/display"
)

// ForceRefresh regenerates and pushes a frame for the current content
// source immediately. It never disturbs the active worker: the worker's
// own cadence continues as if nothing happened. Concurrent calls collapse
// into a single render.
func (o *Orchestrator) ForceRefresh(ctx context.Context) error {
	_, err, _ := o.refreshes.Do("refresh", func() (any, error) {
		return nil, o.refresh(ctx)
	})
	return err
}

func (o *Orchestrator) refresh(ctx context.Context) error {
	cs := o.CurrentContentSource()
	if cs.IsEmpty() {
		return ErrNoContent
	}
	inst := *cs.Instance

	p, ok := o.registry.Get(inst.PluginID)
	if !ok {
		return fmt.Errorf("plugin %q has no implementation", inst.PluginID)
	}

	frame, err := p.GenerateImage(ctx, inst.Settings.Clone(), o.display.DeviceConfig())
	if err != nil {
		return fmt.Errorf("generate image: %w", err)
	}
	frame.Provenance = display.Provenance{
		PluginID:     inst.PluginID,
		InstanceID:   inst.ID,
		InstanceName: inst.Name,
		GeneratedAt:  o.clock.Now(),
	}
	if err := o.display.DisplayImage(ctx, frame); err != nil {
		return fmt.Errorf("display image: %w", err)
	}
	o.logger.Info("forced refresh", "plugin", inst.PluginID, "instance", inst.ID)
	return nil
}
