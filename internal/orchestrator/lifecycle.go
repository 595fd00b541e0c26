package orchestrator

import (
	"context"
	"time"

	"inkframe/internal/display"
	"inkframe/internal/plugin"
)

// Start launches the main loop and the maintenance scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancelLoop = cancel
	o.loopDone = make(chan struct{})
	done := o.loopDone
	o.mu.Unlock()

	o.maint.start()
	go o.run(loopCtx, done)
	o.logger.Info("orchestrator started")
	return nil
}

// Stop cancels the loop, waits for it, then stops the active worker and the
// maintenance scheduler.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.running = false
	cancel := o.cancelLoop
	done := o.loopDone
	o.mu.Unlock()

	cancel()
	<-done

	o.handoverMu.Lock()
	o.stopActive()
	o.handoverMu.Unlock()

	if err := o.maint.stop(); err != nil {
		o.logger.Warn("maintenance scheduler shutdown failed", "error", err)
	}
	o.logger.Info("orchestrator stopped")
	return nil
}

// run is the main loop: evaluate, then sleep until the next hour boundary
// or an earlier wake-up.
func (o *Orchestrator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		o.evaluate(ctx)
		if !o.sleepUntilBoundary(ctx) {
			return
		}
	}
}

// evaluate resolves the current content source and hands over when the
// resolved instance differs from the active one. Paused, it only records
// the resolution.
func (o *Orchestrator) evaluate(ctx context.Context) {
	cs := o.CurrentContentSource()

	o.mu.Lock()
	paused := o.paused
	activeID := ""
	if o.active != nil {
		activeID = o.active.instanceID
	}
	o.mu.Unlock()

	if paused {
		return
	}
	if cs.InstanceID() == activeID {
		return
	}
	o.switchActive(ctx, cs)
}

// sleepUntilBoundary blocks until the next hour boundary, a wake-up signal,
// or cancellation. It sleeps in short chunks so cancellation is prompt
// regardless of the clock backend. Returns false when ctx is done.
func (o *Orchestrator) sleepUntilBoundary(ctx context.Context) bool {
	remaining := time.Duration(o.clock.SecondsUntilNextHour()) * time.Second
	for remaining > 0 {
		chunk := remaining
		if chunk > sleepChunk {
			chunk = sleepChunk
		}
		select {
		case <-ctx.Done():
			return false
		case <-o.wake.C():
			return true
		case <-o.clock.After(chunk):
			remaining -= chunk
		}
	}
	return true
}

// switchActive stops the current worker and starts one for the new source.
// An empty source just stops; the previous frame stays on the panel.
func (o *Orchestrator) switchActive(ctx context.Context, cs ContentSource) {
	o.handoverMu.Lock()
	defer o.handoverMu.Unlock()

	o.stopActive()

	if cs.IsEmpty() {
		o.logger.Info("no content for current slot, panel keeps last frame")
		return
	}

	inst := *cs.Instance
	p, ok := o.registry.Get(inst.PluginID)
	if !ok {
		o.logger.Warn("scheduled plugin has no implementation",
			"plugin", inst.PluginID, "instance", inst.ID)
		return
	}

	// The worker gets its own context: it outlives a single evaluation and
	// dies only on handover or Stop.
	wctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		instanceID: inst.ID,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	prov := display.Provenance{
		PluginID:     inst.PluginID,
		InstanceID:   inst.ID,
		InstanceName: inst.Name,
		GeneratedAt:  o.clock.Now(),
	}
	dev := o.display.DeviceConfig()
	settings := inst.Settings

	o.mu.Lock()
	o.active = w
	o.currentItemStart = o.clock.Now()
	o.mu.Unlock()

	go func() {
		defer close(w.done)
		err := plugin.Run(wctx, p, o.display, settings, dev, prov)
		if err != nil && wctx.Err() == nil {
			o.logger.Error("active plugin failed",
				"plugin", inst.PluginID, "instance", inst.ID, "error", err)
		}
	}()

	o.logger.Info("active plugin started",
		"plugin", inst.PluginID, "instance", inst.ID, "name", inst.Name,
		"duration", cs.Duration)
}

// stopActive cancels the active worker and waits up to joinTimeout for it.
// A worker that does not stop in time is detached with a warning; the
// display mutex keeps any late push harmless. Caller holds handoverMu.
func (o *Orchestrator) stopActive() {
	o.mu.Lock()
	w := o.active
	o.active = nil
	o.mu.Unlock()
	if w == nil {
		return
	}

	w.cancel()
	select {
	case <-w.done:
		o.logger.Debug("active plugin stopped", "instance", w.instanceID)
	case <-time.After(o.joinTimeout):
		o.logger.Warn("active plugin ignored stop, detaching",
			"instance", w.instanceID, "timeout", o.joinTimeout)
	}
}
