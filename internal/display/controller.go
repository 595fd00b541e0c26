package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"inkframe/internal/clock"
	"inkframe/internal/logging"
)

// ErrDriver wraps panel I/O failures so callers can distinguish them from
// validation or store errors.
var ErrDriver = errors.New("display driver error")

// Config holds controller construction parameters.
type Config struct {
	// Driver is the panel driver. Required.
	Driver Driver
	// Clock stamps push times. Required.
	Clock *clock.Service
	// MinPushInterval spaces out panel refreshes. Zero disables the guard.
	MinPushInterval time.Duration
	// Logger for structured logging.
	Logger *slog.Logger
}

// Controller is the single owner of the panel.
//
// DisplayImage is synchronous and serialized: a second call waits for the
// first to return. The push-interval guard additionally spaces refreshes so
// a misbehaving plugin cannot strobe an e-paper panel.
type Controller struct {
	driver  Driver
	clock   *clock.Service
	limiter *rate.Limiter
	logger  *slog.Logger

	mu    sync.Mutex
	state State
}

// NewController creates a Controller around a driver.
func NewController(cfg Config) *Controller {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinPushInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinPushInterval), 1)
	}
	return &Controller{
		driver:  cfg.Driver,
		clock:   cfg.Clock,
		limiter: limiter,
		logger:  logging.Default(cfg.Logger).With("component", "display"),
		state:   State{Status: StatusIdle},
	}
}

// DisplayImage pushes a frame to the panel.
//
// On driver error it increments the error count, transitions to the error
// status and returns a wrapped ErrDriver; the caller decides whether to
// retry. The panel is returned to sleep on every exit path.
func (c *Controller) DisplayImage(ctx context.Context, frame Frame) error {
	// Honor the push-interval guard before taking the panel mutex, so a
	// queued caller doesn't hold the panel while waiting out the spacing.
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push interval wait: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Status = StatusUpdating

	if err := c.driver.Wake(); err != nil {
		return c.fail("wake panel", err)
	}
	if err := c.driver.Render(frame); err != nil {
		return c.fail("render frame", err)
	}

	prov := frame.Provenance
	c.state.LastProvenance = &prov
	c.state.LastPushAt = c.clock.Now()

	c.sleepPanel()
	c.logger.Debug("frame pushed",
		"plugin", prov.PluginID,
		"instance", prov.InstanceID)
	return nil
}

// Clear blanks the panel.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Status = StatusUpdating
	if err := c.driver.Wake(); err != nil {
		return c.fail("wake panel", err)
	}
	if err := c.driver.Clear(); err != nil {
		return c.fail("clear panel", err)
	}
	c.sleepPanel()
	return nil
}

// Sleep explicitly powers the panel down.
func (c *Controller) Sleep() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.driver.Sleep(); err != nil {
		return c.fail("sleep panel", err)
	}
	c.state.Status = StatusSleeping
	return nil
}

// Wake explicitly powers the panel up.
func (c *Controller) Wake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.driver.Wake(); err != nil {
		return c.fail("wake panel", err)
	}
	c.state.Status = StatusIdle
	return nil
}

// fail records a driver error. Caller must hold c.mu.
// The panel is put to sleep best-effort even on the error path.
func (c *Controller) fail(op string, err error) error {
	c.state.ErrorCount++
	c.state.Status = StatusError
	if serr := c.driver.Sleep(); serr != nil {
		c.logger.Warn("failed to sleep panel after error", "error", serr)
	}
	c.logger.Error("display operation failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, ErrDriver, err)
}

// sleepPanel returns the panel to sleep after a successful write.
// Caller must hold c.mu.
func (c *Controller) sleepPanel() {
	if err := c.driver.Sleep(); err != nil {
		c.logger.Warn("failed to sleep panel", "error", err)
		c.state.Status = StatusError
		c.state.ErrorCount++
		return
	}
	c.state.Status = StatusSleeping
}

// State returns a copy of the controller's view of the panel.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if c.state.LastProvenance != nil {
		prov := *c.state.LastProvenance
		st.LastProvenance = &prov
	}
	return st
}

// DeviceConfig reports the attached panel's dimensions and mode.
func (c *Controller) DeviceConfig() DeviceConfig {
	return c.driver.Config()
}

// Preview returns the last rendered frame if the driver exposes one.
func (c *Controller) Preview() ([]byte, string, bool) {
	if p, ok := c.driver.(Previewer); ok {
		return p.Preview()
	}
	return nil, "", false
}

// SelfTest runs the driver's hardware test if it has one.
func (c *Controller) SelfTest() error {
	st, ok := c.driver.(SelfTester)
	if !ok {
		return errors.New("driver has no self test")
	}
	return st.SelfTest()
}
