package display

import "sync"

// NullDriver is the built-in panel-less driver. It accepts every frame,
// keeps the last one for preview, and is the default on hosts without
// panel hardware (development, CI).
type NullDriver struct {
	cfg DeviceConfig

	mu    sync.Mutex
	last  []byte
	fmt   string
	slept bool
}

// NewNullDriver creates a NullDriver with the given panel geometry.
func NewNullDriver(cfg DeviceConfig) *NullDriver {
	if cfg.Width == 0 {
		cfg.Width = 800
	}
	if cfg.Height == 0 {
		cfg.Height = 480
	}
	if cfg.Mode == "" {
		cfg.Mode = "mono"
	}
	return &NullDriver{cfg: cfg}
}

func (d *NullDriver) Render(frame Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = append([]byte(nil), frame.Image...)
	d.fmt = frame.Format
	return nil
}

func (d *NullDriver) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = nil
	d.fmt = ""
	return nil
}

func (d *NullDriver) Sleep() error {
	d.mu.Lock()
	d.slept = true
	d.mu.Unlock()
	return nil
}

func (d *NullDriver) Wake() error {
	d.mu.Lock()
	d.slept = false
	d.mu.Unlock()
	return nil
}

func (d *NullDriver) Config() DeviceConfig { return d.cfg }

// Preview implements the optional Previewer capability.
func (d *NullDriver) Preview() ([]byte, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil, "", false
	}
	return append([]byte(nil), d.last...), d.fmt, true
}
