// Package display owns the boundary to the physical panel.
//
// The Controller is the only writer to the panel. Frame pushes are
// serialized by its mutex regardless of who calls: the active worker, a
// force refresh, or a maintenance job. Electronic paper can be damaged by
// being left powered, so the controller returns the panel to sleep after
// every push and after every driver error.
package display

import "time"

// Status describes what the panel is currently doing.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusUpdating Status = "updating"
	StatusSleeping Status = "sleeping"
	StatusError    Status = "error"
)

// DeviceConfig describes the panel the driver is attached to.
type DeviceConfig struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Rotation int    `json:"rotation"`
	Mode     string `json:"mode"` // "mono", "gray16" or "color"
}

// Provenance identifies what produced a frame, so the display layer can
// report what is on-screen.
type Provenance struct {
	PluginID     string    `json:"plugin_id"`
	InstanceID   string    `json:"instance_id"`
	InstanceName string    `json:"instance_name,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Frame is an opaque rendered image plus its provenance.
type Frame struct {
	Image      []byte
	Format     string // e.g. "image/png"
	Provenance Provenance
}

// State is the controller's singleton view of the panel.
type State struct {
	Status         Status      `json:"status"`
	LastProvenance *Provenance `json:"last_provenance,omitempty"`
	LastPushAt     time.Time   `json:"last_push_at,omitzero"`
	ErrorCount     int         `json:"error_count"`
}

// Driver is the required base contract for panel drivers.
// Implementations talk to the hardware; the core never does.
type Driver interface {
	// Render pushes a frame to the panel. Synchronous: it returns when the
	// panel has finished refreshing or the write failed.
	Render(frame Frame) error
	// Clear blanks the panel.
	Clear() error
	// Sleep powers the panel down to a safe state.
	Sleep() error
	// Wake powers the panel back up for the next write.
	Wake() error
	// Config reports panel dimensions and color mode.
	Config() DeviceConfig
}

// Previewer is an optional driver capability: a copy of the last rendered
// frame for the HTTP preview endpoint.
type Previewer interface {
	Preview() (data []byte, format string, ok bool)
}

// SelfTester is an optional driver capability: a hardware test pattern.
type SelfTester interface {
	SelfTest() error
}
