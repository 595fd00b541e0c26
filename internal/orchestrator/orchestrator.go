// Package orchestrator couples the weekly schedule to the display.
//
// It evaluates the schedule once per hour (plus on explicit nudges), keeps
// at most one active-plugin worker alive process-wide, and routes every
// frame through the single-owner display controller. Handovers between
// workers are serialized: a new worker is spawned only after the previous
// one has been stopped and joined (or detached after a bounded wait).
package orchestrator

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"inkframe/internal/clock"
	"inkframe/internal/display"
	"inkframe/internal/instance"
	"inkframe/internal/logging"
	"inkframe/internal/notify"
	"inkframe/internal/plugin"
	"inkframe/internal/schedule"
)

var (
	// ErrAlreadyRunning is returned by Start on a running orchestrator.
	ErrAlreadyRunning = errors.New("orchestrator already running")
	// ErrNotRunning is returned by Stop on a stopped orchestrator.
	ErrNotRunning = errors.New("orchestrator not running")
	// ErrNoContent is returned by ForceRefresh when no slot resolves.
	ErrNoContent = errors.New("no content scheduled for the current slot")
)

// defaultJoinTimeout bounds how long a handover waits for the outgoing
// worker. A worker that misses it is detached; the display mutex keeps a
// late frame harmless.
const defaultJoinTimeout = 2 * time.Second

// sleepChunk is the longest uninterruptible stretch of the main loop's
// inter-hour sleep, so Stop and Resume are prompt.
const sleepChunk = 10 * time.Second

// Config holds orchestrator construction parameters.
type Config struct {
	Clock     *clock.Service
	Schedule  *schedule.Store
	Instances *instance.Store
	Registry  *plugin.Registry
	Display   *display.Controller
	Logger    *slog.Logger

	// JoinTimeout bounds worker joins during handover. Zero means the
	// 2 s default.
	JoinTimeout time.Duration

	// DeepCleanCron schedules the nightly full panel clear + redraw.
	// Empty disables the job.
	DeepCleanCron string
	// RescanCron schedules periodic plugin-manifest rescans.
	// Empty disables the job.
	RescanCron string
}

// worker is the handle to the single active-plugin task.
type worker struct {
	instanceID string
	cancel     func()
	done       chan struct{}
}

// Orchestrator drives the panel from the weekly schedule.
type Orchestrator struct {
	clock     *clock.Service
	schedule  *schedule.Store
	instances *instance.Store
	registry  *plugin.Registry
	display   *display.Controller
	logger    *slog.Logger

	joinTimeout time.Duration
	wake        *notify.Signal
	refreshes   singleflight.Group
	maint       *maintenance

	// handoverMu serializes switchActive and final stops, so workers can
	// never overlap.
	handoverMu sync.Mutex

	mu               sync.Mutex
	running          bool
	paused           bool
	cancelLoop       func()
	loopDone         chan struct{}
	active           *worker
	currentItemStart time.Time

	// resolveWarned tracks slots already reported as unresolvable, so a
	// dangling target logs once, not every tick.
	resolveWarned map[string]bool
}

// New creates an Orchestrator. It does not start the loop; call Start.
func New(cfg Config) (*Orchestrator, error) {
	logger := logging.Default(cfg.Logger).With("component", "orchestrator")
	o := &Orchestrator{
		clock:         cfg.Clock,
		schedule:      cfg.Schedule,
		instances:     cfg.Instances,
		registry:      cfg.Registry,
		display:       cfg.Display,
		logger:        logger,
		joinTimeout:   cfg.JoinTimeout,
		wake:          notify.NewSignal(),
		resolveWarned: make(map[string]bool),
	}
	if o.joinTimeout <= 0 {
		o.joinTimeout = defaultJoinTimeout
	}

	maint, err := newMaintenance(o, cfg.DeepCleanCron, cfg.RescanCron, logger)
	if err != nil {
		return nil, err
	}
	o.maint = maint
	return o, nil
}

// IsRunning reports whether the main loop is live.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Pause stops the loop from issuing handovers. A plugin already active
// remains active; evaluation for status continues.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	o.logger.Info("orchestrator paused")
}

// Resume clears the pause flag and triggers an immediate evaluation.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	o.wake.Notify()
	o.logger.Info("orchestrator resumed")
}

// IsPaused reports whether handovers are suspended.
func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// Nudge wakes the main loop for an immediate re-evaluation. The HTTP layer
// calls it after schedule or instance mutations so a change does not wait
// for the next hour boundary.
func (o *Orchestrator) Nudge() {
	o.wake.Notify()
}

// SourceSummary is the status view of the current content source.
type SourceSummary struct {
	Type            string `json:"type"`
	ID              string `json:"id,omitempty"`
	Name            string `json:"name,omitempty"`
	PluginID        string `json:"plugin_id,omitempty"`
	InstanceID      string `json:"instance_id,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// Status is the orchestrator's external state report.
type Status struct {
	Running          bool               `json:"running"`
	Paused           bool               `json:"paused"`
	HasContent       bool               `json:"has_content"`
	ActiveInstanceID string             `json:"active_instance_id,omitempty"`
	Source           *SourceSummary     `json:"source,omitempty"`
	CurrentSlot      *schedule.TimeSlot `json:"current_slot,omitempty"`
	CurrentItemStart time.Time          `json:"current_item_start,omitzero"`
	Display          display.State      `json:"display"`
}

// Status reports the loop state, the current content source, the covering
// slot if any, and the display state.
func (o *Orchestrator) Status() Status {
	cs := o.CurrentContentSource()

	o.mu.Lock()
	st := Status{
		Running:          o.running,
		Paused:           o.paused,
		HasContent:       !cs.IsEmpty(),
		CurrentItemStart: o.currentItemStart,
	}
	if o.active != nil {
		st.ActiveInstanceID = o.active.instanceID
	}
	o.mu.Unlock()

	if !cs.IsEmpty() {
		st.Source = &SourceSummary{
			Type:            cs.SourceType,
			ID:              cs.SourceID,
			Name:            cs.SourceName,
			PluginID:        cs.Instance.PluginID,
			InstanceID:      cs.Instance.ID,
			DurationSeconds: int(cs.Duration / time.Second),
		}
	} else {
		st.Source = &SourceSummary{Type: cs.SourceType}
	}
	if slot, ok := o.schedule.GetCurrentSlot(); ok {
		st.CurrentSlot = &slot
	}
	st.Display = o.display.State()
	return st
}

// Jobs lists the registered maintenance jobs.
func (o *Orchestrator) Jobs() []JobInfo {
	return o.maint.list()
}
