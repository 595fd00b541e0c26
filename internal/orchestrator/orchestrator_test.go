package orchestrator_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"inkframe/internal/clock"
	"inkframe/internal/display"
	"inkframe/internal/instance"
	"inkframe/internal/orchestrator"
	"inkframe/internal/plugin"
	"inkframe/internal/schedule"
)

// monday10 is a Monday (grid day 0) at 10:00:00 UTC.
var monday10 = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

// testPlugin is a controllable plugin with its own worker body so tests can
// observe worker concurrency and cancellation.
type testPlugin struct {
	plugin.Base
	id string

	// stubborn, when non-nil, makes RunActive ignore cancellation and block
	// on this channel instead.
	stubborn chan struct{}

	running    atomic.Int32
	maxRunning atomic.Int32

	mu        sync.Mutex
	runs      int
	generates int
}

func (p *testPlugin) ValidateSettings(plugin.Settings) error { return nil }

func (p *testPlugin) GenerateImage(_ context.Context, _ plugin.Settings, _ display.DeviceConfig) (display.Frame, error) {
	p.mu.Lock()
	p.generates++
	p.mu.Unlock()
	return display.Frame{Image: []byte(p.id), Format: "image/png"}, nil
}

func (p *testPlugin) RunActive(ctx context.Context, sink plugin.Sink, settings plugin.Settings, dev display.DeviceConfig, prov display.Provenance) error {
	n := p.running.Add(1)
	defer p.running.Add(-1)
	for {
		max := p.maxRunning.Load()
		if n <= max || p.maxRunning.CompareAndSwap(max, n) {
			break
		}
	}

	p.mu.Lock()
	p.runs++
	p.mu.Unlock()

	frame, err := p.GenerateImage(ctx, settings, dev)
	if err != nil {
		return err
	}
	frame.Provenance = prov
	if err := sink.DisplayImage(ctx, frame); err != nil {
		return err
	}
	if p.stubborn != nil {
		<-p.stubborn
		return nil
	}
	<-ctx.Done()
	return nil
}

func (p *testPlugin) runCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

func (p *testPlugin) generateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generates
}

// recordingDriver records rendered frames and clears.
type recordingDriver struct {
	mu     sync.Mutex
	frames []display.Frame
	clears int
}

func (d *recordingDriver) Render(f display.Frame) error {
	d.mu.Lock()
	d.frames = append(d.frames, f)
	d.mu.Unlock()
	return nil
}

func (d *recordingDriver) Clear() error {
	d.mu.Lock()
	d.clears++
	d.mu.Unlock()
	return nil
}

func (d *recordingDriver) Sleep() error { return nil }
func (d *recordingDriver) Wake() error  { return nil }
func (d *recordingDriver) Config() display.DeviceConfig {
	return display.DeviceConfig{Width: 800, Height: 480, Mode: "mono"}
}

func (d *recordingDriver) frameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func (d *recordingDriver) lastInstance() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return ""
	}
	return d.frames[len(d.frames)-1].Provenance.InstanceID
}

type fixture struct {
	fake   *clockwork.FakeClock
	clk    *clock.Service
	sched  *schedule.Store
	insts  *instance.Store
	driver *recordingDriver
	orch   *orchestrator.Orchestrator
}

func newFixture(t *testing.T, start time.Time, plugins map[string]*testPlugin) *fixture {
	t.Helper()

	fake := clockwork.NewFakeClockAt(start)
	clk, err := clock.NewWithClock("UTC", fake)
	if err != nil {
		t.Fatal(err)
	}

	factories := make(map[string]plugin.Factory, len(plugins))
	for id, tp := range plugins {
		factories[id] = func(*slog.Logger) (plugin.Plugin, error) { return tp, nil }
	}
	reg := plugin.NewRegistry(factories, nil)
	dir := t.TempDir()
	if _, err := reg.LoadAll(filepath.Join(dir, "plugins.d")); err != nil {
		t.Fatal(err)
	}

	insts := instance.NewStore(filepath.Join(dir, "plugin_instances.json"), clk, reg, nil)
	sched := schedule.NewStore(filepath.Join(dir, "schedules.json"), clk, nil)
	driver := &recordingDriver{}
	ctrl := display.NewController(display.Config{Driver: driver, Clock: clk})

	orch, err := orchestrator.New(orchestrator.Config{
		Clock:       clk,
		Schedule:    sched,
		Instances:   insts,
		Registry:    reg,
		Display:     ctrl,
		JoinTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{fake: fake, clk: clk, sched: sched, insts: insts, driver: driver, orch: orch}
}

// createScheduled registers an instance and assigns it the given slot.
func (f *fixture) createScheduled(t *testing.T, pluginID string, day, hour int) instance.PluginInstance {
	t.Helper()
	pi, err := f.insts.Create(context.Background(), pluginID, pluginID+"-inst", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sched.SetSlot(day, hour, "", pi.ID); err != nil {
		t.Fatal(err)
	}
	return pi
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.orch.Stop() })
}

// waitFor polls cond on the real clock; fake time stands still meanwhile.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, monday10, nil)

	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.orch.Start(context.Background()); !errors.Is(err, orchestrator.ErrAlreadyRunning) {
		t.Fatalf("second Start: got %v, want ErrAlreadyRunning", err)
	}
	if err := f.orch.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.orch.Stop(); !errors.Is(err, orchestrator.ErrNotRunning) {
		t.Fatalf("second Stop: got %v, want ErrNotRunning", err)
	}
}

func TestContentSourceResolution(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	f := newFixture(t, monday10, map[string]*testPlugin{"alpha": pa})

	if cs := f.orch.CurrentContentSource(); !cs.IsEmpty() {
		t.Fatal("empty schedule should resolve to no content")
	}

	pi := f.createScheduled(t, "alpha", 0, 10)
	cs := f.orch.CurrentContentSource()
	if cs.IsEmpty() {
		t.Fatal("scheduled slot should resolve")
	}
	if cs.InstanceID() != pi.ID {
		t.Errorf("resolved instance: got %q, want %q", cs.InstanceID(), pi.ID)
	}
	if cs.Duration != time.Hour {
		t.Errorf("duration at top of hour: got %v, want 1h", cs.Duration)
	}

	// A disabled target resolves to nothing.
	if err := f.insts.Disable(context.Background(), pi.ID); err != nil {
		t.Fatal(err)
	}
	if cs := f.orch.CurrentContentSource(); !cs.IsEmpty() {
		t.Fatal("disabled instance should resolve to no content")
	}

	// A deleted target resolves to nothing; the slot itself survives.
	if err := f.insts.Delete(context.Background(), pi.ID); err != nil {
		t.Fatal(err)
	}
	if cs := f.orch.CurrentContentSource(); !cs.IsEmpty() {
		t.Fatal("deleted instance should resolve to no content")
	}
	if _, ok, _ := f.sched.GetSlot(0, 10); !ok {
		t.Fatal("slot should survive instance deletion")
	}
}

func TestContentSourceDurationFloor(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	// 30 seconds before the hour boundary.
	f := newFixture(t, monday10.Add(59*time.Minute+30*time.Second), map[string]*testPlugin{"alpha": pa})
	f.createScheduled(t, "alpha", 0, 10)

	cs := f.orch.CurrentContentSource()
	if cs.Duration != time.Minute {
		t.Errorf("duration near boundary: got %v, want the 1m floor", cs.Duration)
	}
}

func TestStartDisplaysScheduledContent(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	f := newFixture(t, monday10, map[string]*testPlugin{"alpha": pa})
	pi := f.createScheduled(t, "alpha", 0, 10)

	f.start(t)
	waitFor(t, func() bool { return f.driver.frameCount() >= 1 }, "no frame pushed after start")

	if got := f.driver.lastInstance(); got != pi.ID {
		t.Errorf("frame provenance: got %q, want %q", got, pi.ID)
	}
	st := f.orch.Status()
	if !st.Running || st.ActiveInstanceID != pi.ID {
		t.Errorf("status: running=%v active=%q, want running with %q", st.Running, st.ActiveInstanceID, pi.ID)
	}
}

// Crossing an hour boundary hands the panel from one instance to the next,
// with never more than one worker alive.
func TestHourBoundaryHandover(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	pb := &testPlugin{id: "beta"}
	start := monday10.Add(59*time.Minute + 55*time.Second)
	f := newFixture(t, start, map[string]*testPlugin{"alpha": pa, "beta": pb})
	f.createScheduled(t, "alpha", 0, 10)
	pib := f.createScheduled(t, "beta", 0, 11)

	f.start(t)
	waitFor(t, func() bool { return pa.runCount() == 1 }, "alpha never started")

	// Let the loop reach its sleep, then push it across the boundary.
	f.fake.BlockUntil(1)
	f.fake.Advance(5 * time.Second)

	waitFor(t, func() bool { return pb.runCount() == 1 }, "beta never started after the boundary")
	waitFor(t, func() bool { return pa.running.Load() == 0 }, "alpha still running after handover")

	if got := f.driver.lastInstance(); got != pib.ID {
		t.Errorf("panel shows %q, want %q", got, pib.ID)
	}
	if pa.maxRunning.Load() > 1 || pb.maxRunning.Load() > 1 {
		t.Error("more than one worker of a plugin ran concurrently")
	}
}

// An unassigned next hour stops the worker and leaves the last frame up.
func TestEmptySlotKeepsLastFrame(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	start := monday10.Add(59*time.Minute + 55*time.Second)
	f := newFixture(t, start, map[string]*testPlugin{"alpha": pa})
	pia := f.createScheduled(t, "alpha", 0, 10)

	f.start(t)
	waitFor(t, func() bool { return pa.runCount() == 1 }, "alpha never started")

	f.fake.BlockUntil(1)
	f.fake.Advance(5 * time.Second)

	waitFor(t, func() bool { return f.orch.Status().ActiveInstanceID == "" }, "worker not stopped on empty slot")
	if f.driver.clears != 0 {
		t.Error("panel should not be cleared on an empty slot")
	}
	if got := f.driver.lastInstance(); got != pia.ID {
		t.Errorf("panel shows %q, want alpha's last frame", got)
	}
}

// A schedule change plus a nudge takes effect without waiting for the hour.
func TestNudgeReevaluatesImmediately(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	pb := &testPlugin{id: "beta"}
	f := newFixture(t, monday10, map[string]*testPlugin{"alpha": pa, "beta": pb})
	f.createScheduled(t, "alpha", 0, 10)

	f.start(t)
	waitFor(t, func() bool { return pa.runCount() == 1 }, "alpha never started")

	pib, err := f.insts.Create(context.Background(), "beta", "beta-inst", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sched.SetSlot(0, 10, "", pib.ID); err != nil {
		t.Fatal(err)
	}

	// One nudge must be enough, even if it lands while the loop is busy
	// evaluating: the wake signal holds it until the next wait.
	f.orch.Nudge()
	waitFor(t, func() bool { return pb.runCount() == 1 }, "beta never started after nudge")
	if got := f.orch.Status().ActiveInstanceID; got != pib.ID {
		t.Errorf("active instance: got %q, want %q", got, pib.ID)
	}
}

// Pause freezes handovers; the active plugin keeps running. Resume catches
// up with the schedule.
func TestPauseAndResume(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	pb := &testPlugin{id: "beta"}
	f := newFixture(t, monday10, map[string]*testPlugin{"alpha": pa, "beta": pb})
	pia := f.createScheduled(t, "alpha", 0, 10)

	f.start(t)
	waitFor(t, func() bool { return pa.runCount() == 1 }, "alpha never started")

	f.orch.Pause()
	pib, err := f.insts.Create(context.Background(), "beta", "beta-inst", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sched.SetSlot(0, 10, "", pib.ID); err != nil {
		t.Fatal(err)
	}
	f.orch.Nudge()

	time.Sleep(50 * time.Millisecond)
	if got := f.orch.Status().ActiveInstanceID; got != pia.ID {
		t.Fatalf("paused orchestrator handed over: active %q", got)
	}
	if pa.running.Load() != 1 {
		t.Fatal("pause should not stop the active worker")
	}

	f.orch.Resume()
	waitFor(t, func() bool { return pb.runCount() == 1 }, "beta never started after resume")
}

// ForceRefresh redraws through the plugin without restarting its worker.
func TestForceRefreshLeavesWorkerAlone(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	f := newFixture(t, monday10, map[string]*testPlugin{"alpha": pa})
	f.createScheduled(t, "alpha", 0, 10)

	f.start(t)
	waitFor(t, func() bool { return pa.runCount() == 1 }, "alpha never started")
	before := f.driver.frameCount()

	if err := f.orch.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if pa.runCount() != 1 {
		t.Errorf("worker restarted: runs=%d", pa.runCount())
	}
	if pa.generateCount() != 2 {
		t.Errorf("generates: got %d, want 2", pa.generateCount())
	}
	if f.driver.frameCount() != before+1 {
		t.Errorf("frames: got %d, want %d", f.driver.frameCount(), before+1)
	}
}

func TestForceRefreshNoContent(t *testing.T) {
	f := newFixture(t, monday10, nil)
	if err := f.orch.ForceRefresh(context.Background()); !errors.Is(err, orchestrator.ErrNoContent) {
		t.Fatalf("got %v, want ErrNoContent", err)
	}
}

// A worker that ignores cancellation is detached after the join timeout and
// the handover completes anyway.
func TestStubbornWorkerIsDetached(t *testing.T) {
	pa := &testPlugin{id: "alpha", stubborn: make(chan struct{})}
	pb := &testPlugin{id: "beta"}
	f := newFixture(t, monday10, map[string]*testPlugin{"alpha": pa, "beta": pb})
	f.createScheduled(t, "alpha", 0, 10)
	defer close(pa.stubborn)

	f.start(t)
	waitFor(t, func() bool { return pa.runCount() == 1 }, "alpha never started")

	pib, err := f.insts.Create(context.Background(), "beta", "beta-inst", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sched.SetSlot(0, 10, "", pib.ID); err != nil {
		t.Fatal(err)
	}

	f.orch.Nudge()
	waitFor(t, func() bool { return pb.runCount() == 1 }, "handover blocked by stubborn worker")
	if pa.running.Load() != 1 {
		t.Error("stubborn worker should still be running detached")
	}
	if got := f.orch.Status().ActiveInstanceID; got != pib.ID {
		t.Errorf("active instance: got %q, want %q", got, pib.ID)
	}
}

func TestStatusEmptySchedule(t *testing.T) {
	f := newFixture(t, monday10, nil)
	st := f.orch.Status()
	if st.Running || st.HasContent {
		t.Errorf("idle status: running=%v has_content=%v", st.Running, st.HasContent)
	}
	if st.Source == nil || st.Source.Type != orchestrator.SourceNone {
		t.Errorf("source type: got %+v, want %q", st.Source, orchestrator.SourceNone)
	}
	if st.CurrentSlot != nil {
		t.Error("empty schedule should report no current slot")
	}
}

func TestMaintenanceJobsRegistered(t *testing.T) {
	pa := &testPlugin{id: "alpha"}
	f := newFixture(t, monday10, map[string]*testPlugin{"alpha": pa})

	orch, err := orchestrator.New(orchestrator.Config{
		Clock:         f.clk,
		Schedule:      f.sched,
		Instances:     f.insts,
		Registry:      plugin.NewRegistry(nil, nil),
		Display:       display.NewController(display.Config{Driver: f.driver, Clock: f.clk}),
		DeepCleanCron: "0 4 * * *",
		RescanCron:    "0 */6 * * *",
	})
	if err != nil {
		t.Fatal(err)
	}

	jobs := orch.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs: got %d, want 2", len(jobs))
	}
	names := map[string]bool{}
	for _, j := range jobs {
		names[j.Name] = true
	}
	if !names["deep-clean"] || !names["manifest-rescan"] {
		t.Errorf("job names: got %v", names)
	}
}
