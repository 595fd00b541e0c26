package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Maintenance job names.
const (
	jobDeepClean  = "deep-clean"
	jobRescan     = "manifest-rescan"
	jobRunTimeout = 2 * time.Minute
)

// JobInfo describes a registered maintenance job for external inspection.
type JobInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	LastRun  time.Time `json:"last_run,omitzero"`
	NextRun  time.Time `json:"next_run,omitzero"`
}

// maintenance is the orchestrator's cron scheduler. It carries the two
// background jobs the panel needs: a nightly deep clean against e-paper
// ghosting and a periodic plugin-manifest rescan.
type maintenance struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	schedules map[string]string
	logger    *slog.Logger
}

func newMaintenance(o *Orchestrator, deepCleanCron, rescanCron string, logger *slog.Logger) (*maintenance, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create maintenance scheduler: %w", err)
	}
	m := &maintenance{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		schedules: make(map[string]string),
		logger:    logger,
	}
	if deepCleanCron != "" {
		if err := m.addJob(jobDeepClean, deepCleanCron, o.deepClean); err != nil {
			return nil, err
		}
	}
	if rescanCron != "" {
		if err := m.addJob(jobRescan, rescanCron, o.rescanManifests); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *maintenance) addJob(name, cronExpr string, taskFn any, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("maintenance job already exists: %s", name)
	}
	j, err := m.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(taskFn, args...),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("create maintenance job %s: %w", name, err)
	}
	m.jobs[name] = j
	m.schedules[name] = cronExpr
	m.logger.Info("maintenance job registered", "name", name, "cron", cronExpr)
	return nil
}

func (m *maintenance) list() []JobInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]JobInfo, 0, len(m.jobs))
	for name, j := range m.jobs {
		info := JobInfo{
			ID:       j.ID().String(),
			Name:     name,
			Schedule: m.schedules[name],
		}
		if lr, err := j.LastRun(); err == nil {
			info.LastRun = lr
		}
		if nr, err := j.NextRun(); err == nil {
			info.NextRun = nr
		}
		infos = append(infos, info)
	}
	return infos
}

func (m *maintenance) start() {
	m.scheduler.Start()
	m.logger.Info("maintenance scheduler started", "jobs", len(m.jobs))
}

func (m *maintenance) stop() error {
	return m.scheduler.Shutdown()
}

// deepClean clears the panel to flush ghosting, then redraws the current
// content. Skipped while paused so a deliberately frozen panel stays put.
func (o *Orchestrator) deepClean() {
	if o.IsPaused() {
		o.logger.Info("deep clean skipped while paused")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobRunTimeout)
	defer cancel()

	if err := o.display.Clear(); err != nil {
		o.logger.Warn("deep clean clear failed", "error", err)
		return
	}
	if err := o.ForceRefresh(ctx); err != nil && !errors.Is(err, ErrNoContent) {
		o.logger.Warn("deep clean redraw failed", "error", err)
	}
}

// rescanManifests reloads plugin metadata from disk, picking up manifests
// dropped in without a filesystem event (e.g. over NFS).
func (o *Orchestrator) rescanManifests() {
	if _, err := o.registry.Reload(); err != nil {
		o.logger.Warn("manifest rescan failed", "error", err)
	}
}
