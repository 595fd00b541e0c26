package orchestrator

import (
	"time"

	"inkframe/internal/instance"
)

// Source types reported by ContentSource and Status.
const (
	SourceSchedule = "schedule"
	SourceNone     = "none"
)

// minSlotDuration is the floor for a resolved slot's remaining time. A
// resolution just before the hour boundary still gets a full minute, so a
// slow e-paper refresh is never scheduled into a sliver.
const minSlotDuration = time.Minute

// ContentSource is what should be on the panel right now.
type ContentSource struct {
	// Instance is nil when nothing is scheduled or the target does not
	// resolve to an enabled instance.
	Instance   *instance.PluginInstance
	Duration   time.Duration
	SourceType string
	SourceID   string
	SourceName string
}

// IsEmpty reports whether no displayable content resolved.
func (cs ContentSource) IsEmpty() bool { return cs.Instance == nil }

// InstanceID returns the resolved instance id, or "" when empty.
func (cs ContentSource) InstanceID() string {
	if cs.Instance == nil {
		return ""
	}
	return cs.Instance.ID
}

// CurrentContentSource resolves the schedule for the current local day and
// hour. The chain is slot → instance → enabled; any broken link yields an
// empty source. Duration is the time remaining in the hour, floored at one
// minute.
func (o *Orchestrator) CurrentContentSource() ContentSource {
	empty := ContentSource{SourceType: SourceNone}

	slot, ok := o.schedule.GetCurrentSlot()
	if !ok {
		return empty
	}

	key := slot.Key() + "/" + slot.TargetID
	inst, ok := o.instances.Get(slot.TargetID)
	if !ok {
		o.warnOnce(key, "slot targets a deleted instance", slot)
		return empty
	}
	if !inst.Enabled {
		o.warnOnce(key, "slot targets a disabled instance", slot)
		return empty
	}
	o.clearWarn(key)

	d := time.Duration(o.clock.SecondsUntilNextHour()) * time.Second
	if d < minSlotDuration {
		d = minSlotDuration
	}
	return ContentSource{
		Instance:   &inst,
		Duration:   d,
		SourceType: SourceSchedule,
		SourceID:   slot.Key(),
		SourceName: inst.Name,
	}
}

func (o *Orchestrator) warnOnce(key, msg string, slot any) {
	o.mu.Lock()
	seen := o.resolveWarned[key]
	o.resolveWarned[key] = true
	o.mu.Unlock()
	if !seen {
		o.logger.Warn(msg, "slot", slot)
	}
}

func (o *Orchestrator) clearWarn(key string) {
	o.mu.Lock()
	delete(o.resolveWarned, key)
	o.mu.Unlock()
}
