// Package schedule owns the weekly 7×24 content grid.
//
// The store is the only mutator of TimeSlot records. Every mutation applies
// to the in-memory map first, then persists; a failed save restores the
// pre-call map so memory and disk never disagree.
package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"inkframe/internal/clock"
	"inkframe/internal/kvfile"
	"inkframe/internal/logging"
)

// TargetInstance is the only recognized slot target type.
const TargetInstance = "instance"

var (
	// ErrInvalidSlot is returned for day or hour outside the weekly grid.
	ErrInvalidSlot = errors.New("slot out of range: day must be 0-6, hour 0-23")
	// ErrInvalidTarget is returned for an unrecognized target type.
	ErrInvalidTarget = errors.New("unknown slot target type")
)

// TimeSlot assigns a target to one (day, hour) cell. Day 0 is Monday.
type TimeSlot struct {
	Day        int    `json:"day"`
	Hour       int    `json:"hour"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

// Key returns the canonical "<day>-<hour>" form used on disk and in the API.
func (s TimeSlot) Key() string {
	return fmt.Sprintf("%d-%d", s.Day, s.Hour)
}

type slotKey struct {
	day, hour int
}

// SlotTarget is the persisted per-slot payload.
type SlotTarget struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

// fileState is the on-disk shape of schedules.json.
type fileState struct {
	Slots       map[string]SlotTarget `json:"slots"`
	LastUpdated time.Time             `json:"last_updated"`
}

// Store holds and persists up to 168 slot assignments.
type Store struct {
	path   string
	clock  *clock.Service
	logger *slog.Logger

	mu    sync.Mutex
	slots map[slotKey]TimeSlot
}

// NewStore creates a Store persisted at path, loading any existing state.
// A missing or damaged file starts an empty schedule.
func NewStore(path string, clk *clock.Service, logger *slog.Logger) *Store {
	s := &Store{
		path:   path,
		clock:  clk,
		logger: logging.Default(logger).With("component", "schedule"),
		slots:  make(map[slotKey]TimeSlot),
	}
	s.load()
	return s
}

func (s *Store) load() {
	var state fileState
	if !kvfile.Load(s.path, &state) {
		return
	}
	for key, target := range state.Slots {
		var day, hour int
		if _, err := fmt.Sscanf(key, "%d-%d", &day, &hour); err != nil {
			s.logger.Warn("skipping unparseable slot key", "key", key)
			continue
		}
		if !validSlot(day, hour) {
			s.logger.Warn("skipping out-of-range slot", "key", key)
			continue
		}
		s.slots[slotKey{day, hour}] = TimeSlot{
			Day:        day,
			Hour:       hour,
			TargetType: target.TargetType,
			TargetID:   target.TargetID,
		}
	}
	s.logger.Info("loaded schedule", "slots", len(s.slots))
}

// save persists the current map. Caller must hold s.mu.
func (s *Store) save() error {
	state := fileState{
		Slots:       make(map[string]SlotTarget, len(s.slots)),
		LastUpdated: s.clock.Now(),
	}
	for _, slot := range s.slots {
		state.Slots[slot.Key()] = SlotTarget{TargetType: slot.TargetType, TargetID: slot.TargetID}
	}
	return kvfile.Save(s.path, state)
}

func validSlot(day, hour int) bool {
	return day >= 0 && day <= 6 && hour >= 0 && hour <= 23
}

// SetSlot assigns a target to (day, hour), overwriting any existing slot.
func (s *Store) SetSlot(day, hour int, targetType, targetID string) (TimeSlot, error) {
	if !validSlot(day, hour) {
		return TimeSlot{}, ErrInvalidSlot
	}
	if targetType == "" {
		targetType = TargetInstance
	}
	if targetType != TargetInstance {
		return TimeSlot{}, fmt.Errorf("%w: %q", ErrInvalidTarget, targetType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot := TimeSlot{Day: day, Hour: hour, TargetType: targetType, TargetID: targetID}
	prev := maps.Clone(s.slots)
	s.slots[slotKey{day, hour}] = slot
	if err := s.save(); err != nil {
		s.slots = prev
		return TimeSlot{}, fmt.Errorf("save schedule: %w", err)
	}
	return slot, nil
}

// ClearSlot removes the slot at (day, hour). It reports whether one existed.
func (s *Store) ClearSlot(day, hour int) (bool, error) {
	if !validSlot(day, hour) {
		return false, ErrInvalidSlot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := slotKey{day, hour}
	if _, ok := s.slots[key]; !ok {
		return false, nil
	}
	prev := maps.Clone(s.slots)
	delete(s.slots, key)
	if err := s.save(); err != nil {
		s.slots = prev
		return false, fmt.Errorf("save schedule: %w", err)
	}
	return true, nil
}

// GetSlot returns the slot at (day, hour), if any.
func (s *Store) GetSlot(day, hour int) (TimeSlot, bool, error) {
	if !validSlot(day, hour) {
		return TimeSlot{}, false, ErrInvalidSlot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotKey{day, hour}]
	return slot, ok, nil
}

// GetCurrentSlot resolves the slot covering the clock's current time.
func (s *Store) GetCurrentSlot() (TimeSlot, bool) {
	return s.GetSlotAt(s.clock.Now())
}

// GetSlotAt resolves the slot covering the given moment.
func (s *Store) GetSlotAt(t time.Time) (TimeSlot, bool) {
	day, hour := s.clock.DayHour(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotKey{day, hour}]
	return slot, ok
}

// BulkSet applies all slots or none of them, with a single save.
// Targets are not resolved here: a slot may point at an instance that does
// not exist yet or no longer exists; resolution happens at evaluation time.
func (s *Store) BulkSet(slots []TimeSlot) (int, error) {
	for _, slot := range slots {
		if !validSlot(slot.Day, slot.Hour) {
			return 0, ErrInvalidSlot
		}
		if slot.TargetType != "" && slot.TargetType != TargetInstance {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, slot.TargetType)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := maps.Clone(s.slots)
	for _, slot := range slots {
		if slot.TargetType == "" {
			slot.TargetType = TargetInstance
		}
		s.slots[slotKey{slot.Day, slot.Hour}] = slot
	}
	if err := s.save(); err != nil {
		s.slots = prev
		return 0, fmt.Errorf("save schedule: %w", err)
	}
	return len(slots), nil
}

// ClearAll removes every slot and reports how many were cleared.
func (s *Store) ClearAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.slots)
	if n == 0 {
		return 0, nil
	}
	prev := s.slots
	s.slots = make(map[slotKey]TimeSlot)
	if err := s.save(); err != nil {
		s.slots = prev
		return 0, fmt.Errorf("save schedule: %w", err)
	}
	return n, nil
}

// Snapshot returns the full grid keyed by "<day>-<hour>" for the API.
func (s *Store) Snapshot() map[string]SlotTarget {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]SlotTarget, len(s.slots))
	for _, slot := range s.slots {
		out[slot.Key()] = SlotTarget{TargetType: slot.TargetType, TargetID: slot.TargetID}
	}
	return out
}

// Count returns the number of assigned slots.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
