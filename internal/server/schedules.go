package server

import (
	"net/http"
	"strconv"

	"inkframe/internal/schedule"
)

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	respond(w, map[string]any{
		"slots": s.schedule.Snapshot(),
		"count": s.schedule.Count(),
	})
}

type setSlotRequest struct {
	Day        int    `json:"day"`
	Hour       int    `json:"hour"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

func (s *Server) handleScheduleSetSlot(w http.ResponseWriter, r *http.Request) {
	var req setSlotRequest
	if !decode(w, r, &req) {
		return
	}
	slot, err := s.schedule.SetSlot(req.Day, req.Hour, req.TargetType, req.TargetID)
	if err != nil {
		fail(w, err)
		return
	}
	s.orch.Nudge()
	respond(w, slot)
}

func (s *Server) handleScheduleClearSlot(w http.ResponseWriter, r *http.Request) {
	day, err1 := strconv.Atoi(r.URL.Query().Get("day"))
	hour, err2 := strconv.Atoi(r.URL.Query().Get("hour"))
	if err1 != nil || err2 != nil {
		badRequest(w, "day and hour query parameters are required integers")
		return
	}
	existed, err := s.schedule.ClearSlot(day, hour)
	if err != nil {
		fail(w, err)
		return
	}
	s.orch.Nudge()
	respond(w, map[string]any{"cleared": existed})
}

type bulkSetRequest struct {
	Slots []schedule.TimeSlot `json:"slots"`
}

func (s *Server) handleScheduleBulkSet(w http.ResponseWriter, r *http.Request) {
	var req bulkSetRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.schedule.BulkSet(req.Slots)
	if err != nil {
		fail(w, err)
		return
	}
	s.orch.Nudge()
	respond(w, map[string]any{"applied": n})
}

func (s *Server) handleScheduleClearAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.schedule.ClearAll()
	if err != nil {
		fail(w, err)
		return
	}
	s.orch.Nudge()
	respond(w, map[string]any{"cleared": n})
}

// handleScheduleCurrent reports the slot covering the current hour and how
// it resolves.
func (s *Server) handleScheduleCurrent(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"resolved": false}
	if slot, found := s.schedule.GetCurrentSlot(); found {
		data["slot"] = slot
	}
	if cs := s.orch.CurrentContentSource(); !cs.IsEmpty() {
		data["resolved"] = true
		data["instance"] = cs.Instance
		data["duration_seconds"] = int(cs.Duration.Seconds())
	}
	respond(w, data)
}
