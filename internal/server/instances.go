package server

import (
	"net/http"

	"inkframe/internal/plugin"
)

func (s *Server) handleInstanceList(w http.ResponseWriter, r *http.Request) {
	respond(w, s.instances.List(r.URL.Query().Get("plugin_id")))
}

type createInstanceRequest struct {
	PluginID string          `json:"plugin_id"`
	Name     string          `json:"name"`
	Settings plugin.Settings `json:"settings"`
}

func (s *Server) handleInstanceCreate(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PluginID == "" {
		badRequest(w, "plugin_id is required")
		return
	}
	pi, err := s.instances.Create(r.Context(), req.PluginID, req.Name, req.Settings)
	if err != nil {
		fail(w, err)
		return
	}
	respondCreated(w, pi)
}

func (s *Server) handleInstanceGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pi, found := s.instances.Get(id)
	if !found {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "instance not found: " + id})
		return
	}
	respond(w, pi)
}

type updateInstanceRequest struct {
	Name     *string         `json:"name"`
	Settings plugin.Settings `json:"settings"`
}

func (s *Server) handleInstanceUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateInstanceRequest
	if !decode(w, r, &req) {
		return
	}
	pi, err := s.instances.Update(r.Context(), r.PathValue("id"), req.Name, req.Settings)
	if err != nil {
		fail(w, err)
		return
	}
	s.orch.Nudge()
	respond(w, pi)
}

func (s *Server) handleInstanceDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.instances.Delete(r.Context(), r.PathValue("id")); err != nil {
		fail(w, err)
		return
	}
	s.orch.Nudge()
	respondMessage(w, "instance deleted")
}

func (s *Server) handleInstanceEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.instances.Enable(r.Context(), r.PathValue("id")); err != nil {
		fail(w, err)
		return
	}
	s.orch.Nudge()
	respondMessage(w, "instance enabled")
}

func (s *Server) handleInstanceDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.instances.Disable(r.Context(), r.PathValue("id")); err != nil {
		fail(w, err)
		return
	}
	s.orch.Nudge()
	respondMessage(w, "instance disabled")
}

// handleInstanceTest renders one frame without touching the panel and
// returns the image bytes directly.
func (s *Server) handleInstanceTest(w http.ResponseWriter, r *http.Request) {
	frame, err := s.instances.Test(r.Context(), r.PathValue("id"), s.display.DeviceConfig())
	if err != nil {
		fail(w, err)
		return
	}
	contentType := frame.Format
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(frame.Image)
}
