package server

import "net/http"

func (s *Server) handleDisplayCurrent(w http.ResponseWriter, r *http.Request) {
	_, _, hasPreview := s.display.Preview()
	respond(w, map[string]any{
		"state":       s.display.State(),
		"device":      s.display.DeviceConfig(),
		"has_preview": hasPreview,
	})
}

// handleDisplayPreview serves the last rendered frame when the driver keeps
// one.
func (s *Server) handleDisplayPreview(w http.ResponseWriter, r *http.Request) {
	data, format, found := s.display.Preview()
	if !found {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "driver keeps no preview"})
		return
	}
	if format == "" {
		format = "application/octet-stream"
	}
	w.Header().Set("Content-Type", format)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
