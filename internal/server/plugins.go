package server

import "net/http"

func (s *Server) handlePluginList(w http.ResponseWriter, r *http.Request) {
	respond(w, s.registry.ListMetadata())
}

func (s *Server) handlePluginGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("plugin_id")
	meta, found := s.registry.Metadata(id)
	if !found {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "unknown plugin: " + id})
		return
	}
	respond(w, meta)
}

func (s *Server) handlePluginReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Reload()
	if err != nil {
		fail(w, err)
		return
	}
	respondMessage(w, "reloaded %d plugins", n)
}
