package server

import (
	"fmt"
	"net/http"
	"strings"

	"inkframe/internal/config"
)

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	respond(w, s.configMgr.Current())
}

// handleConfigUpdate validates and swaps the in-memory config. Saving is a
// separate, explicit operation. Fields the daemon reads once at boot are
// called out in the response message.
func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if !decode(w, r, &cfg) {
		return
	}
	prev := s.configMgr.Current()
	if err := s.configMgr.Update(cfg); err != nil {
		badRequest(w, "invalid config: %v", err)
		return
	}
	cur := s.configMgr.Current()

	env := envelope{Success: true, Data: cur}
	if fields := config.RestartFields(prev, cur); len(fields) > 0 {
		env.Message = fmt.Sprintf("changes to %s take effect on restart", strings.Join(fields, ", "))
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleConfigSave(w http.ResponseWriter, r *http.Request) {
	if err := s.configMgr.Save(); err != nil {
		fail(w, err)
		return
	}
	respondMessage(w, "config saved")
}

func (s *Server) handleConfigRevert(w http.ResponseWriter, r *http.Request) {
	if err := s.configMgr.Revert(); err != nil {
		fail(w, err)
		return
	}
	respond(w, s.configMgr.Current())
}
