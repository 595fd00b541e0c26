package server

import "net/http"

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	st := s.orch.Status()
	respond(w, map[string]any{
		"running":            st.Running,
		"paused":             st.Paused,
		"has_content":        st.HasContent,
		"active_instance_id": st.ActiveInstanceID,
		"source":             st.Source,
	})
}

func (s *Server) handleSchedulerPause(w http.ResponseWriter, r *http.Request) {
	s.orch.Pause()
	respondMessage(w, "scheduler paused")
}

func (s *Server) handleSchedulerResume(w http.ResponseWriter, r *http.Request) {
	s.orch.Resume()
	respondMessage(w, "scheduler resumed")
}

func (s *Server) handleSchedulerRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ForceRefresh(r.Context()); err != nil {
		fail(w, err)
		return
	}
	respondMessage(w, "refresh pushed")
}

func (s *Server) handleSchedulerJobs(w http.ResponseWriter, r *http.Request) {
	respond(w, s.orch.Jobs())
}
