package httpapi

import (
	"net/http"

	"focus-keeper/internal/focus"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	req, err := s.readRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := s.sessions.State(r.Context(), req.key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, err := s.readRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	duration := focus.DefaultDurationMin
	if req.body.DurationMin != nil {
		duration = *req.body.DurationMin
	}
	sess, err := s.sessions.Start(r.Context(), req.key, duration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	req, err := s.readRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.sessions.Finish(r.Context(), req.key)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
