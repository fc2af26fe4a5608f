package rest

import (
	"net/http"
	"strconv"
	"strings"
)

// HandleRunJobs is the scheduling trigger endpoint, invoked by the external
// periodic trigger with a shared secret.
func (s *Server) HandleRunJobs(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = s.conf.SweepLimit
	}
	if s.conf.SweepMaxLimit > 0 && limit > s.conf.SweepMaxLimit {
		limit = s.conf.SweepMaxLimit
	}
	processed, errCount := s.dispatcher.SweepDueJobs(limit)
	respondWithJSON(w, http.StatusOK, map[string]int{
		"processed": processed,
		"errors":    errCount,
	})
}

// authorized accepts the shared secret via header, query param or bearer.
func (s *Server) authorized(r *http.Request) bool {
	secret := s.conf.TriggerSecret
	if secret == "" {
		return false
	}
	if r.Header.Get("X-Cron-Secret") == secret {
		return true
	}
	if r.URL.Query().Get("secret") == secret {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == secret
}
