package rest

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/zapflowhq/zapflow/logger"
	"go.uber.org/zap"
)

// smallSweepLimit bounds the opportunistic sweep read endpoints piggyback.
const smallSweepLimit = 5

func (s *Server) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	s.dispatcher.SweepDueJobs(smallSweepLimit)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	contacts, err := s.store.ListContacts(limit)
	if err != nil {
		logger.Error("error listing contacts", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing contacts")
		return
	}
	respondWithJSON(w, http.StatusOK, contacts)
}

func (s *Server) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	s.dispatcher.SweepDueJobs(smallSweepLimit)
	waId := mux.Vars(r)["waId"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := s.store.ListMessages(waId, limit)
	if err != nil {
		logger.Error("error reading conversation", zap.String("waId", waId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error reading conversation")
		return
	}
	respondWithJSON(w, http.StatusOK, msgs)
}
