package rest

import (
	"encoding/json"
	"net/http"

	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/model"
)

// HandleWebhook ingests one provider delivery. It always answers 200 so the
// upstream never storms us with redeliveries; failures stay internal.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	s.dispatcher.SweepDueJobs(s.conf.SweepLimit)

	var payload model.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Warn("unreadable webhook payload")
		respondOK(w, "EVENT_RECEIVED")
		return
	}
	s.dispatcher.HandleWebhook(&payload)
	respondOK(w, "EVENT_RECEIVED")
}

// HandleVerifyWebhook answers the provider's subscription handshake.
func (s *Server) HandleVerifyWebhook(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")
	if mode == "subscribe" && token != "" && token == s.conf.WebhookVerifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}
	respondWithError(w, http.StatusForbidden, "verification failed")
}
