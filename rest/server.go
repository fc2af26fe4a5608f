package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zapflowhq/zapflow/config"
	"github.com/zapflowhq/zapflow/dispatcher"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/store"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port       int
	conf       config.Config
	dispatcher *dispatcher.Dispatcher
	store      *store.Store
}

func NewServer(conf config.Config, disp *dispatcher.Dispatcher, st *store.Store) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", conf.HttpPort),
		},
		Port:       conf.HttpPort,
		conf:       conf,
		dispatcher: disp,
		store:      st,
	}

	router := mux.NewRouter()
	router.HandleFunc("/webhook", s.HandleVerifyWebhook).Methods(http.MethodGet)
	router.HandleFunc("/webhook", s.HandleWebhook).Methods(http.MethodPost)
	router.HandleFunc("/jobs/run", s.HandleRunJobs).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/contacts", s.HandleListContacts).Methods(http.MethodGet)
	router.HandleFunc("/conversations/{waId}", s.HandleGetConversation).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message string) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": message})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
