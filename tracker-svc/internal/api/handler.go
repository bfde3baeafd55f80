package api

import (
	"encoding/json"
	"net/http"
	"time"

	"koikhabo/tracker-svc/internal/consumer"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type StatsSource interface {
	Stats() consumer.Stats
}

var _ StatsSource = (*consumer.Consumer)(nil)

// Handler serves tracker-svc's health endpoint. Customers read their orders
// through order-svc, which resolves the owner from the session.
type Handler struct {
	Consumer StatsSource
	Logger   *zap.Logger
}

func NewHandler(source StatsSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Consumer: source, Logger: logger}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "tracker-svc",
		"events":    h.Consumer.Stats(),
		"timestamp": time.Now().Unix(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
