package app

import (
	"context"
	"net/http"
	"time"

	httputil "rideshare/pkg/http"
	"rideshare/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Pinger is satisfied by *mongo.Client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service,omitempty"`
	Database string `json:"database,omitempty"`
}

type HealthHandler struct {
	db      Pinger
	service string
	log     *logger.Logger
}

func NewHealthHandler(db Pinger, service string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, service: service, log: log}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: h.service}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, resp := http.StatusOK, HealthResponse{Status: "ready", Service: h.service, Database: "ok"}
	if h.db == nil {
		status, resp = http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Service: h.service, Database: "not configured"}
	} else if err := h.db.Ping(ctx, readpref.Primary()); err != nil {
		h.log.Error("Database health check failed", "error", err)
		status, resp = http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Service: h.service, Database: "error"}
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
