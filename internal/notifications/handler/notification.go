package handler

import (
	"net/http"

	"rideshare/internal/notifications/service"
	httputil "rideshare/pkg/http"
	"rideshare/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type NotificationHandler struct {
	service service.NotificationService
	log     *logger.Logger
}

func NewNotificationHandler(service service.NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		log:     log,
	}
}

func (h *NotificationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	items, total, err := h.service.List(r.Context(), sess, unreadOnly, limit, offset)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, items, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "MarkRead", err)
		return
	}

	if err := h.service.MarkRead(r.Context(), sess, ps.ByName("id")); err != nil {
		h.writeError(w, "MarkRead", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "MarkAllRead", err)
		return
	}

	n, err := h.service.MarkAllRead(r.Context(), sess)
	if err != nil {
		h.writeError(w, "MarkAllRead", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]int64{"updated": n}); err != nil {
		h.log.Error("failed to write success response", "handler", "MarkAllRead", "operation", "WriteSuccess", "error", err)
	}
}

func (h *NotificationHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/notifications", h.List)
	router.POST("/api/v1/notifications/read", h.MarkAllRead)
	router.POST("/api/v1/notifications/id/:id/read", h.MarkRead)
}
