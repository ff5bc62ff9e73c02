package handler

import (
	"context"
	"net/http"

	"rideshare/internal/confirmations/service"
	apperrors "rideshare/pkg/errors"
	httputil "rideshare/pkg/http"
	"rideshare/pkg/logger"
	"rideshare/pkg/model"
	"rideshare/pkg/session"

	"github.com/julienschmidt/httprouter"
)

type ConfirmationHandler struct {
	service service.ConfirmationService
	log     *logger.Logger
}

func NewConfirmationHandler(service service.ConfirmationService, log *logger.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{
		service: service,
		log:     log,
	}
}

type byIDFunc func(ctx context.Context, sess session.Session, id string) (*model.Confirmation, error)

func (h *ConfirmationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ConfirmationHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *ConfirmationHandler) Request(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "Request", err)
		return
	}

	var req model.ConfirmationRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		h.writeError(w, "Request", err)
		return
	}

	c, err := h.service.Request(r.Context(), sess, &req)
	if err != nil {
		h.writeError(w, "Request", err)
		return
	}

	if err := httputil.WriteCreated(w, c); err != nil {
		h.log.Error("failed to write created response", "handler", "Request", "operation", "WriteCreated", "error", err)
	}
}

// byID adapts an id-addressed service call to a route.
func (h *ConfirmationHandler) byID(name string, fn byIDFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sess, err := httputil.RequireSession(r)
		if err != nil {
			h.writeError(w, name, err)
			return
		}

		c, err := fn(r.Context(), sess, ps.ByName("id"))
		if err != nil {
			h.writeError(w, name, err)
			return
		}
		h.writeSuccess(w, name, c)
	}
}

func (h *ConfirmationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.byID("GetByID", h.service.GetByID)(w, r, ps)
}

func (h *ConfirmationHandler) Eligibility(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "Eligibility", err)
		return
	}

	e, err := h.service.Eligibility(r.Context(), sess, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Eligibility", err)
		return
	}
	h.writeSuccess(w, "Eligibility", e)
}

func (h *ConfirmationHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}

	query := r.URL.Query()
	role := model.ConfirmationRole(query.Get("role"))
	status := model.ConfirmationStatus(query.Get("status"))

	items, total, err := h.service.ListMine(r.Context(), sess, role, status, limit, offset)
	if err != nil {
		h.writeError(w, "ListMine", err)
		return
	}

	if err := httputil.WritePaginated(w, items, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListMine", "operation", "WritePaginated", "error", err)
	}
}

func (h *ConfirmationHandler) ListForListing(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, err := httputil.RequireSession(r)
	if err != nil {
		h.writeError(w, "ListForListing", err)
		return
	}

	kind, ok := model.ParseKind(ps.ByName("kind"))
	if !ok {
		h.writeError(w, "ListForListing", apperrors.InvalidInput("kind must be ride or trip"))
		return
	}

	items, err := h.service.ListForListing(r.Context(), sess, model.ListingRef{Kind: kind, ID: ps.ByName("id")})
	if err != nil {
		h.writeError(w, "ListForListing", err)
		return
	}
	h.writeSuccess(w, "ListForListing", items)
}

func (h *ConfirmationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/confirmations", h.Request)
	router.GET("/api/v1/confirmations", h.ListMine)
	router.GET("/api/v1/confirmations/id/:id", h.GetByID)
	router.GET("/api/v1/confirmations/id/:id/eligibility", h.Eligibility)
	router.POST("/api/v1/confirmations/id/:id/accept", h.byID("Accept", h.service.Accept))
	router.POST("/api/v1/confirmations/id/:id/reject", h.byID("Reject", h.service.Reject))
	router.POST("/api/v1/confirmations/id/:id/cancel", h.byID("Cancel", h.service.Cancel))
	router.POST("/api/v1/confirmations/id/:id/rerequest", h.byID("ReRequest", h.service.ReRequest))
	router.GET("/api/v1/confirmations/listing/:kind/:id", h.ListForListing)
}
