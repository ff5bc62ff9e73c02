package handler

import (
	"net/http"
	"strconv"

	"rideshare/internal/listings/service"
	apperrors "rideshare/pkg/errors"
	httputil "rideshare/pkg/http"
	"rideshare/pkg/logger"
	"rideshare/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type ListingHandler struct {
	service service.ListingService
	log     *logger.Logger
}

func NewListingHandler(service service.ListingService, log *logger.Logger) *ListingHandler {
	return &ListingHandler{
		service: service,
		log:     log,
	}
}

type closeRequest struct {
	Reason string `json:"reason"`
}

func (h *ListingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ListingHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *ListingHandler) Create(kind model.ListingKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sess, err := httputil.RequireSession(r)
		if err != nil {
			h.writeError(w, "Create", err)
			return
		}

		var listing model.Listing
		if err := httputil.DecodeJSON(r, &listing, false); err != nil {
			h.writeError(w, "Create", err)
			return
		}
		listing.Kind = kind

		if err := h.service.Create(r.Context(), sess, &listing); err != nil {
			h.writeError(w, "Create", err)
			return
		}

		if err := httputil.WriteCreated(w, listing); err != nil {
			h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
		}
	}
}

func (h *ListingHandler) GetByID(kind model.ListingKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		listing, err := h.service.GetByID(r.Context(), kind, ps.ByName("id"))
		if err != nil {
			h.writeError(w, "GetByID", err)
			return
		}
		h.writeSuccess(w, "GetByID", listing)
	}
}

func (h *ListingHandler) Search(kind model.ListingKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		limit, offset, err := httputil.ExtractLimitOffset(r)
		if err != nil {
			h.writeError(w, "Search", err)
			return
		}

		query := r.URL.Query()
		filter := model.ListingFilter{
			Kind:        kind,
			Origin:      query.Get("origin"),
			Destination: query.Get("destination"),
			Airport:     query.Get("airport"),
		}
		if filter.From, err = httputil.ExtractTime(r, "from"); err != nil {
			h.writeError(w, "Search", err)
			return
		}
		if filter.To, err = httputil.ExtractTime(r, "to"); err != nil {
			h.writeError(w, "Search", err)
			return
		}
		if raw := query.Get("include_closed"); raw != "" {
			include, err := strconv.ParseBool(raw)
			if err != nil {
				h.writeError(w, "Search", apperrors.InvalidInput("invalid include_closed parameter: "+raw))
				return
			}
			filter.IncludeClosed = include
		}

		listings, total, err := h.service.Search(r.Context(), filter, limit, offset)
		if err != nil {
			h.writeError(w, "Search", err)
			return
		}

		if err := httputil.WritePaginated(w, listings, total, limit, offset); err != nil {
			h.log.Error("failed to write paginated response", "handler", "Search", "operation", "WritePaginated", "error", err)
		}
	}
}

func (h *ListingHandler) ListMine(kind model.ListingKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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

		listings, total, err := h.service.ListByOwner(r.Context(), sess, kind, limit, offset)
		if err != nil {
			h.writeError(w, "ListMine", err)
			return
		}

		if err := httputil.WritePaginated(w, listings, total, limit, offset); err != nil {
			h.log.Error("failed to write paginated response", "handler", "ListMine", "operation", "WritePaginated", "error", err)
		}
	}
}

func (h *ListingHandler) Close(kind model.ListingKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sess, err := httputil.RequireSession(r)
		if err != nil {
			h.writeError(w, "Close", err)
			return
		}

		var req closeRequest
		if err := httputil.DecodeJSON(r, &req, true); err != nil {
			h.writeError(w, "Close", err)
			return
		}

		listing, err := h.service.Close(r.Context(), sess, kind, ps.ByName("id"), req.Reason)
		if err != nil {
			h.writeError(w, "Close", err)
			return
		}
		h.writeSuccess(w, "Close", listing)
	}
}

func (h *ListingHandler) Reopen(kind model.ListingKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sess, err := httputil.RequireSession(r)
		if err != nil {
			h.writeError(w, "Reopen", err)
			return
		}

		listing, err := h.service.Reopen(r.Context(), sess, kind, ps.ByName("id"))
		if err != nil {
			h.writeError(w, "Reopen", err)
			return
		}
		h.writeSuccess(w, "Reopen", listing)
	}
}

func (h *ListingHandler) RegisterRoutes(router *httprouter.Router) {
	for _, kind := range []model.ListingKind{model.KindRide, model.KindTrip} {
		base := "/api/v1/" + kind.Plural()
		router.POST(base, h.Create(kind))
		router.GET(base, h.Search(kind))
		router.GET(base+"/mine", h.ListMine(kind))
		router.GET(base+"/id/:id", h.GetByID(kind))
		router.POST(base+"/id/:id/close", h.Close(kind))
		router.POST(base+"/id/:id/reopen", h.Reopen(kind))
	}
}
