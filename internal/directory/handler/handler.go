package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatehouse/internal/directory/models"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/httputil"
	"gatehouse/pkg/requestcontext"
)

type Service interface {
	ListFlats(ctx context.Context, actor domain.Principal) ([]models.FlatSummary, error)
	RemoveTenant(ctx context.Context, actor domain.Principal, flatNo string) (int, error)
}

// Authorizer guards a route with a capability check.
type Authorizer interface {
	Require(obj, act string) func(http.Handler) http.Handler
}

type Handler struct {
	service Service
	authz   Authorizer
	logger  *slog.Logger
}

func New(service Service, authz Authorizer, logger *slog.Logger) *Handler {
	return &Handler{service: service, authz: authz, logger: logger}
}

// Register mounts directory endpoints. The router must already authenticate.
func (h *Handler) Register(r chi.Router) {
	r.With(h.authz.Require("visitor", "create")).Get("/visitors/flats", h.HandleListFlats)
	r.With(h.authz.Require("flat", "manage")).Delete("/admin/flats/{flatNo}/tenant", h.HandleRemoveTenant)
}

type flatsResponse struct {
	Flats []models.FlatSummary `json:"flats"`
}

// HandleListFlats handles GET /visitors/flats.
func (h *Handler) HandleListFlats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requestcontext.Principal(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	flats, err := h.service.ListFlats(ctx, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "list flats failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, flatsResponse{Flats: flats})
}

type removeTenantResponse struct {
	FlatNo  string `json:"flatNo"`
	Removed int    `json:"removed"`
}

// HandleRemoveTenant handles DELETE /admin/flats/{flatNo}/tenant.
func (h *Handler) HandleRemoveTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requestcontext.Principal(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	flatNo := domain.NormalizeFlat(chi.URLParam(r, "flatNo"))
	removed, err := h.service.RemoveTenant(ctx, actor, flatNo)
	if err != nil {
		h.logger.WarnContext(ctx, "remove tenant failed",
			"request_id", requestcontext.RequestID(ctx),
			"flat_no", flatNo,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, removeTenantResponse{FlatNo: flatNo, Removed: removed})
}
