package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"gatehouse/internal/gatepass/models"
	"gatehouse/internal/gatepass/service"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/audit"
	"gatehouse/pkg/platform/httputil"
	"gatehouse/pkg/requestcontext"
)

// Service is the gate-pass workflow the handler drives.
type Service interface {
	CreateVisitorEntry(ctx context.Context, actor domain.Principal, req service.CreateVisitorRequest) (*models.VisitorLog, error)
	Approve(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error)
	Reject(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error)
	MarkEntered(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error)
	MarkExited(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error)
	ListVisitors(ctx context.Context, actor domain.Principal, q service.ListQuery) (models.Page, error)
	ListGateLog(ctx context.Context, actor domain.Principal, q service.ListQuery) (models.Page, error)
	History(ctx context.Context, actor domain.Principal, id domain.VisitorID) ([]audit.Event, error)
	IssueGuestPass(ctx context.Context, actor domain.Principal, req service.IssueGuestPassRequest) (*models.VisitorLog, error)
	RedeemGuestPass(ctx context.Context, actor domain.Principal, code string) (*service.GuestArrival, error)
	AllowOtpEntry(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error)
}

// Authorizer guards a route with a capability check.
type Authorizer interface {
	Require(obj, act string) func(http.Handler) http.Handler
}

const (
	defaultRedeemLimit  = 10
	defaultRedeemWindow = time.Minute
)

type Handler struct {
	service      Service
	authz        Authorizer
	logger       *slog.Logger
	redeemLimit  int
	redeemWindow time.Duration
}

type Option func(*Handler)

// WithRedeemRateLimit caps code redemptions per guard (or per client IP when
// no principal is attached). A non-positive limit disables the cap.
func WithRedeemRateLimit(limit int, window time.Duration) Option {
	return func(h *Handler) {
		h.redeemLimit = limit
		if window > 0 {
			h.redeemWindow = window
		}
	}
}

func New(service Service, authz Authorizer, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:      service,
		authz:        authz,
		logger:       logger,
		redeemLimit:  defaultRedeemLimit,
		redeemWindow: defaultRedeemWindow,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the visitor endpoints. The router must already
// authenticate.
func (h *Handler) Register(r chi.Router) {
	r.With(h.authz.Require("visitor", "create")).Post("/visitors", h.HandleCreateVisitor)
	r.With(h.authz.Require("visitor", "list")).Get("/visitors", h.HandleListVisitors)
	r.With(h.authz.Require("visitor", "log")).Get("/visitors/gate-log", h.HandleGateLog)

	r.With(h.authz.Require("visitor", "decide")).Put("/visitors/{id}/approve", h.HandleApprove)
	r.With(h.authz.Require("visitor", "decide")).Put("/visitors/{id}/reject", h.HandleReject)
	r.With(h.authz.Require("visitor", "gate")).Put("/visitors/{id}/enter", h.HandleEnter)
	r.With(h.authz.Require("visitor", "gate")).Put("/visitors/{id}/exit", h.HandleExit)
	r.With(h.authz.Require("visitor", "log")).Get("/visitors/{id}/history", h.HandleHistory)

	r.With(h.authz.Require("guestpass", "issue")).Post("/visitors/preapprove", h.HandleIssueGuestPass)
	redeem := r.With(h.authz.Require("guestpass", "redeem"))
	if h.redeemLimit > 0 {
		redeem = redeem.With(h.redeemLimiter())
	}
	redeem.Post("/visitors/verify-otp", h.HandleRedeemGuestPass)
	r.With(h.authz.Require("guestpass", "redeem")).Put("/visitors/otp-enter/{id}", h.HandleAllowOtpEntry)
}

// redeemLimiter slows down code guessing at a single gate.
func (h *Handler) redeemLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(h.redeemLimit, h.redeemWindow,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if p, ok := requestcontext.Principal(r.Context()); ok {
				return "account:" + p.AccountID.String(), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.logger.WarnContext(r.Context(), "guest code redemption rate limited",
				"request_id", requestcontext.RequestID(r.Context()),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "too many OTP attempts, try again later"))
		}),
	)
}

type visitorResponse struct {
	Visitor *models.VisitorLog `json:"visitor"`
}

// HandleCreateVisitor handles POST /visitors.
func (h *Handler) HandleCreateVisitor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[createVisitorRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	v, err := h.service.CreateVisitorEntry(ctx, actor, req.toService())
	if err != nil {
		h.logger.WarnContext(ctx, "create visitor failed",
			"request_id", requestID,
			"flat_no", req.FlatNo,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, visitorResponse{Visitor: v})
}

// HandleApprove handles PUT /visitors/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "approve", h.service.Approve)
}

// HandleReject handles PUT /visitors/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "reject", h.service.Reject)
}

// HandleEnter handles PUT /visitors/{id}/enter.
func (h *Handler) HandleEnter(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "enter", h.service.MarkEntered)
}

// HandleExit handles PUT /visitors/{id}/exit.
func (h *Handler) HandleExit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "exit", h.service.MarkExited)
}

// HandleAllowOtpEntry handles PUT /visitors/otp-enter/{id}.
func (h *Handler) HandleAllowOtpEntry(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "otp_enter", h.service.AllowOtpEntry)
}

type moveFunc func(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error)

// move runs a single-record transition addressed by the {id} path parameter.
func (h *Handler) move(w http.ResponseWriter, r *http.Request, op string, fn moveFunc) {
	ctx := r.Context()
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := domain.ParseVisitorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := fn(ctx, actor, id)
	if err != nil {
		h.logger.WarnContext(ctx, "visitor transition failed",
			"request_id", requestcontext.RequestID(ctx),
			"op", op,
			"visitor_id", id.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, visitorResponse{Visitor: v})
}

// HandleListVisitors handles GET /visitors for the caller's own flat.
func (h *Handler) HandleListVisitors(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListVisitors)
}

// HandleGateLog handles GET /visitors/gate-log.
func (h *Handler) HandleGateLog(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListGateLog)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Principal, service.ListQuery) (models.Page, error)) {
	ctx := r.Context()
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	q, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := fn(ctx, actor, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "list visitors failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

type historyResponse struct {
	VisitorID string        `json:"visitorId"`
	Events    []audit.Event `json:"events"`
}

// HandleHistory handles GET /visitors/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := domain.ParseVisitorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.History(ctx, actor, id)
	if err != nil {
		h.logger.WarnContext(ctx, "visitor history failed",
			"request_id", requestcontext.RequestID(ctx),
			"visitor_id", id.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{VisitorID: id.String(), Events: events})
}

type guestPassResponse struct {
	Visitor   *models.VisitorLog `json:"visitor"`
	OTP       string             `json:"otp"`
	ExpiresAt time.Time          `json:"otpExpiresAt"`
}

// HandleIssueGuestPass handles POST /visitors/preapprove. The code is only
// ever returned here, to the issuer.
func (h *Handler) HandleIssueGuestPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[issueGuestPassRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	v, err := h.service.IssueGuestPass(ctx, actor, service.IssueGuestPassRequest{
		GuestName:   req.GuestName,
		GuestMobile: req.GuestMobile,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "issue guest pass failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, guestPassResponse{
		Visitor:   v,
		OTP:       v.Pass.Code,
		ExpiresAt: v.Pass.ExpiresAt,
	})
}

type guestArrivalResponse struct {
	ID           string `json:"id"`
	GuestName    string `json:"guestName"`
	FlatNo       string `json:"flatNo"`
	ResidentName string `json:"residentName"`
	Status       string `json:"status"`
}

// HandleRedeemGuestPass handles POST /visitors/verify-otp.
func (h *Handler) HandleRedeemGuestPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[redeemGuestPassRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	arrival, err := h.service.RedeemGuestPass(ctx, actor, req.OTP)
	if err != nil {
		h.logger.WarnContext(ctx, "guest code redemption failed",
			"request_id", requestID,
			"guard_id", actor.AccountID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, guestArrivalResponse{
		ID:           arrival.Visitor.ID.String(),
		GuestName:    arrival.Visitor.PersonName,
		FlatNo:       arrival.Visitor.FlatNo,
		ResidentName: arrival.ResidentName,
		Status:       string(arrival.Visitor.Status),
	})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	actor, ok := requestcontext.Principal(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	return actor, ok
}

func parseListQuery(r *http.Request) (service.ListQuery, error) {
	values := r.URL.Query()
	q := service.ListQuery{
		FlatNo: values.Get("flatNo"),
		Status: values.Get("status"),
	}
	var err error
	if q.Page, err = intParam(values.Get("page"), "page"); err != nil {
		return service.ListQuery{}, err
	}
	if q.Limit, err = intParam(values.Get("limit"), "limit"); err != nil {
		return service.ListQuery{}, err
	}
	return q, nil
}

// intParam parses an optional positive integer; zero means "use the default".
func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a positive integer")
	}
	return n, nil
}
