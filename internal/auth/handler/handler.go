package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"gatehouse/internal/auth/service"
	dirmodels "gatehouse/internal/directory/models"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/httputil"
	"gatehouse/pkg/platform/validation"
	"gatehouse/pkg/requestcontext"
)

type Service interface {
	RequestCode(ctx context.Context, mobile string) error
	Verify(ctx context.Context, mobile, code, deviceToken string) (*service.Session, error)
}

type Handler struct {
	service        Service
	logger         *slog.Logger
	loginPerMinute int
}

// New builds the login handler. loginPerMinute caps both endpoints per
// client IP; zero disables the cap.
func New(service Service, logger *slog.Logger, loginPerMinute int) *Handler {
	return &Handler{service: service, logger: logger, loginPerMinute: loginPerMinute}
}

// Register mounts the public login endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/auth/otp", func(r chi.Router) {
		if h.loginPerMinute > 0 {
			r.Use(httprate.Limit(h.loginPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "too many login attempts, try again later"))
				}),
			))
		}
		r.Post("/request", h.HandleRequestCode)
		r.Post("/verify", h.HandleVerify)
	})
}

type requestCodeRequest struct {
	Mobile string `json:"mobile" validate:"required,max=20"`
}

func (r *requestCodeRequest) Validate() error {
	r.Mobile = strings.TrimSpace(r.Mobile)
	return validation.Struct(r)
}

type requestCodeResponse struct {
	Message string `json:"message"`
}

// HandleRequestCode handles POST /auth/otp/request. The response is the same
// whether or not the mobile is registered.
func (h *Handler) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[requestCodeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.RequestCode(ctx, req.Mobile); err != nil {
		h.logger.ErrorContext(ctx, "login code request failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, requestCodeResponse{
		Message: "if the number is registered, a login code has been sent",
	})
}

type verifyRequest struct {
	Mobile      string `json:"mobile" validate:"required,max=20"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	DeviceToken string `json:"deviceToken" validate:"omitempty,max=512"`
}

func (r *verifyRequest) Validate() error {
	r.Mobile = strings.TrimSpace(r.Mobile)
	r.OTP = strings.TrimSpace(r.OTP)
	r.DeviceToken = strings.TrimSpace(r.DeviceToken)
	return validation.Struct(r)
}

type verifyResponse struct {
	AccessToken string             `json:"accessToken"`
	TokenType   string             `json:"tokenType"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	Account     *dirmodels.Account `json:"account"`
}

// HandleVerify handles POST /auth/otp/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[verifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	session, err := h.service.Verify(ctx, req.Mobile, req.OTP, req.DeviceToken)
	if err != nil {
		h.logger.WarnContext(ctx, "login verification failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
		Account:     session.Account,
	})
}
