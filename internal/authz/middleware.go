package authz

import (
	"log/slog"
	"net/http"

	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/httputil"
	"gatehouse/pkg/requestcontext"
)

// Middleware turns Enforcer decisions into HTTP guards.
type Middleware struct {
	enforcer *Enforcer
	logger   *slog.Logger
}

func NewMiddleware(enforcer *Enforcer, logger *slog.Logger) *Middleware {
	return &Middleware{enforcer: enforcer, logger: logger}
}

// Require rejects requests whose principal lacks the capability obj:act.
// It must run after authentication.
func (m *Middleware) Require(obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := requestcontext.Principal(ctx)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			allowed, err := m.enforcer.Allowed(principal.Roles, obj, act)
			if err != nil {
				m.logger.ErrorContext(ctx, "authorization check failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "authorization check failed"))
				return
			}
			if !allowed {
				m.logger.WarnContext(ctx, "capability denied",
					"request_id", requestcontext.RequestID(ctx),
					"account_id", principal.AccountID,
					"roles", principal.Roles.Strings(),
					"capability", obj+":"+act,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not allowed to "+act+" "+obj))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
