package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/httputil"
	"gatehouse/pkg/requestcontext"
)

// JWTValidator validates a bearer token and returns its claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// PrincipalLoader re-reads the caller's account so blocked or deactivated
// accounts lose access before their token expires. It returns a Forbidden
// domain error for accounts that may not act.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, accountID domain.AccountID) (domain.Principal, error)
}

// Claims are the identity facts carried in an access token.
type Claims struct {
	AccountID domain.AccountID
	SocietyID domain.SocietyID
	Roles     domain.RoleSet
	FlatNo    string
}

// RequireAuth authenticates the request and stores the caller as the
// request principal. A nil loader trusts the token claims as-is.
func RequireAuth(validator JWTValidator, loader PrincipalLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestID,
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			principal := domain.Principal{
				AccountID: claims.AccountID,
				SocietyID: claims.SocietyID,
				Roles:     claims.Roles,
				FlatNo:    claims.FlatNo,
			}
			if loader != nil {
				principal, err = loader.LoadPrincipal(ctx, claims.AccountID)
				if err != nil {
					logger.WarnContext(ctx, "access denied for account",
						"request_id", requestID,
						"account_id", claims.AccountID,
						"error", err,
					)
					httputil.WriteError(w, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
		})
	}
}
