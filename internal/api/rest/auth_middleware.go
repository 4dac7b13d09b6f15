package rest

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/auth"
)

// TokenValidator parses bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

// AuthMiddleware provides JWT-based authentication
type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Require rejects requests without a valid bearer token carrying scope. An
// empty scope only checks the token.
func (a *AuthMiddleware) Require(scope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				writeError(w, r, apperrors.NewUnauthorizedError("Authorization required"))
				return
			}

			claims, err := a.tokens.ValidateToken(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				writeError(w, r, apperrors.NewUnauthorizedError("Invalid or expired token"))
				return
			}

			if scope != "" && !claims.HasScope(scope) {
				writeError(w, r, errForbidden())
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("user_id", claims.UserID.String()))
			ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func errForbidden() *apperrors.AppError {
	err := apperrors.NewUnauthorizedError("Insufficient permissions")
	err.Code = "FORBIDDEN"
	err.StatusCode = http.StatusForbidden
	return err
}

func claimsFrom(ctx context.Context) *auth.TokenClaims {
	c, _ := ctx.Value(contextKeyClaims).(*auth.TokenClaims)
	return c
}

// actor names the operator behind a request for audit fields.
func actor(ctx context.Context) string {
	c := claimsFrom(ctx)
	switch {
	case c == nil:
		return ""
	case c.Email != "":
		return c.Email
	default:
		return c.UserID.String()
	}
}
