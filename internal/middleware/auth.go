package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/commentgig/backend/internal/models"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   models.Role
}

// TokenValidator is the part of the auth service the middleware needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, models.Role, error)
}

// Authenticate validates the Bearer JWT and stores the principal in the
// request context.
func Authenticate(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing or malformed Authorization header")
				return
			}
			id, role, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := WithPrincipal(r.Context(), &Principal{UserID: id, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects principals whose role is not in roles. It must run
// after Authenticate.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromCtx(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeError(w, http.StatusForbidden, "role "+string(p.Role)+" may not call this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromCtx returns the authenticated caller or nil.
func PrincipalFromCtx(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(*Principal)
	return p
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
