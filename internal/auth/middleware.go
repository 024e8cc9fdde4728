package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/models"
)

type Principal struct {
	UserID   uint
	Username string
	Role     string
}

// IsStaff is true for roles that may check clients in and handle money.
func (p Principal) IsStaff() bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleSecretaria
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

func deny(w http.ResponseWriter, code apperr.Code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg, "code": string(code)})
}

// Authenticate reads an optional Bearer token. Requests without one pass
// through anonymous; a bad token is rejected.
func (i *Issuer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if h == "" {
			next.ServeHTTP(w, r)
			return
		}
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			deny(w, apperr.CodeUnauthenticated, "Formato de autorización inválido. Usa 'Bearer <token>'.")
			return
		}
		claims, err := i.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			deny(w, apperr.CodeUnauthenticated, "Token inválido o expirado.")
			return
		}
		id, _ := strconv.ParseUint(claims.Subject, 10, 64)
		p := Principal{UserID: uint(id), Username: claims.Username, Role: claims.Role}
		if i.accounts != nil {
			var u models.StaffUser
			if err := i.accounts.WithContext(r.Context()).First(&u, uint(id)).Error; err != nil || !u.Enabled {
				deny(w, apperr.CodeUnauthenticated, "Cuenta deshabilitada o inexistente.")
				return
			}
			p.Username, p.Role = u.Username, u.Role
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole lets through authenticated users holding one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				deny(w, apperr.CodeUnauthenticated, "Se requiere autenticación.")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			deny(w, apperr.CodeForbidden, "No tienes permiso para esta acción.")
		})
	}
}

var (
	RequireAdmin = RequireRole(models.RoleAdmin)
	RequireStaff = RequireRole(models.RoleAdmin, models.RoleSecretaria)
	RequireAny   = RequireRole(models.RoleAdmin, models.RoleSecretaria, models.RoleCoach)
)
