package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/worksuite/worksuite-api/internal/pkg/jwt"
	"github.com/worksuite/worksuite-api/internal/pkg/logger"
	"github.com/worksuite/worksuite-api/internal/pkg/response"
)

type contextKey string

const (
	claimsKey      contextKey = "claims"
	workspaceIDKey contextKey = "workspace_id"
)

// Auth validates the bearer access token and stores its claims in the request context.
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				response.Unauthorized(w, "Missing or malformed authorization header")
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if errors.Is(err, jwt.ErrExpiredToken) {
				response.Unauthorized(w, "Token expired")
				return
			}
			if err != nil {
				response.Unauthorized(w, "Invalid token")
				return
			}

			l := logger.FromContext(r.Context()).With().Str("user_id", claims.UserID.String()).Logger()
			ctx := logger.WithContext(context.WithValue(r.Context(), claimsKey, claims), &l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Workspace resolves the {workspaceID} path parameter and checks that the caller
// is a member of it. Admins may act on any workspace.
func Workspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
		if err != nil {
			response.BadRequest(w, "Invalid workspace ID")
			return
		}

		claims := GetClaims(r.Context())
		if claims == nil {
			response.Unauthorized(w, "Authentication required")
			return
		}
		if claims.Role != jwt.RoleAdmin && !claims.MemberOf(workspaceID) {
			response.Forbidden(w, "Not a member of this workspace")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithWorkspaceID(r.Context(), workspaceID)))
	})
}

// WithWorkspaceID binds a workspace to ctx.
func WithWorkspaceID(ctx context.Context, workspaceID uuid.UUID) context.Context {
	return context.WithValue(ctx, workspaceIDKey, workspaceID)
}

// GetWorkspaceID extracts the workspace resolved by Workspace.
func GetWorkspaceID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(workspaceIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetClaims(ctx context.Context) *jwt.Claims {
	claims, _ := ctx.Value(claimsKey).(*jwt.Claims)
	return claims
}

func GetUserID(ctx context.Context) uuid.UUID {
	if claims := GetClaims(ctx); claims != nil {
		return claims.UserID
	}
	return uuid.Nil
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims := GetClaims(r.Context()); claims == nil || claims.Role != jwt.RoleAdmin {
				response.Forbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
