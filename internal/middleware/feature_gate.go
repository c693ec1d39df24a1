package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/worksuite/worksuite-api/internal/pkg/response"
)

// FeatureChecker decides whether a workspace may use a feature.
type FeatureChecker interface {
	CanAccessFeature(ctx context.Context, workspaceID uuid.UUID, featureCode string) (bool, error)
}

// RequireFeature gates a route on a feature entitlement of the workspace resolved by Workspace.
func RequireFeature(checker FeatureChecker, featureCode string) func(http.Handler) http.Handler {
	return requireFeature(checker, func(*http.Request) string { return featureCode })
}

// RequireFeatureParam gates a route on the feature named by a path parameter.
func RequireFeatureParam(checker FeatureChecker, param string) func(http.Handler) http.Handler {
	return requireFeature(checker, func(r *http.Request) string { return chi.URLParam(r, param) })
}

func requireFeature(checker FeatureChecker, codeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			featureCode := codeOf(r)
			workspaceID := GetWorkspaceID(r.Context())
			if workspaceID == uuid.Nil {
				response.BadRequest(w, "Workspace is required")
				return
			}

			allowed, err := checker.CanAccessFeature(r.Context(), workspaceID, featureCode)
			if err != nil {
				log.Error().Err(err).
					Str("workspace_id", workspaceID.String()).
					Str("feature_code", featureCode).
					Msg("feature access check failed")
				response.InternalError(w)
				return
			}
			if !allowed {
				response.ErrorWithDetails(w, http.StatusPaymentRequired, "FEATURE_NOT_ENABLED",
					"Feature is not enabled for this workspace", map[string]string{"feature_code": featureCode})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
