package entitlement

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/worksuite/worksuite-api/internal/domain/feature"
	"github.com/worksuite/worksuite-api/internal/middleware"
	"github.com/worksuite/worksuite-api/internal/pkg/errorhandler"
	"github.com/worksuite/worksuite-api/internal/pkg/response"
	"github.com/worksuite/worksuite-api/internal/pkg/validator"
)

type Handler struct {
	manager     *Manager
	warningDays int
}

// NewHandler creates the entitlement handler. warningDays is the default window of
// the expiring-features listing.
func NewHandler(manager *Manager, warningDays int) *Handler {
	if warningDays <= 0 {
		warningDays = 7
	}
	return &Handler{manager: manager, warningDays: warningDays}
}

type activateRequest struct {
	Source    string     `json:"source" validate:"required,entitlement_source"`
	ExpiresAt *time.Time `json:"expires_at"`
	TrialDays *int       `json:"trial_days" validate:"omitempty,gte=1,lte=365"`
}

// Active handles GET /workspaces/{workspaceID}/features
// @Summary Active features
// @Description Usable entitlements, newest activation first.
// @Tags Entitlements
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Success 200 {object} response.Envelope{data=[]Entitlement}
// @Failure 400,401,403,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/features [get]
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.GetActiveFeatures(r.Context(), middleware.GetWorkspaceID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.OK(w, items)
}

// Expiring handles GET /workspaces/{workspaceID}/features/expiring?days=
// @Summary Expiring trials
// @Tags Entitlements
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param days query int false "Days ahead"
// @Success 200 {object} response.Envelope{data=[]Entitlement}
// @Failure 400,401,403,422,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/features/expiring [get]
func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := h.warningDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "days must be an integer")
			return
		}
		days = parsed
	}

	items, err := h.manager.GetExpiringFeatures(r.Context(), middleware.GetWorkspaceID(r.Context()), days)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.OK(w, items)
}

// Status handles GET /workspaces/{workspaceID}/features/{code}
// @Summary Feature access status
// @Tags Entitlements
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param code path string true "Feature code"
// @Success 200 {object} response.Envelope{data=FeatureStatus}
// @Failure 400,401,403,404,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/features/{code} [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(r.Context(), middleware.GetWorkspaceID(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.OK(w, status)
}

// Access handles GET /workspaces/{workspaceID}/features/{code}/access behind
// middleware.RequireFeature; reaching it means access is granted.
// @Summary Feature access check
// @Tags Entitlements
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param code path string true "Feature code"
// @Success 204 {string} string "No Content"
// @Failure 400,402,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/features/{code}/access [get]
func (h *Handler) Access(w http.ResponseWriter, r *http.Request) {
	response.NoContent(w)
}

// Activate handles POST /admin/workspaces/{workspaceID}/features/{code}/activate
// @Summary Activate a feature (admin)
// @Description Permanent without expires_at or trial_days. An enabled grant activated again without expiry is returned unchanged.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param code path string true "Feature code"
// @Param request body activateRequest true "Activation"
// @Success 200 {object} response.Envelope{data=WorkspaceFeature}
// @Failure 400,404,409,422,500 {object} response.Envelope
// @Router /admin/workspaces/{workspaceID}/features/{code}/activate [post]
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}
	if req.ExpiresAt != nil && req.TrialDays != nil {
		response.ValidationError(w, map[string]string{"trial_days": "Use either expires_at or trial_days"})
		return
	}

	expiresAt := req.ExpiresAt
	if req.TrialDays != nil {
		t := h.manager.clock.Now().AddDate(0, 0, *req.TrialDays)
		expiresAt = &t
	}

	wf, err := h.manager.ActivateFeature(r.Context(), middleware.GetWorkspaceID(r.Context()), chi.URLParam(r, "code"), Source(req.Source), expiresAt)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.OK(w, wf)
}

// Deactivate handles POST /admin/workspaces/{workspaceID}/features/{code}/deactivate
// @Summary Deactivate a feature (admin)
// @Tags Admin
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param code path string true "Feature code"
// @Success 204 {string} string "No Content"
// @Failure 400,404,500 {object} response.Envelope
// @Router /admin/workspaces/{workspaceID}/features/{code}/deactivate [post]
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeactivateFeature(r.Context(), middleware.GetWorkspaceID(r.Context()), chi.URLParam(r, "code")); err != nil {
		WriteError(w, r, err)
		return
	}
	response.NoContent(w)
}

// WriteError maps entitlement and catalog errors to responses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var inactive *feature.InactiveFeatureError
	switch {
	case errors.Is(err, ErrUnknownFeature):
		response.NotFound(w, "Unknown feature code")
	case errors.As(err, &inactive):
		response.ErrorWithDetails(w, http.StatusUnprocessableEntity, "FEATURE_INACTIVE", "Feature is not available", map[string]string{"feature_code": inactive.Code})
	case errors.Is(err, ErrInvalidSource), errors.Is(err, ErrInvalidExpiry), errors.Is(err, ErrInvalidWindow), errors.Is(err, ErrInvalidWorkspace):
		response.ValidationError(w, map[string]string{"request": err.Error()})
	case errors.Is(err, ErrVersionConflict):
		response.Conflict(w, "Feature was modified concurrently, retry the request")
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Entitlement operation failed", err)
	}
}

// AdminRoutes mounts entitlement administration for one workspace.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{code}/activate", h.Activate)
	r.Post("/{code}/deactivate", h.Deactivate)
	return r
}
