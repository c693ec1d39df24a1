package feature

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worksuite/worksuite-api/internal/pkg/errorhandler"
	"github.com/worksuite/worksuite-api/internal/pkg/response"
	"github.com/worksuite/worksuite-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type upsertRequest struct {
	Code        string `json:"code" validate:"required,feature_code"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Category    string `json:"category" validate:"required,feature_category"`
	IsActive    *bool  `json:"is_active" validate:"required"`
	IsPublic    *bool  `json:"is_public" validate:"required"`
}

type activeRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// List handles GET /features?category=
// @Summary Feature catalog
// @Description Active public features, optionally filtered by category.
// @Tags Features
// @Produce json
// @Param category query string false "Category"
// @Success 200 {object} response.Envelope{data=[]Feature}
// @Failure 400,500 {object} response.Envelope
// @Router /features [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var category *Category
	if v := r.URL.Query().Get("category"); v != "" {
		c := Category(v)
		if !c.Valid() {
			response.BadRequest(w, "Unknown category")
			return
		}
		category = &c
	}

	features, err := h.svc.Available(r.Context(), category)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load features", err)
		return
	}
	response.OK(w, features)
}

// AdminList handles GET /admin/features and includes inactive and private entries.
// @Summary Full feature catalog (admin)
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]Feature}
// @Failure 401,403,500 {object} response.Envelope
// @Router /admin/features [get]
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	features, err := h.svc.List(r.Context(), ListFilter{})
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load features", err)
		return
	}
	response.OK(w, features)
}

// Upsert handles PUT /admin/features
// @Summary Create or update a catalog entry (admin)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body upsertRequest true "Feature"
// @Success 200 {object} response.Envelope{data=Feature}
// @Failure 400,401,403,422,500 {object} response.Envelope
// @Router /admin/features [put]
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	stored, err := h.svc.Upsert(r.Context(), Feature{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Category:    Category(req.Category),
		IsActive:    *req.IsActive,
		IsPublic:    *req.IsPublic,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, stored)
}

// SetActive handles PATCH /admin/features/{code}
// @Summary Enable or soft-disable a feature (admin)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Feature code"
// @Param request body activeRequest true "Active flag"
// @Success 200 {object} response.Envelope
// @Failure 400,404,422,500 {object} response.Envelope
// @Router /admin/features/{code} [patch]
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	code := chi.URLParam(r, "code")
	if err := h.svc.SetActive(r.Context(), code, *req.IsActive); err != nil {
		h.writeError(w, r, err)
		return
	}

	f, err := h.svc.GetByCode(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, f)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidFeature):
		response.ValidationError(w, map[string]string{"feature": err.Error()})
	case errors.Is(err, ErrFeatureNotFound):
		response.NotFound(w, "Feature not found")
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Feature catalog operation failed", err)
	}
}

// Routes mounts the public catalog.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	return r
}

// AdminRoutes mounts catalog administration.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.AdminList)
	r.Put("/", h.Upsert)
	r.Patch("/{code}", h.SetActive)
	return r
}
