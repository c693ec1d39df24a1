package purchase

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/worksuite/worksuite-api/internal/domain/entitlement"
	"github.com/worksuite/worksuite-api/internal/domain/feature"
	"github.com/worksuite/worksuite-api/internal/domain/wallet"
	"github.com/worksuite/worksuite-api/internal/middleware"
	"github.com/worksuite/worksuite-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type pricedPurchaseRequest struct {
	Price decimal.Decimal `json:"price"`
}

// Purchase handles POST /workspaces/{workspaceID}/features/{code}/purchase
// @Summary Buy a feature with wallet coins
// @Description Debits the list price from the workspace wallet and grants the feature permanently. The price comes from the price list; a request body is ignored.
// @Tags Purchases
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param code path string true "Feature code"
// @Success 201 {object} response.Envelope{data=Receipt}
// @Failure 404,409,422,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/features/{code}/purchase [post]
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.svc.PurchaseAtListPrice(r.Context(), middleware.GetWorkspaceID(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, receipt)
}

// PurchaseWithPrice handles POST /admin/workspaces/{workspaceID}/features/{code}/purchase
// @Summary Buy a feature at a given price (admin)
// @Description Billing tooling charges an explicit coin price, e.g. a negotiated or discounted one.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param code path string true "Feature code"
// @Param request body pricedPurchaseRequest true "Coin price"
// @Success 201 {object} response.Envelope{data=Receipt}
// @Failure 404,409,422,500 {object} response.Envelope
// @Router /admin/workspaces/{workspaceID}/features/{code}/purchase [post]
func (h *Handler) PurchaseWithPrice(w http.ResponseWriter, r *http.Request) {
	var req pricedPurchaseRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	receipt, err := h.svc.PurchaseFeatureWithCoins(r.Context(), middleware.GetWorkspaceID(r.Context()), chi.URLParam(r, "code"), req.Price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, receipt)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidPrice):
		response.ValidationError(w, map[string]string{"price": "Must be greater than zero"})
	case errors.Is(err, ErrNotForSale):
		response.Error(w, http.StatusNotFound, "NOT_FOR_SALE", "Feature has no price and cannot be bought")
	case errors.Is(err, entitlement.ErrUnknownFeature), errors.Is(err, feature.ErrFeatureInactive),
		errors.Is(err, entitlement.ErrVersionConflict), errors.Is(err, entitlement.ErrInvalidWorkspace):
		entitlement.WriteError(w, r, err)
	default:
		wallet.WriteError(w, r, err)
	}
}
