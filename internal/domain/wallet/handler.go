package wallet

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/worksuite/worksuite-api/internal/middleware"
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

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type entryRequest struct {
	Type          string          `json:"type" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=255"`
	ReferenceType string          `json:"reference_type" validate:"max=50"`
	ReferenceID   string          `json:"reference_id" validate:"max=100"`
}

// Summary handles GET /workspaces/{workspaceID}/wallet
// @Summary Wallet summary
// @Description Balance, reserved and available amounts with lifetime earnings and spending.
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Success 200 {object} response.Envelope{data=Summary}
// @Failure 400,401,403,404,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/wallet [get]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GetSummary(r.Context(), middleware.GetWorkspaceID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.OK(w, summary)
}

// Balance handles GET /workspaces/{workspaceID}/wallet/balance
// @Summary Wallet balance
// @Description Returns 0 when the workspace has no wallet yet.
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Success 200 {object} response.Envelope{data=object{balance=string,available=string}}
// @Failure 400,401,403,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/wallet/balance [get]
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	balance, err := h.svc.GetBalance(r.Context(), workspaceID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	available, err := h.svc.GetAvailableBalance(r.Context(), workspaceID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"balance":   balance,
		"available": available,
	})
}

// Transactions handles GET /workspaces/{workspaceID}/wallet/transactions
// @Summary Transaction history
// @Description Newest first. limit defaults to 20 and is capped at 100.
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Param type query string false "Transaction type"
// @Success 200 {object} response.Envelope{data=[]Transaction}
// @Failure 400,401,403,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/wallet/transactions [get]
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := HistoryFilter{}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = offset
	}
	if v := q.Get("type"); v != "" {
		t := TransactionType(v)
		filter.Type = &t
	}

	filter = filter.normalize()
	items, err := h.svc.GetTransactionHistory(r.Context(), middleware.GetWorkspaceID(r.Context()), filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.WithMeta(w, items, response.Meta{
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		Count:   len(items),
		HasNext: len(items) == filter.Limit,
	})
}

// Reserve handles POST /workspaces/{workspaceID}/wallet/reservations
// @Summary Reserve balance
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param request body amountRequest true "Amount to reserve"
// @Success 200 {object} response.Envelope{data=Wallet}
// @Failure 400,404,409,422,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/wallet/reservations [post]
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.reservation(w, r, h.svc.ReserveBalance)
}

// Release handles POST /workspaces/{workspaceID}/wallet/reservations/release
// @Summary Release reserved balance
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param request body amountRequest true "Amount to release"
// @Success 200 {object} response.Envelope{data=Wallet}
// @Failure 400,404,409,422,500 {object} response.Envelope
// @Router /workspaces/{workspaceID}/wallet/reservations/release [post]
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	h.reservation(w, r, h.svc.ReleaseReservedBalance)
}

func (h *Handler) reservation(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (*Wallet, error)) {
	var req amountRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	wallet, err := h.svc.GetWallet(r.Context(), middleware.GetWorkspaceID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	updated, err := fn(r.Context(), wallet.ID, req.Amount)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.OK(w, updated)
}

// Open handles POST /admin/workspaces/{workspaceID}/wallet
// @Summary Open workspace wallet (admin)
// @Description Creates the wallet and credits the onboarding bonus. Idempotent.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Success 201 {object} response.Envelope{data=Wallet}
// @Failure 400,401,403,500 {object} response.Envelope
// @Router /admin/workspaces/{workspaceID}/wallet [post]
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	opened, err := h.svc.OpenWallet(r.Context(), middleware.GetWorkspaceID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.Created(w, opened)
}

// Credit handles POST /admin/workspaces/{workspaceID}/wallet/credits
// @Summary Manual credit (admin)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param request body entryRequest true "Credit entry"
// @Success 201 {object} response.Envelope{data=Transaction}
// @Failure 400,404,422,500 {object} response.Envelope
// @Router /admin/workspaces/{workspaceID}/wallet/credits [post]
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	h.entry(w, r, h.svc.Credit)
}

// Debit handles POST /admin/workspaces/{workspaceID}/wallet/debits
// @Summary Manual debit (admin)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workspaceID path string true "Workspace ID"
// @Param request body entryRequest true "Debit entry"
// @Success 201 {object} response.Envelope{data=Transaction}
// @Failure 400,404,409,422,500 {object} response.Envelope
// @Router /admin/workspaces/{workspaceID}/wallet/debits [post]
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	h.entry(w, r, h.svc.Debit)
}

func (h *Handler) entry(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, workspaceID uuid.UUID, t TransactionType, amount decimal.Decimal, description string, ref *Reference) (*Transaction, error)) {
	var req entryRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	var ref *Reference
	if req.ReferenceType != "" || req.ReferenceID != "" {
		ref = &Reference{Type: req.ReferenceType, ID: req.ReferenceID}
	}

	entry, err := fn(r.Context(), middleware.GetWorkspaceID(r.Context()), TransactionType(req.Type), req.Amount, req.Description, ref)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.Created(w, entry)
}

// WriteError maps ledger errors to responses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *ValidationError
		insufficientErr *InsufficientFundsError
		overReleaseErr  *OverReleaseError
	)
	switch {
	case errors.As(err, &validationErr):
		response.ValidationError(w, map[string]string{validationErr.Field: validationErr.Reason})
	case errors.Is(err, ErrWalletNotFound):
		response.NotFound(w, "Wallet not found")
	case errors.As(err, &insufficientErr):
		response.ErrorWithDetails(w, http.StatusConflict, "INSUFFICIENT_FUNDS", "Insufficient wallet balance", map[string]string{
			"available": insufficientErr.Available.String(),
			"requested": insufficientErr.Requested.String(),
		})
	case errors.As(err, &overReleaseErr):
		response.ErrorWithDetails(w, http.StatusConflict, "OVER_RELEASE", "Release exceeds reserved balance", map[string]string{
			"reserved":  overReleaseErr.Reserved.String(),
			"requested": overReleaseErr.Requested.String(),
		})
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Wallet operation failed", err)
	}
}

// Routes mounts the workspace member endpoints. The workspace is resolved by the caller's router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Summary)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	r.Post("/reservations", h.Reserve)
	r.Post("/reservations/release", h.Release)
	return r
}

// AdminRoutes mounts the admin tooling endpoints.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Open)
	r.Post("/credits", h.Credit)
	r.Post("/debits", h.Debit)
	return r
}
