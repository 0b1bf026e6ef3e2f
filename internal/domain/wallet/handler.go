package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/middleware"
	"github.com/playgive/playgive-api/internal/pkg/money"
	"github.com/playgive/playgive-api/internal/pkg/response"
	"github.com/playgive/playgive-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type donationRequest struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
	Amount      string    `json:"amount" validate:"required"`
	ExternalRef *string   `json:"external_ref,omitempty"`
}

type policyRequest struct {
	Enabled     bool      `json:"enabled"`
	Threshold   string    `json:"threshold"`
	Percentage  int       `json:"percentage" validate:"omitempty,min=1,max=100"`
	RecipientID uuid.UUID `json:"recipient_id"`
}

// Donate handles donation_requested for a single donation.
func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		response.BadRequest(w, "invalid amount")
		return
	}

	wallet, txn, err := h.svc.Donate(r.Context(), req.UserID, req.RecipientID, amount, req.ExternalRef)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"wallet": wallet, "transaction": txn})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}
	wallet, err := h.svc.GetWallet(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, wallet)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	typeFilter := r.URL.Query().Get("type")
	if err := validator.ValidateVar(typeFilter, "txn_type"); err != nil {
		response.BadRequest(w, "invalid transaction type")
		return
	}

	txns, total, err := h.svc.History(r.Context(), userID, TransactionType(typeFilter), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pages := (total + limit - 1) / limit
	response.WithMeta(w, txns, response.Meta{
		Total:   total,
		Page:    offset/limit + 1,
		Limit:   limit,
		Pages:   pages,
		HasNext: offset+len(txns) < total,
		HasPrev: offset > 0,
	})
}

func (h *Handler) SetPolicy(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	var req policyRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	policy := AutoDonationPolicy{
		Enabled:     req.Enabled,
		Percentage:  req.Percentage,
		RecipientID: req.RecipientID,
	}
	if req.Threshold != "" {
		threshold, err := money.FromString(req.Threshold)
		if err != nil {
			response.BadRequest(w, "invalid threshold")
			return
		}
		policy.Threshold = threshold
	}

	wallet, err := h.svc.SetAutoDonationPolicy(r.Context(), userID, policy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, wallet)
}

type adjustRequest struct {
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	var req adjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}
	amount, err := money.FromString(req.Amount)
	if err != nil {
		response.BadRequest(w, "invalid amount")
		return
	}

	wallet, txn, err := h.svc.Adjust(r.Context(), userID, actorID(r), amount, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"wallet": wallet, "transaction": txn})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}
	if err := h.svc.Deactivate(r.Context(), userID, actorID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	txnID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}
	wallet, txn, err := h.svc.ReleaseHold(r.Context(), txnID, actorID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"wallet": wallet, "transaction": txn})
}

func (h *Handler) RejectHold(w http.ResponseWriter, r *http.Request) {
	txnID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}
	txn, err := h.svc.RejectHold(r.Context(), txnID, actorID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, txn)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	txnID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		response.BadRequest(w, "invalid transaction id")
		return
	}
	wallet, txn, err := h.svc.Refund(r.Context(), txnID, actorID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"wallet": wallet, "transaction": txn})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidPolicy):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		response.Conflict(w, "insufficient wallet balance")
	case errors.Is(err, ErrConflict):
		response.Conflict(w, "wallet busy, retry the request")
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrTransactionNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrUnknownRecipient):
		response.NotFound(w, "unknown recipient")
	case errors.Is(err, ErrWalletInactive):
		response.Forbidden(w, "wallet is deactivated")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w)
	}
}

// actorID is the authenticated admin performing the action, for audit records.
func actorID(r *http.Request) uuid.UUID {
	return middleware.GetUserID(r.Context())
}

// DonationRoutes is the inbound donation_requested endpoint, mounted at
// /donations for upstream systems.
func (h *Handler) DonationRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Donate)
	return r
}

// WalletRoutes is the admin wallet surface, mounted at /wallets.
func (h *Handler) WalletRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/{userID}", h.Get)
	r.Get("/{userID}/transactions", h.History)
	r.Put("/{userID}/auto-donation", h.SetPolicy)
	r.Post("/{userID}/adjust", h.Adjust)
	r.Post("/{userID}/deactivate", h.Deactivate)
	return r
}

// TransactionRoutes is the admin review surface, mounted at /transactions.
func (h *Handler) TransactionRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/{transactionID}/release", h.ReleaseHold)
	r.Post("/{transactionID}/reject", h.RejectHold)
	r.Post("/{transactionID}/refund", h.Refund)
	return r
}
