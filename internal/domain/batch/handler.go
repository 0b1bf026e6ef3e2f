package batch

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/middleware"
	"github.com/playgive/playgive-api/internal/pkg/money"
	"github.com/playgive/playgive-api/internal/pkg/response"
	"github.com/playgive/playgive-api/internal/pkg/validator"
)

type Handler struct {
	coordinator *Coordinator
}

func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

type submitRequest struct {
	Items []submitItem `json:"items" validate:"required,min=1,dive"`
}

type submitItem struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
	Amount      string    `json:"amount" validate:"required"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	requests := make([]ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		amount, err := money.FromString(item.Amount)
		if err != nil {
			response.BadRequest(w, "invalid amount")
			return
		}
		requests = append(requests, ItemRequest{
			UserID:      item.UserID,
			RecipientID: item.RecipientID,
			Amount:      amount,
		})
	}

	op, err := h.coordinator.Submit(r.Context(), requests)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.coordinator.Start(op.ID)
	response.Created(w, op)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		response.BadRequest(w, "invalid batch id")
		return
	}
	op, items, err := h.coordinator.Status(r.Context(), batchID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"batch":    op,
		"progress": op.Progress(),
		"items":    items,
	})
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		response.BadRequest(w, "invalid batch id")
		return
	}
	op, err := h.coordinator.RetryFailed(r.Context(), batchID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.coordinator.Start(op.ID)
	response.OK(w, op)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		response.BadRequest(w, "invalid batch id")
		return
	}
	op, err := h.coordinator.Cancel(r.Context(), batchID, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, op)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyBatch):
		response.BadRequest(w, "batch must contain at least one item")
	case errors.Is(err, ErrBatchNotFound):
		response.NotFound(w, "batch not found")
	case errors.Is(err, ErrNotQueued), errors.Is(err, ErrAlreadyTerminal), errors.Is(err, ErrNothingToRetry):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w)
	}
}

// Routes is the admin batch surface, mounted at /batches.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Submit)
	r.Get("/{batchID}", h.Get)
	r.Post("/{batchID}/retry", h.Retry)
	r.Post("/{batchID}/cancel", h.Cancel)
	return r
}
