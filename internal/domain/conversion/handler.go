package conversion

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/playgive/playgive-api/internal/domain/wallet"
	"github.com/playgive/playgive-api/internal/pkg/response"
	"github.com/playgive/playgive-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type activityRequest struct {
	UserID     uuid.UUID `json:"user_id" validate:"required"`
	DurationMS int64     `json:"duration_ms" validate:"required"`
	Tags       []string  `json:"tags"`
	SessionID  string    `json:"session_id"`
	DeviceInfo string    `json:"device_info"`
}

// Activity ingests one activity_completed event.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	outcome, err := h.svc.Process(r.Context(), ConvertRequest{
		UserID:     req.UserID,
		DurationMS: req.DurationMS,
		Tags:       req.Tags,
		SessionID:  req.SessionID,
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDurationTooLong), errors.Is(err, ErrInvalidRequest):
			response.BadRequest(w, err.Error())
		case errors.Is(err, wallet.ErrWalletInactive):
			response.Forbidden(w, "wallet is deactivated")
		case errors.Is(err, wallet.ErrConflict):
			response.Conflict(w, "wallet busy, retry the request")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, outcome)
}

// Routes is the inbound activity_completed endpoint, mounted at /activities.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Activity)
	return r
}
