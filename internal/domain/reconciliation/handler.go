package reconciliation

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playgive/playgive-api/internal/middleware"
	"github.com/playgive/playgive-api/internal/pkg/response"
	"github.com/playgive/playgive-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type reconcileRequest struct {
	Period string `json:"period" validate:"required,period"`
}

func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(req); fieldErrors != nil {
		response.ValidationError(w, fieldErrors)
		return
	}

	report, err := h.svc.Reconcile(r.Context(), req.Period, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, report)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetReport(r.Context(), chi.URLParam(r, "period"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, report)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidPeriod):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrReportNotFound):
		response.NotFound(w, "no report for period")
	default:
		response.InternalError(w)
	}
}

// Routes is the admin reconciliation surface, mounted at /reconciliations.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Trigger)
	r.Get("/{period}", h.Get)
	return r
}
