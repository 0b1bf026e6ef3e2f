package audit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playgive/playgive-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Verify checks chain integrity over ?from=&to= (inclusive seq bounds).
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid from seq")
		return
	}
	to, err := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid to seq")
		return
	}

	report, err := h.svc.Verify(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			response.BadRequest(w, err.Error())
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{
		"report": report,
		"intact": report.Intact(),
	})
}

// Routes is the admin audit surface, mounted at /audit.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/verify", h.Verify)
	return r
}
