package eligibility

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/platform/httpx"
)

// Handler serves the requestable role listing.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountUser registers the per-user catalog view.
func (h *Handler) MountUser(r chi.Router) {
	r.Get("/roles/requestable", h.listRequestable)
}

func (h *Handler) listRequestable(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roles, err := h.service.ListRequestable(r.Context(), principal)
	if err != nil {
		h.logger.Error("list requestable roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}
