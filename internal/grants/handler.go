package grants

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/eligibility"
	"github.com/jitaccess/jitaccess/internal/platform/httpx"
)

// RevokeRequest is the admin payload for revoking a grant.
type RevokeRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// ExtendRequest is the admin payload for extending a grant.
type ExtendRequest struct {
	DurationMinutes int `json:"duration_minutes" validate:"required,gt=0"`
}

// Handler manages grant endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountUser registers the holder's own grant listing.
func (h *Handler) MountUser(r chi.Router) {
	r.Get("/user/grants", h.listMine)
}

// MountAdmin registers administrative grant management.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/admin/grants", h.listAdmin)
	r.Post("/admin/grants/{id}/revoke", h.revoke)
	r.Post("/admin/grants/{id}/extend", h.extend)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	out, err := h.service.ListActiveForUser(r.Context(), principal.ID)
	if err != nil {
		h.respondErr(w, "list own grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": out})
}

func (h *Handler) listAdmin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	roleID, _ := strconv.ParseInt(q.Get("role_id"), 10, 64)

	rowsOut, paging, err := h.service.ListAdmin(r.Context(), ListRequest{
		Search:  q.Get("search"),
		Status:  q.Get("status"),
		RoleID:  roleID,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.respondErr(w, "list grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": rowsOut, "pagination": paging})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := grantID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid grant id")
		return
	}
	var req RevokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		req = RevokeRequest{}
	}
	g, err := h.service.Revoke(r.Context(), id, principal.ID, req.Reason)
	if err != nil {
		h.respondErr(w, "revoke grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) extend(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := grantID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid grant id")
		return
	}
	var req ExtendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	g, err := h.service.Extend(r.Context(), id, principal.ID, req.DurationMinutes)
	if err != nil {
		h.respondErr(w, "extend grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	var notEligible *eligibility.NotEligibleError
	switch {
	case errors.As(err, &notEligible):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Not Eligible", notEligible.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotActive):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrDurationExceedsMax), errors.Is(err, ErrIndefiniteExtension):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func grantID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
