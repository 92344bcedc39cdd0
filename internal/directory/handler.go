package directory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jitaccess/jitaccess/internal/platform/httpx"
)

// SystemRolesRequest replaces the portal role flags of a user.
type SystemRolesRequest struct {
	IsAdmin       bool `json:"is_admin"`
	IsApprover    bool `json:"is_approver"`
	IsDataSteward bool `json:"is_data_steward"`
}

// Handler manages directory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountUser registers the identity endpoint.
func (h *Handler) MountUser(r chi.Router) {
	r.Get("/me", h.me)
}

// MountAdmin registers the user administration endpoints.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/admin/users", h.list)
	r.Put("/admin/users/{id}/system-roles", h.setSystemRoles)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	users, paging, err := h.service.List(r.Context(), ListRequest{
		Search:     q.Get("search"),
		Department: q.Get("department"),
		SystemRole: q.Get("system_role"),
		Status:     q.Get("status"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users, "pagination": paging})
}

func (h *Handler) setSystemRoles(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req SystemRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	updated, err := h.service.SetSystemRoles(r.Context(), id, SystemRoles{
		IsAdmin:       req.IsAdmin,
		IsApprover:    req.IsApprover,
		IsDataSteward: req.IsDataSteward,
	}, principal.ID)
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("set system roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}
