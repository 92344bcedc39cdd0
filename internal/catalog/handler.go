package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/platform/httpx"
)

// Handler manages role catalog administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountAdmin registers role catalog administration.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/admin/roles", h.list)
	r.Post("/admin/roles", h.create)
	r.Get("/admin/roles/{id}", h.get)
	r.Put("/admin/roles/{id}", h.update)
	r.Delete("/admin/roles/{id}", h.delete)
	r.Post("/admin/roles/{id}/toggle", h.toggle)
	r.Get("/admin/roles/{id}/holders", h.holders)
	r.Get("/admin/roles/{id}/rules", h.getRules)
	r.Put("/admin/roles/{id}/rules", h.setRules)
	r.Get("/admin/db-roles", h.listDbRoles)
	r.Get("/admin/roles/{id}/db-roles", h.getDbRoles)
	r.Put("/admin/roles/{id}/db-roles", h.setDbRoles)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondErr(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	var req CreateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), req, principal.ID)
	if err != nil {
		h.respondErr(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req UpdateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req, principal.ID)
	if err != nil {
		h.respondErr(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id, principal.ID); err != nil {
		h.respondErr(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req ToggleRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.service.ToggleRole(r.Context(), id, req.IsEnabled, principal.ID); err != nil {
		h.respondErr(w, "toggle role", err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) holders(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	out, err := h.service.ListHolders(r.Context(), id)
	if err != nil {
		h.respondErr(w, "list holders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"holders": out})
}

func (h *Handler) getRules(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	rules, err := h.service.GetRules(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get rules", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) setRules(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req SetRulesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetRules(r.Context(), id, req, principal.ID); err != nil {
		h.respondErr(w, "set rules", err)
		return
	}
	rules, err := h.service.GetRules(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get rules", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) listDbRoles(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListAvailableDbRoles(r.Context())
	if err != nil {
		h.respondErr(w, "list db roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"db_roles": out})
}

func (h *Handler) getDbRoles(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	out, err := h.service.GetDbRoles(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get role db roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"db_roles": out})
}

func (h *Handler) setDbRoles(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req SetDbRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.service.SetDbRoles(r.Context(), id, req.DbRoleIDs, principal.ID); err != nil {
		h.respondErr(w, "set role db roles", err)
		return
	}
	out, err := h.service.GetDbRoles(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get role db roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"db_roles": out})
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrEmptyScopeValue),
		errors.Is(err, ErrInvalidScopeType),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidPriority),
		errors.Is(err, ErrInvalidSeniority):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func roleID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
