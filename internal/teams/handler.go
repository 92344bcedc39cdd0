package teams

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

// Handler manages team administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountAdmin registers team administration.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/admin/teams", h.list)
	r.Post("/admin/teams", h.create)
	r.Put("/admin/teams/{id}", h.update)
	r.Delete("/admin/teams/{id}", h.delete)
	r.Get("/admin/teams/{id}/members", h.members)
	r.Put("/admin/teams/{id}/members", h.setMembers)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		h.respondErr(w, "list teams", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"teams": out})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	var req CreateTeamRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	team, err := h.service.Create(r.Context(), req, principal.ID)
	if err != nil {
		h.respondErr(w, "create team", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, team)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	id, err := teamID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid team id")
		return
	}
	var req UpdateTeamRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	team, err := h.service.Update(r.Context(), id, req, principal.ID)
	if err != nil {
		h.respondErr(w, "update team", err)
		return
	}
	httpx.JSON(w, http.StatusOK, team)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	id, err := teamID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid team id")
		return
	}
	if err := h.service.Delete(r.Context(), id, principal.ID); err != nil {
		h.respondErr(w, "delete team", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	id, err := teamID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid team id")
		return
	}
	out, err := h.service.Members(r.Context(), id)
	if err != nil {
		h.respondErr(w, "list team members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *Handler) setMembers(w http.ResponseWriter, r *http.Request) {
	principal, _ := directory.PrincipalFromContext(r.Context())
	id, err := teamID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid team id")
		return
	}
	var req SetMembersRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, err := h.service.SetMembers(r.Context(), id, req, principal.ID)
	if err != nil {
		h.respondErr(w, "set team members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrUnknownUser):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func teamID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
