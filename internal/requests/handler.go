package requests

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

// Handler manages access request endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountUser registers endpoints available to every authenticated user.
func (h *Handler) MountUser(r chi.Router) {
	r.Post("/requests", h.submit)
	r.Get("/user/requests", h.listMine)
	r.Post("/requests/{id}/cancel", h.cancel)
}

// MountApprover registers the approver queue and decision endpoints.
func (h *Handler) MountApprover(r chi.Router) {
	r.Get("/approver/pending", h.listPending)
	r.Get("/approver/requests/{id}", h.detail)
	r.Post("/requests/{id}/approve", h.approve)
	r.Post("/requests/{id}/deny", h.deny)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req SubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	detail, err := h.service.Submit(r.Context(), principal, req)
	if err != nil {
		h.respondErr(w, "submit request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, detail)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	out, err := h.service.ListForUser(r.Context(), principal.ID)
	if err != nil {
		h.respondErr(w, "list own requests", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListPending(r.Context())
	if err != nil {
		h.respondErr(w, "list pending requests", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := requestID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	detail, err := h.service.GetDetail(r.Context(), id, principal)
	if err != nil {
		h.respondErr(w, "get request detail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := requestID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	detail, err := h.service.Cancel(r.Context(), id, principal.ID)
	if err != nil {
		h.respondErr(w, "cancel request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx *http.Request, id int64, p directory.Principal, reason string) (*Detail, error) {
		return h.service.Approve(ctx.Context(), id, p, reason)
	})
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx *http.Request, id int64, p directory.Principal, reason string) (*Detail, error) {
		return h.service.Deny(ctx.Context(), id, p, reason)
	})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(*http.Request, int64, directory.Principal, string) (*Detail, error)) {
	principal, ok := directory.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := requestID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	// Body is optional; an approval without a reason is fine.
	var req DecisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		req = DecisionRequest{}
	}
	detail, err := fn(r, id, principal, req.Reason)
	if err != nil {
		h.respondErr(w, "decide request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	var notEligible *eligibility.NotEligibleError
	switch {
	case errors.As(err, &notEligible):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Not Eligible", notEligible.Error())
	case errors.Is(err, ErrUnknownRole):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Role", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrSelfApproval), errors.Is(err, ErrNotRequestOwner):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrNoRoles),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrDurationExceedsMax),
		errors.Is(err, ErrJustificationRequired),
		errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func requestID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
