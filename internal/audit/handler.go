package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jitaccess/jitaccess/internal/platform/httpx"
)

// Handler serves the audit trail listing.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountAdmin registers the audit log listing.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/admin/audit-logs", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	filters := Filters{
		Search:    q.Get("search"),
		EventType: q.Get("event_type"),
		Page:      page,
		PerPage:   perPage,
	}
	if from, err := parseTime(q.Get("from")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from timestamp")
		return
	} else {
		filters.From = from
	}
	if to, err := parseTime(q.Get("to")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to timestamp")
		return
	} else {
		filters.To = to
	}

	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit logs", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, strconv.ErrSyntax
}
