package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jitaccess/jitaccess/internal/audit"
	"github.com/jitaccess/jitaccess/internal/catalog"
	"github.com/jitaccess/jitaccess/internal/directory"
	"github.com/jitaccess/jitaccess/internal/eligibility"
	"github.com/jitaccess/jitaccess/internal/grants"
	"github.com/jitaccess/jitaccess/internal/observability"
	"github.com/jitaccess/jitaccess/internal/reports"
	"github.com/jitaccess/jitaccess/internal/requests"
	"github.com/jitaccess/jitaccess/internal/teams"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Metrics            *observability.Metrics
	DirectoryRepo      directory.Repository
	DirectoryHandler   *directory.Handler
	EligibilityHandler *eligibility.Handler
	RequestsHandler    *requests.Handler
	GrantsHandler      *grants.Handler
	CatalogHandler     *catalog.Handler
	TeamsHandler       *teams.Handler
	AuditHandler       *audit.Handler
	ReportsHandler     *reports.Handler
}

// NewRouter wires the full API surface.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	identityHeader := "X-Remote-User"
	if p.Config != nil && p.Config.IdentityHeader != "" {
		identityHeader = p.Config.IdentityHeader
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(directory.Identity(p.DirectoryRepo, identityHeader))

		r.Group(func(r chi.Router) {
			p.DirectoryHandler.MountUser(r)
			p.EligibilityHandler.MountUser(r)
			p.RequestsHandler.MountUser(r)
			p.GrantsHandler.MountUser(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(directory.RequireApprover)
			p.RequestsHandler.MountApprover(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(directory.RequireAdmin)
			p.DirectoryHandler.MountAdmin(r)
			p.GrantsHandler.MountAdmin(r)
			p.CatalogHandler.MountAdmin(r)
			p.TeamsHandler.MountAdmin(r)
			p.AuditHandler.MountAdmin(r)
			p.ReportsHandler.MountAdmin(r)
		})
	})

	return r
}
