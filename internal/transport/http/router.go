// Package httptransport is the thin HTTP layer. Handlers delegate to the
// data-access core through the request's data context and carry no business
// logic of their own.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dealerdesk/internal/platform/health"
	"dealerdesk/internal/platform/middleware"
	"dealerdesk/internal/requestdata"
)

// Handler holds the dependencies the route handlers need.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// NewRouter wires all endpoints with the middleware stack. Everything under
// /api is authenticated and runs inside a data scope; health and metrics
// endpoints stay outside it.
func NewRouter(h *Handler, validator middleware.TokenValidator, factory *requestdata.Factory, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequireAuth(validator, logger))
		api.Use(middleware.DataScope(factory))

		// Tenant-scoped inventory and workshop surface.
		api.Get("/vehicles", h.handleListVehicles)
		api.Get("/inspections", h.handleListInspections)
		api.Get("/workshop-quotes", h.handleListWorkshopQuotes)

		// Shared-scope platform administration surface.
		api.Get("/admin/overview", h.handleAdminOverview)
	})

	return r
}
