package server

import (
	"log/slog"
	"net/http"
	"time"

	"tablelink-backend/internal/config"
	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires HTTP routes and middleware.
func NewRouter(cfg config.Config,
	logger *slog.Logger,
	health handler.HealthHandler,
	settlement handler.SettlementHandler,
	tables handler.TableHandler,
	tickets handler.TicketHandler,
	loyalty handler.LoyaltyHandler,
	export handler.ExportHandler,
	ws handler.WSHandler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Long-lived terminal sockets stay outside the request timeout.
	ws.RegisterRoutes(r)

	r.Group(func(hr chi.Router) {
		hr.Use(middleware.Timeout(60 * time.Second))
		hr.Use(httprate.LimitByIP(200, 1*time.Minute))

		health.RegisterRoutes(hr)
		hr.Method("GET", "/metrics", promhttp.Handler())

		// Customer-facing: self-service checkout and table state.
		settlement.RegisterRoutes(hr)
		tables.RegisterRoutes(hr)
		loyalty.RegisterRoutes(hr)

		hr.Group(func(pr chi.Router) {
			pr.Use(AuthMiddleware(cfg.JWTSecret))
			// staff-level (staff/manager/admin)
			pr.Group(func(sr chi.Router) {
				sr.Use(RequireRole(domain.RoleAdmin, domain.RoleManager, domain.RoleStaff))
				tables.RegisterStaffRoutes(sr)
				tickets.RegisterRoutes(sr)
			})
			// manager-level (manager/admin)
			pr.Group(func(mr chi.Router) {
				mr.Use(RequireRole(domain.RoleAdmin, domain.RoleManager))
				export.RegisterRoutes(mr)
			})
		})
	})

	return r
}
