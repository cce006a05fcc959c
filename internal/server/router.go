package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/waspershola/hospitech-nexus-sub005/internal/config"
	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/handler"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health    handler.HealthHandler
	Auth      handler.AuthHandler
	Bookings  handler.BookingHandler
	Approvals handler.ApprovalHandler
	Folios    handler.FolioHandler
	Groups    handler.GroupHandler
	Audit     handler.AuditLogHandler
}

var (
	approverRoles = []domain.StaffRole{domain.RoleOwner, domain.RoleManager, domain.RoleFinanceManager, domain.RoleAccounting}
	deskRoles     = append(append([]domain.StaffRole{}, approverRoles...), domain.RoleFrontDesk)
)

// NewRouter wires HTTP routes and middleware.
func NewRouter(cfg config.Config, logger *slog.Logger, rdb *redis.Client, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(200, 1*time.Minute))

	h.Health.RegisterRoutes(r)
	h.Auth.RegisterRoutes(r)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(AuthMiddleware(cfg.JWTSecret))
		pr.Use(NewIdempotency(rdb, cfg.IdempotencyTTL, logger))

		// Any signed-in staff may ask for an approval; the PIN owner's role is checked by the service.
		pr.Group(func(vr chi.Router) {
			vr.Use(httprate.LimitByIP(10, 1*time.Minute))
			h.Approvals.RegisterRoutes(vr)
		})
		// front desk and approvers
		pr.Group(func(dr chi.Router) {
			dr.Use(RequireRole(deskRoles...))
			h.Bookings.RegisterRoutes(dr)
			h.Folios.RegisterRoutes(dr)
			h.Folios.RegisterAdjustmentRoutes(dr)
			h.Groups.RegisterRoutes(dr)
		})
		// approvers only
		pr.Group(func(ar chi.Router) {
			ar.Use(RequireRole(approverRoles...))
			h.Approvals.RegisterAdminRoutes(ar)
			h.Audit.RegisterRoutes(ar)
		})
	})

	return otelhttp.NewHandler(r, cfg.ServiceName)
}
