package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	SLA            *handlers.SLAHandler
	Policies       *handlers.PoliciesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/token", cfg.Auth.Token)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Post("/:id/sla", auth.RequireRole(auth.RoleAgent, auth.RoleAdmin), cfg.SLA.Register)
	tickets.Get("/:id/sla", cfg.SLA.GetStatus)
	tickets.Post("/:id/sla/pause", auth.RequireRole(auth.RoleAgent, auth.RoleAdmin), cfg.SLA.Pause)
	tickets.Post("/:id/sla/resume", auth.RequireRole(auth.RoleAgent, auth.RoleAdmin), cfg.SLA.Resume)
	tickets.Post("/:id/sla/status", auth.RequireRole(auth.RoleAgent, auth.RoleAdmin), cfg.SLA.StatusChanged)

	slaGroup := api.Group("/sla")
	slaGroup.Get("/breached", cfg.SLA.ListBreached)
	slaGroup.Post("/scan", auth.RequireRole(auth.RoleAdmin), cfg.SLA.TriggerScan)
	slaGroup.Post("/policies", auth.RequireRole(auth.RoleAdmin), cfg.Policies.Create)
	slaGroup.Get("/policies", cfg.Policies.List)
	slaGroup.Get("/policies/:id", cfg.Policies.Get)
}
