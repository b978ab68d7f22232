package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fixmyward/ward-service/internal/api/http/handlers"
	"github.com/fixmyward/ward-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Issues         *handlers.IssuesHandler
	Notifications  *handlers.NotificationsHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.Signup)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/forgot", cfg.Auth.ForgotPassword)
	authGroup.Post("/reset", cfg.Auth.ResetPassword)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	issues := app.Group("/issues", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	issues.Post("/analyze", cfg.Issues.Analyze)
	issues.Post("/", cfg.Issues.CreateIssue)
	issues.Get("/", cfg.Issues.ListIssues)
	issues.Get("/:id", cfg.Issues.GetIssue)
	issues.Patch("/:id/status", cfg.Issues.UpdateStatus)
	issues.Get("/:id/history", cfg.Issues.History)
	issues.Post("/:id/comments", cfg.Issues.AddComment)
	issues.Delete("/:id", cfg.Issues.DeleteIssue)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	notifications.Get("/", cfg.Notifications.List)
	notifications.Patch("/:id/read", cfg.Notifications.MarkRead)
	notifications.Post("/compose", cfg.Notifications.Compose)

	app.Get("/ws", cfg.Realtime.Upgrade, cfg.Realtime.Serve())
}
