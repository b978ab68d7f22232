// Package app assembles the ward service from its stores and collaborators.
package app

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/fixmyward/ward-service/internal/api/http"
	"github.com/fixmyward/ward-service/internal/api/http/handlers"
	"github.com/fixmyward/ward-service/internal/auth"
	"github.com/fixmyward/ward-service/internal/compose"
	"github.com/fixmyward/ward-service/internal/config"
	"github.com/fixmyward/ward-service/internal/events"
	"github.com/fixmyward/ward-service/internal/observability"
	"github.com/fixmyward/ward-service/internal/repository"
	"github.com/fixmyward/ward-service/internal/service"
	"github.com/fixmyward/ward-service/internal/wardroom"
	"github.com/fixmyward/ward-service/internal/worker"
)

// Stores are the persistence backends.
type Stores struct {
	Users          repository.UserRepository
	Issues         repository.IssueRepository
	Notifications  repository.NotificationRepository
	PasswordResets repository.PasswordResetRepository
	History        repository.IssueHistoryRepository
}

// Options carries the optional collaborators. Any of them may be nil.
type Options struct {
	Generator compose.TextGenerator
	Cache     compose.DraftCache
	Probes    map[string]handlers.Pinger
	Metrics   *observability.Metrics
}

// App is a fully wired service.
type App struct {
	Fiber   *fiber.App
	Hub     *wardroom.Hub
	Metrics *observability.Metrics
	Auth    *service.AuthService

	pool   *worker.Pool
	logger *zap.Logger
}

// New wires services, the ward-room hub and the HTTP surface.
func New(cfg *config.Config, logger *zap.Logger, stores Stores, opts Options) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	dispatcher := events.NewInMemoryDispatcher(logger.Named("events"))
	hub := wardroom.NewHub(logger.Named("wardroom"), metrics)
	// The relay subscribes first so the ward hears about a change before
	// notification jobs are queued for it.
	wardroom.NewRelay(hub, logger.Named("relay")).Register(dispatcher)

	pool := worker.NewPool(cfg.Notification.Workers, cfg.Notification.QueueSize, logger.Named("worker"))
	composer := compose.NewComposer(compose.Options{
		Generator: opts.Generator,
		Cache:     opts.Cache,
		Timeout:   cfg.Composer.Timeout(),
		CacheTTL:  cfg.Composer.CacheTTL(),
		Logger:    logger.Named("composer"),
	})

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:   stores.Users,
		ResetRepo:  stores.PasswordResets,
		Dispatcher: dispatcher,
		Logger:     logger.Named("auth"),
	})
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:   stores.Issues,
		HistoryRepo: stores.History,
		Dispatcher:  dispatcher,
		Logger:      logger.Named("issues"),
	})
	notificationService := service.NewNotificationService(cfg.Notification, service.NotificationDependencies{
		NotificationRepo: stores.Notifications,
		UserRepo:         stores.Users,
		IssueRepo:        stores.Issues,
		Composer:         composer,
		Jobs:             pool,
		Dispatcher:       dispatcher,
		Logger:           logger.Named("notifications"),
	})
	notificationService.RegisterHandlers()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), stores.Users)

	fiberApp := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(fiberApp, logger, metrics, cfg.App.AllowedOrigins, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, opts.Probes, metrics, hub),
		Auth:          handlers.NewAuthHandler(authService),
		Issues:        handlers.NewIssuesHandler(issueService, composer),
		Notifications: handlers.NewNotificationsHandler(notificationService),
		Realtime: handlers.NewRealtimeHandler(authMiddleware, hub, wardroom.ClientOptions{
			SendBuffer:      cfg.Realtime.SendBuffer,
			MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
			InboundRate:     cfg.Realtime.InboundRate,
			InboundBurst:    cfg.Realtime.InboundBurst,
		}, metrics, logger.Named("ws")),
		AuthMiddleware: authMiddleware,
	})

	return &App{
		Fiber:   fiberApp,
		Hub:     hub,
		Metrics: metrics,
		Auth:    authService,
		pool:    pool,
		logger:  logger,
	}
}

// Shutdown stops accepting requests, then drains queued notification jobs.
func (a *App) Shutdown(ctx context.Context) error {
	httpErr := a.Fiber.ShutdownWithContext(ctx)
	poolErr := a.pool.Shutdown(ctx)
	return errors.Join(httpErr, poolErr)
}
