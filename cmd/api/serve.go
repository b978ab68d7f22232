package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/api/http/handlers"
	"github.com/fixmyward/ward-service/internal/app"
	"github.com/fixmyward/ward-service/internal/compose"
	"github.com/fixmyward/ward-service/internal/config"
	"github.com/fixmyward/ward-service/internal/observability"
	"github.com/fixmyward/ward-service/internal/persistence"
	"github.com/fixmyward/ward-service/internal/repository"
	"github.com/fixmyward/ward-service/internal/repository/memory"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect postgres", zap.Error(err))
		return err
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, "up", logger); err != nil {
			logger.Error("failed to run migrations", zap.Error(err))
			return err
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	stores := app.Stores{
		Users:          memory.NewUsers(),
		Issues:         memory.NewIssues(),
		Notifications:  memory.NewNotifications(),
		PasswordResets: memory.NewPasswordResets(),
		History:        memory.NewHistory(),
	}
	probes := map[string]handlers.Pinger{"redis": redis}
	if pg.Pool != nil {
		stores = app.Stores{
			Users:          repository.NewUserRepository(pg.Pool),
			Issues:         repository.NewIssueRepository(pg.Pool),
			Notifications:  repository.NewNotificationRepository(pg.Pool),
			PasswordResets: repository.NewPasswordResetRepository(pg.Pool),
			History:        repository.NewIssueHistoryRepository(pg.Pool),
		}
		probes["postgres"] = pg
	} else {
		logger.Warn("running on in-memory stores; data is lost on restart")
	}

	opts := app.Options{
		Cache:  compose.NewRedisDraftCache(redis.Client),
		Probes: probes,
	}
	gemini, err := compose.NewGeminiGenerator(ctx, cfg.Composer.APIKey, cfg.Composer.Model)
	if err != nil {
		logger.Warn("text generator unavailable; notifications use templates", zap.Error(err))
	} else if gemini != nil {
		opts.Generator = gemini
	}

	service := app.New(cfg, logger, stores, opts)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		errCh <- service.Fiber.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		logger.Error("fiber listen", zap.Error(err))
		return err
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return nil
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}
