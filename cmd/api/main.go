package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apihttp "github.com/spec-kit/sla-service/internal/api/http"
	"github.com/spec-kit/sla-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/persistence"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/service"
	"github.com/spec-kit/sla-service/internal/sla"
	"github.com/spec-kit/sla-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	postgres, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer postgres.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, postgres.PoolHandle(), logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}

	redisStore := persistence.NewRedis(cfg.Redis, logger)
	defer redisStore.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications.RegisterHandlers()

	stateRepo := repository.NewTicketSLARepository(postgres.PoolHandle())
	policyRepo := repository.NewSLAPolicyRepository(postgres.PoolHandle())
	policyStore := repository.NewCachedPolicyStore(policyRepo, redisStore.ClientHandle(), cfg.SLA.PolicyCacheTTL(), logger)

	clock := sla.SystemClock()
	slaService := service.NewSLAService(service.SLADependencies{
		StateRepo:       stateRepo,
		PolicyStore:     policyStore,
		Dispatcher:      dispatcher,
		Clock:           clock,
		Logger:          logger,
		AtRiskThreshold: cfg.SLA.AtRiskThreshold,
		RetryAttempts:   cfg.SLA.UpdateRetryAttempts,
	})

	scanner := worker.NewReconciliationWorker(worker.Dependencies{
		StateRepo:  stateRepo,
		SLAService: slaService,
		Dispatcher: dispatcher,
		Clock:      clock,
		Logger:     logger,
		Metrics:    metrics,
		Locker:     redisStore.ClientHandle(),
		Interval:   cfg.SLA.ScanInterval(),
	})
	go scanner.Run(ctx)

	authService := service.NewAuthService(cfg.Auth)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})

	apihttp.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	apihttp.RegisterRoutes(app, apihttp.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, postgres, redisStore),
		Auth:           handlers.NewAuthHandler(authService),
		SLA:            handlers.NewSLAHandler(slaService, scanner),
		Policies:       handlers.NewPoliciesHandler(policyStore),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
	})

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Error("http server stopped", zap.Error(err))
			cancel()
		}
	}()

	waitForShutdown(ctx, logger)
	cancel()
	if err := app.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("service stopped")
}

func waitForShutdown(ctx context.Context, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
}
