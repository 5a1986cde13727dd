package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/cardhold-backend/api/routes"
	"github.com/angelmondragon/cardhold-backend/internal/deposits"
	"github.com/angelmondragon/cardhold-backend/internal/jobhealth"
	"github.com/angelmondragon/cardhold-backend/internal/notifications"
	"github.com/angelmondragon/cardhold-backend/internal/webhook"
	"github.com/angelmondragon/cardhold-backend/pkg/config"
	"github.com/angelmondragon/cardhold-backend/pkg/db"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
	"github.com/angelmondragon/cardhold-backend/pkg/migrate"
	"github.com/angelmondragon/cardhold-backend/pkg/redis"
	"github.com/angelmondragon/cardhold-backend/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create square client", err)
		os.Exit(1)
	}

	retryRepo := notifications.NewRetryRepository(dbClient.DB())
	dlqRepo := notifications.NewDeadLetterRepository(dbClient.DB())
	dispatcher, err := webhook.NewDispatcher(webhook.Config{
		Endpoint:     cfg.Webhook.AlertURL,
		Timeout:      cfg.Webhook.AlertTimeout(),
		BaseInterval: cfg.Webhook.RetryBaseInterval(),
		MaxAttempts:  cfg.Webhook.RetryMaxAttempts,
		BatchSize:    cfg.Webhook.RetryBatchSize,
	}, retryRepo, dlqRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook dispatcher", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(
		notifications.NewLogRepository(dbClient.DB()),
		dlqRepo,
		dispatcher,
		dispatcher,
		cfg.Webhook.AlertURL,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	depositService, err := deposits.NewService(
		deposits.NewRepository(dbClient.DB()),
		squareClient,
		notificationService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create deposit service", err)
		os.Exit(1)
	}

	jobHealthRepo := jobhealth.NewRepository(dbClient.DB())

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, depositService, notificationService, jobHealthRepo),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
