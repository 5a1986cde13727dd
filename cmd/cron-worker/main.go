package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/cardhold-backend/internal/cron"
	"github.com/angelmondragon/cardhold-backend/internal/deposits"
	"github.com/angelmondragon/cardhold-backend/internal/jobhealth"
	"github.com/angelmondragon/cardhold-backend/internal/notifications"
	"github.com/angelmondragon/cardhold-backend/internal/webhook"
	"github.com/angelmondragon/cardhold-backend/pkg/config"
	"github.com/angelmondragon/cardhold-backend/pkg/db"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
	"github.com/angelmondragon/cardhold-backend/pkg/metrics"
	"github.com/angelmondragon/cardhold-backend/pkg/migrate"
	"github.com/angelmondragon/cardhold-backend/pkg/redis"
	"github.com/angelmondragon/cardhold-backend/pkg/square"
)

const lockKeyFormat = "ch:cron-worker:lock:%s:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	depositRepo := deposits.NewRepository(dbClient.DB())
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

	depositService, err := deposits.NewService(depositRepo, squareClient, notificationService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create deposit service", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(
		cron.Entry{
			Job: cron.NewReauthorizeJob(cron.ReauthorizeJobParams{
				Logger:    logg,
				Source:    depositRepo,
				Service:   depositService,
				Threshold: cfg.Deposit.ReauthorizeAfter(),
				BatchSize: cfg.Deposit.ReauthorizeBatchSize,
			}),
			Every: cfg.Deposit.ReauthorizeInterval,
		},
		cron.Entry{
			Job:   cron.NewWebhookRetryJob(logg, dispatcher),
			Every: cfg.Webhook.RetryBaseInterval(),
		},
	)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks: func(jobName string) (cron.Lock, error) {
			return cron.NewRedisLock(redisClient, lockKey(cfg.App.Env, jobName), 0)
		},
		Metrics: metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Health:  jobhealth.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env, job string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env, job)
}
