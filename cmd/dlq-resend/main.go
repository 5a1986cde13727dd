package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/cardhold-backend/internal/notifications"
	"github.com/angelmondragon/cardhold-backend/internal/webhook"
	"github.com/angelmondragon/cardhold-backend/pkg/config"
	"github.com/angelmondragon/cardhold-backend/pkg/db"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

// dlq-resend inspects and drains the webhook dead-letter store. Resends run
// outside the retry queue's attempt budget; a successful delivery removes the
// entry, a dry run prints the payload and leaves it in place.
func main() {
	logg := logger.New(logger.Options{ServiceName: "dlq-resend"})

	_ = godotenv.Load()

	list := flag.Bool("list", false, "list dead letters and exit")
	limit := flag.Int("limit", 50, "maximum dead letters to list")
	seq := flag.Int64("seq", 0, "notification sequence to resend")
	endpoint := flag.String("endpoint", "", "override delivery endpoint (defaults to the configured alert URL)")
	dryRun := flag.Bool("dry-run", false, "print the payload without delivering")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "dlq-resend",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

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
		logg.Error(ctx, "failed to create webhook dispatcher", err)
		os.Exit(1)
	}

	service, err := notifications.NewService(
		notifications.NewLogRepository(dbClient.DB()),
		dlqRepo,
		dispatcher,
		dispatcher,
		cfg.Webhook.AlertURL,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create notification service", err)
		os.Exit(1)
	}

	if *list {
		letters, err := service.ListDeadLetters(ctx, *limit)
		if err != nil {
			logg.Error(ctx, "failed to list dead letters", err)
			os.Exit(1)
		}
		if len(letters) == 0 {
			fmt.Println("dead-letter store is empty")
			return
		}
		for _, letter := range letters {
			fmt.Printf("seq=%d type=%s deposit=%s attempts=%d reason=%s failed_at=%s\n",
				letter.NotificationSeq, letter.Type, letter.DepositID,
				letter.Attempts, letter.ErrorReason, letter.FailedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return
	}

	if *seq <= 0 {
		fmt.Fprintln(os.Stderr, "either -list or a positive -seq is required")
		os.Exit(1)
	}

	result, err := service.ResendDeadLetter(ctx, notifications.ResendInput{
		Seq:      *seq,
		Endpoint: *endpoint,
		DryRun:   *dryRun,
	})
	if err != nil {
		logg.Error(logg.WithNotificationSeq(ctx, *seq), "resend failed", err)
		os.Exit(1)
	}

	if result.DryRun {
		var pretty json.RawMessage = result.Payload
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			out = result.Payload
		}
		fmt.Printf("dry run for seq=%d (entry kept):\n%s\n", result.Seq, out)
		return
	}

	fmt.Printf("delivered seq=%d to %s; dead letter removed\n", result.Seq, result.Endpoint)
}
