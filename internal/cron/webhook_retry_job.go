package cron

import (
	"context"
	"time"

	"github.com/angelmondragon/cardhold-backend/internal/webhook"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

const webhookRetryJobName = "webhook-retry"

// Sweeper drains the due portion of the webhook retry queue.
type Sweeper interface {
	SweepDue(ctx context.Context, now time.Time) (webhook.SweepOutcome, error)
}

// WebhookRetryJob periodically redelivers failed webhook notifications.
type WebhookRetryJob struct {
	logg    *logger.Logger
	sweeper Sweeper
	now     func() time.Time
}

// NewWebhookRetryJob builds the retry queue sweep job.
func NewWebhookRetryJob(logg *logger.Logger, sweeper Sweeper) *WebhookRetryJob {
	return &WebhookRetryJob{
		logg:    logg,
		sweeper: sweeper,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *WebhookRetryJob) Name() string { return webhookRetryJobName }

// Run sweeps every due retry entry once.
func (j *WebhookRetryJob) Run(ctx context.Context) error {
	outcome, err := j.sweeper.SweepDue(ctx, j.now())
	if outcome.Processed > 0 || err != nil {
		ctx = j.logg.WithFields(ctx, map[string]any{
			"processed":     outcome.Processed,
			"delivered":     outcome.Delivered,
			"rescheduled":   outcome.Rescheduled,
			"dead_lettered": outcome.DeadLettered,
		})
		j.logg.Info(ctx, "webhook retry sweep done")
	}
	return err
}
