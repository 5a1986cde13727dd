package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/cardhold-backend/internal/webhook"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

type fakeSweeper struct {
	outcome webhook.SweepOutcome
	err     error
	sweeps  int
	at      time.Time
}

func (f *fakeSweeper) SweepDue(_ context.Context, now time.Time) (webhook.SweepOutcome, error) {
	f.sweeps++
	f.at = now
	return f.outcome, f.err
}

func TestWebhookRetryJobSweepsOnce(t *testing.T) {
	sweeper := &fakeSweeper{outcome: webhook.SweepOutcome{Processed: 3, Delivered: 2, Rescheduled: 1}}
	job := NewWebhookRetryJob(logger.New(logger.Options{ServiceName: "cron-test"}), sweeper)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.sweeps != 1 {
		t.Fatalf("expected 1 sweep, got %d", sweeper.sweeps)
	}
	if !sweeper.at.Equal(now) {
		t.Fatalf("expected sweep at %s, got %s", now, sweeper.at)
	}
	if job.Name() != "webhook-retry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestWebhookRetryJobSweepErrorPropagates(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("endpoint unreachable")}
	job := NewWebhookRetryJob(logger.New(logger.Options{ServiceName: "cron-test"}), sweeper)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
