package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/cardhold-backend/internal/notifications"
	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

// Config tunes webhook delivery and its retry policy.
type Config struct {
	// Endpoint is the alert webhook URL. Empty disables delivery; the
	// notification log is still written by the publisher.
	Endpoint     string
	Timeout      time.Duration
	BaseInterval time.Duration
	MaxAttempts  int
	BatchSize    int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BaseInterval <= 0 {
		c.BaseInterval = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// SweepOutcome summarizes one retry sweep.
type SweepOutcome struct {
	Processed    int
	Delivered    int
	Rescheduled  int
	DeadLettered int
}

// Dispatcher POSTs notification envelopes to the alert endpoint and owns the
// retry queue and dead-letter promotion. It implements the notifications
// package's Dispatcher and Deliverer.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	retry  notifications.RetryRepository
	dlq    notifications.DeadLetterRepository
	logger *logger.Logger
	now    func() time.Time
}

// NewDispatcher builds the webhook dispatcher.
func NewDispatcher(cfg Config, retry notifications.RetryRepository, dlq notifications.DeadLetterRepository, logg *logger.Logger) (*Dispatcher, error) {
	if retry == nil {
		return nil, errors.New("webhook: retry repository is required")
	}
	if dlq == nil {
		return nil, errors.New("webhook: dead letter repository is required")
	}
	if logg == nil {
		return nil, errors.New("webhook: logger is required")
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  retry,
		dlq:    dlq,
		logger: logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Deliver POSTs payload to endpoint once, bounded by the configured timeout.
// Timeouts, connection failures, and non-2xx responses are all errors.
func (d *Dispatcher) Deliver(ctx context.Context, endpoint string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Dispatch attempts immediate delivery of a fresh notification and enqueues
// it for retry on failure. The failed immediate attempt counts as attempt 1.
func (d *Dispatcher) Dispatch(ctx context.Context, notification *models.Notification) error {
	if strings.TrimSpace(d.cfg.Endpoint) == "" {
		return nil
	}
	ctx = d.logger.WithNotificationSeq(ctx, notification.Seq)

	deliverErr := d.Deliver(ctx, d.cfg.Endpoint, notification.Payload)
	if deliverErr == nil {
		return nil
	}
	d.logger.Warn(ctx, fmt.Sprintf("webhook delivery failed, queuing for retry: %v", deliverErr))

	msg := deliverErr.Error()
	entry := &models.WebhookRetryEntry{
		ID:              uuid.New(),
		NotificationSeq: notification.Seq,
		Type:            notification.Type,
		DepositID:       notification.DepositID,
		Payload:         notification.Payload,
		Attempts:        1,
		NextAttemptAt:   d.now().Add(Backoff(d.cfg.BaseInterval, 1, d.cfg.MaxAttempts)),
		LastError:       &msg,
	}
	if err := d.retry.Enqueue(ctx, entry); err != nil {
		return fmt.Errorf("enqueueing webhook retry: %w", err)
	}
	return nil
}

// SweepDue processes one batch of due retry entries: redeliver, reschedule,
// or promote to the dead-letter store once the attempt budget is spent.
// Per-entry failures never abort the sweep.
func (d *Dispatcher) SweepDue(ctx context.Context, now time.Time) (SweepOutcome, error) {
	var outcome SweepOutcome

	entries, err := d.retry.Due(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return outcome, fmt.Errorf("loading due webhook retries: %w", err)
	}

	var errs error
	for _, entry := range entries {
		outcome.Processed++
		entryCtx := d.logger.WithNotificationSeq(ctx, entry.NotificationSeq)

		deliverErr := d.Deliver(entryCtx, d.cfg.Endpoint, entry.Payload)
		if deliverErr == nil {
			if err := d.retry.Delete(entryCtx, entry.ID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("removing delivered retry %d: %w", entry.NotificationSeq, err))
				continue
			}
			outcome.Delivered++
			continue
		}

		entry.Attempts++
		msg := deliverErr.Error()
		entry.LastError = &msg

		if entry.Attempts >= d.cfg.MaxAttempts {
			if err := d.deadLetter(entryCtx, entry); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("dead-lettering retry %d: %w", entry.NotificationSeq, err))
				continue
			}
			outcome.DeadLettered++
			d.logger.Warn(entryCtx, fmt.Sprintf("webhook delivery abandoned after %d attempts", entry.Attempts))
			continue
		}

		entry.NextAttemptAt = now.Add(Backoff(d.cfg.BaseInterval, entry.Attempts, d.cfg.MaxAttempts))
		if err := d.retry.Update(entryCtx, &entry); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rescheduling retry %d: %w", entry.NotificationSeq, err))
			continue
		}
		outcome.Rescheduled++
	}
	return outcome, errs
}

func (d *Dispatcher) deadLetter(ctx context.Context, entry models.WebhookRetryEntry) error {
	letter := &models.WebhookDeadLetter{
		ID:              uuid.New(),
		NotificationSeq: entry.NotificationSeq,
		Type:            entry.Type,
		DepositID:       entry.DepositID,
		Payload:         entry.Payload,
		Attempts:        entry.Attempts,
		ErrorReason:     enums.DeadLetterReasonMaxAttempts,
		LastError:       entry.LastError,
		FailedAt:        d.now(),
	}
	if err := d.dlq.Insert(ctx, letter); err != nil {
		return err
	}
	return d.retry.Delete(ctx, entry.ID)
}
